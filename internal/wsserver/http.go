package wsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-PvP-server/internal/obslog"
	"github.com/park285/Cheese-PvP-server/internal/roomstore"
)

// RoomLister reads room snapshots from an external store.
type RoomLister interface {
	ListActive(ctx context.Context) ([]*roomstore.Snapshot, error)
}

type health struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Queued      int    `json:"queued"`
	Connections int    `json:"connections"`
}

// NewMux serves the websocket on /ws plus /healthz and /rooms. With a nil
// lister, /rooms reads the coordinator's in-memory rooms.
func NewMux(s *Server, lister RoomLister) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		st := s.coord.Stats()
		writeJSON(w, http.StatusOK, health{Status: "ok", Rooms: st.Rooms, Queued: st.Queued, Connections: s.Len()})
	})
	mux.HandleFunc("GET /rooms", func(w http.ResponseWriter, r *http.Request) {
		if lister == nil {
			writeJSON(w, http.StatusOK, nonNil(s.coord.Rooms()))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		list, err := lister.ListActive(ctx)
		if err != nil {
			obslog.L().Warn("rooms_list_error", zap.Error(err))
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "room store unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, nonNil(list))
	})
	return mux
}

func nonNil(list []*roomstore.Snapshot) []*roomstore.Snapshot {
	if list == nil {
		return []*roomstore.Snapshot{}
	}
	return list
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Debug("http_write_error", zap.Error(err))
	}
}
