package pvpchess

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-PvP-server/internal/obslog"
	"github.com/park285/Cheese-PvP-server/internal/roomstore"
)

func snapshotOf(r *Room, now time.Time) *roomstore.Snapshot {
	snap := &roomstore.Snapshot{
		RoomID:      r.ID,
		Phase:       string(r.phase),
		Players:     make([]roomstore.PlayerSnapshot, 0, len(r.Players)),
		MoveCount:   len(r.History),
		TimeControl: r.TimeControl,
		UpdatedAt:   now,
	}
	if s := r.Session; s != nil {
		snap.FEN = s.FEN
		snap.Turn = string(s.Turn)
	}
	for _, p := range r.Players {
		snap.Players = append(snap.Players, roomstore.PlayerSnapshot{
			UserID:   p.UserID,
			Username: p.Username,
			Color:    string(r.Session.ColorOf(p.UserID)),
			Ready:    p.Ready,
		})
	}
	return snap
}

// saveSnapshot captures room now and writes it in the background. Writes for
// one room keep their order; errors are logged and the in-memory room stays
// authoritative.
func (m *Manager) saveSnapshot(room *Room) {
	if m.snaps == nil {
		return
	}
	snap := snapshotOf(room, m.now())
	m.snapWriter.Go(room.ID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.snapTimeout)
		defer cancel()
		if err := m.snaps.Save(ctx, snap); err != nil {
			obslog.L().Warn("room_snapshot_error", zap.String("room_id", snap.RoomID), zap.Error(err))
		}
	})
}

func (m *Manager) deleteSnapshot(roomID string) {
	if m.snaps == nil {
		return
	}
	m.snapWriter.Go(roomID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.snapTimeout)
		defer cancel()
		if err := m.snaps.Delete(ctx, roomID); err != nil {
			obslog.L().Warn("room_snapshot_error", zap.String("room_id", roomID), zap.Error(err))
		}
	})
}

// FlushSnapshots waits for queued snapshot writes, e.g. before the store is
// closed on shutdown.
func (m *Manager) FlushSnapshots(ctx context.Context) error {
	return m.snapWriter.Wait(ctx)
}
