// Package roomstore mirrors live room state into Redis so operators can list
// rooms across restarts of the dashboard. It is a read model only; the
// in-process coordinator stays authoritative.
package roomstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/Cheese-PvP-server/internal/protocol"
)

const ttlRoom = 24 * time.Hour

type PlayerSnapshot struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Color    string `json:"color"`
	Ready    bool   `json:"ready"`
}

// Snapshot is what gets written per room.
type Snapshot struct {
	RoomID      string                `json:"roomId"`
	Phase       string                `json:"phase"`
	Players     []PlayerSnapshot      `json:"players"`
	FEN         string                `json:"fen,omitempty"`
	Turn        string                `json:"turn,omitempty"`
	MoveCount   int                   `json:"moveCount"`
	TimeControl *protocol.TimeControl `json:"timeControl,omitempty"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) keyRoom(id string) string { return "pvp:room:" + strings.TrimSpace(id) }
func (s *Store) keyActive() string        { return "pvp:rooms:active" }

func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil || strings.TrimSpace(snap.RoomID) == "" {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keyRoom(snap.RoomID), raw, ttlRoom)
	pipe.SAdd(ctx, s.keyActive(), snap.RoomID)
	pipe.Expire(ctx, s.keyActive(), ttlRoom)
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns nil, nil when the room has no snapshot.
func (s *Store) Load(ctx context.Context, id string) (*Snapshot, error) {
	raw, err := s.rdb.Get(ctx, s.keyRoom(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.keyRoom(id))
	pipe.SRem(ctx, s.keyActive(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// ListActive returns every indexed room, sorted by id. Index members whose
// snapshot expired are pruned.
func (s *Store) ListActive(ctx context.Context) ([]*Snapshot, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyActive()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	out := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			_ = s.rdb.SRem(ctx, s.keyActive(), id).Err()
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}
