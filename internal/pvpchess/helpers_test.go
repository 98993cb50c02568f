package pvpchess

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/park285/Cheese-PvP-server/internal/outcome"
	"github.com/park285/Cheese-PvP-server/internal/protocol"
)

type sentEvent struct {
	conn    string
	event   string
	payload any
}

type notifyLog struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *notifyLog) Send(connID, event string, payload any) {
	n.mu.Lock()
	n.events = append(n.events, sentEvent{conn: connID, event: event, payload: payload})
	n.mu.Unlock()
}

// of returns payloads sent to conn under event, oldest first.
func (n *notifyLog) of(conn, event string) []any {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []any
	for _, e := range n.events {
		if e.conn == conn && e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (n *notifyLog) count(conn, event string) int { return len(n.of(conn, event)) }

func (n *notifyLog) reset() {
	n.mu.Lock()
	n.events = nil
	n.mu.Unlock()
}

type outcomeSink struct {
	mu   sync.Mutex
	list []outcome.Outcome
}

func (s *outcomeSink) Submit(o outcome.Outcome) error {
	s.mu.Lock()
	s.list = append(s.list, o)
	s.mu.Unlock()
	return nil
}

func (s *outcomeSink) all() []outcome.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outcome.Outcome(nil), s.list...)
}

// seqSource hands out vals in order and then repeats the last one.
type seqSource struct {
	vals []uint64
	i    int
}

func (s *seqSource) Uint64() uint64 {
	v := s.vals[s.i]
	if s.i < len(s.vals)-1 {
		s.i++
	}
	return v
}

type harness struct {
	m    *Manager
	log  *notifyLog
	sink *outcomeSink
}

func newHarness(t *testing.T, draws ...uint64) *harness {
	t.Helper()
	if len(draws) == 0 {
		draws = []uint64{0}
	}
	h := &harness{log: &notifyLog{}, sink: &outcomeSink{}}
	h.m = NewManager(
		WithNotifier(h.log),
		WithRecorder(h.sink),
		WithRandSource(&seqSource{vals: draws}),
	)
	h.m.Connect("ca", "A", "Alice")
	h.m.Connect("cb", "B", "Bob")
	return h
}

// room runs fn inside roomID's key.
func (h *harness) room(t *testing.T, roomID string, fn func(r *Room)) {
	t.Helper()
	h.m.rooms.Do(roomID, func() {
		r := h.m.reg.get(roomID)
		if r == nil {
			t.Errorf("room %s not found", roomID)
			return
		}
		fn(r)
	})
}

// seat joins A and B into roomID and marks both ready.
func (h *harness) seat(t *testing.T, roomID string) {
	t.Helper()
	for _, s := range []struct{ conn, user string }{{"ca", "A"}, {"cb", "B"}} {
		if err := h.m.JoinRoom(s.conn, protocol.JoinRoom{RoomID: roomID, UserID: s.user}); err != nil {
			t.Fatalf("JoinRoom %s: %v", s.user, err)
		}
	}
	for _, s := range []struct{ conn, user string }{{"ca", "A"}, {"cb", "B"}} {
		if err := h.m.MarkReady(s.conn, protocol.ClientReady{RoomID: roomID, UserID: s.user}); err != nil {
			t.Fatalf("MarkReady %s: %v", s.user, err)
		}
	}
}

func move(roomID, san, fen, color string) protocol.Move {
	raw, _ := json.Marshal(san)
	return protocol.Move{RoomID: roomID, Move: raw, ResultingPosition: fen, ClaimedColor: color}
}

const afterE4 = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
