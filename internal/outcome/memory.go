package outcome

import (
	"context"
	"sync"
)

// MemoryGateway keeps outcomes in process. Used when neither a database nor a
// record URL is configured, and by tests.
type MemoryGateway struct {
	mu     sync.RWMutex
	list   []Outcome
	byRoom map[string][]int
	fail   error
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{byRoom: make(map[string][]int)}
}

func (m *MemoryGateway) RecordOutcome(ctx context.Context, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	o.MoveHistory = append(o.MoveHistory[:0:0], o.MoveHistory...)
	m.byRoom[o.RoomID] = append(m.byRoom[o.RoomID], len(m.list))
	m.list = append(m.list, o)
	return nil
}

// FailWith makes every later RecordOutcome return err; nil restores success.
func (m *MemoryGateway) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// All returns recorded outcomes in arrival order.
func (m *MemoryGateway) All() []Outcome {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Outcome(nil), m.list...)
}

// ByRoom returns the outcomes recorded for roomID, oldest first.
func (m *MemoryGateway) ByRoom(roomID string) []Outcome {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := m.byRoom[roomID]
	out := make([]Outcome, 0, len(idx))
	for _, i := range idx {
		out = append(out, m.list[i])
	}
	return out
}
