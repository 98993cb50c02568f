package pvpchess

import (
	"crypto/rand"
	"sort"
	"sync"
)

type registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func newRegistry() *registry {
	return &registry{rooms: make(map[string]*Room)}
}

func (g *registry) get(id string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rooms[id]
}

func (g *registry) getOrCreate(id string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[id]; ok {
		return r, false
	}
	r := newRoom(id)
	g.rooms[id] = r
	return r, true
}

// allocate reserves a fresh unused id and registers an empty room under it.
func (g *registry) allocate() (*Room, error) {
	for {
		id, err := roomCode()
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		if _, taken := g.rooms[id]; !taken {
			r := newRoom(id)
			g.rooms[id] = r
			g.mu.Unlock()
			return r, nil
		}
		g.mu.Unlock()
	}
}

func (g *registry) remove(id string) {
	g.mu.Lock()
	delete(g.rooms, id)
	g.mu.Unlock()
}

func (g *registry) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

func (g *registry) ids() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// roomCode returns 6 upper-case alphanumerics.
func roomCode() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}
