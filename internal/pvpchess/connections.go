package pvpchess

import (
	"sort"
	"strings"
	"sync"
)

// Connection is one transport connection and the rooms it is seated in.
type Connection struct {
	ID       string
	UserID   string
	Username string
	rooms    map[string]struct{}
}

// Connections maps transport connection ids to their logical user. Entries
// live exactly as long as the transport connection.
type Connections struct {
	mu   sync.RWMutex
	byID map[string]*Connection
}

func NewConnections() *Connections {
	return &Connections{byID: make(map[string]*Connection)}
}

// Register records connID; registering again refreshes the identity.
func (c *Connections) Register(connID, userID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.byID[connID]; ok {
		if userID != "" {
			cur.UserID = userID
		}
		if username != "" {
			cur.Username = username
		}
		return
	}
	c.byID[connID] = &Connection{ID: connID, UserID: userID, Username: username, rooms: map[string]struct{}{}}
}

// Unregister forgets connID and returns the rooms it was bound to.
func (c *Connections) Unregister(connID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.byID[connID]
	if !ok {
		return nil
	}
	delete(c.byID, connID)
	return sortedKeys(cur.rooms)
}

// Bind records that connID is seated in roomID. It fails for connections that
// are not (or no longer) registered.
func (c *Connections) Bind(connID, roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.byID[connID]
	if !ok {
		return false
	}
	cur.rooms[roomID] = struct{}{}
	return true
}

// Lookup returns a copy of the connection without its room set.
func (c *Connections) Lookup(connID string) (Connection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur, ok := c.byID[connID]
	if !ok {
		return Connection{}, false
	}
	return Connection{ID: cur.ID, UserID: cur.UserID, Username: cur.Username}, true
}

func (c *Connections) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// DefaultName is the display name used when a client sends none.
func DefaultName(userID string) string {
	id := strings.TrimSpace(userID)
	if len(id) > 5 {
		id = id[:5]
	}
	return "User-" + id
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
