package matchmaking

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/Cheese-PvP-server/internal/obslog"
	"github.com/park285/Cheese-PvP-server/internal/protocol"
	"github.com/park285/Cheese-PvP-server/internal/serial"
)

var ErrInvalidArgs = errors.New("user id or time control missing")

// Entry is one user waiting for an opponent.
type Entry struct {
	UserID      string
	ConnID      string
	Username    string
	Fingerprint Fingerprint
	TimeControl *protocol.TimeControl
}

type Status int

const (
	StatusQueued Status = iota + 1
	StatusAlreadyQueued
	StatusPaired
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusAlreadyQueued:
		return "already_queued"
	case StatusPaired:
		return "paired"
	default:
		return "unknown"
	}
}

// Result of Enqueue. Opponent is set only when Status is StatusPaired; the
// opponent has already been removed from the queue and the requester was
// never added.
type Result struct {
	Status      Status
	Fingerprint Fingerprint
	Opponent    *Entry
}

// Queue holds FIFO waiting lists per fingerprint. Every read or write of a
// bucket runs on that fingerprint's serial key.
type Queue struct {
	lanes *serial.Group

	mu      sync.Mutex
	buckets map[Fingerprint][]*Entry
}

func NewQueue() *Queue {
	return &Queue{
		lanes:   serial.NewGroup("matchmaking"),
		buckets: make(map[Fingerprint][]*Entry),
	}
}

// Enqueue pairs e with the first waiting user under the same fingerprint, or
// appends it. A user already waiting under the fingerprint gets their
// connection and name refreshed in place.
func (q *Queue) Enqueue(e Entry) (Result, error) {
	e.UserID = strings.TrimSpace(e.UserID)
	if e.UserID == "" || e.TimeControl == nil {
		return Result{}, ErrInvalidArgs
	}
	e.Fingerprint = FingerprintOf(e.TimeControl)

	var res Result
	q.lanes.Do(string(e.Fingerprint), func() {
		res = q.enqueueLocked(e)
	})
	obslog.L().Info("matchmaking_enqueue",
		zap.String("user_id", e.UserID),
		zap.String("conn_id", e.ConnID),
		zap.String("fingerprint", string(e.Fingerprint)),
		zap.Stringer("status", res.Status),
	)
	return res, nil
}

func (q *Queue) enqueueLocked(e Entry) Result {
	fp := e.Fingerprint
	list := q.bucket(fp)
	for _, w := range list {
		if w.UserID == e.UserID {
			w.ConnID = e.ConnID
			if e.Username != "" {
				w.Username = e.Username
			}
			return Result{Status: StatusAlreadyQueued, Fingerprint: fp}
		}
	}
	if len(list) > 0 {
		opp := list[0]
		q.setBucket(fp, list[1:])
		return Result{Status: StatusPaired, Fingerprint: fp, Opponent: opp}
	}
	entry := e
	q.setBucket(fp, append(list, &entry))
	return Result{Status: StatusQueued, Fingerprint: fp}
}

// Cancel removes the entry for exactly (userID, connID). It reports the
// fingerprint the entry was removed from.
func (q *Queue) Cancel(userID, connID string) (Fingerprint, bool) {
	if strings.TrimSpace(userID) == "" {
		return "", false
	}
	return q.removeFirst(func(w *Entry) bool { return w.UserID == userID && w.ConnID == connID })
}

// RemoveConnection drops at most one entry bound to connID.
func (q *Queue) RemoveConnection(connID string) (Fingerprint, bool) {
	return q.removeFirst(func(w *Entry) bool { return w.ConnID == connID })
}

func (q *Queue) removeFirst(match func(*Entry) bool) (Fingerprint, bool) {
	for _, fp := range q.fingerprints() {
		removed := false
		q.lanes.Do(string(fp), func() {
			list := q.bucket(fp)
			for i, w := range list {
				if match(w) {
					next := append(append([]*Entry(nil), list[:i]...), list[i+1:]...)
					q.setBucket(fp, next)
					removed = true
					return
				}
			}
		})
		if removed {
			return fp, true
		}
	}
	return "", false
}

// Waiting returns a copy of the entries queued under fp, in queue order.
func (q *Queue) Waiting(fp Fingerprint) []Entry {
	var out []Entry
	q.lanes.Do(string(fp), func() {
		for _, w := range q.bucket(fp) {
			out = append(out, *w)
		}
	})
	return out
}

// Len is the total number of waiting entries across fingerprints.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, list := range q.buckets {
		n += len(list)
	}
	return n
}

func (q *Queue) fingerprints() []Fingerprint {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Fingerprint, 0, len(q.buckets))
	for fp := range q.buckets {
		out = append(out, fp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (q *Queue) bucket(fp Fingerprint) []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buckets[fp]
}

// setBucket stores list, deleting the bucket when it is empty.
func (q *Queue) setBucket(fp Fingerprint, list []*Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(list) == 0 {
		delete(q.buckets, fp)
		return
	}
	q.buckets[fp] = list
}
