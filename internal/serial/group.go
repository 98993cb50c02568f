// Package serial runs jobs one at a time per key, in arrival order, while
// different keys proceed in parallel.
package serial

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-PvP-server/internal/obslog"
)

type job struct {
	fn   func()
	done chan struct{}
}

type mailbox struct {
	queue []job
}

// Group owns one mailbox goroutine per active key. A goroutine exits as soon
// as its mailbox drains, so idle keys cost nothing.
//
// Jobs must not call Do on the same Group: a job waiting on its own key deadlocks.
type Group struct {
	name string

	mu    sync.Mutex
	boxes map[string]*mailbox
}

func NewGroup(name string) *Group {
	return &Group{name: name, boxes: make(map[string]*mailbox)}
}

// Do runs fn on key's mailbox goroutine and waits for it to finish.
func (g *Group) Do(key string, fn func()) {
	done := make(chan struct{})
	g.enqueue(key, job{fn: fn, done: done})
	<-done
}

// Go queues fn on key's mailbox without waiting.
func (g *Group) Go(key string, fn func()) {
	g.enqueue(key, job{fn: fn})
}

// Active reports the number of keys with queued or running jobs.
func (g *Group) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.boxes)
}

// Wait blocks until no key has queued or running jobs. Jobs queued while it
// waits extend the wait.
func (g *Group) Wait(ctx context.Context) error {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()
	for g.Active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func (g *Group) enqueue(key string, j job) {
	g.mu.Lock()
	box, ok := g.boxes[key]
	if !ok {
		box = &mailbox{}
		g.boxes[key] = box
	}
	box.queue = append(box.queue, j)
	g.mu.Unlock()

	if !ok {
		go g.drain(key, box)
	}
}

func (g *Group) drain(key string, box *mailbox) {
	for {
		g.mu.Lock()
		if len(box.queue) == 0 {
			delete(g.boxes, key)
			g.mu.Unlock()
			return
		}
		j := box.queue[0]
		box.queue[0] = job{}
		box.queue = box.queue[1:]
		g.mu.Unlock()

		g.run(key, j)
	}
}

func (g *Group) run(key string, j job) {
	defer func() {
		if r := recover(); r != nil {
			obslog.L().Error("serial_job_panic",
				zap.String("group", g.name),
				zap.String("key", key),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
		if j.done != nil {
			close(j.done)
		}
	}()
	j.fn()
}
