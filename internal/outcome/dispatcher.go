package outcome

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-PvP-server/internal/obslog"
)

var ErrDispatcherClosed = errors.New("outcome dispatcher closed")

// Dispatcher hands outcomes to a Gateway on background goroutines so the
// caller never waits on the durability write.
type Dispatcher struct {
	gw      Gateway
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(gw Gateway, timeout time.Duration) *Dispatcher {
	if gw == nil {
		gw = NewMemoryGateway()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{gw: gw, timeout: timeout}
}

// Submit records o asynchronously. It only fails after Close.
func (d *Dispatcher) Submit(o Outcome) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		obslog.L().Warn("outcome_dropped_after_close", zap.String("room_id", o.RoomID), zap.String("result", o.Result))
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.gw.RecordOutcome(ctx, o); err != nil {
			obslog.L().Error("outcome_persist_error",
				zap.String("room_id", o.RoomID),
				zap.String("result", o.Result),
				zap.String("method", string(o.Method)),
				zap.Error(err),
			)
			return
		}
		obslog.L().Info("outcome_persist",
			zap.String("room_id", o.RoomID),
			zap.String("white_id", o.WhiteID),
			zap.String("black_id", o.BlackID),
			zap.String("result", o.Result),
			zap.String("method", string(o.Method)),
		)
	}()
	return nil
}

// Close stops accepting outcomes and waits for in-flight writes.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
