// Package wsserver is the websocket transport: it accepts client
// connections, decodes envelopes into coordinator calls and delivers
// outbound events through a bounded per-connection buffer.
package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-PvP-server/internal/obslog"
	"github.com/park285/Cheese-PvP-server/internal/protocol"
)

const (
	readLimit    = 64 << 10
	writeTimeout = 5 * time.Second
	pingTimeout  = 3 * time.Second
)

type Options struct {
	OriginPatterns []string
	OutboundBuffer int
	PingInterval   time.Duration
}

type conn struct {
	id     string
	ws     *websocket.Conn
	out    chan protocol.Envelope
	cancel context.CancelFunc
}

// Server implements pvpchess.Notifier on top of its live connections.
type Server struct {
	opts   Options
	coord  Coordinator
	router *Router

	mu    sync.RWMutex
	conns map[string]*conn

	wg     sync.WaitGroup
	closed bool
}

func New(opts Options) *Server {
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &Server{opts: opts, conns: make(map[string]*conn)}
}

// Attach wires the coordinator; it must be called before serving.
func (s *Server) Attach(c Coordinator) {
	s.coord = c
	s.router = NewRouter(c)
}

// Send queues one event for connID without blocking. A full buffer drops the
// event.
func (s *Server) Send(connID, event string, payload any) {
	s.mu.RLock()
	c := s.conns[connID]
	s.mu.RUnlock()
	if c == nil {
		obslog.L().Debug("ws_send_unknown_conn", zap.String("conn_id", connID), zap.String("event", event))
		return
	}
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		obslog.L().Error("ws_encode_error", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case c.out <- env:
	default:
		obslog.L().Warn("ws_outbound_overflow", zap.String("conn_id", connID), zap.String("event", event))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.coord == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.opts.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	ws.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		out:    make(chan protocol.Envelope, s.opts.OutboundBuffer),
		cancel: cancel,
	}
	q := r.URL.Query()
	userID, username := strings.TrimSpace(q.Get("userId")), strings.TrimSpace(q.Get("username"))

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	s.coord.Connect(c.id, userID, username)
	obslog.L().Info("ws_open", zap.String("conn_id", c.id), zap.String("user_id", userID), zap.String("remote", r.RemoteAddr))

	var loops sync.WaitGroup
	loops.Add(2)
	go func() { defer loops.Done(); s.writeLoop(ctx, c) }()
	go func() { defer loops.Done(); s.pingLoop(ctx, c) }()

	reason := s.readLoop(ctx, c)

	cancel()
	loops.Wait()
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.coord.Disconnect(c.id)
	_ = ws.Close(websocket.StatusNormalClosure, "")
	obslog.L().Info("ws_close", zap.String("conn_id", c.id), zap.String("reason", reason))
}

func (s *Server) readLoop(ctx context.Context, c *conn) string {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "server_close"
			}
			if status := websocket.CloseStatus(err); status != -1 {
				return status.String()
			}
			return err.Error()
		}
		if typ != websocket.MessageText {
			obslog.L().Debug("ws_drop_binary", zap.String("conn_id", c.id))
			continue
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			obslog.L().Warn("ws_drop_malformed", zap.String("conn_id", c.id), zap.Int("bytes", len(data)))
			continue
		}
		s.dispatch(c.id, env)
	}
}

func (s *Server) dispatch(connID string, env protocol.Envelope) {
	err := s.router.Dispatch(connID, env)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownEvent), errors.Is(err, ErrMalformed):
		obslog.L().Warn("ws_drop_event", zap.String("conn_id", connID), zap.String("event", env.Type), zap.Error(err))
	default:
		obslog.L().Info("ws_event_rejected", zap.String("conn_id", connID), zap.String("event", env.Type), zap.Error(err))
	}
}

func (s *Server) writeLoop(ctx context.Context, c *conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, env)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					obslog.L().Warn("ws_write_error", zap.String("conn_id", c.id), zap.String("event", env.Type), zap.Error(err))
					_ = c.ws.Close(websocket.StatusGoingAway, "write failure")
				}
				return
			}
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, c *conn) {
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			if ctx.Err() != nil {
				return
			}
			failures++
			if failures >= 2 {
				obslog.L().Warn("ws_ping_failure", zap.String("conn_id", c.id), zap.Error(err))
				_ = c.ws.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// Len is the number of open connections.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Close refuses new connections, ends the open ones and waits for their
// cleanup to finish.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, c := range s.conns {
		c.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
