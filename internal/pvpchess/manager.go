package pvpchess

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-PvP-server/internal/matchmaking"
	"github.com/park285/Cheese-PvP-server/internal/msgcat"
	"github.com/park285/Cheese-PvP-server/internal/obslog"
	"github.com/park285/Cheese-PvP-server/internal/outcome"
	"github.com/park285/Cheese-PvP-server/internal/protocol"
	"github.com/park285/Cheese-PvP-server/internal/roomstore"
	"github.com/park285/Cheese-PvP-server/internal/serial"
)

var (
	ErrMissingFields     = errors.New("required field missing")
	ErrUnknownConnection = errors.New("connection not registered")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrDuplicateUser     = errors.New("user already seated with another connection")
	ErrNotInRoom         = errors.New("sender is not a player of the room")
	ErrNoSession         = errors.New("no active game in room")
	ErrColorMismatch     = errors.New("claimed color does not match assignment")
	ErrNotYourTurn       = errors.New("not the sender's turn")
	ErrNoDrawOffer       = errors.New("no matching draw offer")
	ErrRematchNotAllowed = errors.New("rematch needs two players and no active game")
)

// Notifier delivers one outbound event to one connection. Send must not
// block: it is called from inside room actors.
type Notifier interface {
	Send(connID, event string, payload any)
}

// Recorder accepts terminal outcomes; outcome.Dispatcher is the production one.
type Recorder interface {
	Submit(o outcome.Outcome) error
}

// SnapshotStore mirrors room state somewhere outside the process.
type SnapshotStore interface {
	Save(ctx context.Context, snap *roomstore.Snapshot) error
	Delete(ctx context.Context, id string) error
}

type nopNotifier struct{}

func (nopNotifier) Send(string, string, any) {}

type globalSource struct{}

func (globalSource) Uint64() uint64 { return rand.Uint64() }

// Manager owns every room, the matchmaking queue and the connection registry.
// Room state is touched only inside rooms.Do(roomID, ...).
type Manager struct {
	rooms *serial.Group
	reg   *registry
	conns *Connections
	queue *matchmaking.Queue

	notify      Notifier
	rec         Recorder
	snaps       SnapshotStore
	snapWriter  *serial.Group
	msgs        *msgcat.Catalog
	now         func() time.Time
	snapTimeout time.Duration

	rngMu sync.Mutex
	rng   rand.Source
}

type Option func(*Manager)

func WithNotifier(n Notifier) Option { return func(m *Manager) { m.notify = n } }

func WithRecorder(r Recorder) Option { return func(m *Manager) { m.rec = r } }

func WithSnapshots(s SnapshotStore) Option { return func(m *Manager) { m.snaps = s } }

func WithCatalog(c *msgcat.Catalog) Option { return func(m *Manager) { m.msgs = c } }

// WithRandSource fixes the color draw: an even Uint64 makes the first seated
// player White, an odd one the second.
func WithRandSource(src rand.Source) Option { return func(m *Manager) { m.rng = src } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		rooms:       serial.NewGroup("rooms"),
		snapWriter:  serial.NewGroup("snapshots"),
		reg:         newRegistry(),
		conns:       NewConnections(),
		queue:       matchmaking.NewQueue(),
		notify:      nopNotifier{},
		now:         time.Now,
		snapTimeout: 2 * time.Second,
		rng:         globalSource{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notify == nil {
		m.notify = nopNotifier{}
	}
	if m.rec == nil {
		m.rec = outcome.NewDispatcher(outcome.NewMemoryGateway(), 0)
	}
	if m.msgs == nil {
		m.msgs = msgcat.MustDefault()
	}
	return m
}

// Stats is a point-in-time summary for health endpoints.
type Stats struct {
	Rooms       int `json:"rooms"`
	Queued      int `json:"queued"`
	Connections int `json:"connections"`
}

func (m *Manager) Stats() Stats {
	return Stats{Rooms: m.reg.len(), Queued: m.queue.Len(), Connections: m.conns.Len()}
}

// Connect registers a transport connection before any of its events arrive.
func (m *Manager) Connect(connID, userID, username string) {
	m.conns.Register(connID, strings.TrimSpace(userID), strings.TrimSpace(username))
	obslog.L().Debug("conn_open", zap.String("conn_id", connID), zap.String("user_id", userID))
}

// FindMatch enqueues the sender and, on a pairing, seats both users in a
// fresh room.
func (m *Manager) FindMatch(connID string, req protocol.FindMatch) error {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || req.TimeControl == nil {
		m.send(connID, protocol.EvMatchmakingError, protocol.Message{Message: m.text("matchmaking.missing_args", nil)})
		return matchmaking.ErrInvalidArgs
	}
	self := matchmaking.Entry{
		UserID:      userID,
		ConnID:      connID,
		Username:    m.displayName(connID, userID, req.Username),
		TimeControl: req.TimeControl,
	}
	res, err := m.queue.Enqueue(self)
	if err != nil {
		m.send(connID, protocol.EvMatchmakingError, protocol.Message{Message: m.text("matchmaking.missing_args", nil)})
		return err
	}
	label := map[string]any{"Label": req.TimeControl.DisplayLabel()}
	switch res.Status {
	case matchmaking.StatusQueued:
		m.send(connID, protocol.EvAddedToQueue, protocol.Message{Message: m.text("matchmaking.queued", label)})
	case matchmaking.StatusAlreadyQueued:
		m.send(connID, protocol.EvAddedToQueue, protocol.Message{Message: m.text("matchmaking.already_queued", label)})
	case matchmaking.StatusPaired:
		return m.pair(self, *res.Opponent)
	}
	return nil
}

func (m *Manager) pair(self, opp matchmaking.Entry) error {
	room, err := m.reg.allocate()
	if err != nil {
		obslog.L().Error("room_allocate_error", zap.String("user_id", self.UserID), zap.Error(err))
		m.send(self.ConnID, protocol.EvMatchmakingError, protocol.Message{Message: err.Error()})
		m.send(opp.ConnID, protocol.EvMatchmakingError, protocol.Message{Message: err.Error()})
		return err
	}
	roomID := room.ID
	m.rooms.Do(roomID, func() {
		room.TimeControl = self.TimeControl
		room.Players = []*Player{
			{UserID: self.UserID, ConnID: self.ConnID, Username: self.Username},
			{UserID: opp.UserID, ConnID: opp.ConnID, Username: opp.Username},
		}
		room.settle()
		m.saveSnapshot(room)
	})
	obslog.L().Info("match_found",
		zap.String("room_id", roomID),
		zap.String("user_id", self.UserID),
		zap.String("opponent_id", opp.UserID),
		zap.String("fingerprint", string(matchmaking.FingerprintOf(self.TimeControl))),
	)

	// A side whose connection closed while the pairing was in flight is
	// treated like any other disconnect.
	for _, e := range []matchmaking.Entry{self, opp} {
		if !m.conns.Bind(e.ConnID, roomID) {
			connID := e.ConnID
			m.rooms.Do(roomID, func() { m.leave(roomID, connID) })
		}
	}
	m.send(self.ConnID, protocol.EvMatchFound, protocol.MatchFound{
		RoomID:      roomID,
		Opponent:    protocol.Opponent{UserID: opp.UserID, Username: opp.Username},
		TimeControl: self.TimeControl,
	})
	m.send(opp.ConnID, protocol.EvMatchFound, protocol.MatchFound{
		RoomID:      roomID,
		Opponent:    protocol.Opponent{UserID: self.UserID, Username: self.Username},
		TimeControl: self.TimeControl,
	})
	return nil
}

func (m *Manager) CancelFindMatch(connID string, req protocol.CancelFindMatch) error {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return ErrMissingFields
	}
	fp, ok := m.queue.Cancel(userID, connID)
	if !ok {
		obslog.L().Debug("matchmaking_cancel_miss", zap.String("user_id", userID), zap.String("conn_id", connID))
		return nil
	}
	obslog.L().Info("matchmaking_cancel", zap.String("user_id", userID), zap.String("fingerprint", string(fp)))
	m.send(connID, protocol.EvMatchmakingCanceled, protocol.Message{Message: m.text("matchmaking.cancelled", nil)})
	return nil
}

// JoinRoom seats the sender, creating the room on first use.
func (m *Manager) JoinRoom(connID string, req protocol.JoinRoom) error {
	roomID := strings.TrimSpace(req.RoomID)
	userID := strings.TrimSpace(req.UserID)
	if roomID == "" || userID == "" {
		return ErrMissingFields
	}
	name := m.displayName(connID, userID, req.Username)

	var err error
	m.rooms.Do(roomID, func() {
		room, created := m.reg.getOrCreate(roomID)
		switch p := room.playerByUser(userID); {
		case p != nil && p.ConnID != connID:
			m.send(connID, protocol.EvErrorJoining, protocol.Message{Message: m.text("join.duplicate", nil)})
			err = ErrDuplicateUser
			return
		case p != nil:
			if strings.TrimSpace(req.Username) != "" {
				p.Username = name
			}
		case len(room.Players) < 2:
			if !m.conns.Bind(connID, roomID) {
				err = ErrUnknownConnection
				m.discardIfEmpty(room)
				return
			}
			room.Players = append(room.Players, &Player{UserID: userID, ConnID: connID, Username: name})
			room.settle()
		default:
			m.send(connID, protocol.EvRoomFull, protocol.Message{Message: m.text("join.full", nil)})
			err = ErrRoomFull
			return
		}
		obslog.L().Info("room_join",
			zap.String("room_id", roomID),
			zap.String("user_id", userID),
			zap.Bool("created", created),
			zap.Int("players", len(room.Players)),
		)
		m.startOrResend(room)
		m.saveSnapshot(room)
	})
	return err
}

// MarkReady flags the (user, connection) player as ready.
func (m *Manager) MarkReady(connID string, req protocol.ClientReady) error {
	roomID := strings.TrimSpace(req.RoomID)
	userID := strings.TrimSpace(req.UserID)
	if roomID == "" || userID == "" {
		return ErrMissingFields
	}
	var err error
	m.rooms.Do(roomID, func() {
		room := m.reg.get(roomID)
		if room == nil {
			err = ErrRoomNotFound
			return
		}
		p := room.member(userID, connID)
		if p == nil {
			err = ErrNotInRoom
			return
		}
		p.Ready = true
		if s := strings.TrimSpace(req.Username); s != "" {
			p.Username = s
		}
		m.startOrResend(room)
		m.saveSnapshot(room)
	})
	return err
}

// startOrResend starts a game when both seated players are ready, resends the
// live game when one exists, and otherwise reports readiness.
func (m *Manager) startOrResend(room *Room) {
	switch {
	case room.Session == nil && room.allReady():
		m.startGame(room)
	case room.Session != nil && len(room.Players) == 2:
		for _, p := range room.Players {
			m.send(p.ConnID, protocol.EvInitialGameState, m.initialState(room, p))
		}
	default:
		total, ready := len(room.Players), room.readyCount()
		key := "room.waiting_ready"
		if total < 2 {
			key = "room.waiting_opponent"
		}
		msg := m.text(key, map[string]any{"Ready": ready, "Total": total})
		for _, p := range room.Players {
			m.send(p.ConnID, protocol.EvRoomStatusUpdate, protocol.RoomStatusUpdate{
				RoomID: room.ID, Message: msg, Ready: ready, Total: total,
			})
		}
	}
}

func (m *Manager) startGame(room *Room) {
	w := m.pickWhite()
	white, black := room.Players[w], room.Players[1-w]
	room.Session = &Session{
		FEN:       StartFEN,
		Turn:      White,
		WhiteID:   white.UserID,
		BlackID:   black.UserID,
		StartedAt: m.now(),
	}
	room.History = nil
	room.Draw = nil
	room.finished = false
	for _, p := range room.Players {
		p.WantsRematch = false
	}
	room.settle()
	obslog.L().Info("game_start",
		zap.String("room_id", room.ID),
		zap.String("white_id", white.UserID),
		zap.String("black_id", black.UserID),
	)
	for _, p := range room.Players {
		m.send(p.ConnID, protocol.EvInitialGameState, m.initialState(room, p))
	}
}

func (m *Manager) pickWhite() int {
	m.rngMu.Lock()
	v := m.rng.Uint64()
	m.rngMu.Unlock()
	return int(v & 1)
}

func (m *Manager) initialState(room *Room, p *Player) protocol.InitialGameState {
	s := room.Session
	st := protocol.InitialGameState{
		RoomID:      room.ID,
		FEN:         s.FEN,
		Turn:        string(s.Turn),
		PlayerIDs:   protocol.PlayerIDs{White: s.WhiteID, Black: s.BlackID},
		MoveHistory: room.historyCopy(),
		TimeControl: room.TimeControl,
		PlayerColor: string(s.ColorOf(p.UserID)),
	}
	if o := room.opponentOf(p); o != nil {
		st.Opponent = &protocol.Opponent{UserID: o.UserID, Username: o.Username}
	}
	return st
}

// SubmitMove relays a move after checking color authority and turn order.
// Legality is the clients' concern.
func (m *Manager) SubmitMove(connID string, req protocol.Move) error {
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		return ErrMissingFields
	}
	var err error
	m.rooms.Do(roomID, func() {
		room := m.reg.get(roomID)
		if room == nil || room.Session == nil || len(room.Players) != 2 {
			m.send(connID, protocol.EvErrorMove, protocol.Message{Message: m.text("move.no_game", nil)})
			err = ErrNoSession
			return
		}
		mover := room.playerByConn(connID)
		if mover == nil {
			m.send(connID, protocol.EvErrorMove, protocol.Message{Message: m.text("move.unauthorized", nil)})
			err = ErrNotInRoom
			return
		}
		s := room.Session
		assigned := s.ColorOf(mover.UserID)
		if assigned == "" || ParseColor(req.Color()) != assigned {
			m.send(connID, protocol.EvInvalidMove, protocol.Message{Message: m.text("move.color_mismatch", nil)})
			err = ErrColorMismatch
			return
		}
		if s.Turn != assigned {
			m.send(connID, protocol.EvInvalidMove, protocol.Message{Message: m.text("move.not_your_turn", nil)})
			err = ErrNotYourTurn
			return
		}

		pos, notation := strings.TrimSpace(req.Position()), req.Notation()
		if pos == "" || notation == "" {
			err = ErrMissingFields
			return
		}
		s.FEN = pos
		s.Turn = assigned.Opposite()
		room.History = append(room.History, protocol.MoveRecord{
			Player: mover.Username,
			Move:   notation,
			Color:  string(assigned),
			UserID: mover.UserID,
		})
		if opp := room.opponentOf(mover); opp != nil {
			m.send(opp.ConnID, protocol.EvReceiveMove, protocol.ReceiveMove{
				RoomID:        roomID,
				Move:          req.Move,
				FEN:           s.FEN,
				NextTurn:      string(s.Turn),
				OpponentColor: string(assigned),
				PlayerName:    mover.Username,
				UserIDOfMover: mover.UserID,
			})
		}
		obslog.L().Debug("move",
			zap.String("room_id", roomID),
			zap.String("color", string(assigned)),
			zap.Int("ply", len(room.History)),
		)
		m.saveSnapshot(room)
	})
	return err
}

// Chat relays a chat line to every player of the room, sender included.
func (m *Manager) Chat(connID string, req protocol.ChatMessage) error {
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		return ErrMissingFields
	}
	req.RoomID = roomID
	var err error
	m.rooms.Do(roomID, func() {
		room := m.reg.get(roomID)
		if room == nil {
			err = ErrRoomNotFound
			return
		}
		if room.playerByConn(connID) == nil {
			err = ErrNotInRoom
			return
		}
		for _, p := range room.Players {
			m.send(p.ConnID, protocol.EvChatMessage, req)
		}
	})
	return err
}

// Rooms returns a snapshot of every live room, ordered by id.
func (m *Manager) Rooms() []*roomstore.Snapshot {
	var out []*roomstore.Snapshot
	for _, id := range m.reg.ids() {
		m.rooms.Do(id, func() {
			if room := m.reg.get(id); room != nil {
				out = append(out, snapshotOf(room, m.now()))
			}
		})
	}
	return out
}

func (m *Manager) send(connID, event string, payload any) {
	if connID == "" {
		return
	}
	m.notify.Send(connID, event, payload)
}

func (m *Manager) text(key string, data any) string {
	return m.msgs.Text(key, data)
}

// displayName prefers the name sent with the event, then the one given at
// connect time, then a generated default.
func (m *Manager) displayName(connID, userID, given string) string {
	if s := strings.TrimSpace(given); s != "" {
		return s
	}
	if c, ok := m.conns.Lookup(connID); ok && c.UserID == userID && c.Username != "" {
		return c.Username
	}
	return DefaultName(userID)
}
