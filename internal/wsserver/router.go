package wsserver

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/park285/Cheese-PvP-server/internal/protocol"
	"github.com/park285/Cheese-PvP-server/internal/pvpchess"
	"github.com/park285/Cheese-PvP-server/internal/roomstore"
)

var (
	ErrUnknownEvent = errors.New("unknown event type")
	ErrMalformed    = errors.New("malformed payload")
)

// Coordinator is everything the transport needs from the game side.
type Coordinator interface {
	Connect(connID, userID, username string)
	Disconnect(connID string)

	FindMatch(connID string, req protocol.FindMatch) error
	CancelFindMatch(connID string, req protocol.CancelFindMatch) error
	JoinRoom(connID string, req protocol.JoinRoom) error
	MarkReady(connID string, req protocol.ClientReady) error
	SubmitMove(connID string, req protocol.Move) error
	Chat(connID string, req protocol.ChatMessage) error
	ReportGameOver(connID string, req protocol.GameIsOver) error
	Resign(connID string, req protocol.ResignGame) error
	OfferDraw(connID string, req protocol.OfferDraw) error
	RespondDraw(connID string, req protocol.RespondToDrawOffer) error
	RequestRematch(connID string, req protocol.Rematch) error
	AcceptRematch(connID string, req protocol.Rematch) error
	DeclineRematch(connID string, req protocol.DeclineRematch) error

	Stats() pvpchess.Stats
	Rooms() []*roomstore.Snapshot
}

type handler func(connID string, raw json.RawMessage) error

// Router maps inbound event names to coordinator calls.
type Router struct {
	handlers map[string]handler
}

func NewRouter(c Coordinator) *Router {
	return &Router{handlers: map[string]handler{
		protocol.EvFindMatch:          findMatch(c),
		protocol.EvCancelFindMatch:    route(c.CancelFindMatch),
		protocol.EvJoinRoom:           route(c.JoinRoom),
		protocol.EvClientReady:        route(c.MarkReady),
		protocol.EvMove:               route(c.SubmitMove),
		protocol.EvChatMessage:        route(c.Chat),
		protocol.EvGameIsOver:         route(c.ReportGameOver),
		protocol.EvResignGame:         route(c.Resign),
		protocol.EvOfferDraw:          route(c.OfferDraw),
		protocol.EvRespondToDrawOffer: route(c.RespondDraw),
		protocol.EvRequestRematch:     route(c.RequestRematch),
		protocol.EvAcceptRematch:      route(c.AcceptRematch),
		protocol.EvDeclineRematch:     route(c.DeclineRematch),
	}}
}

// Dispatch runs the handler for env.Type.
func (r *Router) Dispatch(connID string, env protocol.Envelope) error {
	h, ok := r.handlers[env.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	return h(connID, env.Payload)
}

func route[T any](fn func(connID string, req T) error) handler {
	return func(connID string, raw json.RawMessage) error {
		var req T
		if err := decode(raw, &req); err != nil {
			return err
		}
		return fn(connID, req)
	}
}

// findMatch answers an undecodable request with matchmakingError instead of
// dropping it silently.
func findMatch(c Coordinator) handler {
	return func(connID string, raw json.RawMessage) error {
		var req protocol.FindMatch
		if err := decode(raw, &req); err != nil {
			_ = c.FindMatch(connID, protocol.FindMatch{})
			return err
		}
		return c.FindMatch(connID, req)
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
