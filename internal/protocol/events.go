// Package protocol defines the websocket wire format: a JSON envelope carrying
// an event name and its payload.
package protocol

import "encoding/json"

// Inbound events.
const (
	EvJoinRoom           = "joinRoom"
	EvClientReady        = "clientReadyForGame"
	EvFindMatch          = "findMatch"
	EvCancelFindMatch    = "cancelFindMatch"
	EvMove               = "move"
	EvChatMessage        = "chatMessage"
	EvGameIsOver         = "gameIsOver"
	EvResignGame         = "resignGame"
	EvOfferDraw          = "offerDraw"
	EvRespondToDrawOffer = "respondToDrawOffer"
	EvRequestRematch     = "requestRematch"
	EvAcceptRematch      = "acceptRematch"
	EvDeclineRematch     = "declineRematch"
)

// Outbound events.
const (
	EvMatchFound          = "matchFound"
	EvAddedToQueue        = "addedToQueue"
	EvMatchmakingError    = "matchmakingError"
	EvMatchmakingCanceled = "matchmakingCancelledFeedback"

	EvInitialGameState = "initialGameState"
	EvReceiveMove      = "receiveMove"
	EvInvalidMove      = "invalidMove"
	EvErrorMove        = "errorMove"
	EvErrorJoining     = "errorJoining"
	EvRoomFull         = "roomFull"
	EvRoomStatusUpdate = "roomStatusUpdate"

	EvGameEndedByServer    = "gameEndedByServer"
	EvOpponentDisconnected = "opponentDisconnected"
	EvDrawOffered          = "drawOffered"
	EvDrawOfferResponded   = "drawOfferResponded"
	EvRematchRequested     = "rematchRequested"
	EvRematchStatus        = "rematchStatus"
)

// Envelope is one websocket text frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload under the given event name.
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: event, Payload: raw}, nil
}
