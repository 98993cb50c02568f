package protocol

import (
	"encoding/json"
	"strings"
)

// TimeControl is the client's pacing descriptor. Both "categoryName" and
// "category" are accepted for the label used in the queue fingerprint.
type TimeControl struct {
	CategoryName string `json:"categoryName,omitempty"`
	Category     string `json:"category,omitempty"`
	Time         *int   `json:"time,omitempty"`
	Increment    *int   `json:"increment,omitempty"`
	Label        string `json:"label,omitempty"`
}

// CategoryLabel returns the category label or "" when none was sent.
func (tc *TimeControl) CategoryLabel() string {
	if tc == nil {
		return ""
	}
	if s := strings.TrimSpace(tc.CategoryName); s != "" {
		return s
	}
	return strings.TrimSpace(tc.Category)
}

// DisplayLabel is used in queue feedback messages.
func (tc *TimeControl) DisplayLabel() string {
	if tc == nil {
		return ""
	}
	if s := strings.TrimSpace(tc.Label); s != "" {
		return s
	}
	return tc.CategoryLabel()
}

// MoveRecord is one entry of a room's move history.
type MoveRecord struct {
	Player string `json:"player"`
	Move   string `json:"move"`
	Color  string `json:"color"`
	UserID string `json:"userId"`
}

type Opponent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type PlayerIDs struct {
	White string `json:"white"`
	Black string `json:"black"`
}

// Inbound payloads.

type JoinRoom struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

type ClientReady struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

type FindMatch struct {
	UserID      string       `json:"userId"`
	TimeControl *TimeControl `json:"timeControl"`
	Username    string       `json:"username,omitempty"`
}

type CancelFindMatch struct {
	UserID string `json:"userId"`
}

// Move accepts both the current field names and the legacy ones
// (fen, playerColorMakingMove).
type Move struct {
	RoomID                string          `json:"roomId"`
	Move                  json.RawMessage `json:"move"`
	ResultingPosition     string          `json:"resultingPosition,omitempty"`
	FEN                   string          `json:"fen,omitempty"`
	ClaimedColor          string          `json:"claimedColor,omitempty"`
	PlayerColorMakingMove string          `json:"playerColorMakingMove,omitempty"`
}

func (m Move) Position() string {
	if m.ResultingPosition != "" {
		return m.ResultingPosition
	}
	return m.FEN
}

func (m Move) Color() string {
	if m.ClaimedColor != "" {
		return m.ClaimedColor
	}
	return m.PlayerColorMakingMove
}

// Notation extracts a printable move: a bare JSON string, or the "san"
// (falling back to "lan", then "from"+"to") field of an object.
func (m Move) Notation() string {
	if len(m.Move) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Move, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		SAN  string `json:"san"`
		LAN  string `json:"lan"`
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.Unmarshal(m.Move, &obj); err != nil {
		return ""
	}
	switch {
	case obj.SAN != "":
		return obj.SAN
	case obj.LAN != "":
		return obj.LAN
	default:
		return obj.From + obj.To
	}
}

// ChatMessage is relayed verbatim; Time is whatever the client sent.
type ChatMessage struct {
	RoomID     string          `json:"roomId"`
	UserID     string          `json:"userId"`
	SenderName string          `json:"senderName,omitempty"`
	Text       string          `json:"text"`
	Time       json.RawMessage `json:"time,omitempty"`
}

type GameIsOver struct {
	RoomID        string `json:"roomId"`
	Result        string `json:"result"`
	FinalPosition string `json:"finalPosition,omitempty"`
	FEN           string `json:"fen,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func (g GameIsOver) Position() string {
	if g.FinalPosition != "" {
		return g.FinalPosition
	}
	return g.FEN
}

type ResignGame struct {
	RoomID               string `json:"roomId"`
	ResigningUserID      string `json:"resigningUserId"`
	ResigningPlayerColor string `json:"resigningPlayerColor,omitempty"`
	Color                string `json:"color,omitempty"`
}

type OfferDraw struct {
	RoomID         string `json:"roomId"`
	OfferingUserID string `json:"offeringUserId,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

func (o OfferDraw) Offerer() string {
	if o.OfferingUserID != "" {
		return o.OfferingUserID
	}
	return o.UserID
}

type RespondToDrawOffer struct {
	RoomID           string `json:"roomId"`
	RespondingUserID string `json:"respondingUserId"`
	Accepted         bool   `json:"accepted"`
}

type Rematch struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type DeclineRematch struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId,omitempty"`
	ToUserID string `json:"toUserId"`
}

// Outbound payloads.

// Message carries a single human-readable line; used by the feedback and
// error events.
type Message struct {
	Message string `json:"message"`
}

type MatchFound struct {
	RoomID      string       `json:"roomId"`
	Opponent    Opponent     `json:"opponent"`
	TimeControl *TimeControl `json:"timeControl,omitempty"`
}

type InitialGameState struct {
	RoomID      string       `json:"roomId"`
	FEN         string       `json:"fen"`
	Turn        string       `json:"turn"`
	PlayerIDs   PlayerIDs    `json:"playerIds"`
	MoveHistory []MoveRecord `json:"moveHistory"`
	TimeControl *TimeControl `json:"timeControl,omitempty"`
	PlayerColor string       `json:"playerColor"`
	Opponent    *Opponent    `json:"opponent"`
}

type ReceiveMove struct {
	RoomID        string          `json:"roomId"`
	Move          json.RawMessage `json:"move"`
	FEN           string          `json:"fen"`
	NextTurn      string          `json:"nextTurn"`
	OpponentColor string          `json:"opponentColor"`
	PlayerName    string          `json:"playerName"`
	UserIDOfMover string          `json:"userIdOfMover"`
}

type RoomStatusUpdate struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
	Ready   int    `json:"ready"`
	Total   int    `json:"total"`
}

type GameEnded struct {
	RoomID   string `json:"roomId"`
	Result   string `json:"result"`
	Message  string `json:"message"`
	FinalFEN string `json:"finalFen"`
}

type OpponentDisconnected struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

type DrawOffered struct {
	RoomID           string `json:"roomId"`
	OfferingUserID   string `json:"offeringUserId"`
	OfferingUsername string `json:"offeringUsername"`
}

type DrawOfferResponded struct {
	RoomID           string `json:"roomId"`
	Accepted         bool   `json:"accepted"`
	RespondingUserID string `json:"respondingUserId"`
}

type RematchRequested struct {
	RoomID       string `json:"roomId"`
	FromUserID   string `json:"fromUserId"`
	FromUsername string `json:"fromUsername"`
}

type RematchStatus struct {
	RoomID          string `json:"roomId"`
	AcceptedRematch *bool  `json:"acceptedRematch,omitempty"`
	Message         string `json:"message"`
}
