package pvpchess

import (
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
)

// Color identifies a chess side the way the wire protocol does.
type Color string

const (
	White Color = "w"
	Black Color = "b"
)

// Opposite returns the other side; unknown colors stay unknown.
func (c Color) Opposite() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return ""
	}
}

// Name is the capitalised side name used in end-of-game text.
func (c Color) Name() string {
	switch c {
	case White:
		return "White"
	case Black:
		return "Black"
	default:
		return ""
	}
}

// ParseColor accepts "w"/"b" and "white"/"black" in any case.
func ParseColor(s string) Color {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "w", "white":
		return White
	case "b", "black":
		return Black
	default:
		return ""
	}
}

// StartFEN is the standard initial position.
var StartFEN = nchess.NewGame().FEN()

// Phase is the lifecycle state of a Room.
type Phase string

const (
	PhaseEmpty             Phase = "empty"
	PhaseWaitingForPlayers Phase = "waiting_for_players"
	PhaseWaitingForReady   Phase = "waiting_for_ready"
	PhaseActive            Phase = "active"
	PhaseTerminal          Phase = "terminal"
)

// Player is a seat in a Room.
type Player struct {
	UserID       string
	ConnID       string
	Username     string
	Ready        bool
	WantsRematch bool
}

// Session is the live game nested in a Room.
type Session struct {
	FEN       string
	Turn      Color
	WhiteID   string
	BlackID   string
	StartedAt time.Time
}

// ColorOf returns the color assigned to userID, or "" for non-participants.
func (s *Session) ColorOf(userID string) Color {
	switch {
	case s == nil:
		return ""
	case userID == s.WhiteID:
		return White
	case userID == s.BlackID:
		return Black
	default:
		return ""
	}
}

// DrawOffer is the single outstanding draw proposal of a Room.
type DrawOffer struct {
	FromUserID string
	ToUserID   string
	FromConnID string
}
