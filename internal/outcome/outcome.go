// Package outcome records finished games. Recording is fire-and-forget from
// the coordinator's point of view: failures are logged and never retried.
package outcome

import (
	"context"
	"strings"
	"time"

	"github.com/park285/Cheese-PvP-server/internal/protocol"
)

// Results as stored and broadcast.
const (
	WhiteWins = "1-0"
	BlackWins = "0-1"
	Draw      = "1/2-1/2"
)

// Method says how the game ended.
type Method string

const (
	MethodResign     Method = "resignation"
	MethodAgreement  Method = "agreement"
	MethodDisconnect Method = "disconnect"
	MethodReported   Method = "reported"
)

// Outcome is the durable record of one terminal event.
type Outcome struct {
	RoomID      string
	WhiteID     string
	WhiteName   string
	BlackID     string
	BlackName   string
	Result      string
	Method      Method
	FinalFEN    string
	MoveHistory []protocol.MoveRecord
	Notes       string
	TimeControl string
	StartedAt   time.Time
	PlayedAt    time.Time
}

// Gateway is the external persistence collaborator.
type Gateway interface {
	RecordOutcome(ctx context.Context, o Outcome) error
}

// WinnerID resolves the winning user id, or "" for draws and unknown results.
func (o Outcome) WinnerID() string {
	switch strings.TrimSpace(o.Result) {
	case WhiteWins:
		return o.WhiteID
	case BlackWins:
		return o.BlackID
	default:
		return ""
	}
}

// Duration is PlayedAt-StartedAt, clamped at zero.
func (o Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.PlayedAt.IsZero() {
		return 0
	}
	d := o.PlayedAt.Sub(o.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}
