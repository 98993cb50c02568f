package pvpchess

import (
	"github.com/park285/Cheese-PvP-server/internal/protocol"
)

// Room pairs two players and outlives any single game. A Room is only read
// or written from inside its own serial key.
type Room struct {
	ID          string
	Players     []*Player
	Session     *Session
	History     []protocol.MoveRecord
	Draw        *DrawOffer
	TimeControl *protocol.TimeControl

	phase    Phase
	finished bool
}

func newRoom(id string) *Room {
	return &Room{ID: id, phase: PhaseEmpty}
}

func (r *Room) Phase() Phase { return r.phase }

// settle recomputes the phase after a mutation.
func (r *Room) settle() {
	switch {
	case len(r.Players) == 0:
		r.phase = PhaseEmpty
	case len(r.Players) < 2:
		r.phase = PhaseWaitingForPlayers
	case r.Session != nil:
		r.phase = PhaseActive
	case r.finished:
		r.phase = PhaseTerminal
	default:
		r.phase = PhaseWaitingForReady
	}
}

func (r *Room) playerByUser(userID string) *Player {
	for _, p := range r.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *Room) playerByConn(connID string) *Player {
	for _, p := range r.Players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

// member returns the player matching both userID and connID.
func (r *Room) member(userID, connID string) *Player {
	p := r.playerByUser(userID)
	if p == nil || p.ConnID != connID {
		return nil
	}
	return p
}

func (r *Room) opponentOf(p *Player) *Player {
	for _, o := range r.Players {
		if o != p {
			return o
		}
	}
	return nil
}

func (r *Room) readyCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Ready {
			n++
		}
	}
	return n
}

func (r *Room) allReady() bool {
	return len(r.Players) == 2 && r.readyCount() == 2
}

func (r *Room) removePlayer(connID string) *Player {
	for i, p := range r.Players {
		if p.ConnID == connID {
			r.Players = append(r.Players[:i:i], r.Players[i+1:]...)
			return p
		}
	}
	return nil
}

// endGame clears the session and everyone's ready flag; the room becomes
// Terminal until a rematch or a fresh pair of ready signals.
func (r *Room) endGame() {
	r.Session = nil
	r.Draw = nil
	r.finished = true
	for _, p := range r.Players {
		p.Ready = false
	}
	r.settle()
}

// resetForRematch prepares a new game between the same two players. Both end
// up ready with their rematch flags cleared.
func (r *Room) resetForRematch() {
	r.Session = nil
	r.History = nil
	r.Draw = nil
	for _, p := range r.Players {
		p.Ready = true
		p.WantsRematch = false
	}
	r.settle()
}

// historyCopy never returns nil so the wire shows [] rather than null.
func (r *Room) historyCopy() []protocol.MoveRecord {
	return append(make([]protocol.MoveRecord, 0, len(r.History)), r.History...)
}
