package pvpchess

import (
	"strings"

	"go.uber.org/zap"

	"github.com/park285/Cheese-PvP-server/internal/matchmaking"
	"github.com/park285/Cheese-PvP-server/internal/obslog"
	"github.com/park285/Cheese-PvP-server/internal/outcome"
	"github.com/park285/Cheese-PvP-server/internal/protocol"
)

func resultFor(winner Color) string {
	if winner == White {
		return outcome.WhiteWins
	}
	return outcome.BlackWins
}

// activeRoom returns the room when it holds a live two-player game.
func (m *Manager) activeRoom(roomID string) *Room {
	room := m.reg.get(roomID)
	if room == nil || room.Session == nil || len(room.Players) != 2 {
		return nil
	}
	return room
}

// Resign ends the game in the opponent's favour. The loser's color comes
// from the session, not from the payload.
func (m *Manager) Resign(connID string, req protocol.ResignGame) error {
	roomID := strings.TrimSpace(req.RoomID)
	userID := strings.TrimSpace(req.ResigningUserID)
	if roomID == "" || userID == "" {
		return ErrMissingFields
	}
	var err error
	m.rooms.Do(roomID, func() {
		room := m.activeRoom(roomID)
		if room == nil {
			err = ErrNoSession
			return
		}
		p := room.member(userID, connID)
		if p == nil || room.Session.ColorOf(userID) == "" {
			err = ErrNotInRoom
			return
		}
		loser := room.Session.ColorOf(userID)
		winner := loser.Opposite()
		names := map[string]any{"Winner": winner.Name(), "Loser": loser.Name()}
		m.finish(room, resultFor(winner), outcome.MethodResign,
			m.text("end.resign", names), m.text("end.resign_note", names), room.Session.FEN)
	})
	return err
}

// OfferDraw stores the offer, replacing any earlier one, and tells the
// opponent.
func (m *Manager) OfferDraw(connID string, req protocol.OfferDraw) error {
	roomID := strings.TrimSpace(req.RoomID)
	userID := strings.TrimSpace(req.Offerer())
	if roomID == "" || userID == "" {
		return ErrMissingFields
	}
	var err error
	m.rooms.Do(roomID, func() {
		room := m.activeRoom(roomID)
		if room == nil {
			err = ErrNoSession
			return
		}
		p := room.member(userID, connID)
		if p == nil {
			err = ErrNotInRoom
			return
		}
		opp := room.opponentOf(p)
		room.Draw = &DrawOffer{FromUserID: p.UserID, ToUserID: opp.UserID, FromConnID: connID}
		obslog.L().Info("draw_offer", zap.String("room_id", roomID), zap.String("from", p.UserID))
		m.send(opp.ConnID, protocol.EvDrawOffered, protocol.DrawOffered{
			RoomID: roomID, OfferingUserID: p.UserID, OfferingUsername: p.Username,
		})
		m.saveSnapshot(room)
	})
	return err
}

// RespondDraw answers the outstanding offer. Only its addressee, on their own
// connection, can answer; any answer clears the offer.
func (m *Manager) RespondDraw(connID string, req protocol.RespondToDrawOffer) error {
	roomID := strings.TrimSpace(req.RoomID)
	userID := strings.TrimSpace(req.RespondingUserID)
	if roomID == "" || userID == "" {
		return ErrMissingFields
	}
	var err error
	m.rooms.Do(roomID, func() {
		room := m.activeRoom(roomID)
		if room == nil {
			err = ErrNoSession
			return
		}
		offer := room.Draw
		if offer == nil || offer.ToUserID != userID {
			err = ErrNoDrawOffer
			return
		}
		if room.member(userID, connID) == nil {
			err = ErrNotInRoom
			return
		}
		room.Draw = nil
		obslog.L().Info("draw_response", zap.String("room_id", roomID), zap.Bool("accepted", req.Accepted))
		m.send(offer.FromConnID, protocol.EvDrawOfferResponded, protocol.DrawOfferResponded{
			RoomID: roomID, Accepted: req.Accepted, RespondingUserID: userID,
		})
		if !req.Accepted {
			m.saveSnapshot(room)
			return
		}
		msg := m.text("end.draw_agreed", nil)
		m.finish(room, outcome.Draw, outcome.MethodAgreement, msg, msg, room.Session.FEN)
	})
	return err
}

func (m *Manager) RequestRematch(connID string, req protocol.Rematch) error {
	return m.rematch(connID, req, false)
}

// AcceptRematch behaves like RequestRematch; either call order ends in the
// same start once both flags are set.
func (m *Manager) AcceptRematch(connID string, req protocol.Rematch) error {
	return m.rematch(connID, req, true)
}

func (m *Manager) rematch(connID string, req protocol.Rematch, accepting bool) error {
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
		if len(room.Players) != 2 || room.Session != nil || !room.finished {
			err = ErrRematchNotAllowed
			return
		}
		p := room.member(userID, connID)
		if p == nil {
			err = ErrNotInRoom
			return
		}
		opp := room.opponentOf(p)
		p.WantsRematch = true

		if opp.WantsRematch {
			obslog.L().Info("rematch_start", zap.String("room_id", roomID))
			room.resetForRematch()
			m.startOrResend(room)
			m.saveSnapshot(room)
			return
		}
		m.send(connID, protocol.EvRematchStatus, protocol.RematchStatus{
			RoomID: roomID, Message: m.text("rematch.waiting", nil),
		})
		if accepting {
			yes := true
			m.send(opp.ConnID, protocol.EvRematchStatus, protocol.RematchStatus{
				RoomID:          roomID,
				AcceptedRematch: &yes,
				Message:         m.text("rematch.accepted", map[string]any{"Name": p.Username}),
			})
		} else {
			m.send(opp.ConnID, protocol.EvRematchRequested, protocol.RematchRequested{
				RoomID: roomID, FromUserID: p.UserID, FromUsername: p.Username,
			})
		}
		m.saveSnapshot(room)
	})
	return err
}

// DeclineRematch clears both flags and tells the target.
func (m *Manager) DeclineRematch(connID string, req protocol.DeclineRematch) error {
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		return ErrMissingFields
	}
	var err error
	m.rooms.Do(roomID, func() {
		room := m.reg.get(roomID)
		if room == nil {
			err = ErrRoomNotFound
			return
		}
		sender := room.playerByConn(connID)
		if sender == nil {
			err = ErrNotInRoom
			return
		}
		if room.Session != nil {
			err = ErrRematchNotAllowed
			return
		}
		for _, p := range room.Players {
			p.WantsRematch = false
		}
		target := room.playerByUser(strings.TrimSpace(req.ToUserID))
		if target == nil || target == sender {
			target = room.opponentOf(sender)
		}
		if target != nil {
			no := false
			m.send(target.ConnID, protocol.EvRematchStatus, protocol.RematchStatus{
				RoomID: roomID, AcceptedRematch: &no, Message: m.text("rematch.declined", nil),
			})
		}
		m.saveSnapshot(room)
	})
	return err
}

// ReportGameOver accepts a client-declared result as-is. A report without a
// result is dropped and the game continues.
func (m *Manager) ReportGameOver(connID string, req protocol.GameIsOver) error {
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		return ErrMissingFields
	}
	var err error
	m.rooms.Do(roomID, func() {
		room := m.activeRoom(roomID)
		if room == nil {
			err = ErrNoSession
			return
		}
		p := room.playerByConn(connID)
		if p == nil || room.Session.ColorOf(p.UserID) == "" {
			err = ErrNotInRoom
			return
		}
		result := strings.TrimSpace(req.Result)
		if result == "" {
			err = ErrMissingFields
			return
		}
		reason := strings.TrimSpace(req.Reason)
		data := map[string]any{"Reason": reason, "Result": result}
		msg := m.text("end.reported_plain", data)
		if reason != "" {
			msg = m.text("end.reported", data)
		}
		fen := strings.TrimSpace(req.Position())
		if fen == "" {
			fen = room.Session.FEN
		}
		m.finish(room, result, outcome.MethodReported, msg, reason, fen)
	})
	return err
}

// finish broadcasts the end of the live game, hands the outcome to the
// recorder and resets the room to Terminal. Runs inside the room's key.
func (m *Manager) finish(room *Room, result string, method outcome.Method, message, notes, finalFEN string) {
	for _, p := range room.Players {
		m.send(p.ConnID, protocol.EvGameEndedByServer, protocol.GameEnded{
			RoomID: room.ID, Result: result, Message: message, FinalFEN: finalFEN,
		})
	}
	m.record(room, result, method, notes, finalFEN)
	obslog.L().Info("game_end",
		zap.String("room_id", room.ID),
		zap.String("result", result),
		zap.String("method", string(method)),
		zap.Int("plies", len(room.History)),
	)
	room.endGame()
	m.saveSnapshot(room)
}

// record submits the outcome of room's current session. gone lists players
// already removed from the room whose names are still wanted.
func (m *Manager) record(room *Room, result string, method outcome.Method, notes, finalFEN string, gone ...*Player) {
	s := room.Session
	names := map[string]string{}
	for _, p := range append(append([]*Player(nil), room.Players...), gone...) {
		names[p.UserID] = p.Username
	}
	o := outcome.Outcome{
		RoomID:      room.ID,
		WhiteID:     s.WhiteID,
		WhiteName:   names[s.WhiteID],
		BlackID:     s.BlackID,
		BlackName:   names[s.BlackID],
		Result:      result,
		Method:      method,
		FinalFEN:    finalFEN,
		MoveHistory: room.historyCopy(),
		Notes:       notes,
		StartedAt:   s.StartedAt,
		PlayedAt:    m.now(),
	}
	if room.TimeControl != nil {
		o.TimeControl = string(matchmaking.FingerprintOf(room.TimeControl))
	}
	if err := m.rec.Submit(o); err != nil {
		obslog.L().Warn("outcome_submit_error", zap.String("room_id", room.ID), zap.Error(err))
	}
}
