package pvpchess

import (
	"go.uber.org/zap"

	"github.com/park285/Cheese-PvP-server/internal/obslog"
	"github.com/park285/Cheese-PvP-server/internal/outcome"
	"github.com/park285/Cheese-PvP-server/internal/protocol"
)

// Disconnect cleans up after a closed connection: at most one queue entry,
// then every room the connection was seated in.
func (m *Manager) Disconnect(connID string) {
	rooms := m.conns.Unregister(connID)
	if fp, ok := m.queue.RemoveConnection(connID); ok {
		obslog.L().Info("matchmaking_drop", zap.String("conn_id", connID), zap.String("fingerprint", string(fp)))
	}
	for _, roomID := range rooms {
		m.rooms.Do(roomID, func() { m.leave(roomID, connID) })
	}
	obslog.L().Debug("conn_close", zap.String("conn_id", connID), zap.Int("rooms", len(rooms)))
}

// leave removes connID's player from roomID. A live game is awarded to the
// remaining player. Runs inside the room's key.
func (m *Manager) leave(roomID, connID string) {
	room := m.reg.get(roomID)
	if room == nil {
		return
	}
	gone := room.removePlayer(connID)
	if gone == nil {
		return
	}
	obslog.L().Info("room_leave", zap.String("room_id", roomID), zap.String("user_id", gone.UserID))

	if s := room.Session; s != nil && s.ColorOf(gone.UserID) != "" && len(room.Players) > 0 {
		remaining := room.Players[0]
		winner := s.ColorOf(remaining.UserID)
		if winner == "" {
			winner = s.ColorOf(gone.UserID).Opposite()
		}
		result := resultFor(winner)
		m.send(remaining.ConnID, protocol.EvOpponentDisconnected, protocol.OpponentDisconnected{
			RoomID:  roomID,
			Message: m.text("end.disconnect_win", nil),
			Result:  result,
		})
		m.record(room, result, outcome.MethodDisconnect, m.text("end.disconnect_note", nil), s.FEN, gone)
		obslog.L().Info("game_end",
			zap.String("room_id", roomID),
			zap.String("result", result),
			zap.String("method", string(outcome.MethodDisconnect)),
		)
	}

	room.Session = nil
	room.History = nil
	room.Draw = nil
	room.finished = false
	for _, p := range room.Players {
		p.Ready = false
		p.WantsRematch = false
	}
	room.settle()
	if !m.discardIfEmpty(room) {
		m.saveSnapshot(room)
	}
}

// discardIfEmpty drops a room with no players. Runs inside the room's key.
func (m *Manager) discardIfEmpty(room *Room) bool {
	if len(room.Players) > 0 {
		return false
	}
	m.reg.remove(room.ID)
	m.deleteSnapshot(room.ID)
	obslog.L().Info("room_discard", zap.String("room_id", room.ID))
	return true
}
