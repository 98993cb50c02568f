package wsserver

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/park285/Cheese-PvP-server/internal/protocol"
	"github.com/park285/Cheese-PvP-server/internal/pvpchess"
	"github.com/park285/Cheese-PvP-server/internal/roomstore"
)

type call struct {
	name string
	conn string
	req  any
}

type fakeCoord struct {
	calls []call
	err   error
}

func (f *fakeCoord) rec(name, conn string, req any) error {
	f.calls = append(f.calls, call{name: name, conn: conn, req: req})
	return f.err
}

func (f *fakeCoord) Connect(connID, userID, username string) { _ = f.rec("Connect", connID, userID) }
func (f *fakeCoord) Disconnect(connID string) { _ = f.rec("Disconnect", connID, nil) }
func (f *fakeCoord) FindMatch(c string, r protocol.FindMatch) error {
	return f.rec("FindMatch", c, r)
}
func (f *fakeCoord) CancelFindMatch(c string, r protocol.CancelFindMatch) error {
	return f.rec("CancelFindMatch", c, r)
}
func (f *fakeCoord) JoinRoom(c string, r protocol.JoinRoom) error { return f.rec("JoinRoom", c, r) }
func (f *fakeCoord) MarkReady(c string, r protocol.ClientReady) error {
	return f.rec("MarkReady", c, r)
}
func (f *fakeCoord) SubmitMove(c string, r protocol.Move) error { return f.rec("SubmitMove", c, r) }
func (f *fakeCoord) Chat(c string, r protocol.ChatMessage) error { return f.rec("Chat", c, r) }
func (f *fakeCoord) ReportGameOver(c string, r protocol.GameIsOver) error {
	return f.rec("ReportGameOver", c, r)
}
func (f *fakeCoord) Resign(c string, r protocol.ResignGame) error { return f.rec("Resign", c, r) }
func (f *fakeCoord) OfferDraw(c string, r protocol.OfferDraw) error {
	return f.rec("OfferDraw", c, r)
}
func (f *fakeCoord) RespondDraw(c string, r protocol.RespondToDrawOffer) error {
	return f.rec("RespondDraw", c, r)
}
func (f *fakeCoord) RequestRematch(c string, r protocol.Rematch) error {
	return f.rec("RequestRematch", c, r)
}
func (f *fakeCoord) AcceptRematch(c string, r protocol.Rematch) error {
	return f.rec("AcceptRematch", c, r)
}
func (f *fakeCoord) DeclineRematch(c string, r protocol.DeclineRematch) error {
	return f.rec("DeclineRematch", c, r)
}
func (f *fakeCoord) Stats() pvpchess.Stats { return pvpchess.Stats{Rooms: 2, Queued: 1} }
func (f *fakeCoord) Rooms() []*roomstore.Snapshot { return nil }

func env(t *testing.T, event string, payload any) protocol.Envelope {
	t.Helper()
	e, err := protocol.NewEnvelope(event, payload)
	require.NoError(t, err)
	return e
}

func TestRouterDispatchesEveryInboundEvent(t *testing.T) {
	f := &fakeCoord{}
	r := NewRouter(f)
	cases := map[string]string{
		protocol.EvFindMatch:          "FindMatch",
		protocol.EvCancelFindMatch:    "CancelFindMatch",
		protocol.EvJoinRoom:           "JoinRoom",
		protocol.EvClientReady:        "MarkReady",
		protocol.EvMove:               "SubmitMove",
		protocol.EvChatMessage:        "Chat",
		protocol.EvGameIsOver:         "ReportGameOver",
		protocol.EvResignGame:         "Resign",
		protocol.EvOfferDraw:          "OfferDraw",
		protocol.EvRespondToDrawOffer: "RespondDraw",
		protocol.EvRequestRematch:     "RequestRematch",
		protocol.EvAcceptRematch:      "AcceptRematch",
		protocol.EvDeclineRematch:     "DeclineRematch",
	}
	for event, method := range cases {
		f.calls = nil
		require.NoError(t, r.Dispatch("c1", env(t, event, map[string]any{"roomId": "R1"})), event)
		require.Len(t, f.calls, 1, event)
		require.Equal(t, method, f.calls[0].name, event)
		require.Equal(t, "c1", f.calls[0].conn)
	}
}

func TestRouterDecodesPayload(t *testing.T) {
	f := &fakeCoord{}
	r := NewRouter(f)
	raw := json.RawMessage(`{"roomId":"R1","move":{"from":"e2","to":"e4","san":"e4"},"fen":"x","playerColorMakingMove":"w"}`)
	require.NoError(t, r.Dispatch("c1", protocol.Envelope{Type: protocol.EvMove, Payload: raw}))
	mv := f.calls[0].req.(protocol.Move)
	require.Equal(t, "R1", mv.RoomID)
	require.Equal(t, "e4", mv.Notation())
	require.Equal(t, "x", mv.Position())
	require.Equal(t, "w", mv.Color())
}

func TestRouterUnknownAndMalformed(t *testing.T) {
	f := &fakeCoord{}
	r := NewRouter(f)
	err := r.Dispatch("c1", protocol.Envelope{Type: "teleport"})
	require.ErrorIs(t, err, ErrUnknownEvent)
	require.Empty(t, f.calls)

	err = r.Dispatch("c1", protocol.Envelope{Type: protocol.EvJoinRoom, Payload: json.RawMessage(`"nope"`)})
	require.ErrorIs(t, err, ErrMalformed)
	require.Empty(t, f.calls)

	// findMatch still answers the client
	err = r.Dispatch("c1", protocol.Envelope{Type: protocol.EvFindMatch, Payload: json.RawMessage(`[1,2]`)})
	require.ErrorIs(t, err, ErrMalformed)
	require.Len(t, f.calls, 1)
	require.Equal(t, protocol.FindMatch{}, f.calls[0].req)
}

func TestRouterPassesCoordinatorErrors(t *testing.T) {
	sentinel := errors.New("boom")
	f := &fakeCoord{err: sentinel}
	err := NewRouter(f).Dispatch("c1", env(t, protocol.EvOfferDraw, protocol.OfferDraw{RoomID: "R1"}))
	require.ErrorIs(t, err, sentinel)
}
