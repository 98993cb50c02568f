package pvpchess

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/park285/Cheese-PvP-server/internal/matchmaking"
	"github.com/park285/Cheese-PvP-server/internal/protocol"
)

func intp(v int) *int { return &v }

func blitz() *protocol.TimeControl {
	return &protocol.TimeControl{Category: "blitz", Time: intp(300), Increment: intp(0), Label: "5+0"}
}

func TestStartFEN(t *testing.T) {
	if StartFEN != "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1" {
		t.Fatalf("unexpected start FEN %q", StartFEN)
	}
}

func TestFindMatchPairsIntoOneRoom(t *testing.T) {
	h := newHarness(t)
	if err := h.m.FindMatch("ca", protocol.FindMatch{UserID: "A", TimeControl: blitz()}); err != nil {
		t.Fatalf("FindMatch A: %v", err)
	}
	if h.log.count("ca", protocol.EvAddedToQueue) != 1 {
		t.Fatalf("A should be told it is queued")
	}
	if err := h.m.FindMatch("cb", protocol.FindMatch{UserID: "B", TimeControl: blitz()}); err != nil {
		t.Fatalf("FindMatch B: %v", err)
	}

	fa, fb := h.log.of("ca", protocol.EvMatchFound), h.log.of("cb", protocol.EvMatchFound)
	if len(fa) != 1 || len(fb) != 1 {
		t.Fatalf("matchFound counts: A=%d B=%d", len(fa), len(fb))
	}
	ma, mb := fa[0].(protocol.MatchFound), fb[0].(protocol.MatchFound)
	if ma.RoomID == "" || ma.RoomID != mb.RoomID {
		t.Fatalf("room ids differ: %q vs %q", ma.RoomID, mb.RoomID)
	}
	if ma.Opponent.UserID != "B" || mb.Opponent.UserID != "A" {
		t.Fatalf("wrong opponents: %+v %+v", ma.Opponent, mb.Opponent)
	}
	if ma.Opponent.Username != "Bob" || mb.Opponent.Username != "Alice" {
		t.Fatalf("names should come from the connection: %+v %+v", ma.Opponent, mb.Opponent)
	}
	if len(h.m.queue.Waiting("blitz_300_0")) != 0 || h.m.Stats().Queued != 0 {
		t.Fatalf("queue should be empty after pairing")
	}
	if len(ma.RoomID) != 6 {
		t.Fatalf("room id should be 6 chars, got %q", ma.RoomID)
	}

	h.room(t, ma.RoomID, func(r *Room) {
		if len(r.Players) != 2 || r.Players[0].UserID != "B" || r.Players[1].UserID != "A" {
			t.Errorf("seating should be [requester, opponent], got %+v", r.Players)
		}
		if r.Phase() != PhaseWaitingForReady || r.Session != nil {
			t.Errorf("paired room should wait for ready, phase=%s", r.Phase())
		}
	})

	// the clients follow up with joinRoom on the same connection: a no-op re-join
	if err := h.m.JoinRoom("ca", protocol.JoinRoom{RoomID: ma.RoomID, UserID: "A"}); err != nil {
		t.Fatalf("re-join: %v", err)
	}
	if h.log.count("ca", protocol.EvErrorJoining) != 0 {
		t.Fatalf("re-join on the same connection must not error")
	}
}

func TestFindMatchMissingArgs(t *testing.T) {
	h := newHarness(t)
	err := h.m.FindMatch("ca", protocol.FindMatch{UserID: "A"})
	if !errors.Is(err, matchmaking.ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
	if h.log.count("ca", protocol.EvMatchmakingError) != 1 {
		t.Fatalf("expected matchmakingError")
	}
}

func TestFindMatchTwiceAndCancel(t *testing.T) {
	h := newHarness(t)
	_ = h.m.FindMatch("ca", protocol.FindMatch{UserID: "A", TimeControl: blitz()})
	_ = h.m.FindMatch("ca", protocol.FindMatch{UserID: "A", TimeControl: blitz()})
	got := h.log.of("ca", protocol.EvAddedToQueue)
	if len(got) != 2 || got[1].(protocol.Message).Message != "You are already in queue for 5+0." {
		t.Fatalf("unexpected queue feedback: %+v", got)
	}
	if h.m.Stats().Queued != 1 {
		t.Fatalf("resubmission must not duplicate the entry")
	}

	_ = h.m.CancelFindMatch("cb", protocol.CancelFindMatch{UserID: "A"})
	if h.m.Stats().Queued != 1 || h.log.count("cb", protocol.EvMatchmakingCanceled) != 0 {
		t.Fatalf("cancel from another connection must be a no-op")
	}
	_ = h.m.CancelFindMatch("ca", protocol.CancelFindMatch{UserID: "A"})
	if h.m.Stats().Queued != 0 || h.log.count("ca", protocol.EvMatchmakingCanceled) != 1 {
		t.Fatalf("cancel should remove the entry and give feedback")
	}
}

func TestJoinDuplicateAndFull(t *testing.T) {
	h := newHarness(t)
	h.m.Connect("cx", "A", "Alice")
	h.m.Connect("cc", "C", "")

	if err := h.m.JoinRoom("ca", protocol.JoinRoom{RoomID: "R1", UserID: "A"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	status := h.log.of("ca", protocol.EvRoomStatusUpdate)
	if len(status) != 1 || status[0].(protocol.RoomStatusUpdate).Total != 1 {
		t.Fatalf("expected a waiting status, got %+v", status)
	}

	if err := h.m.JoinRoom("cx", protocol.JoinRoom{RoomID: "R1", UserID: "A"}); !errors.Is(err, ErrDuplicateUser) {
		t.Fatalf("expected ErrDuplicateUser, got %v", err)
	}
	if h.log.count("cx", protocol.EvErrorJoining) != 1 {
		t.Fatalf("expected errorJoining")
	}

	_ = h.m.JoinRoom("cb", protocol.JoinRoom{RoomID: "R1", UserID: "B"})
	if err := h.m.JoinRoom("cc", protocol.JoinRoom{RoomID: "R1", UserID: "C"}); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
	if h.log.count("cc", protocol.EvRoomFull) != 1 {
		t.Fatalf("expected roomFull")
	}
	h.room(t, "R1", func(r *Room) {
		if len(r.Players) != 2 {
			t.Errorf("room must hold at most two players, got %d", len(r.Players))
		}
	})
}

func TestJoinMissingFieldsDropped(t *testing.T) {
	h := newHarness(t)
	if err := h.m.JoinRoom("ca", protocol.JoinRoom{UserID: "A"}); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
	if h.m.Stats().Rooms != 0 || len(h.log.events) != 0 {
		t.Fatalf("nothing should happen on a malformed join")
	}
}

func TestDefaultDisplayName(t *testing.T) {
	h := newHarness(t)
	h.m.Connect("cz", "zebra-123", "")
	_ = h.m.JoinRoom("cz", protocol.JoinRoom{RoomID: "R1", UserID: "zebra-123"})
	h.room(t, "R1", func(r *Room) {
		if r.Players[0].Username != "User-zebra" {
			t.Errorf("unexpected default name %q", r.Players[0].Username)
		}
	})
}

func TestGameStartsOnlyWhenBothReady(t *testing.T) {
	h := newHarness(t)
	_ = h.m.JoinRoom("ca", protocol.JoinRoom{RoomID: "R1", UserID: "A"})
	_ = h.m.JoinRoom("cb", protocol.JoinRoom{RoomID: "R1", UserID: "B"})
	_ = h.m.MarkReady("ca", protocol.ClientReady{RoomID: "R1", UserID: "A"})

	h.room(t, "R1", func(r *Room) {
		if r.Session != nil {
			t.Errorf("session must not exist with one ready player")
		}
	})
	if h.log.count("ca", protocol.EvInitialGameState) != 0 {
		t.Fatalf("no game state before both are ready")
	}
	last := h.log.of("cb", protocol.EvRoomStatusUpdate)
	if st := last[len(last)-1].(protocol.RoomStatusUpdate); st.Ready != 1 || st.Total != 2 {
		t.Fatalf("unexpected status %+v", st)
	}

	// a ready signal from the wrong connection changes nothing
	if err := h.m.MarkReady("ca", protocol.ClientReady{RoomID: "R1", UserID: "B"}); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}

	_ = h.m.MarkReady("cb", protocol.ClientReady{RoomID: "R1", UserID: "B"})
	h.room(t, "R1", func(r *Room) {
		if r.Session == nil || r.Phase() != PhaseActive {
			t.Errorf("session should start, phase=%s", r.Phase())
		}
	})
}

func TestInitialGameState(t *testing.T) {
	h := newHarness(t, 0)
	h.seat(t, "R1")

	for conn, color := range map[string]string{"ca": "w", "cb": "b"} {
		states := h.log.of(conn, protocol.EvInitialGameState)
		if len(states) != 1 {
			t.Fatalf("%s: expected one initialGameState, got %d", conn, len(states))
		}
		st := states[0].(protocol.InitialGameState)
		if st.FEN != StartFEN || st.Turn != "w" || len(st.MoveHistory) != 0 || st.MoveHistory == nil {
			t.Fatalf("%s: unexpected state %+v", conn, st)
		}
		if st.PlayerColor != color {
			t.Fatalf("%s: color %q, want %q", conn, st.PlayerColor, color)
		}
		if st.PlayerIDs.White != "A" || st.PlayerIDs.Black != "B" {
			t.Fatalf("unexpected player ids %+v", st.PlayerIDs)
		}
		if st.Opponent == nil {
			t.Fatalf("%s: opponent missing", conn)
		}
	}

	// a late re-ready resends the live game
	_ = h.m.MarkReady("ca", protocol.ClientReady{RoomID: "R1", UserID: "A"})
	if h.log.count("ca", protocol.EvInitialGameState) != 2 || h.log.count("cb", protocol.EvInitialGameState) != 2 {
		t.Fatalf("expected the current state to be resent to both")
	}
}

func TestColorDrawFollowsSource(t *testing.T) {
	h := newHarness(t, 1)
	h.seat(t, "R1")
	st := h.log.of("ca", protocol.EvInitialGameState)[0].(protocol.InitialGameState)
	if st.PlayerColor != "b" || st.PlayerIDs.White != "B" {
		t.Fatalf("odd draw should make the second player White, got %+v", st)
	}
}

func TestMovesAlternate(t *testing.T) {
	h := newHarness(t, 0)
	h.seat(t, "R1")

	if err := h.m.SubmitMove("ca", move("R1", "e4", afterE4, "w")); err != nil {
		t.Fatalf("white e4: %v", err)
	}
	got := h.log.of("cb", protocol.EvReceiveMove)
	if len(got) != 1 {
		t.Fatalf("black should receive the move")
	}
	rm := got[0].(protocol.ReceiveMove)
	if rm.FEN != afterE4 || rm.NextTurn != "b" || rm.OpponentColor != "w" || rm.UserIDOfMover != "A" || string(rm.Move) != `"e4"` {
		t.Fatalf("unexpected receiveMove %+v", rm)
	}
	if h.log.count("ca", protocol.EvReceiveMove) != 0 {
		t.Fatalf("mover must not receive its own move")
	}

	// white again before black moved
	if err := h.m.SubmitMove("ca", move("R1", "d4", "x", "w")); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if h.log.count("ca", protocol.EvInvalidMove) != 1 {
		t.Fatalf("expected invalidMove")
	}
	// black claiming white
	if err := h.m.SubmitMove("cb", move("R1", "e5", "y", "w")); !errors.Is(err, ErrColorMismatch) {
		t.Fatalf("expected ErrColorMismatch, got %v", err)
	}
	h.room(t, "R1", func(r *Room) {
		if r.Session.FEN != afterE4 || r.Session.Turn != Black || len(r.History) != 1 {
			t.Errorf("rejections must not mutate: %+v history=%d", r.Session, len(r.History))
		}
		if r.History[0] != (protocol.MoveRecord{Player: "Alice", Move: "e4", Color: "w", UserID: "A"}) {
			t.Errorf("unexpected record %+v", r.History[0])
		}
	})

	if err := h.m.SubmitMove("cb", move("R1", "e5", "after-e5", "b")); err != nil {
		t.Fatalf("black e5: %v", err)
	}
	h.room(t, "R1", func(r *Room) {
		if r.Session.Turn != White || r.Session.FEN != "after-e5" {
			t.Errorf("turn should be back to white: %+v", r.Session)
		}
	})
}

func TestIncompleteMoveIsDropped(t *testing.T) {
	h := newHarness(t, 0)
	h.seat(t, "R1")

	for name, req := range map[string]protocol.Move{
		"empty":       {RoomID: "R1", ClaimedColor: "w"},
		"no position": move("R1", "e4", "", "w"),
		"no notation": {RoomID: "R1", ResultingPosition: afterE4, ClaimedColor: "w"},
	} {
		if err := h.m.SubmitMove("ca", req); !errors.Is(err, ErrMissingFields) {
			t.Fatalf("%s: expected ErrMissingFields, got %v", name, err)
		}
	}
	if h.log.count("cb", protocol.EvReceiveMove) != 0 {
		t.Fatalf("incomplete moves must not be relayed")
	}
	h.room(t, "R1", func(r *Room) {
		if r.Session.Turn != White || r.Session.FEN != StartFEN || len(r.History) != 0 {
			t.Errorf("incomplete moves must not mutate: %+v history=%d", r.Session, len(r.History))
		}
	})

	// white still has the move
	if err := h.m.SubmitMove("ca", move("R1", "e4", afterE4, "w")); err != nil {
		t.Fatalf("white e4: %v", err)
	}
}

func TestMoveRejectedWithoutGameOrMembership(t *testing.T) {
	h := newHarness(t, 0)
	if err := h.m.SubmitMove("ca", move("NOPE", "e4", "x", "w")); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if h.log.count("ca", protocol.EvErrorMove) != 1 {
		t.Fatalf("expected errorMove")
	}

	h.seat(t, "R1")
	h.m.Connect("cc", "C", "Carol")
	if err := h.m.SubmitMove("cc", move("R1", "e4", "x", "w")); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}
	if h.log.count("cc", protocol.EvErrorMove) != 1 {
		t.Fatalf("expected errorMove for outsider")
	}
}

func TestConcurrentReadyStartsOneGame(t *testing.T) {
	h := newHarness(t)
	const rooms = 50
	for i := 0; i < rooms; i++ {
		ca, cb := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
		ua, ub := "U"+ca, "U"+cb
		h.m.Connect(ca, ua, "")
		h.m.Connect(cb, ub, "")
		id := fmt.Sprintf("R%d", i)
		_ = h.m.JoinRoom(ca, protocol.JoinRoom{RoomID: id, UserID: ua})
		_ = h.m.JoinRoom(cb, protocol.JoinRoom{RoomID: id, UserID: ub})
	}

	var wg sync.WaitGroup
	for i := 0; i < rooms; i++ {
		id := fmt.Sprintf("R%d", i)
		for _, side := range []string{"a", "b"} {
			conn := fmt.Sprintf("%s%d", side, i)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = h.m.MarkReady(conn, protocol.ClientReady{RoomID: id, UserID: "U" + conn})
			}()
		}
	}
	wg.Wait()

	for i := 0; i < rooms; i++ {
		for _, side := range []string{"a", "b"} {
			conn := fmt.Sprintf("%s%d", side, i)
			if n := h.log.count(conn, protocol.EvInitialGameState); n != 1 {
				t.Fatalf("%s received %d initialGameState, want 1", conn, n)
			}
		}
	}
}

func TestChatBroadcast(t *testing.T) {
	h := newHarness(t)
	h.seat(t, "R1")
	msg := protocol.ChatMessage{RoomID: "R1", UserID: "A", SenderName: "Alice", Text: "gl hf"}
	if err := h.m.Chat("ca", msg); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	for _, conn := range []string{"ca", "cb"} {
		got := h.log.of(conn, protocol.EvChatMessage)
		if len(got) != 1 || got[0].(protocol.ChatMessage).Text != "gl hf" {
			t.Fatalf("%s: unexpected chat %+v", conn, got)
		}
	}
	h.m.Connect("cc", "C", "")
	if err := h.m.Chat("cc", msg); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("outsiders cannot chat, got %v", err)
	}
}

func TestRoomsListing(t *testing.T) {
	h := newHarness(t)
	h.seat(t, "R1")
	list := h.m.Rooms()
	if len(list) != 1 || list[0].RoomID != "R1" || list[0].Phase != string(PhaseActive) {
		t.Fatalf("unexpected listing %+v", list)
	}
	if list[0].Players[0].Color != "w" || list[0].Turn != "w" {
		t.Fatalf("unexpected snapshot %+v", list[0])
	}
}
