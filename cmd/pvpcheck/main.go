package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-PvP-server/internal/protocol"
)

// pvpcheck connects two throwaway users, queues both for a blitz game and
// prints what the server sends back.
func main() {
	wsURL := os.Getenv("PVP_WS_URL")
	if wsURL == "" {
		wsURL = "ws://localhost:5000/ws"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := dial(ctx, wsURL, "check-a")
	if err != nil {
		log.Fatalf("dial a: %v", err)
	}
	defer a.Close(websocket.StatusNormalClosure, "")
	b, err := dial(ctx, wsURL, "check-b")
	if err != nil {
		log.Fatalf("dial b: %v", err)
	}
	defer b.Close(websocket.StatusNormalClosure, "")

	secs, inc := 300, 0
	tc := &protocol.TimeControl{Category: "blitz", Time: &secs, Increment: &inc}
	for _, c := range []struct {
		ws   *websocket.Conn
		user string
	}{{a, "check-a"}, {b, "check-b"}} {
		env, _ := protocol.NewEnvelope(protocol.EvFindMatch, protocol.FindMatch{UserID: c.user, TimeControl: tc})
		if err := wsjson.Write(ctx, c.ws, env); err != nil {
			log.Fatalf("findMatch %s: %v", c.user, err)
		}
	}

	// Observe both sides until each has been matched or the window closes
	done := make(chan string, 2)
	for _, c := range []struct {
		ws   *websocket.Conn
		name string
	}{{a, "a"}, {b, "b"}} {
		go watch(ctx, c.ws, c.name, done)
	}
	for i := 0; i < 2; i++ {
		select {
		case who := <-done:
			log.Printf("%s matched", who)
		case <-ctx.Done():
			log.Fatalf("no match within window: %v", ctx.Err())
		}
	}
}

func dial(ctx context.Context, base, user string) (*websocket.Conn, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("userId", user)
	q.Set("username", user)
	u.RawQuery = q.Encode()
	c, _, err := websocket.Dial(ctx, u.String(), nil)
	return c, err
}

func watch(ctx context.Context, c *websocket.Conn, name string, done chan<- string) {
	for {
		var env protocol.Envelope
		if err := wsjson.Read(ctx, c, &env); err != nil {
			log.Printf("%s read: %v", name, err)
			return
		}
		fmt.Printf("%s <- %s %s\n", name, env.Type, string(env.Payload))
		if env.Type == protocol.EvMatchFound {
			done <- name
			return
		}
	}
}
