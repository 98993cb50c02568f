package outcome

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/Cheese-PvP-server/internal/protocol"
)

// HTTPGateway posts each outcome as JSON to a record endpoint. One attempt
// per outcome.
type HTTPGateway struct {
	url     string
	http    *fasthttp.Client
	timeout time.Duration
}

func NewHTTPGateway(url string, timeout time.Duration) (*HTTPGateway, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("MATCH_RECORD_URL is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPGateway{
		url:     url,
		http:    &fasthttp.Client{ReadTimeout: timeout, WriteTimeout: timeout, MaxConnsPerHost: 16},
		timeout: timeout,
	}, nil
}

type matchRecord struct {
	RoomID      string                `json:"roomId"`
	White       string                `json:"white"`
	WhiteName   string                `json:"whiteName,omitempty"`
	Black       string                `json:"black"`
	BlackName   string                `json:"blackName,omitempty"`
	Result      string                `json:"result"`
	Method      string                `json:"method,omitempty"`
	Notes       string                `json:"notes,omitempty"`
	FinalFEN    string                `json:"finalFen,omitempty"`
	TimeControl string                `json:"timeControl,omitempty"`
	MoveHistory []protocol.MoveRecord `json:"moveHistory"`
	PGN         string                `json:"pgn"`
	PlayedAt    time.Time             `json:"playedAt"`
}

func (g *HTTPGateway) RecordOutcome(ctx context.Context, o Outcome) error {
	history := o.MoveHistory
	if history == nil {
		history = []protocol.MoveRecord{}
	}
	body, err := json.Marshal(matchRecord{
		RoomID:      o.RoomID,
		White:       o.WhiteID,
		WhiteName:   o.WhiteName,
		Black:       o.BlackID,
		BlackName:   o.BlackName,
		Result:      o.Result,
		Method:      string(o.Method),
		Notes:       o.Notes,
		FinalFEN:    o.FinalFEN,
		TimeControl: o.TimeControl,
		MoveHistory: history,
		PGN:         PGN(o),
		PlayedAt:    o.PlayedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(g.url)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := g.http.DoDeadline(req, resp, g.deadline(ctx)); err != nil {
		return fmt.Errorf("record request failed: %w", err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return fmt.Errorf("record api error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
	}
	return nil
}

func (g *HTTPGateway) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(g.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
