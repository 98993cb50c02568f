package outcome

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Schema creates the match table when missing.
const Schema = `CREATE TABLE IF NOT EXISTS pvp_matches (
    match_id      TEXT PRIMARY KEY,
    room_id       TEXT NOT NULL,
    white_id      TEXT NOT NULL,
    white_name    TEXT NOT NULL DEFAULT '',
    black_id      TEXT NOT NULL,
    black_name    TEXT NOT NULL DEFAULT '',
    winner_id     TEXT NOT NULL DEFAULT '',
    result        TEXT NOT NULL,
    result_method TEXT NOT NULL DEFAULT '',
    notes         TEXT NOT NULL DEFAULT '',
    time_control  TEXT NOT NULL DEFAULT '',
    final_fen     TEXT NOT NULL DEFAULT '',
    moves_san     JSONB NOT NULL DEFAULT '[]',
    moves_uci     JSONB NOT NULL DEFAULT '[]',
    pgn           TEXT NOT NULL DEFAULT '',
    started_at    TIMESTAMPTZ,
    played_at     TIMESTAMPTZ NOT NULL,
    duration_ms   BIGINT NOT NULL DEFAULT 0
)`

type PostgresGateway struct {
	db    *sql.DB
	newID func() string
}

func NewPostgresGateway(databaseURL string) (*PostgresGateway, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresGateway{db: db, newID: uuid.NewString}, nil
}

func (g *PostgresGateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

const insertMatch = `INSERT INTO pvp_matches (
    match_id, room_id, white_id, white_name, black_id, black_name,
    winner_id, result, result_method, notes, time_control, final_fen,
    moves_san, moves_uci, pgn, started_at, played_at, duration_ms
  ) VALUES (
    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
  )`

// RecordOutcome inserts one row per terminal event. Rooms can host several
// games, so rows are keyed by a fresh match id rather than the room id.
func (g *PostgresGateway) RecordOutcome(ctx context.Context, o Outcome) error {
	if g == nil || g.db == nil {
		return nil
	}
	args, err := matchRow(g.newID(), o)
	if err != nil {
		return err
	}
	if _, err := g.db.ExecContext(ctx, insertMatch, args...); err != nil {
		return fmt.Errorf("insert pvp match %s: %w", o.RoomID, err)
	}
	return nil
}

func matchRow(id string, o Outcome) ([]any, error) {
	san, uci, _ := Notations(o.MoveHistory)
	if san == nil {
		san = []string{}
	}
	if uci == nil {
		uci = []string{}
	}
	sanRaw, err := json.Marshal(san)
	if err != nil {
		return nil, err
	}
	uciRaw, err := json.Marshal(uci)
	if err != nil {
		return nil, err
	}
	var started any
	if !o.StartedAt.IsZero() {
		started = o.StartedAt
	}
	played := o.PlayedAt
	if played.IsZero() {
		played = time.Now()
	}
	return []any{
		id, o.RoomID,
		o.WhiteID, o.WhiteName,
		o.BlackID, o.BlackName,
		o.WinnerID(), strings.TrimSpace(o.Result), string(o.Method), o.Notes,
		o.TimeControl, o.FinalFEN,
		string(sanRaw), string(uciRaw), PGN(o),
		started, played, o.Duration().Milliseconds(),
	}, nil
}
