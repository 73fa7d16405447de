package storage

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS match_history (
	id             UUID PRIMARY KEY,
	room_id        TEXT NOT NULL,
	room_name      TEXT NOT NULL DEFAULT '',
	winner_id      TEXT NOT NULL DEFAULT '',
	winner_name    TEXT NOT NULL DEFAULT '',
	winner_user_id TEXT NOT NULL DEFAULT '',
	players        JSONB NOT NULL,
	log_length     INT NOT NULL DEFAULT 0,
	started_at     TIMESTAMPTZ NOT NULL,
	ended_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_match_history_ended_at ON match_history(ended_at DESC);
CREATE INDEX IF NOT EXISTS idx_match_history_players ON match_history USING GIN (players jsonb_path_ops);
`

const selectColumns = `id, room_id, room_name, winner_id, winner_name, winner_user_id, players, log_length, started_at, ended_at`

// Store persists match history in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and ensures the match_history table exists.
// If databaseURL is empty, NewStore returns (nil, nil) and no persistence occurs.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("connected to Postgres", "tag", "storage")
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// InsertMatch stores a finished match. A missing ID is generated.
func (s *Store) InsertMatch(ctx context.Context, rec MatchRecord) error {
	if s == nil || s.pool == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO match_history (id, room_id, room_name, winner_id, winner_name, winner_user_id, players, log_length, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.RoomID, rec.RoomName, rec.WinnerID, rec.WinnerName, rec.WinnerUserID, players, rec.LogLength, rec.StartedAt, rec.EndedAt)
	return err
}

// ListRecent returns the most recently finished matches.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]MatchRecord, error) {
	if s == nil || s.pool == nil {
		return []MatchRecord{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM match_history ORDER BY ended_at DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectMatches(rows)
}

// ListByUserID returns finished matches the authenticated user took part in.
func (s *Store) ListByUserID(ctx context.Context, userID string, limit int) ([]MatchRecord, error) {
	if s == nil || s.pool == nil {
		return []MatchRecord{}, nil
	}
	filter, err := json.Marshal([]map[string]string{{"user_id": userID}})
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM match_history WHERE players @> $1::jsonb ORDER BY ended_at DESC LIMIT $2`, string(filter), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectMatches(rows)
}

func collectMatches(rows pgx.Rows) ([]MatchRecord, error) {
	defer rows.Close()
	out := []MatchRecord{}
	for rows.Next() {
		var r MatchRecord
		var players []byte
		if err := rows.Scan(&r.ID, &r.RoomID, &r.RoomName, &r.WinnerID, &r.WinnerName, &r.WinnerUserID, &players, &r.LogLength, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(players, &r.Players); err != nil {
			return nil, err
		}
		r.StartedAt = r.StartedAt.UTC()
		r.EndedAt = r.EndedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
