package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const createSQLiteTableSQL = `
CREATE TABLE IF NOT EXISTS match_history (
	id             TEXT PRIMARY KEY,
	room_id        TEXT NOT NULL,
	room_name      TEXT NOT NULL DEFAULT '',
	winner_id      TEXT NOT NULL DEFAULT '',
	winner_name    TEXT NOT NULL DEFAULT '',
	winner_user_id TEXT NOT NULL DEFAULT '',
	players        TEXT NOT NULL,
	log_length     INTEGER NOT NULL DEFAULT 0,
	started_at     INTEGER NOT NULL,
	ended_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_match_history_ended_at ON match_history(ended_at DESC);
`

// SQLiteStore persists match history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// OpenSQLite opens (creating if needed) the history database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(createSQLiteTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	slog.Info("opened SQLite history", "tag", "storage", "path", path)
	return &SQLiteStore{db: db}, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() {
	if s != nil && s.db != nil {
		_ = s.db.Close()
	}
}

// InsertMatch stores a finished match. A missing ID is generated.
func (s *SQLiteStore) InsertMatch(ctx context.Context, rec MatchRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO match_history (id, room_id, room_name, winner_id, winner_name, winner_user_id, players, log_length, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RoomID, rec.RoomName, rec.WinnerID, rec.WinnerName, rec.WinnerUserID, string(players), rec.LogLength, toMillis(rec.StartedAt), toMillis(rec.EndedAt))
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// ListRecent returns the most recently finished matches.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]MatchRecord, error) {
	if s == nil || s.db == nil {
		return []MatchRecord{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM match_history ORDER BY ended_at DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return scanSQLiteMatches(rows)
}

// ListByUserID returns finished matches the authenticated user took part in.
func (s *SQLiteStore) ListByUserID(ctx context.Context, userID string, limit int) ([]MatchRecord, error) {
	if s == nil || s.db == nil {
		return []MatchRecord{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM match_history
		WHERE EXISTS (SELECT 1 FROM json_each(match_history.players) WHERE json_extract(json_each.value, '$.user_id') = ?)
		ORDER BY ended_at DESC LIMIT ?`, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list matches by user: %w", err)
	}
	return scanSQLiteMatches(rows)
}

func scanSQLiteMatches(rows *sql.Rows) ([]MatchRecord, error) {
	defer rows.Close()
	out := []MatchRecord{}
	for rows.Next() {
		var r MatchRecord
		var players string
		var startedAt, endedAt int64
		if err := rows.Scan(&r.ID, &r.RoomID, &r.RoomName, &r.WinnerID, &r.WinnerName, &r.WinnerUserID, &players, &r.LogLength, &startedAt, &endedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(players), &r.Players); err != nil {
			return nil, err
		}
		r.StartedAt = fromMillis(startedAt)
		r.EndedAt = fromMillis(endedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
