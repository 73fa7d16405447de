package storage

import (
	"context"
	"time"
)

// PlayerResult is one participant's final standing in a recorded match.
type PlayerResult struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UserID     string `json:"user_id,omitempty"`
	San        int    `json:"san"`
	Eliminated bool   `json:"eliminated"`
}

// MatchRecord is a finished game as stored in history.
type MatchRecord struct {
	ID           string         `json:"id"`
	RoomID       string         `json:"room_id"`
	RoomName     string         `json:"room_name"`
	WinnerID     string         `json:"winner_id,omitempty"`
	WinnerName   string         `json:"winner_name,omitempty"`
	WinnerUserID string         `json:"winner_user_id,omitempty"`
	Players      []PlayerResult `json:"players"`
	LogLength    int            `json:"log_length"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      time.Time      `json:"ended_at"`
}

// HistoryStore abstracts persistence for finished matches.
// Live sessions are never stored; only results are.
type HistoryStore interface {
	InsertMatch(ctx context.Context, rec MatchRecord) error
	ListRecent(ctx context.Context, limit int) ([]MatchRecord, error)
	ListByUserID(ctx context.Context, userID string, limit int) ([]MatchRecord, error)
	Close()
}

// Ensure both backends implement HistoryStore at compile time.
var (
	_ HistoryStore = (*Store)(nil)
	_ HistoryStore = (*SQLiteStore)(nil)
)

// Open picks a backend: Postgres when databaseURL is set, otherwise SQLite
// when sqlitePath is set. With neither, Open returns (nil, nil) and no
// history is kept.
func Open(ctx context.Context, databaseURL, sqlitePath string) (HistoryStore, error) {
	switch {
	case databaseURL != "":
		return NewStore(ctx, databaseURL)
	case sqlitePath != "":
		return OpenSQLite(sqlitePath)
	default:
		return nil, nil
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
