package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func sampleMatch(roomID string, ended time.Time, userIDs ...string) MatchRecord {
	rec := MatchRecord{
		RoomID:     roomID,
		RoomName:   "room " + roomID,
		WinnerID:   "p1",
		WinnerName: "Alice",
		LogLength:  12,
		StartedAt:  ended.Add(-5 * time.Minute),
		EndedAt:    ended,
	}
	for i, uid := range userIDs {
		rec.Players = append(rec.Players, PlayerResult{
			ID:     []string{"p1", "p2", "p3"}[i],
			Name:   []string{"Alice", "Bob", "Carol"}[i],
			UserID: uid,
			San:    4 - i,
		})
	}
	return rec
}

func TestSQLiteInsertAndListRecent(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := s.InsertMatch(ctx, sampleMatch("older", now.Add(-time.Hour), "u1", "u2")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertMatch(ctx, sampleMatch("newer", now, "u1", "")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	list, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(list))
	}
	if list[0].RoomID != "newer" {
		t.Errorf("expected newest first, got %s", list[0].RoomID)
	}
	if list[0].ID == "" {
		t.Error("expected generated ID")
	}
	if !list[0].EndedAt.Equal(now) {
		t.Errorf("expected ended_at %v, got %v", now, list[0].EndedAt)
	}
	if len(list[1].Players) != 2 || list[1].Players[1].Name != "Bob" {
		t.Errorf("expected players round-tripped, got %+v", list[1].Players)
	}
}

func TestSQLiteListByUserID(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now()

	s.InsertMatch(ctx, sampleMatch("a", now, "u1", "u2"))
	s.InsertMatch(ctx, sampleMatch("b", now.Add(time.Second), "u3", "u2"))
	s.InsertMatch(ctx, sampleMatch("c", now.Add(2*time.Second), "u3", ""))

	list, err := s.ListByUserID(ctx, "u2", 10)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 matches for u2, got %d", len(list))
	}
	if list[0].RoomID != "b" || list[1].RoomID != "a" {
		t.Errorf("unexpected order: %s, %s", list[0].RoomID, list[1].RoomID)
	}
}

func TestSQLiteLimit(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.InsertMatch(ctx, sampleMatch("r", now.Add(time.Duration(i)*time.Second), "u1"))
	}
	list, err := s.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("expected 3 matches, got %d", len(list))
	}
}

func TestNilStoresAreNoOps(t *testing.T) {
	ctx := context.Background()
	var pg *Store
	var lite *SQLiteStore
	for _, s := range []HistoryStore{pg, lite} {
		if err := s.InsertMatch(ctx, MatchRecord{}); err != nil {
			t.Errorf("expected nil store insert to be a no-op, got %v", err)
		}
		list, err := s.ListRecent(ctx, 5)
		if err != nil || len(list) != 0 {
			t.Errorf("expected empty list from nil store, got %v, %v", list, err)
		}
		s.Close()
	}
}

func TestOpenWithoutBackend(t *testing.T) {
	s, err := Open(context.Background(), "", "")
	if err != nil || s != nil {
		t.Errorf("expected (nil, nil) without backend, got %v, %v", s, err)
	}
}

func TestClampLimit(t *testing.T) {
	if clampLimit(0) != 20 || clampLimit(-3) != 20 {
		t.Error("expected default limit 20")
	}
	if clampLimit(500) != 100 {
		t.Error("expected limit capped at 100")
	}
	if clampLimit(7) != 7 {
		t.Error("expected limit passed through")
	}
}
