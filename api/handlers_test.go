package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"xiwangsha-server/broadcast"
	"xiwangsha-server/card"
	"xiwangsha-server/config"
	"xiwangsha-server/game"
	"xiwangsha-server/room"
	"xiwangsha-server/storage"
)

type stubAuth map[string]string // token -> user id

func (s stubAuth) Validate(token string) (jwt.MapClaims, error) {
	if sub, ok := s[token]; ok {
		return jwt.MapClaims{"sub": sub}, nil
	}
	return nil, errors.New("invalid token")
}

func newTestHandler(t *testing.T, store storage.HistoryStore, authn TokenValidator) (http.Handler, *room.Manager) {
	t.Helper()
	cfg := config.Defaults()
	cfg.MaxRooms = 2
	mgr := room.NewManager(cfg, card.Default(), broadcast.New())
	t.Cleanup(mgr.Shutdown)
	h := NewHandler(cfg, mgr, store, authn)
	return SetupRoutes(h, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), mgr
}

func TestCreateAndListRooms(t *testing.T) {
	router, _ := newTestHandler(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"name":"Lounge"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /rooms = %d, want 201", rec.Code)
	}
	var created game.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Name != "Lounge" || created.Status != "waiting" || created.MaxPlayers != 2 {
		t.Errorf("unexpected summary: %+v", created)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /rooms = %d", rec.Code)
	}
	var rooms []game.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &rooms); err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 || rooms[0].ID != created.ID {
		t.Errorf("rooms = %+v", rooms)
	}
}

func TestCreateRoomWithoutBody(t *testing.T) {
	router, _ := newTestHandler(t, nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rooms", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /rooms = %d, want 201", rec.Code)
	}
}

func TestCreateRoomBadBody(t *testing.T) {
	router, _ := newTestHandler(t, nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST /rooms = %d, want 400", rec.Code)
	}
}

func TestCreateRoomLimit(t *testing.T) {
	router, _ := newTestHandler(t, nil, nil)
	var last int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rooms", nil))
		last = rec.Code
	}
	if last != http.StatusServiceUnavailable {
		t.Errorf("third room = %d, want 503", last)
	}
}

func TestEmptyRoomListIsArray(t *testing.T) {
	router, _ := newTestHandler(t, nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestMatchesWithoutStore(t *testing.T) {
	router, _ := newTestHandler(t, nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/matches", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("GET /matches = %d %q", rec.Code, rec.Body.String())
	}
}

func TestMatchesFromStore(t *testing.T) {
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)

	ctx := context.Background()
	now := time.Now().UTC()
	for i, uid := range []string{"u1", "u2"} {
		err := store.InsertMatch(ctx, storage.MatchRecord{
			RoomID:    "r" + uid,
			RoomName:  "Room",
			Players:   []storage.PlayerResult{{ID: "p", Name: "P", UserID: uid, San: 1}},
			StartedAt: now.Add(time.Duration(i) * time.Minute),
			EndedAt:   now.Add(time.Duration(i+1) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	router, _ := newTestHandler(t, store, stubAuth{"tok": "u1"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/matches?limit=10", nil))
	var all []storage.MatchRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d matches, want 2", len(all))
	}

	req := httptest.NewRequest(http.MethodGet, "/matches?mine=true", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var mine []storage.MatchRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &mine); err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].RoomID != "ru1" {
		t.Errorf("mine = %+v", mine)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/matches?mine=true", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("mine without token = %d, want 401", rec.Code)
	}
}

func TestHealthzAndPreflight(t *testing.T) {
	router, _ := newTestHandler(t, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/rooms", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
}

func TestWebsocketRouteMounted(t *testing.T) {
	router, _ := newTestHandler(t, nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("/ws = %d, want the mounted handler", rec.Code)
	}
}
