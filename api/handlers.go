package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"xiwangsha-server/auth"
	"xiwangsha-server/config"
	"xiwangsha-server/game"
	"xiwangsha-server/gameerrors"
	"xiwangsha-server/storage"
)

// RoomService is what the handlers need from the room manager.
type RoomService interface {
	CreateRoom(name string) (game.Summary, error)
	ListRooms() []game.Summary
}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	Validate(token string) (jwt.MapClaims, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	Config       *config.Config
	Rooms        RoomService
	HistoryStore storage.HistoryStore // nil when no database is configured
	Auth         TokenValidator       // nil when auth is disabled
}

// NewHandler creates a new API handler with the given dependencies.
func NewHandler(cfg *config.Config, rooms RoomService, historyStore storage.HistoryStore, authn TokenValidator) *Handler {
	return &Handler{
		Config:       cfg,
		Rooms:        rooms,
		HistoryStore: historyStore,
		Auth:         authn,
	}
}

// extractUserID validates the request's token and returns the user ID, or empty string on failure.
func (h *Handler) extractUserID(r *http.Request) string {
	if h.Auth == nil {
		return ""
	}
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		return ""
	}
	claims, err := h.Auth.Validate(token)
	if err != nil {
		return ""
	}
	return auth.UserIDFromClaims(claims)
}

// CreateRoomRequest is the body of POST /rooms.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// CreateRoom opens a new room and returns its summary.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sum, err := h.Rooms.CreateRoom(req.Name)
	if err != nil {
		if errors.Is(err, gameerrors.ErrCapacityExceeded) {
			http.Error(w, "too many rooms", http.StatusServiceUnavailable)
			return
		}
		slog.Error("create room failed", "tag", "api", "err", err)
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

// ListRooms returns every open room.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.Rooms.ListRooms()
	if rooms == nil {
		rooms = []game.Summary{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

// Matches returns recently finished matches. With ?mine=true and a valid
// token it returns only the caller's matches.
func (h *Handler) Matches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var mine string
	if r.URL.Query().Get("mine") == "true" {
		mine = h.extractUserID(r)
		if mine == "" {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}
	}

	list := []storage.MatchRecord{}
	if h.HistoryStore != nil {
		var err error
		if mine != "" {
			list, err = h.HistoryStore.ListByUserID(r.Context(), mine, limit)
		} else {
			list, err = h.HistoryStore.ListRecent(r.Context(), limit)
		}
		if err != nil {
			slog.Error("list matches failed", "tag", "api", "err", err)
			http.Error(w, "failed to load matches", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []storage.MatchRecord{}
		}
	}
	writeJSON(w, http.StatusOK, list)
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "tag", "api", "err", err)
	}
}
