package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"xiwangsha-server/auth"
	"xiwangsha-server/config"
	"xiwangsha-server/game"
	"xiwangsha-server/wsutil"
)

// RoomRegistry is what the Hub needs from the room manager.
type RoomRegistry interface {
	Get(roomID string) (*game.Session, error)
}

// Authenticator validates bearer tokens on the websocket handshake.
type Authenticator interface {
	Validate(token string) (jwt.MapClaims, error)
}

// Hub maintains the set of active clients.
type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	Rooms      RoomRegistry
	Config     *config.Config

	// Auth, when set, is required to accept a connection.
	Auth Authenticator

	upgrader websocket.Upgrader
	done     chan struct{}
}

// NewHub creates a new Hub.
func NewHub(cfg *config.Config, rooms RoomRegistry, authn Authenticator) *Hub {
	h := &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Rooms:      rooms,
		Config:     cfg,
		Auth:       authn,
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin allows every origin unless Config.AllowedOrigins is set.
func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.Config.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.Config.AllowedOrigins, r.Header.Get("Origin"))
}

// Run starts the hub's main loop. Should be run as a goroutine.
// When ctx is cancelled (e.g. on server shutdown), Run closes every client's
// send channel and returns.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping", "tag", "ws")
			for client := range h.Clients {
				close(client.Send)
				delete(h.Clients, client)
			}
			return
		case client := <-h.Register:
			h.Clients[client] = true
			slog.Info("client connected", "tag", "ws", "player", client.ID, "total", len(h.Clients))

		case client := <-h.Unregister:
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				close(client.Send)
				slog.Info("client disconnected", "tag", "ws", "player", client.ID, "total", len(h.Clients))
			}
		}
	}
}

// ServeWS handles WebSocket upgrade requests and creates a new Client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var userID, displayName string
	if h.Auth != nil {
		token, err := auth.TokenFromRequest(r)
		if err != nil {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}
		claims, err := h.Auth.Validate(token)
		if err != nil {
			slog.Debug("rejected websocket token", "tag", "ws", "err", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID = auth.UserIDFromClaims(claims)
		displayName = auth.FirstNameFromClaims(claims)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "tag", "ws", "err", err)
		return
	}

	client := &Client{
		Hub:         h,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		limiter:     rate.NewLimiter(rate.Limit(h.Config.RateLimitPerSec), h.Config.RateLimitBurst),
	}
	if h.Config.RateLimitPerSec <= 0 {
		client.limiter = rate.NewLimiter(rate.Inf, 0)
	}

	select {
	case h.Register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	hello, _ := json.Marshal(ConnectedMsg{Type: "connected", PlayerID: client.ID, Name: displayName})
	wsutil.SafeSend(client.Send, hello)

	go client.WritePump()
	go client.ReadPump()
}
