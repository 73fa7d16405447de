package room

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"xiwangsha-server/card"
	"xiwangsha-server/config"
	"xiwangsha-server/game"
	"xiwangsha-server/gameerrors"
)

const maxRoomNameLength = 64

// Manager is the registry of live rooms. Each room is a running game.Session.
type Manager struct {
	mu      sync.RWMutex
	rooms   map[string]*game.Session
	cfg     *config.Config
	catalog *card.Catalog
	bcast   game.Broadcaster

	// OnGameEnd is attached to every session created by this manager.
	OnGameEnd func(game.MatchResult)
}

// NewManager creates an empty registry.
func NewManager(cfg *config.Config, catalog *card.Catalog, b game.Broadcaster) *Manager {
	return &Manager{
		rooms:   make(map[string]*game.Session),
		cfg:     cfg,
		catalog: catalog,
		bcast:   b,
	}
}

// CreateRoom starts a new waiting room and returns its summary.
func (m *Manager) CreateRoom(name string) (game.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.MaxRooms > 0 && len(m.rooms) >= m.cfg.MaxRooms {
		return game.Summary{}, fmt.Errorf("create room: %w", gameerrors.ErrCapacityExceeded)
	}
	id := newRoomID()
	for m.rooms[id] != nil {
		id = newRoomID()
	}
	name = cleanName(name)
	if name == "" {
		name = "Room " + id
	}

	s := game.NewSession(id, name, m.cfg, m.catalog, m.bcast)
	s.OnGameEnd = m.OnGameEnd
	s.OnEmpty = m.Remove
	m.rooms[id] = s
	go s.Run()

	slog.Info("room created", "tag", "room", "room", id, "name", name, "total", len(m.rooms))
	return s.Info(), nil
}

// ListRooms returns a summary of every live room, oldest first.
func (m *Manager) ListRooms() []game.Summary {
	m.mu.RLock()
	out := make([]game.Summary, 0, len(m.rooms))
	for _, s := range m.rooms {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b game.Summary) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Get returns the session for roomID.
func (m *Manager) Get(roomID string) (*game.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.rooms[roomID]
	if !ok {
		return nil, gameerrors.ErrRoomNotFound
	}
	return s, nil
}

// Remove forgets roomID. The session must already be stopping.
func (m *Manager) Remove(roomID string) {
	m.mu.Lock()
	_, ok := m.rooms[roomID]
	delete(m.rooms, roomID)
	total := len(m.rooms)
	m.mu.Unlock()
	if ok {
		slog.Info("room removed", "tag", "room", "room", roomID, "total", total)
	}
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Shutdown closes every room and waits for their sessions to stop.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	sessions := make([]*game.Session, 0, len(m.rooms))
	for _, s := range m.rooms {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
	slog.Info("all rooms closed", "tag", "room", "count", len(sessions))
}

func newRoomID() string {
	return uuid.NewString()[:8]
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxRoomNameLength {
		name = string([]rune(name)[:maxRoomNameLength])
	}
	return name
}
