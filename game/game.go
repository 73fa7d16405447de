package game

import (
	"log/slog"
	"sync"
	"time"

	"xiwangsha-server/card"
	"xiwangsha-server/config"
	"xiwangsha-server/gameerrors"
	"xiwangsha-server/rules"
)

// ActionType enumerates the kinds of actions a session can process.
type ActionType int

const (
	ActionJoin ActionType = iota
	ActionLeave
	ActionStart
	ActionUseCard
	ActionResolveAttack // target declines the pending attack
	ActionEndTurn
	ActionSnapshot        // reply with the current game_state to the sender only
	ActionResponseTimeout // internal: response window expired
	ActionClose           // internal: registry is shutting the room down
)

// Action is one request sent into a session's action channel.
type Action struct {
	Type      ActionType
	PlayerID  string
	Name      string // for ActionJoin
	UserID    string // for ActionJoin; empty for guests
	CardIndex int
	TargetID  string

	// Send is the requesting connection's channel. Join subscribes it; errors are replied on it.
	Send chan []byte

	// Disconnected marks an ActionLeave caused by a lost connection.
	Disconnected bool

	// Result, if set, receives the outcome once the action is processed. Must be buffered.
	Result chan error

	seq int // ActionResponseTimeout: which response window the timer belongs to
}

// Broadcaster delivers events to the members of a room.
type Broadcaster interface {
	Subscribe(roomID, memberID string, send chan []byte)
	Unsubscribe(roomID, memberID string)
	Publish(roomID, event string, payload any)
	Direct(roomID, memberID, event string, payload any)
	Drop(roomID string)
}

// Summary is the lock-protected view of a session used by room listings.
type Summary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Players    int       `json:"players"`
	MaxPlayers int       `json:"max_players"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// MatchPlayer is one participant's final standing.
type MatchPlayer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UserID     string `json:"user_id,omitempty"`
	Vitality   int    `json:"san"`
	Eliminated bool   `json:"eliminated"`
}

// MatchResult describes a finished game for history.
type MatchResult struct {
	RoomID       string
	RoomName     string
	WinnerID     string
	WinnerName   string
	WinnerUserID string
	Players      []MatchPlayer
	LogLength    int
	StartedAt    time.Time
	EndedAt      time.Time
}

// Session owns one room's game state. Every mutation happens on the Run
// goroutine, one action at a time.
type Session struct {
	ID     string
	Name   string
	Config *config.Config

	engine *rules.Engine
	state  rules.State
	bcast  Broadcaster

	hadMembers bool
	closed     bool

	createdAt time.Time
	startedAt time.Time

	summaryMu sync.RWMutex
	summary   Summary

	responseSeq         int
	responseTimerCancel chan struct{}

	Actions chan Action
	Done    chan struct{}

	// OnGameEnd is called on the session goroutine when a game finishes.
	OnGameEnd func(MatchResult)

	// OnEmpty is called on the session goroutine when the last member leaves
	// or the room is closed; the registry uses it to forget the room.
	OnEmpty func(roomID string)
}

// NewSession creates a waiting room. Call Run in its own goroutine.
func NewSession(id, name string, cfg *config.Config, catalog *card.Catalog, b Broadcaster) *Session {
	seed := cfg.ShuffleSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Session{
		ID:        id,
		Name:      name,
		Config:    cfg,
		engine:    rules.NewEngine(catalog, settingsFrom(cfg), seed),
		state:     rules.NewState(),
		bcast:     b,
		createdAt: time.Now(),
		Actions:   make(chan Action, 64),
		Done:      make(chan struct{}),
	}
	s.refreshSummary()
	return s
}

func settingsFrom(cfg *config.Config) rules.Settings {
	return rules.Settings{
		MaxPlayers:      cfg.MaxPlayers,
		InitialVitality: cfg.InitialVitality,
		HandSize:        cfg.HandSize,
		OpeningDraw:     cfg.OpeningDraw,
		DrawPerTurn:     cfg.DrawPerTurn,
		LateJoin:        rules.ParseLateJoin(cfg.LateJoin),
	}
}

// Run is the session loop. It processes actions sequentially until the room
// empties or is closed.
func (s *Session) Run() {
	defer close(s.Done)
	defer s.cancelResponseTimer()

	for action := range s.Actions {
		var err error
		switch action.Type {
		case ActionJoin:
			err = s.handleJoin(action)
		case ActionLeave:
			err = s.handleLeave(action)
		case ActionStart:
			err = s.handleStart(action)
		case ActionUseCard:
			err = s.handleUseCard(action)
		case ActionResolveAttack:
			err = s.handleResolveAttack(action)
		case ActionEndTurn:
			err = s.handleEndTurn(action)
		case ActionSnapshot:
			s.handleSnapshot(action)
		case ActionResponseTimeout:
			s.handleResponseTimeout(action.seq)
		case ActionClose:
			s.handleClose()
		}
		if err != nil {
			s.sendError(action.Send, err)
		}
		s.refreshSummary()
		if action.Result != nil {
			action.Result <- err
		}
		if s.closed {
			return
		}
	}
}

// Submit queues an action. It fails once the session has stopped.
func (s *Session) Submit(a Action) error {
	select {
	case <-s.Done:
		return gameerrors.ErrSessionClosed
	default:
	}
	select {
	case s.Actions <- a:
		return nil
	case <-s.Done:
		return gameerrors.ErrSessionClosed
	}
}

// Do queues an action and waits until the session has processed it.
func (s *Session) Do(a Action) error {
	a.Result = make(chan error, 1)
	if err := s.Submit(a); err != nil {
		return err
	}
	select {
	case err := <-a.Result:
		return err
	case <-s.Done:
		select {
		case err := <-a.Result:
			return err
		default:
			return gameerrors.ErrSessionClosed
		}
	}
}

// Close asks the session to shut down and waits for it to stop.
func (s *Session) Close() {
	if err := s.Submit(Action{Type: ActionClose}); err != nil {
		return
	}
	<-s.Done
}

// Info returns the latest summary without entering the session loop.
func (s *Session) Info() Summary {
	s.summaryMu.RLock()
	defer s.summaryMu.RUnlock()
	return s.summary
}

func (s *Session) refreshSummary() {
	sum := Summary{
		ID:         s.ID,
		Name:       s.Name,
		Players:    len(s.state.Players),
		MaxPlayers: s.Config.MaxPlayers,
		Status:     string(s.state.Phase),
		CreatedAt:  s.createdAt,
	}
	if s.closed {
		sum.Status = "closed"
	}
	s.summaryMu.Lock()
	s.summary = sum
	s.summaryMu.Unlock()
}

// cancelResponseTimer stops a running response timer. Safe if none is running.
func (s *Session) cancelResponseTimer() {
	if s.responseTimerCancel != nil {
		close(s.responseTimerCancel)
		s.responseTimerCancel = nil
	}
}

// startResponseTimer declines the pending attack on the target's behalf if
// they have not answered in time. No-op if Config.ResponseTimeoutSec <= 0.
func (s *Session) startResponseTimer() {
	s.cancelResponseTimer()
	if s.Config.ResponseTimeoutSec <= 0 {
		return
	}
	s.responseSeq++
	seq := s.responseSeq
	s.responseTimerCancel = make(chan struct{})
	cancel := s.responseTimerCancel
	limit := time.Duration(s.Config.ResponseTimeoutSec) * time.Second
	go func() {
		select {
		case <-time.After(limit):
			select {
			case s.Actions <- Action{Type: ActionResponseTimeout, seq: seq}:
			case <-s.Done:
			}
		case <-cancel:
		}
	}()
}

// commit installs next as the session state and reports whether this
// mutation finished the game. Callers publish their own event first and then
// call finishGame.
func (s *Session) commit(next rules.State) bool {
	prev := s.state
	s.state = next
	if next.Pending == nil {
		s.cancelResponseTimer()
	}
	return prev.Phase == rules.PhasePlaying && next.Phase == rules.PhaseFinished
}

func (s *Session) finishGame() {
	winner := s.state.Players[s.state.Winner]
	result := MatchResult{
		RoomID:    s.ID,
		RoomName:  s.Name,
		WinnerID:  s.state.Winner,
		LogLength: len(s.state.Log),
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
	}
	if winner != nil {
		result.WinnerName = winner.Name
		result.WinnerUserID = winner.UserID
	}
	for _, id := range s.state.Order {
		p := s.state.Players[id]
		result.Players = append(result.Players, MatchPlayer{
			ID: p.ID, Name: p.Name, UserID: p.UserID, Vitality: p.Vitality, Eliminated: p.Eliminated,
		})
	}
	s.bcast.Publish(s.ID, "game_over", map[string]any{
		"winner_id":   result.WinnerID,
		"winner_name": result.WinnerName,
		"game_state":  BuildGameState(s.ID, s.state),
	})
	slog.Info("game over", "tag", "session", "room", s.ID, "winner", result.WinnerName)
	if s.OnGameEnd != nil {
		s.OnGameEnd(result)
	}
}

func (s *Session) sendError(send chan []byte, err error) {
	if send == nil {
		return
	}
	slog.Debug("action rejected", "tag", "session", "room", s.ID, "err", err)
	sendEvent(send, "error", map[string]any{"message": err.Error()})
}
