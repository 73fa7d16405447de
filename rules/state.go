package rules

import (
	"maps"
	"slices"

	"xiwangsha-server/card"
)

// Phase is the coarse lifecycle of a room's game. It only moves forward.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// LateJoinPolicy controls what happens when someone joins a game in progress.
type LateJoinPolicy string

const (
	// LateJoinReject refuses joins once the game has started.
	LateJoinReject LateJoinPolicy = "reject"
	// LateJoinBench admits the player outside the rotation; they cannot act or be targeted.
	LateJoinBench LateJoinPolicy = "bench"
	// LateJoinRotate deals the player a hand and appends them to the rotation.
	LateJoinRotate LateJoinPolicy = "rotate"
)

// ParseLateJoin maps a config string to a policy, falling back to LateJoinBench.
func ParseLateJoin(s string) LateJoinPolicy {
	switch LateJoinPolicy(s) {
	case LateJoinReject, LateJoinRotate:
		return LateJoinPolicy(s)
	default:
		return LateJoinBench
	}
}

// Player is one participant's state within a game.
type Player struct {
	ID          string
	Name        string
	UserID      string // authenticated identity, empty for guests
	Vitality    int
	MaxVitality int
	Hand        []card.Card
	Eliminated  bool
	Benched     bool
}

// Active reports whether the player takes turns and can be targeted.
func (p *Player) Active() bool {
	return !p.Eliminated && !p.Benched
}

// PendingAttack is an attack card waiting for its target's response.
type PendingAttack struct {
	Card       card.Card
	AttackerID string
	TargetID   string
}

// LogEntry is one line of the append-only game log.
type LogEntry struct {
	Type   string `json:"type"`
	Player string `json:"player,omitempty"`
	Target string `json:"target,omitempty"`
	Card   string `json:"card,omitempty"`
	Amount int    `json:"amount,omitempty"`
	Effect string `json:"effect,omitempty"`
}

// Settings are the per-room tunables the rules read.
type Settings struct {
	MaxPlayers      int
	InitialVitality int
	HandSize        int
	OpeningDraw     int
	DrawPerTurn     int
	LateJoin        LateJoinPolicy
}

// DefaultSettings matches the standard two-player game.
func DefaultSettings() Settings {
	return Settings{
		MaxPlayers:      2,
		InitialVitality: 4,
		HandSize:        4,
		OpeningDraw:     2,
		DrawPerTurn:     2,
		LateJoin:        LateJoinBench,
	}
}

// State is the complete game state of one room. Engine methods never mutate
// the State they are given; they return a modified clone.
type State struct {
	Phase       Phase
	Players     map[string]*Player
	Order       []string // join order; turn rotation follows it
	CurrentTurn string
	Pending     *PendingAttack

	// Usage is the turn usage ledger: player ID -> card ID -> plays this turn.
	Usage map[string]map[string]int

	Log     []LogEntry
	Deck    []card.Card
	Discard []card.Card
	Winner  string
}

// NewState returns an empty waiting room.
func NewState() State {
	return State{
		Phase:   PhaseWaiting,
		Players: make(map[string]*Player),
		Usage:   make(map[string]map[string]int),
	}
}

// Clone returns a deep copy that shares nothing mutable with s.
func (s State) Clone() State {
	out := s
	out.Players = make(map[string]*Player, len(s.Players))
	for id, p := range s.Players {
		cp := *p
		cp.Hand = slices.Clone(p.Hand)
		out.Players[id] = &cp
	}
	out.Order = slices.Clone(s.Order)
	if s.Pending != nil {
		pa := *s.Pending
		out.Pending = &pa
	}
	out.Usage = make(map[string]map[string]int, len(s.Usage))
	for id, m := range s.Usage {
		out.Usage[id] = maps.Clone(m)
	}
	out.Log = slices.Clip(s.Log)
	out.Deck = slices.Clone(s.Deck)
	out.Discard = slices.Clone(s.Discard)
	return out
}

// WaitingForResponse reports whether an attack is pending.
func (s State) WaitingForResponse() bool {
	return s.Pending != nil
}

// UsageOf returns how many times playerID used cardID this turn.
func (s State) UsageOf(playerID, cardID string) int {
	return s.Usage[playerID][cardID]
}

// ActivePlayers returns the IDs of players still in the rotation, in join order.
func (s State) ActivePlayers() []string {
	var out []string
	for _, id := range s.Order {
		if p := s.Players[id]; p != nil && p.Active() {
			out = append(out, id)
		}
	}
	return out
}

func (s *State) recordUsage(playerID, cardID string) {
	if s.Usage == nil {
		s.Usage = make(map[string]map[string]int)
	}
	m := s.Usage[playerID]
	if m == nil {
		m = make(map[string]int)
		s.Usage[playerID] = m
	}
	m[cardID]++
}

func (s *State) log(e LogEntry) {
	s.Log = append(s.Log, e)
}

func (s *State) name(id string) string {
	if p := s.Players[id]; p != nil {
		return p.Name
	}
	return id
}

// nextActiveAfter returns the first active player after id in join order, wrapping.
// An empty string means nobody else is active.
func (s *State) nextActiveAfter(id string) string {
	n := len(s.Order)
	start := slices.Index(s.Order, id)
	for k := 1; k <= n; k++ {
		cand := s.Order[(start+k+n)%n]
		if cand == id {
			continue
		}
		if p := s.Players[cand]; p != nil && p.Active() {
			return cand
		}
	}
	return ""
}

// takeCard removes the card at index from the player's hand and returns it.
func takeCard(p *Player, index int) card.Card {
	c := p.Hand[index]
	p.Hand = slices.Delete(slices.Clone(p.Hand), index, index+1)
	return c
}
