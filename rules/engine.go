package rules

import (
	"math/rand"

	"xiwangsha-server/card"
	"xiwangsha-server/gameerrors"
)

// Engine evaluates actions against a State. It holds the catalog, the room's
// settings and the room's random source; it keeps no game state of its own.
// An Engine is not safe for concurrent use.
type Engine struct {
	Catalog  *card.Catalog
	Settings Settings
	rng      *rand.Rand
}

// NewEngine creates an engine whose shuffles are driven by seed.
func NewEngine(catalog *card.Catalog, settings Settings, seed int64) *Engine {
	return &Engine{
		Catalog:  catalog,
		Settings: settings,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Join adds a player. While playing, the late-join policy decides the outcome.
func (e *Engine) Join(s State, id, name, userID string) (State, error) {
	if s.Phase == PhaseFinished {
		return s, gameerrors.Violation("the game in this room is over")
	}
	if _, ok := s.Players[id]; ok {
		return s, gameerrors.Violation("already in this room")
	}
	if len(s.Players) >= e.Settings.MaxPlayers {
		return s, gameerrors.ErrCapacityExceeded
	}
	p := &Player{
		ID:          id,
		Name:        name,
		UserID:      userID,
		Vitality:    e.Settings.InitialVitality,
		MaxVitality: e.Settings.InitialVitality,
	}
	if s.Phase == PhasePlaying {
		switch e.Settings.LateJoin {
		case LateJoinReject:
			return s, gameerrors.Violation("the game has already started")
		case LateJoinBench:
			p.Benched = true
		}
	}

	next := s.Clone()
	next.Players[id] = p
	next.Order = append(next.Order, id)
	if next.Phase == PhasePlaying && !p.Benched {
		e.draw(&next, p, e.Settings.HandSize)
	}
	next.log(LogEntry{Type: "player_joined", Player: name})
	return next, nil
}

// Leave removes a player. A pending attack involving them is resolved as
// declined first; the turn advances if it was theirs.
func (e *Engine) Leave(s State, id string) (State, error) {
	p, ok := s.Players[id]
	if !ok {
		return s, gameerrors.ErrPlayerNotFound
	}
	next := s.Clone()
	if next.Pending != nil && (next.Pending.TargetID == id || next.Pending.AttackerID == id) {
		e.resolveDecline(&next)
	}

	wasTurn := next.Phase == PhasePlaying && next.CurrentTurn == id
	successor := ""
	if wasTurn {
		successor = next.nextActiveAfter(id)
	}

	leaving := next.Players[id]
	next.Discard = append(next.Discard, leaving.Hand...)
	delete(next.Players, id)
	delete(next.Usage, id)
	for i, oid := range next.Order {
		if oid == id {
			next.Order = append(next.Order[:i:i], next.Order[i+1:]...)
			break
		}
	}
	next.log(LogEntry{Type: "player_left", Player: p.Name})

	if next.Phase != PhasePlaying {
		return next, nil
	}
	if wasTurn && successor != "" && len(next.ActivePlayers()) > 1 {
		e.beginTurn(&next, successor)
	}
	e.finishIfDecided(&next)
	return next, nil
}

// Start moves a waiting room into play: the deck is built and dealt and the
// first-joined player holds the turn.
func (e *Engine) Start(s State, requester string) (State, error) {
	if s.Phase != PhaseWaiting {
		return s, gameerrors.Violation("the game has already started")
	}
	if _, ok := s.Players[requester]; !ok {
		return s, gameerrors.ErrPlayerNotFound
	}
	if len(s.Players) < 2 {
		return s, gameerrors.Violation("at least 2 players are needed to start")
	}

	next := s.Clone()
	next.Phase = PhasePlaying
	next.Usage = make(map[string]map[string]int)
	next.Pending = nil
	next.Deck = e.Catalog.NewDeck(e.rng)
	next.Discard = nil
	for _, id := range next.Order {
		p := next.Players[id]
		p.Vitality = e.Settings.InitialVitality
		p.MaxVitality = e.Settings.InitialVitality
		p.Eliminated = false
		p.Benched = false
		p.Hand = nil
		e.draw(&next, p, e.Settings.HandSize)
	}
	next.CurrentTurn = next.Order[0]
	e.draw(&next, next.Players[next.CurrentTurn], e.Settings.OpeningDraw)
	next.log(LogEntry{Type: "game_started", Player: next.name(next.CurrentTurn)})
	return next, nil
}

// Play uses the card at index from the turn holder's hand. Attacks open a
// response window against targetID; other effects apply immediately.
func (e *Engine) Play(s State, playerID string, index int, targetID string) (State, error) {
	p, ok := s.Players[playerID]
	if !ok {
		return s, gameerrors.ErrPlayerNotFound
	}
	if s.Phase != PhasePlaying {
		return s, gameerrors.Violation("the game is not in progress")
	}
	if s.Pending != nil {
		return s, gameerrors.Violation("waiting for %s to respond", s.name(s.Pending.TargetID))
	}
	if s.CurrentTurn != playerID {
		return s, gameerrors.Violation("it is not your turn")
	}
	if index < 0 || index >= len(p.Hand) {
		return s, gameerrors.Violation("no card at index %d", index)
	}
	c := p.Hand[index]
	if c.Category == card.Dodge {
		return s, gameerrors.Violation("%s can only be played in response to an attack", c.Name)
	}
	if c.Capped() && s.UsageOf(playerID, c.ID) >= c.PerTurnLimit {
		return s, gameerrors.Violation("%s can only be used %d time(s) per turn", c.Name, c.PerTurnLimit)
	}
	apply, ok := playEffects[c.Effect.Kind]
	if !ok {
		return s, gameerrors.Violation("%s cannot be played", c.Name)
	}

	next := s.Clone()
	if err := apply(&next, playerID, index, targetID); err != nil {
		return s, err
	}
	e.finishIfDecided(&next)
	return next, nil
}

// Respond answers the pending attack with the card at index from the target's hand.
func (e *Engine) Respond(s State, playerID string, index int) (State, error) {
	p, err := checkResponder(s, playerID)
	if err != nil {
		return s, err
	}
	if index < 0 || index >= len(p.Hand) {
		return s, gameerrors.Violation("no card at index %d", index)
	}
	c := p.Hand[index]
	attack := s.Pending.Card
	if attack.Has(card.TagUndodgeable) {
		if !c.Has(card.TagCounter) {
			return s, gameerrors.Violation("%s can only be answered with a counter card", attack.Name)
		}
		if c.Capped() && s.UsageOf(playerID, c.ID) >= c.PerTurnLimit {
			return s, gameerrors.Violation("%s can only be used %d time(s) per turn", c.Name, c.PerTurnLimit)
		}
	} else if c.Category != card.Dodge {
		return s, gameerrors.Violation("only a dodge card can answer %s", attack.Name)
	}

	next := s.Clone()
	responder := next.Players[playerID]
	played := takeCard(responder, index)
	next.Discard = append(next.Discard, played)
	next.recordUsage(playerID, played.ID)
	next.log(LogEntry{
		Type:   "attack_resolved",
		Player: responder.Name,
		Target: next.name(next.Pending.AttackerID),
		Card:   played.Name,
		Effect: "avoided " + attack.Name,
	})
	next.Pending = nil
	return next, nil
}

// Decline lets the pending attack land on its target.
func (e *Engine) Decline(s State, playerID string) (State, error) {
	if _, err := checkResponder(s, playerID); err != nil {
		return s, err
	}
	next := s.Clone()
	e.resolveDecline(&next)
	return next, nil
}

// ForceDecline resolves the pending attack as declined on the target's behalf,
// used when the response window times out.
func (e *Engine) ForceDecline(s State) (State, error) {
	if s.Pending == nil {
		return s, gameerrors.Violation("no attack is waiting for a response")
	}
	next := s.Clone()
	e.resolveDecline(&next)
	return next, nil
}

// EndTurn clears the usage ledger and passes the turn to the next active
// player in join order, who then draws.
func (e *Engine) EndTurn(s State, playerID string) (State, error) {
	if _, ok := s.Players[playerID]; !ok {
		return s, gameerrors.ErrPlayerNotFound
	}
	if s.Phase != PhasePlaying {
		return s, gameerrors.Violation("the game is not in progress")
	}
	if s.CurrentTurn != playerID {
		return s, gameerrors.Violation("it is not your turn")
	}
	if s.Pending != nil {
		return s, gameerrors.Violation("waiting for %s to respond", s.name(s.Pending.TargetID))
	}
	nextID := s.nextActiveAfter(playerID)
	if nextID == "" {
		nextID = playerID
	}

	next := s.Clone()
	next.log(LogEntry{Type: "turn_ended", Player: next.name(playerID), Target: next.name(nextID)})
	e.beginTurn(&next, nextID)
	return next, nil
}

func checkResponder(s State, playerID string) (*Player, error) {
	p, ok := s.Players[playerID]
	if !ok {
		return nil, gameerrors.ErrPlayerNotFound
	}
	if s.Pending == nil {
		return nil, gameerrors.Violation("no attack is waiting for a response")
	}
	if s.Pending.TargetID != playerID {
		return nil, gameerrors.Violation("only %s may respond to this attack", s.name(s.Pending.TargetID))
	}
	return p, nil
}

// beginTurn hands the turn to id with a fresh ledger and deals the turn draw.
func (e *Engine) beginTurn(s *State, id string) {
	s.Usage = make(map[string]map[string]int)
	s.CurrentTurn = id
	if p := s.Players[id]; p != nil {
		e.draw(s, p, e.Settings.DrawPerTurn)
	}
}

// resolveDecline applies the pending attack's damage to its target.
func (e *Engine) resolveDecline(s *State) {
	pa := s.Pending
	s.Pending = nil
	target := s.Players[pa.TargetID]
	dmg := Damage(*s, pa)
	if target != nil {
		target.Vitality = max(0, target.Vitality-dmg)
	}
	s.log(LogEntry{
		Type:   "attack_resolved",
		Player: s.name(pa.AttackerID),
		Target: s.name(pa.TargetID),
		Card:   pa.Card.Name,
		Amount: dmg,
		Effect: "hit",
	})
	e.finishIfDecided(s)
}

// finishIfDecided marks players at zero vitality eliminated and ends the game
// once at most one active player remains. It reports whether the game ended.
func (e *Engine) finishIfDecided(s *State) bool {
	for _, id := range s.Order {
		p := s.Players[id]
		if p.Vitality <= 0 && !p.Eliminated && !p.Benched {
			p.Eliminated = true
			s.log(LogEntry{Type: "player_eliminated", Player: p.Name})
		}
	}
	if s.Phase != PhasePlaying {
		return s.Phase == PhaseFinished
	}
	active := s.ActivePlayers()
	if len(active) > 1 {
		if cur := s.Players[s.CurrentTurn]; cur == nil || !cur.Active() {
			if nextID := s.nextActiveAfter(s.CurrentTurn); nextID != "" {
				s.Pending = nil
				e.beginTurn(s, nextID)
			}
		}
		return false
	}
	s.Phase = PhaseFinished
	s.Pending = nil
	s.Winner = ""
	if len(active) == 1 {
		s.Winner = active[0]
	}
	s.log(LogEntry{Type: "game_over", Player: s.name(s.Winner)})
	return true
}

// draw moves n cards from the deck into p's hand, reshuffling the discard
// pile into the deck when it runs out.
func (e *Engine) draw(s *State, p *Player, n int) {
	for i := 0; i < n; i++ {
		if len(s.Deck) == 0 {
			if len(s.Discard) == 0 {
				return
			}
			s.Deck, s.Discard = s.Discard, nil
			card.Shuffle(s.Deck, e.rng)
			s.log(LogEntry{Type: "deck_reshuffled", Amount: len(s.Deck)})
		}
		p.Hand = append(p.Hand, s.Deck[0])
		s.Deck = s.Deck[1:]
	}
}
