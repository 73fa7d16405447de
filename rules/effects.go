package rules

import (
	"fmt"

	"xiwangsha-server/card"
	"xiwangsha-server/gameerrors"
)

// playEffect applies a card played from the turn holder's hand at index.
// It runs on a clone and may return a rule violation before touching it.
type playEffect func(s *State, playerID string, index int, targetID string) error

var playEffects = map[card.EffectKind]playEffect{
	card.EffectAttack:  playAttack,
	card.EffectHeal:    playHeal,
	card.EffectDiscard: playDiscard,
}

// damageFormulas compute an attack's damage at the moment it lands.
var damageFormulas = map[card.Formula]func(s State, pa *PendingAttack) int{
	card.FormulaFixed: func(_ State, pa *PendingAttack) int {
		return pa.Card.Effect.Amount
	},
	card.FormulaUsageCount: func(s State, pa *PendingAttack) int {
		return s.UsageOf(pa.AttackerID, pa.Card.Effect.Source)
	},
	card.FormulaHalfVitality: func(s State, pa *PendingAttack) int {
		atk := s.Players[pa.AttackerID]
		if atk == nil {
			return 1
		}
		return max(1, atk.Vitality/2)
	},
}

// Damage returns how much vitality the pending attack removes if it lands.
func Damage(s State, pa *PendingAttack) int {
	f, ok := damageFormulas[pa.Card.Effect.Formula]
	if !ok {
		return pa.Card.Effect.Amount
	}
	return f(s, pa)
}

// opponent validates that targetID names another active player.
func opponent(s *State, playerID, targetID string) (*Player, error) {
	if targetID == "" {
		return nil, gameerrors.Violation("this card needs a target")
	}
	if targetID == playerID {
		return nil, gameerrors.Violation("you cannot target yourself with this card")
	}
	t, ok := s.Players[targetID]
	if !ok {
		return nil, gameerrors.Violation("target is not in this room")
	}
	if !t.Active() {
		return nil, gameerrors.Violation("%s cannot be targeted", t.Name)
	}
	return t, nil
}

func playAttack(s *State, playerID string, index int, targetID string) error {
	target, err := opponent(s, playerID, targetID)
	if err != nil {
		return err
	}
	p := s.Players[playerID]
	c := takeCard(p, index)
	s.Discard = append(s.Discard, c)
	s.recordUsage(playerID, c.ID)
	s.Pending = &PendingAttack{Card: c, AttackerID: playerID, TargetID: target.ID}
	s.log(LogEntry{Type: "card_used", Player: p.Name, Target: target.Name, Card: c.Name, Effect: "attack"})
	return nil
}

func playHeal(s *State, playerID string, index int, targetID string) error {
	if targetID == "" {
		targetID = playerID
	}
	t, ok := s.Players[targetID]
	if !ok {
		return gameerrors.Violation("target is not in this room")
	}
	if !t.Active() {
		return gameerrors.Violation("%s cannot be targeted", t.Name)
	}
	p := s.Players[playerID]
	c := takeCard(p, index)
	s.Discard = append(s.Discard, c)
	s.recordUsage(playerID, c.ID)
	before := t.Vitality
	t.Vitality = min(t.MaxVitality, t.Vitality+c.Effect.Amount)
	s.log(LogEntry{
		Type:   "card_used",
		Player: p.Name,
		Target: t.Name,
		Card:   c.Name,
		Amount: t.Vitality - before,
		Effect: fmt.Sprintf("healed to %d/%d", t.Vitality, t.MaxVitality),
	})
	return nil
}

func playDiscard(s *State, playerID string, index int, targetID string) error {
	target, err := opponent(s, playerID, targetID)
	if err != nil {
		return err
	}
	p := s.Players[playerID]
	c := takeCard(p, index)
	s.Discard = append(s.Discard, c)
	s.recordUsage(playerID, c.ID)
	entry := LogEntry{Type: "card_used", Player: p.Name, Target: target.Name, Card: c.Name, Effect: "no card to discard"}
	if n := min(c.Effect.Amount, len(target.Hand)); n > 0 {
		for i := 0; i < n; i++ {
			lost := takeCard(target, 0)
			s.Discard = append(s.Discard, lost)
		}
		entry.Amount = n
		entry.Effect = "discarded"
	}
	s.log(entry)
	return nil
}
