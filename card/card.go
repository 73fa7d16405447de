package card

import "slices"

// Category decides when a card may be played.
type Category string

const (
	// Ordinary cards may be played by the turn holder while no attack is pending.
	Ordinary Category = "ordinary"
	// OwnTurn cards are attacks; they open a response window against a target.
	OwnTurn Category = "own_turn"
	// Dodge cards are only playable as a response to a dodgeable attack.
	Dodge Category = "dodge"
)

// Tag is an extra rule attached to a card.
type Tag string

const (
	// TagUndodgeable attacks cannot be answered with a Dodge card.
	TagUndodgeable Tag = "undodgeable"
	// TagCounter cards are the only valid answer to an undodgeable attack.
	TagCounter Tag = "counter"
)

// EffectKind is what a card does once it resolves.
type EffectKind string

const (
	EffectNone    EffectKind = ""
	EffectAttack  EffectKind = "attack"
	EffectHeal    EffectKind = "heal"
	EffectDiscard EffectKind = "discard"
)

// Formula selects how an attack's damage is computed when it lands.
type Formula string

const (
	// FormulaFixed deals Effect.Amount.
	FormulaFixed Formula = "fixed"
	// FormulaUsageCount deals the attacker's usage count of Effect.Source this turn.
	FormulaUsageCount Formula = "usage_count"
	// FormulaHalfVitality deals half the attacker's current vitality, at least 1.
	FormulaHalfVitality Formula = "half_vitality"
)

// Effect describes a card's resolution. Amount is the fixed damage or heal value.
type Effect struct {
	Kind    EffectKind
	Amount  int
	Formula Formula
	Source  string // card ID counted by FormulaUsageCount
}

// Card is an immutable catalog entry. Hands and piles hold copies by value.
type Card struct {
	ID          string
	Name        string
	Suit        string // display family, e.g. 作业牌
	Category    Category
	Tags        []Tag
	Description string

	// PerTurnLimit caps how many times one player may use this card per turn; 0 means unlimited.
	PerTurnLimit int

	// Copies is how many of this card go into a fresh deck.
	Copies int

	Effect Effect
}

// Has reports whether the card carries tag.
func (c Card) Has(tag Tag) bool {
	return slices.Contains(c.Tags, tag)
}

// IsAttack reports whether playing the card opens a response window.
func (c Card) IsAttack() bool {
	return c.Effect.Kind == EffectAttack
}

// Capped reports whether the card has a per-turn usage limit.
func (c Card) Capped() bool {
	return c.PerTurnLimit > 0
}
