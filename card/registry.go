package card

import "math/rand"

// Catalog holds every known card indexed by ID.
type Catalog struct {
	cards map[string]Card
	order []string // registration order for deterministic All()
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		cards: make(map[string]Card),
	}
}

// Register adds or replaces a card definition.
func (c *Catalog) Register(def Card) {
	if _, exists := c.cards[def.ID]; !exists {
		c.order = append(c.order, def.ID)
	}
	c.cards[def.ID] = def
}

// Get returns the card with the given ID.
func (c *Catalog) Get(id string) (Card, bool) {
	def, ok := c.cards[id]
	return def, ok
}

// All returns every registered card in registration order.
func (c *Catalog) All() []Card {
	defs := make([]Card, 0, len(c.order))
	for _, id := range c.order {
		defs = append(defs, c.cards[id])
	}
	return defs
}

// NewDeck returns one entry per copy of every registered card, shuffled with rng.
func (c *Catalog) NewDeck(rng *rand.Rand) []Card {
	var deck []Card
	for _, def := range c.All() {
		for i := 0; i < def.Copies; i++ {
			deck = append(deck, def)
		}
	}
	Shuffle(deck, rng)
	return deck
}

// Shuffle permutes cards in place.
func Shuffle(cards []Card, rng *rand.Rand) {
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}
