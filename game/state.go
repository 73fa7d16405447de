package game

import (
	"encoding/json"
	"log/slog"

	"xiwangsha-server/card"
	"xiwangsha-server/rules"
	"xiwangsha-server/wsutil"
)

// CardView is the client-facing representation of a card in hand.
type CardView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CardType    string `json:"card_type"`
	Suit        string `json:"suit"`
	Description string `json:"description"`
}

// PlayerView is the client-facing representation of a player.
type PlayerView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	San        int        `json:"san"`
	MaxSan     int        `json:"max_san"`
	Eliminated bool       `json:"eliminated"`
	Benched    bool       `json:"benched"`
	HandCards  []CardView `json:"hand_cards"`
}

// PendingAttackView names the participants of an open response window.
type PendingAttackView struct {
	Attacker string `json:"attacker"`
	Target   string `json:"target"`
	Card     string `json:"card"`
}

// GameStateMsg is the full room snapshot attached to every state-changing event.
type GameStateMsg struct {
	RoomID          string                    `json:"room_id"`
	Players         map[string]PlayerView     `json:"players"`
	Order           []string                  `json:"order"`
	CurrentTurn     string                    `json:"current_turn"`
	GamePhase       string                    `json:"game_phase"`
	WaitingForDodge bool                      `json:"waiting_for_dodge"`
	AttackTarget    *string                   `json:"attack_target"`
	PendingAttack   *PendingAttackView        `json:"pending_attack"`
	TurnCardUsage   map[string]map[string]int `json:"turn_card_usage"`
	DeckCount       int                       `json:"deck_count"`
	DiscardCount    int                       `json:"discard_count"`
	Winner          string                    `json:"winner,omitempty"`
	GameLog         []rules.LogEntry          `json:"game_log"`
}

// BuildCardView converts a catalog card for the client.
func BuildCardView(c card.Card) CardView {
	return CardView{
		ID:          c.ID,
		Name:        c.Name,
		CardType:    string(c.Category),
		Suit:        c.Suit,
		Description: c.Description,
	}
}

// BuildPlayerView creates a PlayerView from a rules.Player.
func BuildPlayerView(p *rules.Player) PlayerView {
	hand := make([]CardView, 0, len(p.Hand))
	for _, c := range p.Hand {
		hand = append(hand, BuildCardView(c))
	}
	return PlayerView{
		ID:         p.ID,
		Name:       p.Name,
		San:        p.Vitality,
		MaxSan:     p.MaxVitality,
		Eliminated: p.Eliminated,
		Benched:    p.Benched,
		HandCards:  hand,
	}
}

// BuildGameState returns the snapshot of s as seen by every member of roomID.
func BuildGameState(roomID string, s rules.State) GameStateMsg {
	players := make(map[string]PlayerView, len(s.Players))
	for id, p := range s.Players {
		players[id] = BuildPlayerView(p)
	}
	usage := make(map[string]map[string]int, len(s.Usage))
	for id, m := range s.Usage {
		cp := make(map[string]int, len(m))
		for k, v := range m {
			cp[k] = v
		}
		usage[id] = cp
	}
	order := s.Order
	if order == nil {
		order = []string{}
	}
	log := s.Log
	if log == nil {
		log = []rules.LogEntry{}
	}
	msg := GameStateMsg{
		RoomID:          roomID,
		Players:         players,
		Order:           order,
		CurrentTurn:     s.CurrentTurn,
		GamePhase:       string(s.Phase),
		WaitingForDodge: s.WaitingForResponse(),
		TurnCardUsage:   usage,
		DeckCount:       len(s.Deck),
		DiscardCount:    len(s.Discard),
		Winner:          s.Winner,
		GameLog:         log,
	}
	if pa := s.Pending; pa != nil {
		target := pa.TargetID
		msg.AttackTarget = &target
		msg.PendingAttack = &PendingAttackView{
			Attacker: pa.AttackerID,
			Target:   pa.TargetID,
			Card:     pa.Card.ID,
		}
	}
	return msg
}

// sendEvent writes a single event to one connection.
func sendEvent(send chan []byte, event string, fields map[string]any) {
	msg := map[string]any{"type": event}
	for k, v := range fields {
		msg[k] = v
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshaling event", "tag", "session", "event", event, "err", err)
		return
	}
	wsutil.SafeSend(send, data)
}
