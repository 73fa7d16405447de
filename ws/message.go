package ws

import "encoding/json"

// InboundEnvelope is the generic envelope for all client-to-server messages.
// The Type field is used for routing; Raw holds the full JSON payload.
type InboundEnvelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements custom unmarshaling to capture the raw payload.
func (e *InboundEnvelope) UnmarshalJSON(data []byte) error {
	type typeOnly struct {
		Type string `json:"type"`
	}
	var t typeOnly
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	e.Type = t.Type
	e.Raw = json.RawMessage(data)
	return nil
}

// --- Client-to-Server message payloads ---

// JoinRoomMsg asks to join a room under a display name.
type JoinRoomMsg struct {
	Type       string `json:"type"`
	RoomID     string `json:"room_id"`
	PlayerName string `json:"player_name"`
}

// RoomMsg is any request that only names its room: leave_room, start_game,
// resolve_attack, end_turn and get_game_state.
type RoomMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// UseCardMsg plays the card at CardIndex. TargetID is required for attacks
// and discards; heals default to the player. During a response window the
// attack's target uses this message to answer with a dodge or counter card.
type UseCardMsg struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	CardIndex *int   `json:"card_index"`
	TargetID  string `json:"target_id,omitempty"`
}

// --- Server-to-Client messages ---

// ErrorMsg is sent when a client action is invalid.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ConnectedMsg tells a new connection its player ID.
type ConnectedMsg struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name,omitempty"`
}
