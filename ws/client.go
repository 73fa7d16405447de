package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"xiwangsha-server/game"
	"xiwangsha-server/gameerrors"
	"xiwangsha-server/wsutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is a middleman between the websocket connection and a room session.
// Room is only touched from the ReadPump goroutine.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	// ID is the connection's player ID inside every room it joins.
	ID          string
	UserID      string // empty for guests
	DisplayName string // from the token, used when join_room omits a name

	Room *game.Session

	limiter *rate.Limiter
}

// ReadPump pumps messages from the websocket connection to the room session.
// It runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.leaveRoom(true)
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "tag", "ws", "player", c.ID, "err", err)
			}
			break
		}

		if !c.limiter.Allow() {
			c.sendError("Too many messages, slow down.")
			continue
		}
		c.handleMessage(message)
	}
}

// WritePump pumps messages from the send channel to the websocket connection.
// It runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var envelope InboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.sendError("Invalid message format.")
		return
	}

	switch envelope.Type {
	case "join_room":
		c.handleJoinRoom(envelope.Raw)
	case "leave_room":
		c.handleLeaveRoom(envelope.Raw)
	case "start_game":
		c.handleRoomAction(envelope.Raw, game.ActionStart)
	case "use_card":
		c.handleUseCard(envelope.Raw)
	case "resolve_attack":
		c.handleRoomAction(envelope.Raw, game.ActionResolveAttack)
	case "end_turn":
		c.handleRoomAction(envelope.Raw, game.ActionEndTurn)
	case "get_game_state":
		c.handleGetGameState(envelope.Raw)
	default:
		c.sendError("Unknown message type: " + envelope.Type)
	}
}

func (c *Client) handleJoinRoom(raw json.RawMessage) {
	var msg JoinRoomMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid join_room message.")
		return
	}

	name := strings.TrimSpace(msg.PlayerName)
	if name == "" {
		name = c.DisplayName
	}
	if n := utf8.RuneCountInString(name); n < 1 || n > c.Hub.Config.MaxNameLength {
		c.sendError("Name must be between 1 and " + strconv.Itoa(c.Hub.Config.MaxNameLength) + " characters.")
		return
	}

	c.dropClosedRoom()
	if c.Room != nil {
		if c.Room.ID == msg.RoomID {
			c.sendError("You are already in this room.")
		} else {
			c.sendError("Leave your current room first.")
		}
		return
	}

	session, err := c.Hub.Rooms.Get(msg.RoomID)
	if err != nil {
		c.sendError("Room not found.")
		return
	}

	// On failure the session replies with the reason itself.
	err = session.Do(game.Action{
		Type:     game.ActionJoin,
		PlayerID: c.ID,
		Name:     name,
		UserID:   c.UserID,
		Send:     c.Send,
	})
	if err != nil {
		if errors.Is(err, gameerrors.ErrSessionClosed) {
			c.sendError("Room not found.")
		}
		return
	}
	c.Room = session
}

func (c *Client) handleLeaveRoom(raw json.RawMessage) {
	var msg RoomMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid leave_room message.")
		return
	}
	if !c.inRoom(msg.RoomID) {
		return
	}
	c.leaveRoom(false)
}

func (c *Client) handleRoomAction(raw json.RawMessage, t game.ActionType) {
	var msg RoomMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid message.")
		return
	}
	if !c.inRoom(msg.RoomID) {
		return
	}
	c.submit(game.Action{Type: t, PlayerID: c.ID, Send: c.Send})
}

func (c *Client) handleUseCard(raw json.RawMessage) {
	var msg UseCardMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid use_card message.")
		return
	}
	if !c.inRoom(msg.RoomID) {
		return
	}
	if msg.CardIndex == nil {
		c.sendError("card_index is required.")
		return
	}
	c.submit(game.Action{
		Type:      game.ActionUseCard,
		PlayerID:  c.ID,
		CardIndex: *msg.CardIndex,
		TargetID:  msg.TargetID,
		Send:      c.Send,
	})
}

func (c *Client) handleGetGameState(raw json.RawMessage) {
	var msg RoomMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid get_game_state message.")
		return
	}
	session := c.Room
	if session == nil || (msg.RoomID != "" && msg.RoomID != session.ID) {
		s, err := c.Hub.Rooms.Get(msg.RoomID)
		if err != nil {
			c.sendError("Room not found.")
			return
		}
		session = s
	}
	if err := session.Submit(game.Action{Type: game.ActionSnapshot, PlayerID: c.ID, Send: c.Send}); err != nil {
		c.sendError("Room not found.")
	}
}

// inRoom reports whether the client is in a room matching roomID, replying
// with an error when it is not. An empty roomID matches the current room.
func (c *Client) inRoom(roomID string) bool {
	c.dropClosedRoom()
	if c.Room == nil {
		c.sendError("You are not in a room.")
		return false
	}
	if roomID != "" && roomID != c.Room.ID {
		c.sendError("You are not in room " + roomID + ".")
		return false
	}
	return true
}

// dropClosedRoom forgets a room whose session has already stopped.
func (c *Client) dropClosedRoom() {
	if c.Room == nil {
		return
	}
	select {
	case <-c.Room.Done:
		c.Room = nil
	default:
	}
}

func (c *Client) submit(a game.Action) {
	if err := c.Room.Submit(a); err != nil {
		c.Room = nil
		c.sendError("The room has been closed.")
	}
}

// leaveRoom removes the client from its room and waits for the session to
// unsubscribe it, so no further room events reach Send.
func (c *Client) leaveRoom(disconnected bool) {
	if c.Room == nil {
		return
	}
	room := c.Room
	c.Room = nil
	err := room.Do(game.Action{
		Type:         game.ActionLeave,
		PlayerID:     c.ID,
		Disconnected: disconnected,
		Send:         c.Send,
	})
	if err != nil && !errors.Is(err, gameerrors.ErrSessionClosed) && !errors.Is(err, gameerrors.ErrPlayerNotFound) {
		slog.Warn("leave failed", "tag", "ws", "player", c.ID, "room", room.ID, "err", err)
	}
}

func (c *Client) sendError(message string) {
	msg := ErrorMsg{Type: "error", Message: message}
	data, _ := json.Marshal(msg)
	wsutil.SafeSend(c.Send, data)
}
