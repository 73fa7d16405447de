package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"xiwangsha-server/wsutil"
)

// Fanout delivers room events to every subscribed member's send channel.
// Delivery is at-most-once: a member whose buffer is full misses the event.
type Fanout struct {
	mu    sync.RWMutex
	rooms map[string]map[string]chan []byte
}

// New creates an empty Fanout.
func New() *Fanout {
	return &Fanout{rooms: make(map[string]map[string]chan []byte)}
}

// Subscribe registers send as memberID's channel in roomID, replacing any previous one.
func (f *Fanout) Subscribe(roomID, memberID string, send chan []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.rooms[roomID]
	if members == nil {
		members = make(map[string]chan []byte)
		f.rooms[roomID] = members
	}
	members[memberID] = send
}

// Unsubscribe removes memberID from roomID.
func (f *Fanout) Unsubscribe(roomID, memberID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.rooms[roomID]
	delete(members, memberID)
	if len(members) == 0 {
		delete(f.rooms, roomID)
	}
}

// Drop forgets every member of roomID.
func (f *Fanout) Drop(roomID string) {
	f.mu.Lock()
	delete(f.rooms, roomID)
	f.mu.Unlock()
}

// Publish sends event with payload to every member of roomID.
func (f *Fanout) Publish(roomID, event string, payload any) {
	data, err := Encode(event, payload)
	if err != nil {
		slog.Error("encoding event", "tag", "broadcast", "event", event, "err", err)
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, send := range f.rooms[roomID] {
		wsutil.SafeSend(send, data)
	}
}

// Direct sends event with payload to a single member of roomID.
func (f *Fanout) Direct(roomID, memberID, event string, payload any) {
	f.mu.RLock()
	send, ok := f.rooms[roomID][memberID]
	f.mu.RUnlock()
	if !ok {
		return
	}
	data, err := Encode(event, payload)
	if err != nil {
		slog.Error("encoding event", "tag", "broadcast", "event", event, "err", err)
		return
	}
	wsutil.SafeSend(send, data)
}

// Encode renders an event as a flat JSON object: {"type": event, ...payload}.
// payload must marshal to a JSON object or be nil.
func Encode(event string, payload any) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	typ, _ := json.Marshal(event)
	fields["type"] = typ
	return json.Marshal(fields)
}
