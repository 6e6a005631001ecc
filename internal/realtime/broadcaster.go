// internal/realtime/broadcaster.go
//
// Per-room event fan-out for SSE subscribers.
//
// Delivery contract:
//   - Within one room, subscribers receive events in the order they were
//     published (publishing happens under the room hub's lock).
//   - Across rooms there is no ordering guarantee.
//   - Delivery is best-effort: a lagging subscriber's events are dropped
//     rather than blocking the publisher; the next full-state event catches
//     the client up.

package realtime

import "sync"

// Event is one message pushed to a room's subscribers. Type names the event
// kind ("round_started", "round_result", ...); Data is the payload struct.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const subscriberBuffer = 32

// hub is the subscriber set for one room.
type hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func (h *hub) publish(e Event) {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			// Drop if the subscriber is lagging; next event catches it up.
		}
	}
	h.mu.Unlock()
}

// Broadcaster manages one hub per room.
type Broadcaster struct {
	mu   sync.RWMutex
	hubs map[string]*hub
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{hubs: make(map[string]*hub)}
}

// Subscribe registers a new subscriber for a room and returns its channel.
func (b *Broadcaster) Subscribe(roomID string) chan Event {
	ch := make(chan Event, subscriberBuffer)
	h := b.hubFor(roomID)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(roomID string, ch chan Event) {
	b.mu.RLock()
	h, ok := b.hubs[roomID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	h.mu.Lock()
	if _, subbed := h.subs[ch]; subbed {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers an event to every subscriber of the room.
func (b *Broadcaster) Publish(roomID string, e Event) {
	b.mu.RLock()
	h, ok := b.hubs[roomID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	h.publish(e)
}

// DropRoom closes every subscriber of the room and forgets its hub.
// Called when a room is deleted.
func (b *Broadcaster) DropRoom(roomID string) {
	b.mu.Lock()
	h, ok := b.hubs[roomID]
	delete(b.hubs, roomID)
	b.mu.Unlock()
	if !ok {
		return
	}
	h.mu.Lock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (b *Broadcaster) hubFor(roomID string) *hub {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hubs[roomID]
	if !ok {
		h = &hub{subs: make(map[chan Event]struct{})}
		b.hubs[roomID] = h
	}
	return h
}
