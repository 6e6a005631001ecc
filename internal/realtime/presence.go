// internal/realtime/presence.go
//
// Connection bookkeeping: maps live SSE connections to players and rooms so
// disconnects can be turned into "player left" events. This is a UI-presence
// view only, never the source of truth for game state, and its contents are
// lost on process restart by design.
//
// The tracker's lock is independent of any game-state locking; presence
// mutations and game mutations cannot deadlock against each other.

package realtime

import "sync"

// Entry describes one live connection inside one room.
type Entry struct {
	ConnID      string `json:"-"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	RoomID      string `json:"roomId"`
	Ready       bool   `json:"ready"`
}

// Presence tracks live connections per room.
type Presence struct {
	mu     sync.RWMutex
	byRoom map[string]map[string]Entry // roomID -> connID -> entry
	byConn map[string]map[string]bool  // connID -> roomIDs
}

// NewPresence creates an empty tracker.
func NewPresence() *Presence {
	return &Presence{
		byRoom: make(map[string]map[string]Entry),
		byConn: make(map[string]map[string]bool),
	}
}

// Add records a connection as present in a room.
func (p *Presence) Add(roomID, connID, playerID, displayName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byRoom[roomID] == nil {
		p.byRoom[roomID] = make(map[string]Entry)
	}
	p.byRoom[roomID][connID] = Entry{
		ConnID:      connID,
		PlayerID:    playerID,
		DisplayName: displayName,
		RoomID:      roomID,
	}
	if p.byConn[connID] == nil {
		p.byConn[connID] = make(map[string]bool)
	}
	p.byConn[connID][roomID] = true
}

// SetReady updates the ready flag shown on the presence list.
func (p *Presence) SetReady(roomID, connID string, ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if room, ok := p.byRoom[roomID]; ok {
		if e, ok := room[connID]; ok {
			e.Ready = ready
			room[connID] = e
		}
	}
}

// Remove drops one connection from one room. Returns the removed entry.
func (p *Presence) Remove(roomID, connID string) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(roomID, connID)
}

// RemoveConn drops a connection from every room it was part of, returning
// what was removed so the caller can broadcast "player left" per room.
func (p *Presence) RemoveConn(connID string) []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var removed []Entry
	for roomID := range p.byConn[connID] {
		if e, ok := p.removeLocked(roomID, connID); ok {
			removed = append(removed, e)
		}
	}
	return removed
}

// Connections lists the entries present in a room. Empty for unknown rooms.
func (p *Presence) Connections(roomID string) []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := []Entry{}
	for _, e := range p.byRoom[roomID] {
		out = append(out, e)
	}
	return out
}

// Rooms lists the rooms a connection is part of.
func (p *Presence) Rooms(connID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := []string{}
	for roomID := range p.byConn[connID] {
		out = append(out, roomID)
	}
	return out
}

func (p *Presence) removeLocked(roomID, connID string) (Entry, bool) {
	room, ok := p.byRoom[roomID]
	if !ok {
		return Entry{}, false
	}
	e, ok := room[connID]
	if !ok {
		return Entry{}, false
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(p.byRoom, roomID)
	}
	if conns := p.byConn[connID]; conns != nil {
		delete(conns, roomID)
		if len(conns) == 0 {
			delete(p.byConn, connID)
		}
	}
	return e, true
}
