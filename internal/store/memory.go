// internal/store/memory.go
//
// In-memory implementation of the Store interface.
// This is a lightweight persistence layer used in development/testing, or
// when durability is not required.
//
// Characteristics:
//   - Entities keyed by ID in maps, guarded by a single RWMutex.
//   - Reads and writes copy entities, so callers always work on snapshots;
//     the version-token check on Save* therefore behaves exactly like the
//     SQLite implementation's row_version compare-and-swap.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"sync"
	"time"
)

type memory struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	codes   map[string]string // room code -> room ID
	players map[string]*Player
	games   map[string]*GameInstance
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() Store {
	return &memory{
		rooms:   make(map[string]*Room),
		codes:   make(map[string]string),
		players: make(map[string]*Player),
		games:   make(map[string]*GameInstance),
	}
}

// ------------------------------- rooms --------------------------------------

func (m *memory) CreateRoom(ctx context.Context, r *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.codes[r.Code]; taken {
		return ErrDuplicateCode
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Version = 1
	m.rooms[r.ID] = copyRoom(r)
	m.codes[r.Code] = r.ID
	return nil
}

func (m *memory) RoomByID(ctx context.Context, id string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRoom(r), nil
}

func (m *memory) RoomByCode(ctx context.Context, code string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRoom(m.rooms[id]), nil
}

func (m *memory) SaveRoom(ctx context.Context, r *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rooms[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != r.Version {
		return ErrVersionConflict
	}
	r.Version++
	m.rooms[r.ID] = copyRoom(r)
	return nil
}

func (m *memory) DeleteRoom(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.codes, r.Code)
	delete(m.rooms, id)
	// Mirror the SQLite cascade: the room's games and player rows go with it.
	for gid, g := range m.games {
		if g.RoomID == id {
			delete(m.games, gid)
		}
	}
	for pid, p := range m.players {
		if p.RoomID == id {
			delete(m.players, pid)
		}
	}
	return nil
}

// ------------------------------ players -------------------------------------

func (m *memory) CreatePlayer(ctx context.Context, p *Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[p.ID] = copyPlayer(p)
	return nil
}

func (m *memory) PlayerByID(ctx context.Context, id string) (*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPlayer(p), nil
}

func (m *memory) PlayerByUserAndRoom(ctx context.Context, userID, roomID string) (*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.players {
		if p.UserID == userID && p.RoomID == roomID {
			return copyPlayer(p), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memory) PlayersByRoom(ctx context.Context, roomID string) ([]*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Player{}
	for _, p := range m.players {
		if p.RoomID != "" && p.RoomID == roomID {
			out = append(out, copyPlayer(p))
		}
	}
	return out, nil
}

func (m *memory) SavePlayer(ctx context.Context, p *Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[p.ID]; !ok {
		return ErrNotFound
	}
	m.players[p.ID] = copyPlayer(p)
	return nil
}

// ------------------------------- games --------------------------------------

func (m *memory) CreateGame(ctx context.Context, g *GameInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.Version = 1
	for _, rp := range g.Players {
		rp.Version = 1
	}
	m.games[g.ID] = copyGame(g)
	return nil
}

func (m *memory) GameByID(ctx context.Context, id string) (*GameInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGame(g), nil
}

func (m *memory) ActiveGameByRoom(ctx context.Context, roomID string) (*GameInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.games {
		if g.RoomID == roomID && g.State != GameFinished {
			return copyGame(g), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memory) SaveGame(ctx context.Context, g *GameInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.games[g.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != g.Version {
		return ErrVersionConflict
	}
	g.Version++
	for _, rp := range g.Players {
		rp.Version++
	}
	m.games[g.ID] = copyGame(g)
	return nil
}

// ------------------------------- copies -------------------------------------

func copyRoom(r *Room) *Room {
	c := *r
	return &c
}

func copyPlayer(p *Player) *Player {
	c := *p
	return &c
}

func copyGame(g *GameInstance) *GameInstance {
	c := *g
	if g.FinishedAt != nil {
		t := *g.FinishedAt
		c.FinishedAt = &t
	}
	if g.Target != nil {
		pt := *g.Target
		c.Target = &pt
	}
	c.Players = make([]*RoundPlayer, len(g.Players))
	for i, rp := range g.Players {
		rc := *rp
		if rp.Guess != nil {
			pt := *rp.Guess
			rc.Guess = &pt
		}
		c.Players[i] = &rc
	}
	return &c
}
