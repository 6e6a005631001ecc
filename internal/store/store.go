// internal/store/store.go
//
// Persistence interface for rooms, players and game instances.
// Implementations may be backed by memory (this package) or SQLite.
//
// Concurrency contract:
//   - Reads return copies; mutating a returned entity does not affect the
//     store until the corresponding Save* call.
//   - Save* methods compare the entity's Version against the stored row and
//     fail with ErrVersionConflict on mismatch; on success the stored
//     version is incremented and reflected back into the passed entity.

package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrVersionConflict is returned when a Save sees a stale version token.
	ErrVersionConflict = errors.New("store: version conflict")

	// ErrDuplicateCode is returned when creating a room with a code already
	// in use. Callers regenerate and retry.
	ErrDuplicateCode = errors.New("store: duplicate room code")
)

// Store is the durable home of rooms, players and games.
type Store interface {
	// Rooms.
	CreateRoom(ctx context.Context, r *Room) error
	RoomByID(ctx context.Context, id string) (*Room, error)
	RoomByCode(ctx context.Context, code string) (*Room, error)
	SaveRoom(ctx context.Context, r *Room) error
	DeleteRoom(ctx context.Context, id string) error

	// Players.
	CreatePlayer(ctx context.Context, p *Player) error
	PlayerByID(ctx context.Context, id string) (*Player, error)
	PlayerByUserAndRoom(ctx context.Context, userID, roomID string) (*Player, error)
	PlayersByRoom(ctx context.Context, roomID string) ([]*Player, error)
	SavePlayer(ctx context.Context, p *Player) error

	// Games. CreateGame persists the instance together with its RoundPlayer
	// rows; SaveGame persists the instance and every RoundPlayer under the
	// instance's version token.
	CreateGame(ctx context.Context, g *GameInstance) error
	GameByID(ctx context.Context, id string) (*GameInstance, error)
	ActiveGameByRoom(ctx context.Context, roomID string) (*GameInstance, error)
	SaveGame(ctx context.Context, g *GameInstance) error
}
