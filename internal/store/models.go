// internal/store/models.go
//
// Persistent entity definitions for the multiplayer subsystem.
// Defines:
//   - Room: a lobby grouping players before/after a game.
//   - Player: a participant identity scoped to a room.
//   - GameInstance: one played match for a room.
//   - RoundPlayer: a player's mutable state within one GameInstance.
//
// Rooms, game instances and round players carry a Version token used for
// optimistic concurrency by every Store implementation.

package store

import (
	"time"

	"github.com/futuristaz/geohunt-sub000/internal/geo"
)

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	RoomLobby  RoomStatus = "lobby"
	RoomInGame RoomStatus = "in_game"
)

// GameState is the lifecycle state of a game instance. The pre-game phase
// is the room's Lobby status; an instance exists only once in progress.
type GameState string

const (
	GameInProgress GameState = "in_progress"
	GameFinished   GameState = "finished"
)

// Room groups players under a short human-enterable code.
type Room struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	TotalRounds int        `json:"totalRounds"`
	Status      RoomStatus `json:"status"`
	Version     int64      `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Player is a participant identity. RoomID is empty while the player is
// room-less; Score is room-level and informational only.
type Player struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	RoomID      string `json:"roomId,omitempty"`
	DisplayName string `json:"displayName"`
	Ready       bool   `json:"ready"`
	Score       int    `json:"score"`
}

// GameInstance is one match played by a room. Target is nil until the first
// round is seeded. Players is the ordered set of RoundPlayer rows owned by
// this instance (exactly one per room player at start time).
type GameInstance struct {
	ID           string         `json:"id"`
	RoomID       string         `json:"roomId"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   *time.Time     `json:"finishedAt,omitempty"`
	CurrentRound int            `json:"currentRound"`
	TotalRounds  int            `json:"totalRounds"`
	Target       *geo.Point     `json:"-"` // never serialized to clients mid-round
	State        GameState      `json:"state"`
	Version      int64          `json:"-"`
	Players      []*RoundPlayer `json:"players"`
}

// RoundPlayer tracks one player's progress inside a game. RoundScore holds
// the points awarded for the current round's guess so that a re-submitted
// guess replaces (rather than re-accumulates) its contribution.
type RoundPlayer struct {
	ID         string     `json:"id"`
	GameID     string     `json:"gameId"`
	PlayerID   string     `json:"playerId"`
	Score      int        `json:"score"`
	RoundScore int        `json:"-"`
	BestRound  int        `json:"bestRound"`
	Finished   bool       `json:"finished"`
	Guess      *geo.Point `json:"guess,omitempty"`
	DistanceKm float64    `json:"distanceKm"`
	Version    int64      `json:"-"`
}

// ResetRound clears per-round state ahead of a new round. The closing
// round's score is folded into BestRound first since a live round's score
// can still be overwritten.
func (rp *RoundPlayer) ResetRound() {
	if rp.RoundScore > rp.BestRound {
		rp.BestRound = rp.RoundScore
	}
	rp.Finished = false
	rp.Guess = nil
	rp.DistanceKm = 0
	rp.RoundScore = 0
}
