// internal/multiplayer/events.go
//
// Event kinds and payload structs broadcast to a room's SSE subscribers.
// One struct per event kind; nothing here is persisted.

package multiplayer

import "github.com/futuristaz/geohunt-sub000/internal/store"

const (
	EventRoundStarted   = "round_started"
	EventRoundResult    = "round_result"
	EventGameState      = "game_state_updated"
	EventGameFinished   = "game_finished"
	EventPlayerJoined   = "player_joined"
	EventPlayerLeft     = "player_left"
	EventPlayersUpdated = "players_updated"
)

// RoundStarted announces a new round. Lat/Lng locate the panorama the
// clients should render.
type RoundStarted struct {
	CurrentRound int     `json:"currentRound"`
	TotalRounds  int     `json:"totalRounds"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
}

// RoundResult is both the value returned to the submitting player and the
// payload broadcast after every accepted guess.
type RoundResult struct {
	PlayerID    string  `json:"playerId"`
	Score       int     `json:"score"`
	DistanceKm  float64 `json:"distanceKm"`
	AllFinished bool    `json:"roundFinished"`
}

// GameStateUpdated carries the full game snapshot. The round target is
// excluded from serialization at the model level.
type GameStateUpdated struct {
	Game *store.GameInstance `json:"game"`
}

// PlayerStanding is one row of a final scoreboard.
type PlayerStanding struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// GameFinished closes out a match with the final standings, best first.
type GameFinished struct {
	GameID    string           `json:"gameId"`
	Standings []PlayerStanding `json:"standings"`
}

// PlayerEvent accompanies join/leave notifications.
type PlayerEvent struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

// PlayersUpdated refreshes the lobby roster.
type PlayersUpdated struct {
	Players []*store.Player `json:"players"`
}
