// internal/multiplayer/games.go
//
// Game state machine: InProgress → Finished (terminal). The waiting phase
// is the room's lobby; a game instance is created already running.
//
// Start requires a lobby room whose entire (non-empty) roster is ready. At
// most one non-finished game exists per room; Start enforces the invariant
// before creating the instance. Round targets come from the coordinate
// provider; its failure is a retryable condition (geocode.ErrNoLocation),
// distinct from a terminal precondition failure.

package multiplayer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/futuristaz/geohunt-sub000/internal/geo"
	"github.com/futuristaz/geohunt-sub000/internal/geocode"
	"github.com/futuristaz/geohunt-sub000/internal/realtime"
	"github.com/futuristaz/geohunt-sub000/internal/store"
)

// Start creates and seeds a game for the room identified by code.
func (s *Service) Start(ctx context.Context, code string) (*store.GameInstance, error) {
	room, err := s.store.RoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	lock := s.lockRoom(room.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; a concurrent Start may have flipped the room.
	room, err = s.store.RoomByID(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	if room.Status != store.RoomLobby {
		return nil, fmt.Errorf("room is not in lobby: %w", ErrPreconditionFailed)
	}
	players, err := s.store.PlayersByRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, fmt.Errorf("room has no players: %w", ErrPreconditionFailed)
	}
	for _, p := range players {
		if !p.Ready {
			return nil, fmt.Errorf("player %s is not ready: %w", p.DisplayName, ErrPreconditionFailed)
		}
	}
	if _, err := s.store.ActiveGameByRoom(ctx, room.ID); err == nil {
		return nil, fmt.Errorf("game already running: %w", ErrPreconditionFailed)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	target, err := s.seedTarget(ctx)
	if err != nil {
		return nil, err
	}

	game := &store.GameInstance{
		ID:           uuid.NewString(),
		RoomID:       room.ID,
		StartedAt:    time.Now().UTC(),
		CurrentRound: 1,
		TotalRounds:  room.TotalRounds,
		Target:       &target,
		State:        store.GameInProgress,
	}
	for _, p := range players {
		game.Players = append(game.Players, &store.RoundPlayer{
			ID:       uuid.NewString(),
			GameID:   game.ID,
			PlayerID: p.ID,
		})
	}
	if err := s.store.CreateGame(ctx, game); err != nil {
		return nil, err
	}

	room.Status = store.RoomInGame
	if err := s.store.SaveRoom(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Info().Str("room", room.ID).Str("game", game.ID).
		Int("players", len(players)).Int("rounds", game.TotalRounds).Msg("game started")

	s.publishRoundStarted(room.ID, game)
	s.bcast.Publish(room.ID, realtime.Event{Type: EventGameState, Data: GameStateUpdated{Game: game}})
	return game, nil
}

// AdvanceRound moves the game to its next round, re-seeding the target and
// clearing every player's per-round state. Fails terminally once the final
// round is reached.
//
// Callers must hold the room lock; SubmitGuess's orchestration does.
func (s *Service) advanceRoundLocked(ctx context.Context, game *store.GameInstance) error {
	if game.State == store.GameFinished {
		return fmt.Errorf("game is finished: %w", ErrPreconditionFailed)
	}
	if game.CurrentRound >= game.TotalRounds {
		return fmt.Errorf("all %d rounds completed: %w", game.TotalRounds, ErrPreconditionFailed)
	}
	target, err := s.seedTarget(ctx)
	if err != nil {
		return err
	}
	game.CurrentRound++
	game.Target = &target
	for _, rp := range game.Players {
		rp.ResetRound()
	}
	if err := s.store.SaveGame(ctx, game); err != nil {
		return err
	}
	s.logger.Info().Str("game", game.ID).Int("round", game.CurrentRound).Msg("round advanced")
	s.publishRoundStarted(game.RoomID, game)
	return nil
}

// AdvanceRound is the externally callable form of round advancement.
func (s *Service) AdvanceRound(ctx context.Context, gameID string) (*store.GameInstance, error) {
	game, err := s.store.GameByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	lock := s.lockRoom(game.RoomID)
	lock.Lock()
	defer lock.Unlock()
	game, err = s.store.GameByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := s.advanceRoundLocked(ctx, game); err != nil {
		return nil, err
	}
	return game, nil
}

// finishLocked marks the game finished and returns the room to the lobby
// with every ready flag cleared, so a rematch needs a fresh ready-up.
func (s *Service) finishLocked(ctx context.Context, game *store.GameInstance) error {
	now := time.Now().UTC()
	game.FinishedAt = &now
	game.State = store.GameFinished
	for _, rp := range game.Players {
		if rp.RoundScore > rp.BestRound {
			rp.BestRound = rp.RoundScore
		}
	}
	if err := s.store.SaveGame(ctx, game); err != nil {
		return err
	}

	room, err := s.store.RoomByID(ctx, game.RoomID)
	if err != nil {
		return err
	}
	room.Status = store.RoomLobby
	if err := s.store.SaveRoom(ctx, room); err != nil {
		return err
	}

	players, err := s.store.PlayersByRoom(ctx, game.RoomID)
	if err != nil {
		return err
	}
	byID := make(map[string]*store.Player, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}

	var standings []PlayerStanding
	var results []PlayerResult
	for _, rp := range game.Players {
		name := ""
		if p := byID[rp.PlayerID]; p != nil {
			name = p.DisplayName
			p.Ready = false
			p.Score = rp.Score // room-level score mirrors the final result
			if err := s.store.SavePlayer(ctx, p); err != nil {
				s.logger.Warn().Err(err).Str("player", p.ID).Msg("reset player after game")
			}
			results = append(results, PlayerResult{
				UserID:     p.UserID,
				TotalScore: rp.Score,
				BestRound:  rp.BestRound,
			})
		}
		standings = append(standings, PlayerStanding{PlayerID: rp.PlayerID, DisplayName: name, Score: rp.Score})
	}
	sort.Slice(standings, func(i, j int) bool { return standings[i].Score > standings[j].Score })

	s.logger.Info().Str("game", game.ID).Str("room", game.RoomID).Msg("game finished")
	s.bcast.Publish(game.RoomID, realtime.Event{
		Type: EventGameFinished,
		Data: GameFinished{GameID: game.ID, Standings: standings},
	})
	if s.onFinished != nil {
		s.onFinished(ctx, results)
	}
	return nil
}

// Finish ends a game explicitly (e.g. the room abandons a match).
func (s *Service) Finish(ctx context.Context, gameID string) error {
	game, err := s.store.GameByID(ctx, gameID)
	if err != nil {
		return err
	}
	lock := s.lockRoom(game.RoomID)
	lock.Lock()
	defer lock.Unlock()
	game, err = s.store.GameByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game.State == store.GameFinished {
		return fmt.Errorf("game already finished: %w", ErrPreconditionFailed)
	}
	return s.finishLocked(ctx, game)
}

// seedTarget asks the coordinate provider for a validated panorama point.
func (s *Service) seedTarget(ctx context.Context) (geo.Point, error) {
	p, err := s.geo.ValidLocation(ctx)
	if err != nil {
		if errors.Is(err, geocode.ErrNoLocation) {
			return geo.Point{}, err
		}
		return geo.Point{}, fmt.Errorf("seed round target: %w", err)
	}
	return p, nil
}

func (s *Service) publishRoundStarted(roomID string, game *store.GameInstance) {
	s.bcast.Publish(roomID, realtime.Event{
		Type: EventRoundStarted,
		Data: RoundStarted{
			CurrentRound: game.CurrentRound,
			TotalRounds:  game.TotalRounds,
			Lat:          game.Target.Lat,
			Lng:          game.Target.Lng,
		},
	})
}
