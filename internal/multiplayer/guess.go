// internal/multiplayer/guess.go
//
// Guess submission pipeline.
//
// Serialization: the room lock is held across load → mutate → decide
// allFinished → persist, so two players' concurrent guesses cannot clobber
// each other. Version conflicts from out-of-band writers are retried a
// bounded number of times before surfacing.
//
// Idempotency: a guess re-submitted by a player already finished in the
// current round overwrites that round's contribution. RoundPlayer keeps the
// points last awarded for the round, so the cumulative score is adjusted by
// replacement and never double-accumulates.

package multiplayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/futuristaz/geohunt-sub000/internal/geo"
	"github.com/futuristaz/geohunt-sub000/internal/realtime"
	"github.com/futuristaz/geohunt-sub000/internal/store"
)

// SubmitGuess applies one player's guess to the current round of their
// room's active game.
func (s *Service) SubmitGuess(ctx context.Context, playerID string, lat, lng float64) (RoundResult, error) {
	player, err := s.store.PlayerByID(ctx, playerID)
	if err != nil {
		return RoundResult{}, err
	}
	if player.RoomID == "" {
		return RoundResult{}, fmt.Errorf("player has no room: %w", store.ErrNotFound)
	}

	lock := s.lockRoom(player.RoomID)
	lock.Lock()
	defer lock.Unlock()

	var res RoundResult
	for attempt := 0; attempt < saveMaxAttempts; attempt++ {
		res, err = s.applyGuess(ctx, player, geo.Point{Lat: lat, Lng: lng})
		if errors.Is(err, store.ErrVersionConflict) {
			s.logger.Debug().Str("player", playerID).Int("attempt", attempt+1).Msg("guess hit version conflict, retrying")
			continue
		}
		break
	}
	if err != nil {
		return RoundResult{}, err
	}

	s.bcast.Publish(player.RoomID, realtime.Event{Type: EventRoundResult, Data: res})

	if res.AllFinished {
		s.afterRound(ctx, player.RoomID)
	}
	return res, nil
}

// applyGuess performs one load→mutate→persist attempt.
func (s *Service) applyGuess(ctx context.Context, player *store.Player, guess geo.Point) (RoundResult, error) {
	game, err := s.store.ActiveGameByRoom(ctx, player.RoomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RoundResult{}, fmt.Errorf("no active game for room: %w", store.ErrNotFound)
		}
		return RoundResult{}, err
	}
	if game.Target == nil {
		return RoundResult{}, fmt.Errorf("round has no target yet: %w", ErrPreconditionFailed)
	}

	var rp *store.RoundPlayer
	for _, candidate := range game.Players {
		if candidate.PlayerID == player.ID {
			rp = candidate
			break
		}
	}
	if rp == nil {
		return RoundResult{}, fmt.Errorf("player not in game: %w", store.ErrNotFound)
	}

	dist := geo.Distance(*game.Target, guess)
	points := geo.Score(dist)

	// Replace, never re-accumulate, this round's contribution.
	rp.Score = rp.Score - rp.RoundScore + points
	rp.RoundScore = points
	rp.Guess = &guess
	rp.DistanceKm = dist
	rp.Finished = true

	if err := s.store.SaveGame(ctx, game); err != nil {
		return RoundResult{}, err
	}

	allFinished := true
	for _, other := range game.Players {
		if !other.Finished {
			allFinished = false
			break
		}
	}

	return RoundResult{
		PlayerID:    player.ID,
		Score:       rp.Score,
		DistanceKm:  dist,
		AllFinished: allFinished,
	}, nil
}

// afterRound advances or finishes the game once every player has guessed.
// With a configured delay the work is scheduled on a timer so the handling
// goroutine (and every other room) is never blocked; the callback re-checks
// state, so a guess overwritten in the meantime cancels nothing it
// shouldn't.
func (s *Service) afterRound(ctx context.Context, roomID string) {
	if s.advanceDelay <= 0 {
		s.progressGame(ctx, roomID, -1)
		return
	}
	game, err := s.store.ActiveGameByRoom(ctx, roomID)
	if err != nil {
		return
	}
	round := game.CurrentRound
	time.AfterFunc(s.advanceDelay, func() {
		lock := s.lockRoom(roomID)
		lock.Lock()
		defer lock.Unlock()
		s.progressGame(context.Background(), roomID, round)
	})
}

// progressGame performs the actual advance-or-finish step. expectRound < 0
// means the caller already holds the room lock and verified state;
// otherwise the step is skipped unless the game is still all-finished on
// that round.
func (s *Service) progressGame(ctx context.Context, roomID string, expectRound int) {
	game, err := s.store.ActiveGameByRoom(ctx, roomID)
	if err != nil {
		return // game ended or room vanished while we waited
	}
	if expectRound >= 0 {
		if game.CurrentRound != expectRound {
			return
		}
		for _, rp := range game.Players {
			if !rp.Finished {
				return
			}
		}
	}

	if game.CurrentRound < game.TotalRounds {
		if err := s.advanceRoundLocked(ctx, game); err != nil {
			s.logger.Error().Err(err).Str("game", game.ID).Msg("advance round")
		}
		return
	}
	if err := s.finishLocked(ctx, game); err != nil {
		s.logger.Error().Err(err).Str("game", game.ID).Msg("finish game")
	}
}
