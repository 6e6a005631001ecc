// internal/solo/solo.go
//
// Single-player mode.
// Sessions are held in memory for active play (same pattern as room games
// but without a lobby); finished games are persisted through a ResultStore
// and reported to the achievements evaluator by the hosting process.

package solo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/futuristaz/geohunt-sub000/internal/geo"
	"github.com/futuristaz/geohunt-sub000/internal/geocode"
)

var (
	// ErrNotFound is returned for unknown or foreign game IDs.
	ErrNotFound = errors.New("solo: game not found")

	// ErrFinished is returned when guessing on a completed game.
	ErrFinished = errors.New("solo: game already finished")

	// ErrRoundClosed is returned for a guess on a round that has already
	// been scored while the next round's target is still being seeded.
	ErrRoundClosed = errors.New("solo: round already scored")
)

// DefaultRounds is used when a game is started with a non-positive count.
const DefaultRounds = 3

// RoundOutcome records one played round.
type RoundOutcome struct {
	Round      int       `json:"round"`
	Target     geo.Point `json:"target"`
	Guess      geo.Point `json:"guess"`
	DistanceKm float64   `json:"distanceKm"`
	Score      int       `json:"score"`
}

// Game is one solo session. Target holds the current round's panorama
// location and is sent to the client (it needs it to render the panorama).
type Game struct {
	ID           string         `json:"id"`
	UserID       string         `json:"-"`
	TotalRounds  int            `json:"totalRounds"`
	CurrentRound int            `json:"currentRound"`
	Target       geo.Point      `json:"target"`
	TotalScore   int            `json:"totalScore"`
	Finished     bool           `json:"finished"`
	StartedAt    time.Time      `json:"startedAt"`
	Outcomes     []RoundOutcome `json:"outcomes"`

	// seeding closes the current round while the next target is fetched
	// outside the session lock; guesses arriving meanwhile are rejected.
	seeding bool
}

// GuessResult is returned for each submitted guess.
type GuessResult struct {
	Round      int       `json:"round"`
	Target     geo.Point `json:"target"` // revealed so the client can show the answer
	DistanceKm float64   `json:"distanceKm"`
	Score      int       `json:"score"`
	TotalScore int       `json:"totalScore"`
	Finished   bool      `json:"finished"`
}

// FinishedGame is handed to the ResultStore and the OnFinished hook.
type FinishedGame struct {
	ID         string
	UserID     string
	Rounds     int
	TotalScore int
	BestRound  int
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []RoundOutcome
}

// ResultStore persists finished solo games.
type ResultStore interface {
	SaveGame(ctx context.Context, g *FinishedGame) error
}

// Service runs solo sessions.
type Service struct {
	geo     geocode.Provider
	results ResultStore // nil means results are not persisted
	logger  zerolog.Logger

	onFinished func(ctx context.Context, g *FinishedGame)

	mu    sync.Mutex
	games map[string]*Game
}

// NewService wires a solo service.
func NewService(provider geocode.Provider, results ResultStore, logger zerolog.Logger) *Service {
	return &Service{
		geo:     provider,
		results: results,
		logger:  logger,
		games:   make(map[string]*Game),
	}
}

// OnFinished registers a hook called after a game completes (achievements,
// leaderboards). Best-effort; runs on the guessing request's goroutine.
func (s *Service) OnFinished(fn func(ctx context.Context, g *FinishedGame)) {
	s.onFinished = fn
}

// Start creates a session with a seeded first round.
func (s *Service) Start(ctx context.Context, userID string, rounds int) (*Game, error) {
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	target, err := s.geo.ValidLocation(ctx)
	if err != nil {
		return nil, err
	}
	g := &Game{
		ID:           uuid.NewString(),
		UserID:       userID,
		TotalRounds:  rounds,
		CurrentRound: 1,
		Target:       target,
		StartedAt:    time.Now().UTC(),
	}
	s.mu.Lock()
	s.games[g.ID] = g
	s.mu.Unlock()
	s.logger.Info().Str("game", g.ID).Str("user", userID).Int("rounds", rounds).Msg("solo game started")
	return snapshot(g), nil
}

// Game returns the caller's session state (for resume after reload).
func (s *Service) Game(ctx context.Context, gameID, userID string) (*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok || g.UserID != userID {
		return nil, ErrNotFound
	}
	return snapshot(g), nil
}

// Guess scores the current round and advances or finishes the game.
func (s *Service) Guess(ctx context.Context, gameID, userID string, lat, lng float64) (GuessResult, error) {
	s.mu.Lock()
	g, ok := s.games[gameID]
	if !ok || g.UserID != userID {
		s.mu.Unlock()
		return GuessResult{}, ErrNotFound
	}
	if g.Finished {
		s.mu.Unlock()
		return GuessResult{}, ErrFinished
	}
	if g.seeding {
		// A duplicate submission (client retry, reconnect) raced the round
		// close; its round is already scored.
		s.mu.Unlock()
		return GuessResult{}, ErrRoundClosed
	}

	guess := geo.Point{Lat: lat, Lng: lng}
	dist := geo.Distance(g.Target, guess)
	points := geo.Score(dist)
	outcome := RoundOutcome{
		Round:      g.CurrentRound,
		Target:     g.Target,
		Guess:      guess,
		DistanceKm: dist,
		Score:      points,
	}
	g.Outcomes = append(g.Outcomes, outcome)
	g.TotalScore += points

	res := GuessResult{
		Round:      outcome.Round,
		Target:     outcome.Target,
		DistanceKm: dist,
		Score:      points,
		TotalScore: g.TotalScore,
	}

	if g.CurrentRound >= g.TotalRounds {
		g.Finished = true
		res.Finished = true
		finished := finishedFrom(g)
		s.mu.Unlock()
		s.persist(ctx, finished)
		return res, nil
	}

	// Close the round before dropping the session lock, then seed the next
	// target; the provider may hit the network.
	g.seeding = true
	s.mu.Unlock()
	target, err := s.geo.ValidLocation(ctx)
	s.mu.Lock()
	if err != nil {
		// Roll the guess back so the round can be retried cleanly.
		g.Outcomes = g.Outcomes[:len(g.Outcomes)-1]
		g.TotalScore -= points
		g.seeding = false
		s.mu.Unlock()
		return GuessResult{}, err
	}
	g.CurrentRound++
	g.Target = target
	g.seeding = false
	s.mu.Unlock()
	return res, nil
}

func (s *Service) persist(ctx context.Context, fg *FinishedGame) {
	if s.results != nil {
		if err := s.results.SaveGame(ctx, fg); err != nil {
			s.logger.Warn().Err(err).Str("game", fg.ID).Msg("persist solo result")
		}
	}
	if s.onFinished != nil {
		s.onFinished(ctx, fg)
	}
	s.logger.Info().Str("game", fg.ID).Int("score", fg.TotalScore).Msg("solo game finished")
}

func finishedFrom(g *Game) *FinishedGame {
	best := 0
	for _, o := range g.Outcomes {
		if o.Score > best {
			best = o.Score
		}
	}
	out := make([]RoundOutcome, len(g.Outcomes))
	copy(out, g.Outcomes)
	return &FinishedGame{
		ID:         g.ID,
		UserID:     g.UserID,
		Rounds:     g.TotalRounds,
		TotalScore: g.TotalScore,
		BestRound:  best,
		StartedAt:  g.StartedAt,
		FinishedAt: time.Now().UTC(),
		Outcomes:   out,
	}
}

func snapshot(g *Game) *Game {
	c := *g
	c.Outcomes = make([]RoundOutcome, len(g.Outcomes))
	copy(c.Outcomes, g.Outcomes)
	return &c
}
