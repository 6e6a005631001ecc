package solo

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/futuristaz/geohunt-sub000/internal/geo"
	"github.com/futuristaz/geohunt-sub000/internal/geocode"
)

type captureStore struct {
	saved []*FinishedGame
	err   error
}

func (c *captureStore) SaveGame(ctx context.Context, g *FinishedGame) error {
	if c.err != nil {
		return c.err
	}
	c.saved = append(c.saved, g)
	return nil
}

func newTestService(store ResultStore) *Service {
	provider := geocode.NewStatic(
		geo.Point{Lat: 48.8584, Lng: 2.2945},
		geo.Point{Lat: 35.6586, Lng: 139.7454},
		geo.Point{Lat: 40.6892, Lng: -74.0445},
	)
	return NewService(provider, store, zerolog.Nop())
}

func TestStartDefaultsRounds(t *testing.T) {
	s := newTestService(nil)
	g, err := s.Start(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if g.TotalRounds != DefaultRounds {
		t.Errorf("TotalRounds = %d, want %d", g.TotalRounds, DefaultRounds)
	}
	if g.CurrentRound != 1 {
		t.Errorf("CurrentRound = %d, want 1", g.CurrentRound)
	}
	if g.Target == (geo.Point{}) {
		t.Error("expected a seeded target")
	}
}

func TestGameOwnership(t *testing.T) {
	s := newTestService(nil)
	g, err := s.Start(context.Background(), "u1", 2)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := s.Game(context.Background(), g.ID, "u2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign user lookup: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Guess(context.Background(), g.ID, "u2", 0, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign user guess: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Game(context.Background(), "nope", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown game: err = %v, want ErrNotFound", err)
	}
}

func TestPerfectRun(t *testing.T) {
	store := &captureStore{}
	s := newTestService(store)
	finishedHook := 0
	s.OnFinished(func(ctx context.Context, g *FinishedGame) { finishedHook++ })

	g, err := s.Start(context.Background(), "u1", 2)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := s.Guess(context.Background(), g.ID, "u1", g.Target.Lat, g.Target.Lng)
	if err != nil {
		t.Fatalf("Guess 1: %v", err)
	}
	if res.Score != 5000 {
		t.Errorf("round 1 score = %d, want 5000", res.Score)
	}
	if res.Finished {
		t.Error("game finished after round 1 of 2")
	}

	cur, err := s.Game(context.Background(), g.ID, "u1")
	if err != nil {
		t.Fatalf("Game: %v", err)
	}
	if cur.CurrentRound != 2 {
		t.Errorf("CurrentRound = %d, want 2", cur.CurrentRound)
	}
	if cur.Target == g.Target {
		t.Error("target not re-seeded for round 2")
	}

	res, err = s.Guess(context.Background(), g.ID, "u1", cur.Target.Lat, cur.Target.Lng)
	if err != nil {
		t.Fatalf("Guess 2: %v", err)
	}
	if !res.Finished {
		t.Error("game not finished after final round")
	}
	if res.TotalScore != 10000 {
		t.Errorf("TotalScore = %d, want 10000", res.TotalScore)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d games, want 1", len(store.saved))
	}
	fg := store.saved[0]
	if fg.TotalScore != 10000 || fg.BestRound != 5000 || fg.Rounds != 2 {
		t.Errorf("FinishedGame = %+v", fg)
	}
	if len(fg.Outcomes) != 2 {
		t.Errorf("outcomes = %d, want 2", len(fg.Outcomes))
	}
	if finishedHook != 1 {
		t.Errorf("OnFinished ran %d times, want 1", finishedHook)
	}
}

func TestGuessAfterFinish(t *testing.T) {
	s := newTestService(nil)
	g, err := s.Start(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := s.Guess(context.Background(), g.ID, "u1", 0, 0); err != nil {
		t.Fatalf("Guess: %v", err)
	}
	if _, err := s.Guess(context.Background(), g.ID, "u1", 0, 0); !errors.Is(err, ErrFinished) {
		t.Errorf("guess after finish: err = %v, want ErrFinished", err)
	}
}

func TestDuplicateGuessDuringSeedIsRejected(t *testing.T) {
	provider := &slowProvider{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewService(provider, nil, zerolog.Nop())

	g, err := s.Start(context.Background(), "u1", 3)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	type outcome struct {
		res GuessResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.Guess(context.Background(), g.ID, "u1", g.Target.Lat, g.Target.Lng)
		done <- outcome{res, err}
	}()

	// The first guess is now stalled inside the provider seeding round 2.
	// A client retry of the same round must not score twice.
	<-provider.entered
	if _, err := s.Guess(context.Background(), g.ID, "u1", g.Target.Lat, g.Target.Lng); !errors.Is(err, ErrRoundClosed) {
		t.Errorf("duplicate guess err = %v, want ErrRoundClosed", err)
	}

	close(provider.release)
	first := <-done
	if first.err != nil {
		t.Fatalf("Guess: %v", first.err)
	}
	if first.res.Score != 5000 {
		t.Errorf("round score = %d, want 5000", first.res.Score)
	}

	cur, err := s.Game(context.Background(), g.ID, "u1")
	if err != nil {
		t.Fatalf("Game: %v", err)
	}
	if cur.CurrentRound != 2 || cur.TotalScore != 5000 || len(cur.Outcomes) != 1 {
		t.Errorf("round double-counted: round=%d total=%d outcomes=%d",
			cur.CurrentRound, cur.TotalScore, len(cur.Outcomes))
	}
}

func TestProviderFailureRollsBackRound(t *testing.T) {
	provider := &flakyProvider{good: geo.Point{Lat: 10, Lng: 20}, failAfter: 1}
	s := NewService(provider, nil, zerolog.Nop())

	g, err := s.Start(context.Background(), "u1", 2)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Seeding round 2 fails; the guess must not be kept.
	if _, err := s.Guess(context.Background(), g.ID, "u1", 0, 0); !errors.Is(err, geocode.ErrNoLocation) {
		t.Fatalf("err = %v, want ErrNoLocation", err)
	}
	cur, err := s.Game(context.Background(), g.ID, "u1")
	if err != nil {
		t.Fatalf("Game: %v", err)
	}
	if cur.CurrentRound != 1 || cur.TotalScore != 0 || len(cur.Outcomes) != 0 {
		t.Errorf("round not rolled back: %+v", cur)
	}

	// Once the provider recovers the round plays normally.
	provider.failAfter = -1
	if _, err := s.Guess(context.Background(), g.ID, "u1", 0, 0); err != nil {
		t.Fatalf("retry guess: %v", err)
	}
}

func TestPersistFailureDoesNotFailGuess(t *testing.T) {
	store := &captureStore{err: errors.New("disk full")}
	s := newTestService(store)
	g, err := s.Start(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := s.Guess(context.Background(), g.ID, "u1", 0, 0)
	if err != nil {
		t.Fatalf("Guess: %v", err)
	}
	if !res.Finished {
		t.Error("game should finish even when persistence fails")
	}
}

// slowProvider stalls its second lookup until released, so a test can act
// while a round's next target is still being seeded.
type slowProvider struct {
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (p *slowProvider) ValidLocation(ctx context.Context) (geo.Point, error) {
	p.calls++
	if p.calls == 2 {
		close(p.entered)
		<-p.release
	}
	return geo.Point{Lat: float64(p.calls)}, nil
}

// flakyProvider serves good points until failAfter calls have happened.
type flakyProvider struct {
	good      geo.Point
	calls     int
	failAfter int
}

func (p *flakyProvider) ValidLocation(ctx context.Context) (geo.Point, error) {
	p.calls++
	if p.failAfter >= 0 && p.calls > p.failAfter {
		return geo.Point{}, geocode.ErrNoLocation
	}
	return p.good, nil
}
