package multiplayer

import (
	"context"
	"errors"
	"testing"

	"github.com/futuristaz/geohunt-sub000/internal/geo"
	"github.com/futuristaz/geohunt-sub000/internal/geocode"
	"github.com/futuristaz/geohunt-sub000/internal/store"
)

// readyRoom creates a room with n joined, readied players.
func readyRoom(t *testing.T, s *Service, rounds, n int) (*store.Room, []*store.Player) {
	t.Helper()
	ctx := context.Background()
	room, err := s.CreateRoom(ctx, rounds)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	names := []string{"Ann", "Bo", "Cleo", "Dee"}
	var players []*store.Player
	for i := 0; i < n; i++ {
		p, err := s.JoinRoom(ctx, room.Code, names[i], names[i])
		if err != nil {
			t.Fatalf("JoinRoom: %v", err)
		}
		if _, err := s.SetReady(ctx, p.ID, true); err != nil {
			t.Fatalf("SetReady: %v", err)
		}
		players = append(players, p)
	}
	return room, players
}

func TestStart_FailsWithEmptyRoom(t *testing.T) {
	ctx := context.Background()
	s := newTestService(nil)
	room, _ := s.CreateRoom(ctx, 3)

	_, err := s.Start(ctx, room.Code)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("start empty room err = %v, want ErrPreconditionFailed", err)
	}
}

func TestStart_FailsWhenAnyPlayerUnready(t *testing.T) {
	ctx := context.Background()
	s := newTestService(nil)
	room, _ := s.CreateRoom(ctx, 3)
	a, _ := s.JoinRoom(ctx, room.Code, "u1", "Ann")
	_, _ = s.JoinRoom(ctx, room.Code, "u2", "Bo")
	_, _ = s.SetReady(ctx, a.ID, true) // Bo stays unready

	_, err := s.Start(ctx, room.Code)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("start with unready player err = %v, want ErrPreconditionFailed", err)
	}
}

func TestStart_Succeeds(t *testing.T) {
	ctx := context.Background()
	s := newTestService(nil)
	room, players := readyRoom(t, s, 3, 2)

	game, err := s.Start(ctx, room.Code)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if game.CurrentRound != 1 {
		t.Errorf("currentRound = %d, want 1", game.CurrentRound)
	}
	if game.State != store.GameInProgress {
		t.Errorf("state = %q, want in_progress", game.State)
	}
	if game.Target == nil {
		t.Error("round target not seeded")
	}
	if len(game.Players) != len(players) {
		t.Errorf("game has %d round players, want %d", len(game.Players), len(players))
	}
	seen := map[string]bool{}
	for _, rp := range game.Players {
		if seen[rp.PlayerID] {
			t.Errorf("duplicate RoundPlayer for %s", rp.PlayerID)
		}
		seen[rp.PlayerID] = true
	}

	updated, _ := s.RoomByCode(ctx, room.Code)
	if updated.Status != store.RoomInGame {
		t.Errorf("room status = %q, want in_game", updated.Status)
	}
}

func TestStart_RejectsSecondActiveGame(t *testing.T) {
	ctx := context.Background()
	s := newTestService(nil)
	room, _ := readyRoom(t, s, 3, 2)

	if _, err := s.Start(ctx, room.Code); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	_, err := s.Start(ctx, room.Code)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("second Start err = %v, want ErrPreconditionFailed", err)
	}
}

func TestStart_ProviderFailureIsRetryableNotTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestService(geocode.Failing{})
	room, _ := readyRoom(t, s, 3, 1)

	_, err := s.Start(ctx, room.Code)
	if !errors.Is(err, geocode.ErrNoLocation) {
		t.Fatalf("start err = %v, want ErrNoLocation", err)
	}
	if errors.Is(err, ErrPreconditionFailed) {
		t.Error("provider failure must be distinguishable from a precondition failure")
	}
	// The room is untouched; starting again with a healthy provider works.
	updated, _ := s.RoomByCode(ctx, room.Code)
	if updated.Status != store.RoomLobby {
		t.Errorf("room status after failed start = %q, want lobby", updated.Status)
	}
}

func TestAdvanceRound_IncrementsAndResets(t *testing.T) {
	ctx := context.Background()
	s := newTestService(nil)
	room, players := readyRoom(t, s, 3, 2)
	game, _ := s.Start(ctx, room.Code)

	// Put some round state on the players first.
	for _, p := range players {
		if _, err := s.SubmitGuess(ctx, p.ID, 10, 10); err != nil {
			t.Fatalf("SubmitGuess: %v", err)
		}
	}

	// All players finished round 1, so the coordinator already advanced.
	game, err := s.store.GameByID(ctx, game.ID)
	if err != nil {
		t.Fatalf("reload game: %v", err)
	}
	if game.CurrentRound != 2 {
		t.Fatalf("currentRound = %d, want 2 after auto-advance", game.CurrentRound)
	}
	for _, rp := range game.Players {
		if rp.Finished {
			t.Error("finished flag not reset on round advance")
		}
		if rp.Guess != nil {
			t.Error("guess not cleared on round advance")
		}
		if rp.Score == 0 {
			t.Error("cumulative score should survive the round advance")
		}
	}
}

func TestAdvanceRound_FailsOnFinalRound(t *testing.T) {
	ctx := context.Background()
	s := newTestService(nil)
	room, _ := readyRoom(t, s, 1, 1)
	game, _ := s.Start(ctx, room.Code)

	_, err := s.AdvanceRound(ctx, game.ID)
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("advance past final round err = %v, want ErrPreconditionFailed", err)
	}
}

func TestFinish_ReturnsRoomToLobbyAndClearsReady(t *testing.T) {
	ctx := context.Background()
	s := newTestService(nil)
	room, players := readyRoom(t, s, 3, 2)
	game, _ := s.Start(ctx, room.Code)

	if err := s.Finish(ctx, game.ID); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, _ := s.store.GameByID(ctx, game.ID)
	if got.State != store.GameFinished {
		t.Errorf("state = %q, want finished", got.State)
	}
	if got.FinishedAt == nil {
		t.Error("finishedAt not set")
	}

	updated, _ := s.RoomByCode(ctx, room.Code)
	if updated.Status != store.RoomLobby {
		t.Errorf("room status = %q, want lobby", updated.Status)
	}
	for _, p := range players {
		reread, _ := s.store.PlayerByID(ctx, p.ID)
		if reread.Ready {
			t.Errorf("player %s still ready after finish", p.DisplayName)
		}
	}

	if err := s.Finish(ctx, game.ID); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("double Finish err = %v, want ErrPreconditionFailed", err)
	}
}

func TestFinish_ReportsResultsToHook(t *testing.T) {
	ctx := context.Background()
	target := geo.Point{Lat: 48.8566, Lng: 2.3522}
	s := newTestService(geocode.NewStatic(target))

	var got []PlayerResult
	s.OnGameFinished(func(ctx context.Context, results []PlayerResult) { got = results })

	room, players := readyRoom(t, s, 2, 1)
	if _, err := s.Start(ctx, room.Code); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Round 1: perfect guess. Round 2: ~157 km off.
	if _, err := s.SubmitGuess(ctx, players[0].ID, target.Lat, target.Lng); err != nil {
		t.Fatalf("round 1 guess: %v", err)
	}
	res, err := s.SubmitGuess(ctx, players[0].ID, target.Lat+1, target.Lng)
	if err != nil {
		t.Fatalf("round 2 guess: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("hook got %d results, want 1", len(got))
	}
	r := got[0]
	if r.UserID != players[0].UserID {
		t.Errorf("UserID = %q, want %q", r.UserID, players[0].UserID)
	}
	if r.BestRound != 5000 {
		t.Errorf("BestRound = %d, want 5000", r.BestRound)
	}
	// RoundResult.Score carries the cumulative total.
	if r.TotalScore != res.Score {
		t.Errorf("TotalScore = %d, want %d", r.TotalScore, res.Score)
	}
	if r.TotalScore <= 5000 || r.TotalScore >= 10000 {
		t.Errorf("TotalScore = %d, want between a perfect and a missed round", r.TotalScore)
	}
}
