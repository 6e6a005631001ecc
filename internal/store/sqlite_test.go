package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/futuristaz/geohunt-sub000/internal/geo"
)

func newSQLiteTestStore(t *testing.T) Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Each new connection would get its own empty in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	schema, err := os.ReadFile("../../sql/0001_init.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return NewSQLiteStore(db)
}

func TestSQLiteRoomLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteTestStore(t)

	r := &Room{ID: "r1", Code: "ABCDE", TotalRounds: 3, Status: RoomLobby}
	if err := s.CreateRoom(ctx, r); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if r.Version != 1 {
		t.Errorf("Version = %d, want 1", r.Version)
	}

	byCode, err := s.RoomByCode(ctx, "ABCDE")
	if err != nil {
		t.Fatalf("RoomByCode: %v", err)
	}
	if byCode.ID != "r1" || byCode.Status != RoomLobby {
		t.Errorf("RoomByCode = %+v", byCode)
	}

	dup := &Room{ID: "r2", Code: "ABCDE", TotalRounds: 3, Status: RoomLobby}
	if err := s.CreateRoom(ctx, dup); !errors.Is(err, ErrDuplicateCode) {
		t.Errorf("duplicate code: err = %v, want ErrDuplicateCode", err)
	}

	byCode.Status = RoomInGame
	if err := s.SaveRoom(ctx, byCode); err != nil {
		t.Fatalf("SaveRoom: %v", err)
	}
	if byCode.Version != 2 {
		t.Errorf("Version after save = %d, want 2", byCode.Version)
	}

	// Stale token loses.
	stale := &Room{ID: "r1", Code: "ABCDE", TotalRounds: 3, Status: RoomLobby, Version: 1}
	if err := s.SaveRoom(ctx, stale); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale save: err = %v, want ErrVersionConflict", err)
	}

	if err := s.DeleteRoom(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if _, err := s.RoomByID(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted room lookup: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteRoom(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: err = %v, want ErrNotFound", err)
	}
}

func TestSQLitePlayers(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteTestStore(t)

	room := &Room{ID: "r1", Code: "AAAAA", TotalRounds: 3, Status: RoomLobby}
	if err := s.CreateRoom(ctx, room); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	p1 := &Player{ID: "p1", UserID: "u1", RoomID: "r1", DisplayName: "ada"}
	p2 := &Player{ID: "p2", UserID: "u2", RoomID: "r1", DisplayName: "bob"}
	for _, p := range []*Player{p1, p2} {
		if err := s.CreatePlayer(ctx, p); err != nil {
			t.Fatalf("CreatePlayer %s: %v", p.ID, err)
		}
	}

	got, err := s.PlayerByUserAndRoom(ctx, "u2", "r1")
	if err != nil {
		t.Fatalf("PlayerByUserAndRoom: %v", err)
	}
	if got.ID != "p2" {
		t.Errorf("ID = %s, want p2", got.ID)
	}
	if _, err := s.PlayerByUserAndRoom(ctx, "u3", "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: err = %v, want ErrNotFound", err)
	}

	got.Ready = true
	got.Score = 4200
	if err := s.SavePlayer(ctx, got); err != nil {
		t.Fatalf("SavePlayer: %v", err)
	}
	all, err := s.PlayersByRoom(ctx, "r1")
	if err != nil {
		t.Fatalf("PlayersByRoom: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if !all[1].Ready || all[1].Score != 4200 {
		t.Errorf("saved player = %+v", all[1])
	}
}

func TestSQLiteGameRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteTestStore(t)

	room := &Room{ID: "r1", Code: "AAAAA", TotalRounds: 2, Status: RoomInGame}
	if err := s.CreateRoom(ctx, room); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	g := &GameInstance{
		ID:           "g1",
		RoomID:       "r1",
		StartedAt:    time.Now().UTC(),
		CurrentRound: 1,
		TotalRounds:  2,
		Target:       &geo.Point{Lat: 48.8584, Lng: 2.2945},
		State:        GameInProgress,
		Players: []*RoundPlayer{
			{ID: "rp1", GameID: "g1", PlayerID: "p1"},
			{ID: "rp2", GameID: "g1", PlayerID: "p2"},
		},
	}
	if err := s.CreateGame(ctx, g); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	active, err := s.ActiveGameByRoom(ctx, "r1")
	if err != nil {
		t.Fatalf("ActiveGameByRoom: %v", err)
	}
	if active.ID != "g1" || len(active.Players) != 2 {
		t.Fatalf("active = %+v", active)
	}
	if active.Target == nil || active.Target.Lat != 48.8584 {
		t.Errorf("target = %+v", active.Target)
	}

	active.Players[0].Guess = &geo.Point{Lat: 48.85, Lng: 2.29}
	active.Players[0].DistanceKm = 1.02
	active.Players[0].Score = 4997
	active.Players[0].RoundScore = 4997
	active.Players[0].Finished = true
	if err := s.SaveGame(ctx, active); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}

	reloaded, err := s.GameByID(ctx, "g1")
	if err != nil {
		t.Fatalf("GameByID: %v", err)
	}
	rp := reloaded.Players[0]
	if rp.Guess == nil || rp.Guess.Lat != 48.85 || rp.Score != 4997 || !rp.Finished {
		t.Errorf("round player = %+v guess=%+v", rp, rp.Guess)
	}

	// Stale instance token.
	stale := *g
	stale.Version = 1
	if err := s.SaveGame(ctx, &stale); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale save: err = %v, want ErrVersionConflict", err)
	}

	// Finished games no longer count as active.
	now := time.Now().UTC()
	reloaded.State = GameFinished
	reloaded.FinishedAt = &now
	if err := s.SaveGame(ctx, reloaded); err != nil {
		t.Fatalf("finish SaveGame: %v", err)
	}
	if _, err := s.ActiveGameByRoom(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("finished game still active: err = %v", err)
	}
}
