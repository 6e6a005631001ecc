// internal/multiplayer/rooms.go
//
// Room/player directory: room creation with collision-checked short codes,
// idempotent joins, ready toggling, and leave-with-cleanup.

package multiplayer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/futuristaz/geohunt-sub000/internal/geocode"
	"github.com/futuristaz/geohunt-sub000/internal/realtime"
	"github.com/futuristaz/geohunt-sub000/internal/store"
)

// ErrPreconditionFailed marks a request that is terminal for the current
// state (not all ready, no rounds left, game over). Never retried; the
// caller must change state and re-request.
var ErrPreconditionFailed = errors.New("multiplayer: precondition failed")

const (
	// DefaultTotalRounds is used when a room is created with a non-positive
	// round count.
	DefaultTotalRounds = 3

	codeLength      = 5
	codeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O/1/I
	codeMaxAttempts = 5
	saveMaxAttempts = 3
)

// Service coordinates rooms, games and guesses for the multiplayer mode.
// All game-state mutations for one room are serialized through a per-room
// lock held across load→mutate→persist; version tokens in the store are the
// backstop against out-of-band writers.
type Service struct {
	store  store.Store
	geo    geocode.Provider
	bcast  *realtime.Broadcaster
	logger zerolog.Logger

	// advanceDelay postpones round advancement after the last guess so
	// clients can show results. Zero advances inline.
	advanceDelay time.Duration

	// onFinished receives per-player results when a game ends.
	onFinished func(ctx context.Context, results []PlayerResult)

	mu        sync.Mutex
	roomLocks map[string]*sync.Mutex
}

// PlayerResult is one player's final outcome, handed to the OnGameFinished
// hook for stats and achievement bookkeeping.
type PlayerResult struct {
	UserID     string
	TotalScore int
	BestRound  int
}

// NewService wires the coordinator.
func NewService(st store.Store, provider geocode.Provider, bcast *realtime.Broadcaster, logger zerolog.Logger) *Service {
	return &Service{
		store:     st,
		geo:       provider,
		bcast:     bcast,
		logger:    logger,
		roomLocks: make(map[string]*sync.Mutex),
	}
}

// SetAdvanceDelay configures the pause before auto-advancing a finished
// round. The delay never blocks other rooms.
func (s *Service) SetAdvanceDelay(d time.Duration) { s.advanceDelay = d }

// OnGameFinished registers a best-effort hook invoked with every player's
// final result when a game completes.
func (s *Service) OnGameFinished(fn func(ctx context.Context, results []PlayerResult)) {
	s.onFinished = fn
}

// lockRoom returns the mutex serializing game mutations for one room.
func (s *Service) lockRoom(roomID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.roomLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.roomLocks[roomID] = l
	}
	return l
}

func (s *Service) forgetRoomLock(roomID string) {
	s.mu.Lock()
	delete(s.roomLocks, roomID)
	s.mu.Unlock()
}

// ------------------------------- directory ----------------------------------

// CreateRoom creates a lobby with a fresh collision-checked code.
// totalRounds <= 0 falls back to DefaultTotalRounds.
func (s *Service) CreateRoom(ctx context.Context, totalRounds int) (*store.Room, error) {
	if totalRounds <= 0 {
		totalRounds = DefaultTotalRounds
	}
	for attempt := 0; attempt < codeMaxAttempts; attempt++ {
		room := &store.Room{
			ID:          uuid.NewString(),
			Code:        newRoomCode(),
			TotalRounds: totalRounds,
			Status:      store.RoomLobby,
		}
		err := s.store.CreateRoom(ctx, room)
		if errors.Is(err, store.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info().Str("room", room.ID).Str("code", room.Code).Int("rounds", totalRounds).Msg("room created")
		return room, nil
	}
	return nil, fmt.Errorf("multiplayer: could not allocate a unique room code")
}

// JoinRoom adds a user to a room, or returns the existing player when the
// same user joins the same room twice.
func (s *Service) JoinRoom(ctx context.Context, code, userID, displayName string) (*store.Player, error) {
	room, err := s.store.RoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if existing, err := s.store.PlayerByUserAndRoom(ctx, userID, room.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	player := &store.Player{
		ID:          uuid.NewString(),
		UserID:      userID,
		RoomID:      room.ID,
		DisplayName: displayName,
	}
	if err := s.store.CreatePlayer(ctx, player); err != nil {
		return nil, err
	}
	s.bcast.Publish(room.ID, realtime.Event{
		Type: EventPlayerJoined,
		Data: PlayerEvent{PlayerID: player.ID, DisplayName: player.DisplayName},
	})
	s.publishRoster(ctx, room.ID)
	return player, nil
}

// ToggleReady flips the player's ready flag.
func (s *Service) ToggleReady(ctx context.Context, playerID string) (*store.Player, error) {
	p, err := s.store.PlayerByID(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return s.setReady(ctx, p, !p.Ready)
}

// SetReady sets the player's ready flag explicitly.
func (s *Service) SetReady(ctx context.Context, playerID string, ready bool) (*store.Player, error) {
	p, err := s.store.PlayerByID(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return s.setReady(ctx, p, ready)
}

func (s *Service) setReady(ctx context.Context, p *store.Player, ready bool) (*store.Player, error) {
	p.Ready = ready
	if err := s.store.SavePlayer(ctx, p); err != nil {
		return nil, err
	}
	if p.RoomID != "" {
		s.publishRoster(ctx, p.RoomID)
	}
	return p, nil
}

// LeaveRoom removes the player from their room. Returns true if a room
// membership was actually cleared. Deletes the room once it empties.
func (s *Service) LeaveRoom(ctx context.Context, playerID string) (bool, error) {
	p, err := s.store.PlayerByID(ctx, playerID)
	if err != nil {
		return false, err
	}
	if p.RoomID == "" {
		return false, nil
	}
	roomID := p.RoomID
	p.RoomID = ""
	p.Ready = false
	if err := s.store.SavePlayer(ctx, p); err != nil {
		return false, err
	}

	s.bcast.Publish(roomID, realtime.Event{
		Type: EventPlayerLeft,
		Data: PlayerEvent{PlayerID: p.ID, DisplayName: p.DisplayName},
	})

	remaining, err := s.store.PlayersByRoom(ctx, roomID)
	if err != nil {
		return true, err
	}
	if len(remaining) == 0 {
		if err := s.store.DeleteRoom(ctx, roomID); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Err(err).Str("room", roomID).Msg("delete emptied room")
		}
		s.bcast.DropRoom(roomID)
		s.forgetRoomLock(roomID)
		s.logger.Info().Str("room", roomID).Msg("room emptied and deleted")
		return true, nil
	}
	s.publishRoster(ctx, roomID)
	return true, nil
}

// ListPlayers lists the members of a room. Unknown codes yield an empty
// list, not an error.
func (s *Service) ListPlayers(ctx context.Context, code string) ([]*store.Player, error) {
	room, err := s.store.RoomByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return []*store.Player{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.store.PlayersByRoom(ctx, room.ID)
}

// RoomByCode exposes room lookup to the HTTP layer.
func (s *Service) RoomByCode(ctx context.Context, code string) (*store.Room, error) {
	return s.store.RoomByCode(ctx, code)
}

func (s *Service) publishRoster(ctx context.Context, roomID string) {
	players, err := s.store.PlayersByRoom(ctx, roomID)
	if err != nil {
		s.logger.Warn().Err(err).Str("room", roomID).Msg("load roster for broadcast")
		return
	}
	s.bcast.Publish(roomID, realtime.Event{Type: EventPlayersUpdated, Data: PlayersUpdated{Players: players}})
}

// newRoomCode returns a short uppercase alphanumeric code. Ambiguous glyphs
// are excluded from the alphabet.
func newRoomCode() string {
	b := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, _ := rand.Int(rand.Reader, max)
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b)
}
