// internal/httpserver/routes_rooms.go
//
// Multiplayer room endpoints.
// Mounted under /rooms; all state changes go through the multiplayer
// service, which serializes them per room. The event stream endpoint is
// exempt from the request timeout since SSE connections are long-lived.

package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/futuristaz/geohunt-sub000/internal/multiplayer"
	"github.com/futuristaz/geohunt-sub000/internal/realtime"
)

func (s *Server) mountRoomRoutes(r chi.Router, timeout func(http.Handler) http.Handler) {
	r.Route("/rooms", func(r chi.Router) {
		r.Use(s.Auth.WithOptionalAuth())

		// Everything except the event stream gets the handler timeout.
		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Post("/", s.handleCreateRoom)
			r.Get("/{code}", s.handleGetRoom)
			r.Get("/{code}/players", s.handleListPlayers)
			r.Get("/{code}/qr", s.handleRoomQR)
			r.Post("/{code}/join", s.handleJoinRoom)
			r.Post("/{code}/ready", s.handleReady)
			r.Post("/{code}/leave", s.handleLeaveRoom)
			r.Post("/{code}/start", s.handleStartGame)
			r.Post("/{code}/guess", s.handleSubmitGuess)
		})

		r.Get("/{code}/events", s.handleRoomEvents)
	})
}

type createRoomReq struct {
	TotalRounds int `json:"totalRounds"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomReq
	_ = decodeJSON(r, &req) // empty body means defaults

	room, err := s.Rooms.CreateRoom(r.Context(), req.TotalRounds)
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusCreated, room)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	room, err := s.Rooms.RoomByCode(r.Context(), code)
	if err != nil {
		writeErr(w, err)
		return
	}
	players, err := s.Rooms.ListPlayers(r.Context(), code)
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"room": room, "players": players})
}

func (s *Server) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.Rooms.ListPlayers(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, players)
}

// handleRoomQR renders the join URL for a room as a PNG QR code, so a phone
// can hop into the lobby by scanning the host's screen.
func (s *Server) handleRoomQR(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if _, err := s.Rooms.RoomByCode(r.Context(), code); err != nil {
		writeErr(w, err)
		return
	}
	size := 256
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 64 && n <= 1024 {
			size = n
		}
	}
	joinURL := fmt.Sprintf("%s/join/%s", clientOrigin(), code)
	png, err := qrcode.Encode(joinURL, qrcode.Medium, size)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type joinRoomReq struct {
	DisplayName string `json:"displayName"`
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomReq
	_ = decodeJSON(r, &req)

	userID, name := s.Auth.Identity(w, r)
	if req.DisplayName != "" {
		name = req.DisplayName
	}
	player, err := s.Rooms.JoinRoom(r.Context(), chi.URLParam(r, "code"), userID, name)
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, player)
}

type readyReq struct {
	PlayerID string `json:"playerId"`
	Ready    *bool  `json:"ready"` // omitted means toggle
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	var req readyReq
	if err := decodeJSON(r, &req); err != nil || req.PlayerID == "" {
		badRequest(w, "playerId required")
		return
	}
	var (
		player any
		err    error
	)
	if req.Ready != nil {
		player, err = s.Rooms.SetReady(r.Context(), req.PlayerID, *req.Ready)
	} else {
		player, err = s.Rooms.ToggleReady(r.Context(), req.PlayerID)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, player)
}

type leaveReq struct {
	PlayerID string `json:"playerId"`
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req leaveReq
	if err := decodeJSON(r, &req); err != nil || req.PlayerID == "" {
		badRequest(w, "playerId required")
		return
	}
	roomDeleted, err := s.Rooms.LeaveRoom(r.Context(), req.PlayerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]bool{"ok": true, "roomDeleted": roomDeleted})
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	game, err := s.Rooms.Start(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, game)
}

type guessReq struct {
	PlayerID string  `json:"playerId"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

func (s *Server) handleSubmitGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if err := decodeJSON(r, &req); err != nil || req.PlayerID == "" {
		badRequest(w, "playerId required")
		return
	}
	res, err := s.Rooms.SubmitGuess(r.Context(), req.PlayerID, req.Lat, req.Lng)
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, res)
}

// handleRoomEvents is the per-room SSE stream. Each connection subscribes to
// the room's broadcaster, registers in the presence table, and announces its
// player to the rest of the room. Disconnect reverses all three.
func (s *Server) handleRoomEvents(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	room, err := s.Rooms.RoomByCode(r.Context(), code)
	if err != nil {
		writeErr(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond(w, http.StatusInternalServerError, errRes{Error: "streaming unsupported"})
		return
	}

	playerID := r.URL.Query().Get("playerId")
	displayName := r.URL.Query().Get("name")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	connID := uuid.NewString()
	ch := s.Broadcaster.Subscribe(room.ID)
	s.Presence.Add(room.ID, connID, playerID, displayName)
	defer func() {
		s.Presence.Remove(room.ID, connID)
		s.Broadcaster.Unsubscribe(room.ID, ch)
		if playerID != "" {
			s.Broadcaster.Publish(room.ID, realtime.Event{
				Type: multiplayer.EventPlayerLeft,
				Data: multiplayer.PlayerEvent{PlayerID: playerID, DisplayName: displayName},
			})
		}
		s.Logger.Info().Str("room", room.ID).Str("conn", connID).Msg("sse connection closed")
	}()

	if playerID != "" {
		s.Broadcaster.Publish(room.ID, realtime.Event{
			Type: multiplayer.EventPlayerJoined,
			Data: multiplayer.PlayerEvent{PlayerID: playerID, DisplayName: displayName},
		})
	}
	s.Logger.Info().Str("room", room.ID).Str("conn", connID).Msg("sse connection established")

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev.Data)
			if err != nil {
				s.Logger.Error().Err(err).Str("event", ev.Type).Msg("marshal sse event")
				continue
			}
			if ev.Type != "" {
				fmt.Fprintf(w, "event: %s\n", ev.Type)
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
