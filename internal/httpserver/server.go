// internal/httpserver/server.go
//
// HTTP server wiring for the geolocation game backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Room endpoints (optional auth): create/join/ready/leave/start/guess,
//     live event stream, QR join code.
//   - Solo endpoints (optional auth): new game, guess, summary.
//   - Leaderboards (public) and stats/achievements (require auth).
//   - Auth endpoints: /auth/*, JWT + cookie handling, anonymous cookie.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Optional auth decorates requests with user context when a valid token
//     is present; guests play under a stable anonymous cookie identity.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/futuristaz/geohunt-sub000/internal/achievements"
	"github.com/futuristaz/geohunt-sub000/internal/geocode"
	"github.com/futuristaz/geohunt-sub000/internal/leaderboard"
	"github.com/futuristaz/geohunt-sub000/internal/multiplayer"
	"github.com/futuristaz/geohunt-sub000/internal/realtime"
	"github.com/futuristaz/geohunt-sub000/internal/solo"
	"github.com/futuristaz/geohunt-sub000/internal/store"
)

// Deps bundles everything the HTTP layer serves.
type Deps struct {
	Auth         *Auth
	Rooms        *multiplayer.Service
	Solo         *solo.Service
	Boards       *leaderboard.Service
	Achievements *achievements.Evaluator
	Broadcaster  *realtime.Broadcaster
	Presence     *realtime.Presence
	Logger       zerolog.Logger
}

// Server owns the router and the wired services.
type Server struct {
	r *chi.Mux
	Deps
}

// New constructs a Server, installs middleware, and registers routes.
func New(d Deps) *Server {
	s := &Server{r: chi.NewRouter(), Deps: d}

	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(jsonContentType)
	s.r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{clientOrigin()},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// The SSE stream must outlive the request timeout, so the bound applies
	// to everything else.
	timeout := chimw.Timeout(10 * time.Second)

	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"geohunt","endpoints":["/health","/rooms","/solo","/leaderboard","/auth/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	s.r.Group(func(r chi.Router) {
		r.Use(timeout)
		s.mountAuthRoutes(r)
		s.mountStatsRoutes(r)
		s.mountSoloRoutes(r.With(s.Auth.WithOptionalAuth()))
	})
	s.mountRoomRoutes(s.r, timeout)

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusNotFound, errRes{Error: "not_found"})
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// clientOrigin is the single browser origin allowed to send credentials.
func clientOrigin() string {
	if o := os.Getenv("CLIENT_ORIGIN"); o != "" {
		return o
	}
	return "http://localhost:5173"
}

// ------------------------------ responses ----------------------------------

func respond(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errRes struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeErr maps service errors onto HTTP statuses. Upstream geocoding
// failures are flagged retryable so clients know to try again.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, solo.ErrNotFound):
		respond(w, http.StatusNotFound, errRes{Error: "not_found"})
	case errors.Is(err, multiplayer.ErrPreconditionFailed), errors.Is(err, solo.ErrFinished), errors.Is(err, solo.ErrRoundClosed):
		respond(w, http.StatusConflict, errRes{Error: err.Error()})
	case errors.Is(err, geocode.ErrNoLocation):
		respond(w, http.StatusServiceUnavailable, errRes{Error: "no_location_available", Retryable: true})
	default:
		respond(w, http.StatusInternalServerError, errRes{Error: "internal_error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	respond(w, http.StatusBadRequest, errRes{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
