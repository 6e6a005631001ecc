// internal/httpserver/routes_solo.go
//
// Single-player endpoints. Guests play under the anonymous cookie identity;
// results recorded under it are claimed into an account on login.

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) mountSoloRoutes(r chi.Router) {
	r.Route("/solo", func(r chi.Router) {
		r.Post("/new", s.handleSoloNew)
		r.Get("/{id}", s.handleSoloGame)
		r.Post("/{id}/guess", s.handleSoloGuess)
	})
}

type soloNewReq struct {
	Rounds int `json:"rounds"`
}

func (s *Server) handleSoloNew(w http.ResponseWriter, r *http.Request) {
	var req soloNewReq
	_ = decodeJSON(r, &req) // empty body means defaults

	userID, _ := s.Auth.Identity(w, r)
	game, err := s.Solo.Start(r.Context(), userID, req.Rounds)
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusCreated, game)
}

func (s *Server) handleSoloGame(w http.ResponseWriter, r *http.Request) {
	userID, _ := s.Auth.Identity(w, r)
	game, err := s.Solo.Game(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, game)
}

type soloGuessReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (s *Server) handleSoloGuess(w http.ResponseWriter, r *http.Request) {
	var req soloGuessReq
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid_json")
		return
	}
	userID, _ := s.Auth.Identity(w, r)
	res, err := s.Solo.Guess(r.Context(), chi.URLParam(r, "id"), userID, req.Lat, req.Lng)
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, res)
}
