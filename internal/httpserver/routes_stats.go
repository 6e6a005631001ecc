// internal/httpserver/routes_stats.go
//
// Leaderboards (public) and per-user stats and achievements (gated).

package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) mountStatsRoutes(r chi.Router) {
	r.Get("/leaderboard", s.handleAllTimeBoard)
	r.Get("/leaderboard/daily", s.handleDailyBoard)

	r.With(s.Auth.RequireAuth()).Get("/stats/me", s.handleMyStats)
	r.With(s.Auth.RequireAuth()).Get("/achievements/me", s.handleMyAchievements)
}

func (s *Server) handleAllTimeBoard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Boards.AllTime(r.Context(), queryLimit(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, rows)
}

func (s *Server) handleDailyBoard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Boards.Daily(r.Context(), r.URL.Query().Get("date"), queryLimit(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, rows)
}

func (s *Server) handleMyStats(w http.ResponseWriter, r *http.Request) {
	me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
	stats, err := s.Achievements.StatsFor(r.Context(), me.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, stats)
}

func (s *Server) handleMyAchievements(w http.ResponseWriter, r *http.Request) {
	me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
	list, err := s.Achievements.For(r.Context(), me.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	respond(w, http.StatusOK, list)
}

func queryLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
