// internal/leaderboard/leaderboard.go
//
// Leaderboard queries.
// Two boards are served:
//   - All-time: aggregated user_stats joined against users for names,
//     ordered by total score.
//   - Daily: best solo result per user for a given UTC date.

package leaderboard

import (
	"context"
	"database/sql"
	"time"
)

const defaultLimit = 20

// Row is one leaderboard entry.
type Row struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	TotalScore  int    `json:"totalScore"`
	GamesPlayed int    `json:"gamesPlayed"`
	BestRound   int    `json:"bestRound"`
	Streak      int    `json:"streak"`
}

// DailyRow is one entry of the daily solo board.
type DailyRow struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	Rounds   int    `json:"rounds"`
}

type Service struct {
	db *sql.DB
}

func New(db *sql.DB) *Service {
	return &Service{db: db}
}

// AllTime returns the top players by cumulative score.
func (s *Service) AllTime(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT s.user_id, COALESCE(u.username, s.user_id),
               s.total_score, s.games_played, s.best_round, s.streak
        FROM user_stats s
        LEFT JOIN users u ON u.id = s.user_id
        ORDER BY s.total_score DESC, s.games_played ASC
        LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Row, 0, limit)
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.UserID, &r.Username, &r.TotalScore,
			&r.GamesPlayed, &r.BestRound, &r.Streak); err != nil {
			return nil, err
		}
		r.Rank = len(out) + 1
		out = append(out, r)
	}
	return out, rows.Err()
}

// Daily returns the best solo game per user for the given date
// ("YYYY-MM-DD", UTC). A zero date means today.
func (s *Service) Daily(ctx context.Context, date string, limit int) ([]DailyRow, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT g.user_id, COALESCE(u.username, g.user_id),
               MAX(g.total_score) AS best, g.rounds
        FROM solo_games g
        LEFT JOIN users u ON u.id = g.user_id
        WHERE g.date = ?
        GROUP BY g.user_id
        ORDER BY best DESC, MIN(g.finished_at) ASC
        LIMIT ?`, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]DailyRow, 0, limit)
	for rows.Next() {
		var r DailyRow
		if err := rows.Scan(&r.UserID, &r.Username, &r.Score, &r.Rounds); err != nil {
			return nil, err
		}
		r.Rank = len(out) + 1
		out = append(out, r)
	}
	return out, rows.Err()
}
