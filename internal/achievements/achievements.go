// internal/achievements/achievements.go
//
// Streaks and achievements.
// Responsibilities:
//   - Maintain per-user play stats (games played, total score, best round,
//     consecutive-day streak) in the user_stats table.
//   - Unlock threshold achievements against those stats and record them in
//     user_achievements (idempotent via INSERT OR IGNORE).
//
// Record runs inside a best-effort transaction after a finished game; a
// failure here never fails the game itself.

package achievements

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"
)

// Result summarizes one finished game for stats purposes.
type Result struct {
	UserID         string
	TotalScore     int
	BestRoundScore int
}

// Stats is a user's accumulated play record.
type Stats struct {
	UserID      string `json:"userId"`
	GamesPlayed int    `json:"gamesPlayed"`
	TotalScore  int    `json:"totalScore"`
	BestRound   int    `json:"bestRound"`
	Streak      int    `json:"streak"`
	LastPlayed  string `json:"lastPlayed"` // YYYY-MM-DD, UTC
}

// Achievement is a single unlockable.
type Achievement struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UnlockedAt  string `json:"unlockedAt,omitempty"`
}

// definition pairs an achievement with its unlock predicate.
type definition struct {
	Achievement
	unlocked func(Stats) bool
}

var definitions = []definition{
	{Achievement{Code: "first_steps", Name: "First Steps", Description: "Finish your first game"},
		func(s Stats) bool { return s.GamesPlayed >= 1 }},
	{Achievement{Code: "globetrotter", Name: "Globetrotter", Description: "Finish 10 games"},
		func(s Stats) bool { return s.GamesPlayed >= 10 }},
	{Achievement{Code: "cartographer", Name: "Cartographer", Description: "Finish 50 games"},
		func(s Stats) bool { return s.GamesPlayed >= 50 }},
	{Achievement{Code: "sharpshooter", Name: "Sharpshooter", Description: "Score 4900+ in a single round"},
		func(s Stats) bool { return s.BestRound >= 4900 }},
	{Achievement{Code: "point_collector", Name: "Point Collector", Description: "Accumulate 50,000 points"},
		func(s Stats) bool { return s.TotalScore >= 50000 }},
	{Achievement{Code: "week_on_the_road", Name: "A Week on the Road", Description: "Play 7 days in a row"},
		func(s Stats) bool { return s.Streak >= 7 }},
}

// Evaluator records results and answers stats/achievement queries.
type Evaluator struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewEvaluator wraps a database handle.
func NewEvaluator(db *sql.DB, logger zerolog.Logger) *Evaluator {
	return &Evaluator{db: db, logger: logger, now: time.Now}
}

// Record bumps the user's stats with one finished game and unlocks any
// newly earned achievements.
func (e *Evaluator) Record(ctx context.Context, r Result) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stats, err := statsForUpdate(ctx, tx, r.UserID)
	if err != nil {
		return err
	}

	today := dateKey(e.now())
	stats.Streak = nextStreak(stats.LastPlayed, today, stats.Streak)
	stats.LastPlayed = today
	stats.GamesPlayed++
	stats.TotalScore += r.TotalScore
	if r.BestRoundScore > stats.BestRound {
		stats.BestRound = r.BestRoundScore
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO user_stats (user_id, games_played, total_score, best_round, streak, last_played)
        VALUES (?,?,?,?,?,?)
        ON CONFLICT(user_id) DO UPDATE SET
            games_played=excluded.games_played,
            total_score=excluded.total_score,
            best_round=excluded.best_round,
            streak=excluded.streak,
            last_played=excluded.last_played`,
		stats.UserID, stats.GamesPlayed, stats.TotalScore, stats.BestRound,
		stats.Streak, stats.LastPlayed,
	); err != nil {
		return err
	}

	unlockedAt := e.now().UTC().Format(time.RFC3339)
	for _, code := range unlockedBy(stats) {
		if _, err := tx.ExecContext(ctx, `
            INSERT OR IGNORE INTO user_achievements (user_id, code, unlocked_at)
            VALUES (?,?,?)`, r.UserID, code, unlockedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// StatsFor returns the user's stats; zero-valued for users who never played.
func (e *Evaluator) StatsFor(ctx context.Context, userID string) (Stats, error) {
	s := Stats{UserID: userID}
	err := e.db.QueryRowContext(ctx, `
        SELECT games_played, total_score, best_round, streak, last_played
        FROM user_stats WHERE user_id=?`, userID,
	).Scan(&s.GamesPlayed, &s.TotalScore, &s.BestRound, &s.Streak, &s.LastPlayed)
	if err == sql.ErrNoRows {
		return s, nil
	}
	return s, err
}

// For lists every achievement with the user's unlock timestamps filled in.
func (e *Evaluator) For(ctx context.Context, userID string) ([]Achievement, error) {
	rows, err := e.db.QueryContext(ctx, `
        SELECT code, unlocked_at FROM user_achievements WHERE user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	unlocked := map[string]string{}
	for rows.Next() {
		var code, at string
		if err := rows.Scan(&code, &at); err != nil {
			return nil, err
		}
		unlocked[code] = at
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Achievement, 0, len(definitions))
	for _, d := range definitions {
		a := d.Achievement
		a.UnlockedAt = unlocked[a.Code]
		out = append(out, a)
	}
	return out, nil
}

func statsForUpdate(ctx context.Context, tx *sql.Tx, userID string) (Stats, error) {
	s := Stats{UserID: userID}
	err := tx.QueryRowContext(ctx, `
        SELECT games_played, total_score, best_round, streak, last_played
        FROM user_stats WHERE user_id=?`, userID,
	).Scan(&s.GamesPlayed, &s.TotalScore, &s.BestRound, &s.Streak, &s.LastPlayed)
	if err == sql.ErrNoRows {
		return s, nil
	}
	return s, err
}

// nextStreak applies the consecutive-day rule: same day keeps the streak,
// the day after extends it, anything else restarts at 1.
func nextStreak(lastPlayed, today string, current int) int {
	if lastPlayed == today {
		if current == 0 {
			return 1
		}
		return current
	}
	if lastPlayed == "" {
		return 1
	}
	last, err := time.Parse("2006-01-02", lastPlayed)
	if err != nil {
		return 1
	}
	cur, err := time.Parse("2006-01-02", today)
	if err != nil {
		return 1
	}
	if cur.Sub(last) == 24*time.Hour {
		return current + 1
	}
	return 1
}

// unlockedBy returns the codes whose predicates the stats satisfy.
func unlockedBy(s Stats) []string {
	var out []string
	for _, d := range definitions {
		if d.unlocked(s) {
			out = append(out, d.Code)
		}
	}
	return out
}

// dateKey returns YYYY-MM-DD in UTC.
func dateKey(t time.Time) string { return t.UTC().Format("2006-01-02") }
