package solo

import (
	"context"
	"database/sql"
	"time"
)

// SQLResultStore writes finished games to the solo_games / solo_guesses
// tables. Each game is recorded in one transaction.
type SQLResultStore struct {
	db *sql.DB
}

func NewSQLResultStore(db *sql.DB) *SQLResultStore {
	return &SQLResultStore{db: db}
}

func (s *SQLResultStore) SaveGame(ctx context.Context, g *FinishedGame) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO solo_games
            (id, user_id, rounds, total_score, best_round, date, started_at, finished_at)
        VALUES (?,?,?,?,?,?,?,?)`,
		g.ID, g.UserID, g.Rounds, g.TotalScore, g.BestRound,
		g.FinishedAt.UTC().Format("2006-01-02"),
		g.StartedAt.UTC().Format(time.RFC3339),
		g.FinishedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}
	for _, o := range g.Outcomes {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO solo_guesses
                (game_id, round, target_lat, target_lng, guess_lat, guess_lng, distance_km, score)
            VALUES (?,?,?,?,?,?,?,?)`,
			g.ID, o.Round, o.Target.Lat, o.Target.Lng,
			o.Guess.Lat, o.Guess.Lng, o.DistanceKm, o.Score,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
