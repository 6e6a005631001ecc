// internal/store/sqlite.go
//
// SQLite-backed implementation of the Store interface.
// Responsibilities:
//   - CRUD over rooms, players, game_instances and round_players tables.
//   - Optimistic concurrency: every UPDATE is guarded by
//     `AND row_version = ?`; zero rows affected on an existing row means a
//     stale token and surfaces ErrVersionConflict.
//
// Notes:
//   - Timestamps are stored as RFC3339 strings (UTC).
//   - Schema lives in ./sql/*.sql and is applied by the migration runner
//     in package main.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/futuristaz/geohunt-sub000/internal/geo"
)

type sqlite struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database handle as a Store.
func NewSQLiteStore(db *sql.DB) Store {
	return &sqlite{db: db}
}

// ------------------------------- rooms --------------------------------------

func (s *sqlite) CreateRoom(ctx context.Context, r *Room) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Version = 1
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO rooms (id, code, total_rounds, status, row_version, created_at)
        VALUES (?,?,?,?,?,?)`,
		r.ID, r.Code, r.TotalRounds, string(r.Status), r.Version, fmtTime(r.CreatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: rooms.code") {
		return ErrDuplicateCode
	}
	return err
}

func (s *sqlite) RoomByID(ctx context.Context, id string) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, code, total_rounds, status, row_version, created_at
        FROM rooms WHERE id=?`, id)
	return scanRoom(row)
}

func (s *sqlite) RoomByCode(ctx context.Context, code string) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, code, total_rounds, status, row_version, created_at
        FROM rooms WHERE code=?`, code)
	return scanRoom(row)
}

func (s *sqlite) SaveRoom(ctx context.Context, r *Room) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE rooms SET total_rounds=?, status=?, row_version=row_version+1
        WHERE id=? AND row_version=?`,
		r.TotalRounds, string(r.Status), r.ID, r.Version,
	)
	if err != nil {
		return err
	}
	if err := checkAffected(ctx, res, s.db, `SELECT 1 FROM rooms WHERE id=?`, r.ID); err != nil {
		return err
	}
	r.Version++
	return nil
}

func (s *sqlite) DeleteRoom(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRoom(row *sql.Row) (*Room, error) {
	var r Room
	var status, created string
	if err := row.Scan(&r.ID, &r.Code, &r.TotalRounds, &status, &r.Version, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Status = RoomStatus(status)
	r.CreatedAt = parseTime(created)
	return &r, nil
}

// ------------------------------ players -------------------------------------

func (s *sqlite) CreatePlayer(ctx context.Context, p *Player) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO players (id, user_id, room_id, display_name, ready, score)
        VALUES (?,?,?,?,?,?)`,
		p.ID, p.UserID, nullStr(p.RoomID), p.DisplayName, p.Ready, p.Score,
	)
	return err
}

func (s *sqlite) PlayerByID(ctx context.Context, id string) (*Player, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, user_id, COALESCE(room_id,''), display_name, ready, score
        FROM players WHERE id=?`, id)
	return scanPlayer(row)
}

func (s *sqlite) PlayerByUserAndRoom(ctx context.Context, userID, roomID string) (*Player, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, user_id, COALESCE(room_id,''), display_name, ready, score
        FROM players WHERE user_id=? AND room_id=?`, userID, roomID)
	return scanPlayer(row)
}

func (s *sqlite) PlayersByRoom(ctx context.Context, roomID string) ([]*Player, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, COALESCE(room_id,''), display_name, ready, score
        FROM players WHERE room_id=? ORDER BY rowid`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*Player{}
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.ID, &p.UserID, &p.RoomID, &p.DisplayName, &p.Ready, &p.Score); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *sqlite) SavePlayer(ctx context.Context, p *Player) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE players SET room_id=?, display_name=?, ready=?, score=? WHERE id=?`,
		nullStr(p.RoomID), p.DisplayName, p.Ready, p.Score, p.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPlayer(row *sql.Row) (*Player, error) {
	var p Player
	if err := row.Scan(&p.ID, &p.UserID, &p.RoomID, &p.DisplayName, &p.Ready, &p.Score); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ------------------------------- games --------------------------------------

func (s *sqlite) CreateGame(ctx context.Context, g *GameInstance) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	g.Version = 1
	lat, lng := pointCols(g.Target)
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO game_instances
            (id, room_id, started_at, finished_at, current_round, total_rounds,
             target_lat, target_lng, state, row_version)
        VALUES (?,?,?,?,?,?,?,?,?,?)`,
		g.ID, g.RoomID, fmtTime(g.StartedAt), nullTime(g.FinishedAt),
		g.CurrentRound, g.TotalRounds, lat, lng, string(g.State), g.Version,
	); err != nil {
		return err
	}
	for _, rp := range g.Players {
		rp.Version = 1
		glat, glng := pointCols(rp.Guess)
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO round_players
                (id, game_id, player_id, score, round_score, best_round, finished,
                 guess_lat, guess_lng, distance_km, row_version)
            VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			rp.ID, rp.GameID, rp.PlayerID, rp.Score, rp.RoundScore, rp.BestRound,
			rp.Finished, glat, glng, rp.DistanceKm, rp.Version,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqlite) GameByID(ctx context.Context, id string) (*GameInstance, error) {
	row := s.db.QueryRowContext(ctx, gameSelect+` WHERE id=?`, id)
	g, err := scanGame(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadRoundPlayers(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *sqlite) ActiveGameByRoom(ctx context.Context, roomID string) (*GameInstance, error) {
	row := s.db.QueryRowContext(ctx, gameSelect+`
        WHERE room_id=? AND state != ? ORDER BY started_at DESC LIMIT 1`,
		roomID, string(GameFinished))
	g, err := scanGame(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadRoundPlayers(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// SaveGame writes the instance and all of its round players in one
// transaction, guarded by the instance's version token.
func (s *sqlite) SaveGame(ctx context.Context, g *GameInstance) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	lat, lng := pointCols(g.Target)
	res, err := tx.ExecContext(ctx, `
        UPDATE game_instances
        SET finished_at=?, current_round=?, target_lat=?, target_lng=?,
            state=?, row_version=row_version+1
        WHERE id=? AND row_version=?`,
		nullTime(g.FinishedAt), g.CurrentRound, lat, lng, string(g.State),
		g.ID, g.Version,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		if err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM game_instances WHERE id=?`, g.ID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return ErrVersionConflict
	}

	for _, rp := range g.Players {
		glat, glng := pointCols(rp.Guess)
		if _, err := tx.ExecContext(ctx, `
            UPDATE round_players
            SET score=?, round_score=?, best_round=?, finished=?, guess_lat=?,
                guess_lng=?, distance_km=?, row_version=row_version+1
            WHERE id=?`,
			rp.Score, rp.RoundScore, rp.BestRound, rp.Finished, glat, glng,
			rp.DistanceKm, rp.ID,
		); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	g.Version++
	for _, rp := range g.Players {
		rp.Version++
	}
	return nil
}

const gameSelect = `
        SELECT id, room_id, started_at, finished_at, current_round, total_rounds,
               target_lat, target_lng, state, row_version
        FROM game_instances`

func scanGame(row *sql.Row) (*GameInstance, error) {
	var g GameInstance
	var started string
	var finished sql.NullString
	var lat, lng sql.NullFloat64
	var state string
	if err := row.Scan(&g.ID, &g.RoomID, &started, &finished, &g.CurrentRound,
		&g.TotalRounds, &lat, &lng, &state, &g.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	g.StartedAt = parseTime(started)
	if finished.Valid {
		t := parseTime(finished.String)
		g.FinishedAt = &t
	}
	if lat.Valid && lng.Valid {
		g.Target = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	g.State = GameState(state)
	return &g, nil
}

func (s *sqlite) loadRoundPlayers(ctx context.Context, g *GameInstance) error {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, game_id, player_id, score, round_score, best_round, finished,
               guess_lat, guess_lng, distance_km, row_version
        FROM round_players WHERE game_id=? ORDER BY rowid`, g.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	g.Players = g.Players[:0]
	for rows.Next() {
		var rp RoundPlayer
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&rp.ID, &rp.GameID, &rp.PlayerID, &rp.Score,
			&rp.RoundScore, &rp.BestRound, &rp.Finished, &lat, &lng,
			&rp.DistanceKm, &rp.Version); err != nil {
			return err
		}
		if lat.Valid && lng.Valid {
			rp.Guess = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
		}
		g.Players = append(g.Players, &rp)
	}
	return rows.Err()
}

// ------------------------------- helpers ------------------------------------

// checkAffected distinguishes "row missing" from "stale version" after a
// version-guarded UPDATE touched zero rows.
func checkAffected(ctx context.Context, res sql.Result, db *sql.DB, existsQuery string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	if err := db.QueryRowContext(ctx, existsQuery, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("existence check: %w", err)
	}
	return ErrVersionConflict
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func pointCols(p *geo.Point) (lat, lng any) {
	if p == nil {
		return nil, nil
	}
	return p.Lat, p.Lng
}
