package main

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateAppliesAndRecords(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Each new connection would get its own empty in-memory database.
	db.SetMaxOpenConns(1)
	defer db.Close()

	if err := migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM _migrations`).Scan(&n); err != nil {
		t.Fatalf("count _migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("recorded %d migrations, want 1", n)
	}

	// The schema came through the runner, not a direct file read.
	if _, err := db.Exec(`INSERT INTO users (id, username, password_hash, created_at)
	                      VALUES ('u1', 'ann', 'x', '2026-01-01T00:00:00Z')`); err != nil {
		t.Errorf("schema not usable: %v", err)
	}

	// Re-running applies nothing new.
	if err := migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM _migrations`).Scan(&n); err != nil || n != 1 {
		t.Errorf("after re-run: rows=%d err=%v, want 1", n, err)
	}
}

func TestOpenDBCreatesParentDir(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "data", "app.db")
	db, err := openDB(dsn)
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Errorf("ping: %v", err)
	}
}
