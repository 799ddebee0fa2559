// Package store persists finished games in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var ErrInvalidResult = errors.New("invalid result")

// Result is one finished game. Winner is "A", "B" or "" for a draw.
type Result struct {
	ID         string
	GameID     string
	Size       int
	WinLength  int
	Mode       string
	Winner     string
	Moves      int
	Line       []int
	FinishedAt time.Time
}

// Stats aggregates every recorded result.
type Stats struct {
	Games int `json:"games"`
	WinsA int `json:"winsA"`
	WinsB int `json:"winsB"`
	Draws int `json:"draws"`
}

// Store records results in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and its schema.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one connection: sqlite has a single writer and each :memory: connection is its own db
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := createSchemas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}
	return &Store{db: db}, nil
}

func createSchemas(db *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			game_id TEXT NOT NULL,
			size INTEGER NOT NULL,
			win_length INTEGER NOT NULL,
			mode TEXT NOT NULL,
			winner TEXT NOT NULL,
			moves INTEGER NOT NULL,
			line_json TEXT NOT NULL,
			finished_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_game_id ON results(game_id);`,
	}
	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// RecordResult stores r, filling in ID and FinishedAt when empty.
func (s *Store) RecordResult(ctx context.Context, r Result) error {
	if r.GameID == "" || (r.Winner != "" && r.Winner != "A" && r.Winner != "B") {
		return fmt.Errorf("%w: game %q winner %q", ErrInvalidResult, r.GameID, r.Winner)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	line, err := json.Marshal(r.Line)
	if err != nil {
		return fmt.Errorf("failed to marshal line: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, game_id, size, win_length, mode, winner, moves, line_json, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.GameID, r.Size, r.WinLength, r.Mode, r.Winner, r.Moves, string(line), r.FinishedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// Results returns the results of one game, oldest first.
func (s *Store) Results(ctx context.Context, gameID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, game_id, size, win_length, mode, winner, moves, line_json, finished_at
		 FROM results WHERE game_id = ? ORDER BY finished_at, id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var (
			r    Result
			line string
			at   int64
		)
		if err := rows.Scan(&r.ID, &r.GameID, &r.Size, &r.WinLength, &r.Mode, &r.Winner, &r.Moves, &line, &at); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(line), &r.Line); err != nil {
			return nil, fmt.Errorf("failed to unmarshal line: %w", err)
		}
		r.FinishedAt = time.Unix(0, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats counts games, wins per player and draws.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN winner = 'A' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN winner = 'B' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN winner = '' THEN 1 ELSE 0 END), 0)
		 FROM results`).Scan(&st.Games, &st.WinsA, &st.WinsB, &st.Draws)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query stats: %w", err)
	}
	return st, nil
}
