// Package sqlite persists the learning log and run history in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/philjestin/studiomode/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	run_id TEXT NOT NULL DEFAULT '',
	agent TEXT NOT NULL,
	hash TEXT NOT NULL,
	input TEXT NOT NULL,
	output TEXT NOT NULL,
	result TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_agent ON interactions(agent, seq);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	feature TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at INTEGER NULL,
	summary TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Store is a SQLite-backed learning log and run history.
type Store struct {
	db *sql.DB
}

var (
	_ store.LearningLog = (*Store)(nil)
	_ store.RunHistory  = (*Store)(nil)
)

// Open opens or creates the database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

// OpenMigrated opens dbPath and applies the schema.
func OpenMigrated(ctx context.Context, dbPath string) (*Store, error) {
	s, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// RecordInteraction appends one learning entry.
func (s *Store) RecordInteraction(ctx context.Context, in store.Interaction) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO interactions(id, run_id, agent, hash, input, output, result, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.RunID, in.Agent, in.Hash, in.Input, in.Output, in.Result, in.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

// Interactions returns an agent's entries in insertion order.
func (s *Store) Interactions(ctx context.Context, agent string) ([]store.Interaction, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, run_id, agent, hash, input, output, result, created_at
		FROM interactions WHERE agent = ? ORDER BY seq`,
		agent,
	)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	return scanInteractions(rows)
}

// InteractionsByAgent returns the whole learning log grouped by agent.
func (s *Store) InteractionsByAgent(ctx context.Context) (map[string][]store.Interaction, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, run_id, agent, hash, input, output, result, created_at
		FROM interactions ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	all, err := scanInteractions(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]store.Interaction)
	for _, in := range all {
		out[in.Agent] = append(out[in.Agent], in)
	}
	return out, nil
}

// Agents lists agents with at least one entry, sorted.
func (s *Store) Agents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT agent FROM interactions ORDER BY agent`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// StartRun inserts a run row.
func (s *Store) StartRun(ctx context.Context, run store.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = "running"
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs(id, feature, status, started_at, summary) VALUES(?, ?, ?, ?, ?)`,
		run.ID, run.Feature, run.Status, run.StartedAt.UnixNano(), run.Summary,
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun sets the final status of a run.
func (s *Store) FinishRun(ctx context.Context, id, status, summary string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, summary = ?, ended_at = ? WHERE id = ?`,
		status, summary, time.Now().UTC().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// Runs returns the newest runs first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, feature, status, started_at, ended_at, summary
		FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	result := make([]store.Run, 0)
	for rows.Next() {
		var r store.Run
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Feature, &r.Status, &started, &ended, &r.Summary); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			r.EndedAt = &t
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

func scanInteractions(rows *sql.Rows) ([]store.Interaction, error) {
	defer rows.Close()

	result := make([]store.Interaction, 0)
	for rows.Next() {
		var in store.Interaction
		var created int64
		if err := rows.Scan(&in.ID, &in.RunID, &in.Agent, &in.Hash, &in.Input, &in.Output, &in.Result, &created); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		in.CreatedAt = time.Unix(0, created).UTC()
		result = append(result, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return result, nil
}
