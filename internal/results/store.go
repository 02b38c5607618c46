// Package results persists per-field evaluation scores to SQLite so runs
// can be compared and re-aggregated after the fact. The aggregate CSV
// exports are derived views; this store is the raw record.
package results

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"formeval/internal/field"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store wraps the results database. Safe for concurrent use; SQLite access
// is serialized through a single connection.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	solver     TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS field_scores (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	task        TEXT NOT NULL,
	instance_id INTEGER NOT NULL,
	field_name  TEXT NOT NULL,
	field_kind  TEXT NOT NULL,
	score       REAL NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_field_scores_run_task ON field_scores(run_id, task);
`

// Open creates (or opens) the results database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create results directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize results schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Run identifies one evaluation run.
type Run struct {
	ID        string
	Solver    string
	StartedAt time.Time
}

// BeginRun registers a new run and returns its id.
func (s *Store) BeginRun(solverName string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := Run{
		ID:        uuid.NewString(),
		Solver:    solverName,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		"INSERT INTO runs (id, solver, started_at) VALUES (?, ?, ?)",
		run.ID, run.Solver, run.StartedAt,
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FieldScore is one scored field of one task instance. Err is non-empty
// when the field could not be scored (the 0.0 score then marks a failure,
// not a judgment).
type FieldScore struct {
	Task       string
	InstanceID int
	FieldName  string
	Kind       field.Kind
	Score      float64
	Err        string
}

// RecordScore appends one field score to a run.
func (s *Store) RecordScore(runID string, fs FieldScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO field_scores (run_id, task, instance_id, field_name, field_kind, score, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, fs.Task, fs.InstanceID, fs.FieldName, string(fs.Kind), fs.Score, fs.Err,
	)
	if err != nil {
		return fmt.Errorf("insert field score: %w", err)
	}
	return nil
}

// SummaryRow is the per-task, per-kind average for one run.
type SummaryRow struct {
	Task    string
	Kind    field.Kind
	Average float64
	Count   int
}

// Summary aggregates a run's scores by task and field kind, ordered for
// stable output.
func (s *Store) Summary(runID string) ([]SummaryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT task, field_kind, AVG(score), COUNT(*)
		 FROM field_scores WHERE run_id = ?
		 GROUP BY task, field_kind
		 ORDER BY task, field_kind`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var r SummaryRow
		var kind string
		if err := rows.Scan(&r.Task, &kind, &r.Average, &r.Count); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		r.Kind = field.Kind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}
