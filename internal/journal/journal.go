// Package journal keeps a local record of bootstrap runs and their step
// outcomes. The journal is a debugging aid: writing to it is best-effort
// and must never fail a bootstrap.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    flavor TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS steps (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id),
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    error TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_steps_run_id ON steps(run_id);
`

// Journal provides SQLite-backed bootstrap run persistence.
type Journal struct {
	db *sql.DB
}

// Run is one recorded bootstrap invocation.
type Run struct {
	ID         string
	Flavor     string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// StepRecord is one recorded pipeline step outcome.
type StepRecord struct {
	RunID    string
	Name     string
	Status   string
	Duration time.Duration
	Error    string
}

// Open creates or opens the journal database at the given path.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running journal migrations: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// BeginRun records the start of a bootstrap run and returns its id.
func (j *Journal) BeginRun(flavor string) (string, error) {
	id := uuid.NewString()
	_, err := j.db.Exec(
		`INSERT INTO runs (id, flavor, status, started_at) VALUES (?, ?, 'running', ?)`,
		id, flavor, time.Now(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun marks a run as completed or failed.
func (j *Journal) FinishRun(id, status string) error {
	_, err := j.db.Exec(
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	return err
}

// RecordStep appends one step outcome to a run.
func (j *Journal) RecordStep(runID, name, status string, took time.Duration, errMsg string) error {
	_, err := j.db.Exec(
		`INSERT INTO steps (run_id, name, status, duration_ms, error) VALUES (?, ?, ?, ?, ?)`,
		runID, name, status, took.Milliseconds(), errMsg,
	)
	return err
}

// ListRuns returns the most recent runs, newest first.
func (j *Journal) ListRuns(limit int) ([]*Run, error) {
	rows, err := j.db.Query(
		`SELECT id, flavor, status, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Flavor, &run.Status, &run.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// ListSteps returns the step outcomes of a run in execution order.
func (j *Journal) ListSteps(runID string) ([]*StepRecord, error) {
	rows, err := j.db.Query(
		`SELECT run_id, name, status, duration_ms, COALESCE(error, '')
		 FROM steps WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*StepRecord
	for rows.Next() {
		var s StepRecord
		var durationMS int64
		if err := rows.Scan(&s.RunID, &s.Name, &s.Status, &durationMS, &s.Error); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, &s)
	}
	return steps, rows.Err()
}
