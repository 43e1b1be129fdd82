// Package history keeps a local record of loop runs in SQLite so an operator
// can review what the tool did after the fact. Everything here is
// best-effort from the loop's point of view: the store failing never stops a
// run.
package history

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
	id          TEXT PRIMARY KEY,
	repo        TEXT NOT NULL,
	branch      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	stop_reason TEXT NOT NULL DEFAULT '',
	iterations  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS iterations (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	n             INTEGER NOT NULL,
	deployment_id TEXT NOT NULL DEFAULT '',
	classified_ok INTEGER NOT NULL DEFAULT 0,
	agent_changed INTEGER NOT NULL DEFAULT 0,
	pushed        INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, n)
);
`

type Store struct {
	db *sql.DB
}

type Run struct {
	ID         string
	Repo       string
	Branch     string
	StartedAt  time.Time
	FinishedAt time.Time
	StopReason string
	Iterations int
}

type Iteration struct {
	RunID        string
	N            int
	DeploymentID string
	ClassifiedOK bool
	AgentChanged bool
	Pushed       bool
	CreatedAt    time.Time
}

// Open creates the database file (and its directory) if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// StartRun registers a new run and returns its id.
func (s *Store) StartRun(repo, branch string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, repo, branch, started_at) VALUES (?, ?, ?, ?)`,
		id, repo, branch, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("history: start run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's outcome.
func (s *Store) FinishRun(id, stopReason string, iterations int) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, stop_reason = ?, iterations = ? WHERE id = ?`,
		time.Now().UTC(), stopReason, iterations, id,
	)
	if err != nil {
		return fmt.Errorf("history: finish run %s: %w", id, err)
	}
	return nil
}

// RecordIteration appends one loop iteration to its run.
func (s *Store) RecordIteration(it Iteration) error {
	_, err := s.db.Exec(
		`INSERT INTO iterations (run_id, n, deployment_id, classified_ok, agent_changed, pushed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		it.RunID, it.N, it.DeploymentID, it.ClassifiedOK, it.AgentChanged, it.Pushed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("history: record iteration %d of run %s: %w", it.N, it.RunID, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, repo, branch, started_at, finished_at, stop_reason, iterations
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Repo, &r.Branch, &r.StartedAt, &finished, &r.StopReason, &r.Iterations); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		// Unfinished (or crashed) runs have no finish stamp.
		r.FinishedAt = r.StartedAt
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunIterations returns the iterations of one run in order.
func (s *Store) RunIterations(runID string) ([]Iteration, error) {
	rows, err := s.db.Query(
		`SELECT run_id, n, deployment_id, classified_ok, agent_changed, pushed, created_at
		 FROM iterations WHERE run_id = ? ORDER BY n`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: list iterations: %w", err)
	}
	defer rows.Close()

	var its []Iteration
	for rows.Next() {
		var it Iteration
		if err := rows.Scan(&it.RunID, &it.N, &it.DeploymentID, &it.ClassifiedOK, &it.AgentChanged, &it.Pushed, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan iteration: %w", err)
		}
		its = append(its, it)
	}
	return its, rows.Err()
}
