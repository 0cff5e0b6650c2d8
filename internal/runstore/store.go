// Package runstore provides SQLite-backed history of orchestrator runs.
package runstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Run is one recorded invocation of the orchestrator.
type Run struct {
	ID         string
	Command    string
	Backend    string
	Model      string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Failed     int
	Skipped    int
	TokensIn   int64
	TokensOut  int64
	CostUSD    float64
}

// TaskResult is the outcome of one unit of work within a run.
type TaskResult struct {
	RunID      string
	Task       string
	Status     string
	Error      string
	DurationMS int64
	TokensIn   int64
	TokensOut  int64
	CostUSD    float64
}

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts a new run in the running state
func (s *Store) SaveRun(run *Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, command, backend, model, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Command,
		run.Backend,
		run.Model,
		StatusRunning,
		run.StartedAt,
	)
	return err
}

// FinishRun records the final state and counters of a run
func (s *Store) FinishRun(run *Run) error {
	_, err := s.db.Exec(`
		UPDATE runs SET
			status = ?,
			finished_at = ?,
			processed = ?,
			failed = ?,
			skipped = ?,
			tokens_in = ?,
			tokens_out = ?,
			cost_usd = ?
		WHERE id = ?
	`,
		run.Status,
		run.FinishedAt,
		run.Processed,
		run.Failed,
		run.Skipped,
		run.TokensIn,
		run.TokensOut,
		run.CostUSD,
		run.ID,
	)
	return err
}

// SaveTaskResult records the outcome of one task within a run
func (s *Store) SaveTaskResult(res *TaskResult) error {
	_, err := s.db.Exec(`
		INSERT INTO task_results (run_id, task, status, error, duration_ms, tokens_in, tokens_out, cost_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.RunID,
		res.Task,
		res.Status,
		res.Error,
		res.DurationMS,
		res.TokensIn,
		res.TokensOut,
		res.CostUSD,
	)
	return err
}

// ListRecentRuns returns the most recent runs, newest first
func (s *Store) ListRecentRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`
		SELECT id, command, backend, model, status, started_at, finished_at, processed, failed, skipped, tokens_in, tokens_out, cost_usd
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// ListTaskResults returns the task results of a run, failures first
func (s *Store) ListTaskResults(runID string) ([]*TaskResult, error) {
	rows, err := s.db.Query(`
		SELECT run_id, task, status, error, duration_ms, tokens_in, tokens_out, cost_usd
		FROM task_results WHERE run_id = ?
		ORDER BY status != 'failed', task
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*TaskResult
	for rows.Next() {
		var res TaskResult
		var errMsg sql.NullString
		if err := rows.Scan(&res.RunID, &res.Task, &res.Status, &errMsg, &res.DurationMS, &res.TokensIn, &res.TokensOut, &res.CostUSD); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			res.Error = errMsg.String
		}
		results = append(results, &res)
	}

	return results, rows.Err()
}

func scanRun(rows *sql.Rows) (*Run, error) {
	var run Run
	var finishedAt sql.NullTime
	var backend, model sql.NullString

	err := rows.Scan(&run.ID, &run.Command, &backend, &model, &run.Status, &run.StartedAt, &finishedAt, &run.Processed, &run.Failed, &run.Skipped, &run.TokensIn, &run.TokensOut, &run.CostUSD)
	if err != nil {
		return nil, err
	}

	if backend.Valid {
		run.Backend = backend.String
	}
	if model.Valid {
		run.Model = model.String
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}

	return &run, nil
}
