// Package history keeps a SQLite ledger of runs and their step results.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"datadeploy/internal/steps"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	trigger_kind TEXT,
	revision TEXT,
	status TEXT,
	outcome TEXT,
	failure TEXT,
	commit_sha TEXT,
	exit_code INTEGER,
	started_at DATETIME,
	finished_at DATETIME
);
CREATE TABLE IF NOT EXISTS run_steps (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT,
	position INTEGER,
	step_id TEXT,
	status TEXT,
	failure TEXT,
	message TEXT,
	error_message TEXT,
	duration_ms INTEGER
);
CREATE INDEX IF NOT EXISTS run_steps_run ON run_steps (run_id, position);
`

// StatusRunning marks a run that started but has not finished (or crashed).
const StatusRunning = "running"

// ErrNotFound is returned for an unknown run ID.
var ErrNotFound = errors.New("run not found")

type Run struct {
	ID         string
	Trigger    string
	Revision   string
	Status     string
	Outcome    string
	Failure    string
	Commit     string
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
}

type Step struct {
	Position int
	StepID   string
	Status   steps.Status
	Failure  steps.FailureKind
	Message  string
	Error    string
	Duration time.Duration
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history path required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a run in the running state.
func (s *Store) StartRun(ctx context.Context, id, trigger, revision string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, trigger_kind, revision, status, outcome, failure, commit_sha, exit_code, started_at) VALUES (?, ?, ?, ?, '', '', '', 0, ?)`,
		id, trigger, revision, StatusRunning, at.UTC())
	return err
}

// AddStep appends a step result to run id.
func (s *Store) AddStep(ctx context.Context, id string, r steps.Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_steps (run_id, position, step_id, status, failure, message, error_message, duration_ms)
		 VALUES (?, (SELECT COUNT(*) FROM run_steps WHERE run_id = ?), ?, ?, ?, ?, ?, ?)`,
		id, id, r.StepID, string(r.Status), string(r.Failure), r.Message, r.Error, r.Duration.Milliseconds())
	return err
}

// FinishRun records the final status of run id.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, outcome = ?, failure = ?, commit_sha = ?, exit_code = ?, finished_at = ?, revision = CASE WHEN ? != '' THEN ? ELSE revision END WHERE id = ?`,
		run.Status, run.Outcome, run.Failure, run.Commit, run.ExitCode, run.FinishedAt.UTC(), run.Revision, run.Revision, run.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, run.ID)
	}
	return nil
}

// List returns the most recent runs first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, trigger_kind, revision, status, outcome, failure, commit_sha, exit_code, started_at, finished_at FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns one run and its steps in chain order.
func (s *Store) Get(ctx context.Context, id string) (Run, []Step, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, trigger_kind, revision, status, outcome, failure, commit_sha, exit_code, started_at, finished_at FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT position, step_id, status, failure, message, error_message, duration_ms FROM run_steps WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return Run{}, nil, err
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		var st Step
		var status, failure string
		var ms int64
		if err := rows.Scan(&st.Position, &st.StepID, &status, &failure, &st.Message, &st.Error, &ms); err != nil {
			return Run{}, nil, err
		}
		st.Status = steps.Status(status)
		st.Failure = steps.FailureKind(failure)
		st.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, st)
	}
	return run, out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var finished sql.NullTime
	if err := sc.Scan(&r.ID, &r.Trigger, &r.Revision, &r.Status, &r.Outcome, &r.Failure, &r.Commit, &r.ExitCode, &r.StartedAt, &finished); err != nil {
		return Run{}, err
	}
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return r, nil
}
