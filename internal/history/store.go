package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tapedeck/internal/services"
)

// Run and job statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// JobRecord is one finished render.
type JobRecord struct {
	ID       string
	RunID    string
	Tape     string
	Output   string
	Status   string
	Failure  string
	ExitCode *int
	Error    string
	Started  time.Time
	Finished time.Time
}

// Duration returns how long the job ran.
func (j JobRecord) Duration() time.Duration {
	if j.Finished.Before(j.Started) {
		return 0
	}
	return j.Finished.Sub(j.Started)
}

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "history", "open", "database path required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun records the beginning of a generate run over tapes.
func (s *Store) StartRun(ctx context.Context, runID string, tapes []string) error {
	encoded, err := json.Marshal(tapes)
	if err != nil {
		return fmt.Errorf("marshal tapes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, tapes, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, string(encoded), StatusRunning, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun marks a run complete. A non-nil runErr marks it failed.
func (s *Store) FinishRun(ctx context.Context, runID string, runErr error) error {
	status := StatusSucceeded
	var message any
	if runErr != nil {
		status = StatusFailed
		message = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status, message, formatTime(time.Now()), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrNotFound, "history", "finish run", runID, nil)
	}
	return nil
}

// RecordJob stores a finished job.
func (s *Store) RecordJob(ctx context.Context, job JobRecord) error {
	var exitCode any
	if job.ExitCode != nil {
		exitCode = *job.ExitCode
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (
            id, run_id, tape, output, status, failure, exit_code, error_message, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.RunID, job.Tape, job.Output, job.Status,
		nullableString(job.Failure), exitCode, nullableString(job.Error),
		formatTime(job.Started), formatTime(job.Finished),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// RecentJobs returns up to limit jobs, most recently finished first.
func (s *Store) RecentJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, tape, output, status, failure, exit_code, error_message, started_at, finished_at
         FROM jobs ORDER BY finished_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		var (
			job                 JobRecord
			failure, message    sql.NullString
			exitCode            sql.NullInt64
			startedAt, finished string
		)
		if err := rows.Scan(&job.ID, &job.RunID, &job.Tape, &job.Output, &job.Status,
			&failure, &exitCode, &message, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.Failure = failure.String
		job.Error = message.String
		if exitCode.Valid {
			code := int(exitCode.Int64)
			job.ExitCode = &code
		}
		job.Started = parseTime(startedAt)
		job.Finished = parseTime(finished)
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// RunStatus returns the stored status of a run.
func (s *Store) RunStatus(ctx context.Context, runID string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, runID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", services.Wrap(services.ErrNotFound, "history", "run status", runID, nil)
	}
	if err != nil {
		return "", fmt.Errorf("query run: %w", err)
	}
	return status, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
