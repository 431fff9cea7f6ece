// Package store persists load runs and their per-interval aggregates in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/studiowebux/restswarm/internal/migrations"
	"github.com/studiowebux/restswarm/internal/stats"
)

// ErrRunNotFound is returned when a run id does not exist
var ErrRunNotFound = errors.New("run not found")

// Manager handles load run persistence
type Manager struct {
	db *sql.DB
}

// NewManager opens the database at dbPath and applies migrations
func NewManager(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty in-memory database
		db.SetMaxOpenConns(1)
	}

	m := &Manager{db: db}

	// Run database migrations (includes schema initialization)
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return m, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

// CreateRun creates a new run record and sets run.ID
func (m *Manager) CreateRun(run *Run) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	result, err := m.db.Exec(`
		INSERT INTO load_runs
		(name, host, scenario, users, ramp_rate, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.Name, run.Host, run.Scenario, run.Users, run.RampRate, run.StartedAt, run.Status)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// UpdateRun updates the status and totals of a run record
func (m *Manager) UpdateRun(run *Run) error {
	result, err := m.db.Exec(`
		UPDATE load_runs
		SET completed_at = ?, status = ?, users = ?, total_requests = ?, total_failures = ?,
		    avg_ms = ?, min_ms = ?, max_ms = ?, p50_ms = ?, p95_ms = ?, p99_ms = ?, rps = ?,
		    forced_shutdowns = ?
		WHERE id = ?
	`, run.CompletedAt, run.Status, run.Users, run.TotalRequests, run.TotalFailures,
		run.AvgMs, run.MinMs, run.MaxMs, run.P50Ms, run.P95Ms, run.P99Ms, run.RPS,
		run.ForcedShutdowns, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run %d: %w", run.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, run.ID)
	}
	return nil
}

const runColumns = `
	id, name, host, COALESCE(scenario, ''), users, ramp_rate, started_at, completed_at, status,
	COALESCE(total_requests, 0), COALESCE(total_failures, 0),
	COALESCE(avg_ms, 0), COALESCE(min_ms, 0), COALESCE(max_ms, 0),
	COALESCE(p50_ms, 0), COALESCE(p95_ms, 0), COALESCE(p99_ms, 0),
	COALESCE(rps, 0), COALESCE(forced_shutdowns, 0)`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime

	err := row.Scan(&run.ID, &run.Name, &run.Host, &run.Scenario, &run.Users, &run.RampRate,
		&run.StartedAt, &completedAt, &run.Status, &run.TotalRequests, &run.TotalFailures,
		&run.AvgMs, &run.MinMs, &run.MaxMs, &run.P50Ms, &run.P95Ms, &run.P99Ms,
		&run.RPS, &run.ForcedShutdowns)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (m *Manager) GetRun(id int64) (*Run, error) {
	run, err := scanRun(m.db.QueryRow(`SELECT `+runColumns+` FROM load_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs, most recent first. limit <= 0 returns all runs.
func (m *Manager) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM load_runs ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
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

// DeleteRun deletes a run and all its intervals
func (m *Manager) DeleteRun(id int64) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Foreign keys are off by default in SQLite, delete children explicitly
	if _, err := tx.Exec("DELETE FROM load_run_intervals WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete intervals: %w", err)
	}
	result, err := tx.Exec("DELETE FROM load_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return tx.Commit()
}

// SaveIntervals stores one row per key of an interval snapshot in a single transaction
func (m *Manager) SaveIntervals(runID int64, snap *stats.Snapshot) error {
	if snap == nil || len(snap.Entries) == 0 {
		return nil
	}

	from := snap.Window.From
	to := snap.Window.To
	if to.IsZero() {
		to = snap.GeneratedAt
	}
	if from.IsZero() {
		from = snap.Total.FirstAt
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO load_run_intervals
		(run_id, window_start, window_end, task, name, method, requests, failures,
		 avg_ms, p50_ms, p95_ms, p99_ms, max_ms, rps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, entry := range snap.Sorted() {
		iv := intervalFromEntry(runID, from, to, entry)
		_, err := stmt.Exec(iv.RunID, iv.WindowStart, iv.WindowEnd, iv.Task, iv.Name, iv.Method,
			iv.Requests, iv.Failures, iv.AvgMs, iv.P50Ms, iv.P95Ms, iv.P99Ms, iv.MaxMs, iv.RPS)
		if err != nil {
			return fmt.Errorf("failed to insert interval: %w", err)
		}
	}

	return tx.Commit()
}

// GetIntervals retrieves all intervals of a run ordered by window, task and name
func (m *Manager) GetIntervals(runID int64) ([]*Interval, error) {
	rows, err := m.db.Query(`
		SELECT id, run_id, window_start, window_end, task, name, method, requests, failures,
		       COALESCE(avg_ms, 0), COALESCE(p50_ms, 0), COALESCE(p95_ms, 0), COALESCE(p99_ms, 0),
		       COALESCE(max_ms, 0), COALESCE(rps, 0)
		FROM load_run_intervals
		WHERE run_id = ?
		ORDER BY window_start, task, name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get intervals: %w", err)
	}
	defer rows.Close()

	var intervals []*Interval
	for rows.Next() {
		iv := &Interval{}
		err := rows.Scan(&iv.ID, &iv.RunID, &iv.WindowStart, &iv.WindowEnd, &iv.Task, &iv.Name,
			&iv.Method, &iv.Requests, &iv.Failures, &iv.AvgMs, &iv.P50Ms, &iv.P95Ms, &iv.P99Ms,
			&iv.MaxMs, &iv.RPS)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}
