package migrations

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Add indices for run listing and status filtering",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_load_runs_started_at ON load_runs(started_at DESC);
			CREATE INDEX IF NOT EXISTS idx_load_runs_status ON load_runs(status);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_load_runs_started_at;
			DROP INDEX IF EXISTS idx_load_runs_status;
		`,
	},
	{
		Version: 2,
		Name:    "Add composite index for per-key interval queries",
		Up: `
			-- Interval reads are always per run, ordered by window then key
			CREATE INDEX IF NOT EXISTS idx_load_intervals_run_window ON load_run_intervals(run_id, window_start, task, name);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_load_intervals_run_window;
		`,
	},
}

// InitSchema creates all tables required by the run store
// This must be called before running migrations to ensure all tables exist
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS load_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		host TEXT NOT NULL,
		scenario TEXT,
		users INTEGER NOT NULL DEFAULT 0,
		ramp_rate REAL NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		status TEXT NOT NULL,
		total_requests INTEGER DEFAULT 0,
		total_failures INTEGER DEFAULT 0,
		avg_ms REAL DEFAULT 0,
		min_ms REAL DEFAULT 0,
		max_ms REAL DEFAULT 0,
		p50_ms REAL DEFAULT 0,
		p95_ms REAL DEFAULT 0,
		p99_ms REAL DEFAULT 0,
		rps REAL DEFAULT 0,
		forced_shutdowns INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS load_run_intervals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		window_start DATETIME NOT NULL,
		window_end DATETIME NOT NULL,
		task TEXT NOT NULL,
		name TEXT NOT NULL,
		method TEXT NOT NULL,
		requests INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		avg_ms REAL DEFAULT 0,
		p50_ms REAL DEFAULT 0,
		p95_ms REAL DEFAULT 0,
		p99_ms REAL DEFAULT 0,
		max_ms REAL DEFAULT 0,
		rps REAL DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES load_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_load_intervals_run_id ON load_run_intervals(run_id);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	// Initialize schema first to ensure all tables exist
	if err := InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, migration := range AllMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		// Apply and record atomically so a failed migration is retried next start
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// GetCurrentVersion returns the current database schema version
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_migrations
	`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return version, nil
}

// Latest returns the highest known migration version
func Latest() int {
	if len(AllMigrations) == 0 {
		return 0
	}
	return AllMigrations[len(AllMigrations)-1].Version
}
