package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"
)

// DB wraps the single-connection SQLite handle backing the job queue.
type DB struct {
	db     *sql.DB
	logger arbor.ILogger
}

// Open creates (or attaches to) the SQLite database at path and applies schema.
func Open(path string, logger arbor.ILogger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single writer connection sidesteps SQLITE_BUSY under concurrent
	// worker writes; claimNext's row-lock semantics rely on serialized access.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	d := &DB{db: sqlDB, logger: logger}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if err := d.initSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("sqlite job store opened")
	return d, nil
}

// DB returns the underlying *sql.DB for callers that need raw access (tests).
func (d *DB) DB() *sql.DB { return d.db }

// Close releases the underlying connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// BeginTx starts a transaction.
func (d *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return d.db.BeginTx(ctx, nil)
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		target_url TEXT NOT NULL,
		actions_json TEXT NOT NULL,
		browser_family TEXT NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 0,
		timeout_ms INTEGER NOT NULL DEFAULT 0,
		wait_until TEXT,
		browser_storage_json TEXT,
		result_json TEXT,
		artifacts_json TEXT,
		error_json TEXT,
		correlation_id TEXT,
		current_worker TEXT,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		available_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_dispatch ON jobs (status, priority DESC, created_at ASC);

	CREATE TABLE IF NOT EXISTS job_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		metadata_json TEXT,
		correlation_id TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_job_logs_job_id ON job_logs (job_id);

	CREATE TABLE IF NOT EXISTS browser_workers (
		id TEXT PRIMARY KEY,
		browser_family TEXT NOT NULL,
		status TEXT NOT NULL,
		current_job_id TEXT,
		last_heartbeat_at INTEGER NOT NULL,
		pid INTEGER,
		host TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_browser_workers_status ON browser_workers (status);
	CREATE INDEX IF NOT EXISTS idx_browser_workers_heartbeat ON browser_workers (last_heartbeat_at);
	`

	_, err := d.db.Exec(schema)
	return err
}
