package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/models"
)

// ErrWorkerNotFound is returned when a worker id has no matching row.
var ErrWorkerNotFound = errors.New("worker not found")

// WorkerStorage persists BrowserWorker registrations and heartbeats.
type WorkerStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewWorkerStorage wraps db with worker persistence.
func NewWorkerStorage(db *DB, logger arbor.ILogger) *WorkerStorage {
	return &WorkerStorage{db: db, logger: logger}
}

// Register inserts or updates a worker's registration row.
func (s *WorkerStorage) Register(ctx context.Context, w *models.BrowserWorker) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO browser_workers (id, browser_family, status, current_job_id, last_heartbeat_at, pid, host)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			current_job_id = excluded.current_job_id,
			last_heartbeat_at = excluded.last_heartbeat_at
	`, w.ID, string(w.BrowserFamily), string(w.Status), nullIfEmpty(w.CurrentJobID), w.LastHeartbeatAt.Unix(), w.Metadata.PID, w.Metadata.Host)
	if err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	return nil
}

// Heartbeat bumps lastHeartbeatAt for workerID to now.
func (s *WorkerStorage) Heartbeat(ctx context.Context, workerID string) error {
	_, err := s.db.db.ExecContext(ctx, `UPDATE browser_workers SET last_heartbeat_at = ? WHERE id = ?`, time.Now().Unix(), workerID)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// SetStatus transitions a worker's status and current job pointer.
func (s *WorkerStorage) SetStatus(ctx context.Context, workerID string, status models.WorkerStatus, currentJobID string) error {
	_, err := s.db.db.ExecContext(ctx, `
		UPDATE browser_workers SET status = ?, current_job_id = ? WHERE id = ?
	`, string(status), nullIfEmpty(currentJobID), workerID)
	if err != nil {
		return fmt.Errorf("set worker status: %w", err)
	}
	return nil
}

// ListActiveWorkers returns every worker not OFFLINE.
func (s *WorkerStorage) ListActiveWorkers(ctx context.Context) ([]*models.BrowserWorker, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, browser_family, status, current_job_id, last_heartbeat_at, pid, host
		FROM browser_workers WHERE status != ?
	`, string(models.WorkerStatusOffline))
	if err != nil {
		return nil, fmt.Errorf("list active workers: %w", err)
	}
	defer rows.Close()
	return scanWorkers(rows)
}

// ListStaleWorkers returns workers whose heartbeat exceeds timeout and are not already OFFLINE.
func (s *WorkerStorage) ListStaleWorkers(ctx context.Context, heartbeatTimeout time.Duration) ([]*models.BrowserWorker, error) {
	cutoff := time.Now().Add(-heartbeatTimeout).Unix()
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, browser_family, status, current_job_id, last_heartbeat_at, pid, host
		FROM browser_workers WHERE status != ? AND last_heartbeat_at < ?
	`, string(models.WorkerStatusOffline), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale workers: %w", err)
	}
	defer rows.Close()
	return scanWorkers(rows)
}

func scanWorkers(rows *sql.Rows) ([]*models.BrowserWorker, error) {
	var out []*models.BrowserWorker
	for rows.Next() {
		w := &models.BrowserWorker{}
		var family, status string
		var currentJobID sql.NullString
		var heartbeat int64
		if err := rows.Scan(&w.ID, &family, &status, &currentJobID, &heartbeat, &w.Metadata.PID, &w.Metadata.Host); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		w.BrowserFamily = models.BrowserFamily(family)
		w.Status = models.WorkerStatus(status)
		w.LastHeartbeatAt = time.Unix(heartbeat, 0)
		if currentJobID.Valid {
			w.CurrentJobID = currentJobID.String
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
