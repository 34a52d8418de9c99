package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/models"
)

// ErrJobNotFound is returned when a job id has no matching row.
var ErrJobNotFound = errors.New("job not found")

// JobStorage persists AutomationJob records and implements the at-most-once
// claim transaction C1 requires.
type JobStorage struct {
	db     *DB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStorage wraps db with job persistence.
func NewJobStorage(db *DB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{db: db, logger: logger}
}

// retryWithExponentialBackoff retries operation on SQLITE_BUSY/"database is
// locked" errors, doubling delay each attempt. Non-transient errors return immediately.
func retryWithExponentialBackoff(ctx context.Context, operation func() error, maxAttempts int, initialDelay time.Duration, logger arbor.ILogger) error {
	delay := initialDelay
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		msg := lastErr.Error()
		isBusy := strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
		if !isBusy {
			return lastErr
		}

		if attempt < maxAttempts {
			logger.Warn().Int("attempt", attempt).Int("max_attempts", maxAttempts).Str("delay", delay.String()).Msg("database locked, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	logger.Error().Int("max_attempts", maxAttempts).Err(lastErr).Msg("retry attempts exhausted")
	return lastErr
}

// SaveJob inserts or fully overwrites a job row.
func (s *JobStorage) SaveJob(ctx context.Context, job *models.AutomationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actionsJSON, err := json.Marshal(job.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	var storageJSON, resultJSON, artifactsJSON, errorJSON sql.NullString
	if job.BrowserStorage != nil {
		b, err := json.Marshal(job.BrowserStorage)
		if err != nil {
			return fmt.Errorf("marshal browser storage: %w", err)
		}
		storageJSON = sql.NullString{String: string(b), Valid: true}
	}
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
	}
	if job.Artifacts != nil {
		b, err := json.Marshal(job.Artifacts)
		if err != nil {
			return fmt.Errorf("marshal artifacts: %w", err)
		}
		artifactsJSON = sql.NullString{String: string(b), Valid: true}
	}
	if job.Error != nil {
		b, err := json.Marshal(job.Error)
		if err != nil {
			return fmt.Errorf("marshal error summary: %w", err)
		}
		errorJSON = sql.NullString{String: string(b), Valid: true}
	}

	var startedAt, completedAt, availableAt sql.NullInt64
	if job.StartedAt != nil {
		startedAt = sql.NullInt64{Int64: job.StartedAt.Unix(), Valid: true}
	}
	if job.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: job.CompletedAt.Unix(), Valid: true}
	}
	if job.AvailableAt != nil {
		availableAt = sql.NullInt64{Int64: job.AvailableAt.Unix(), Valid: true}
	}

	query := `
		INSERT INTO jobs (
			id, target_url, actions_json, browser_family, status, priority, retry_count, max_retries,
			timeout_ms, wait_until, browser_storage_json, result_json, artifacts_json, error_json,
			correlation_id, current_worker, created_at, started_at, completed_at, available_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			retry_count = excluded.retry_count,
			result_json = excluded.result_json,
			artifacts_json = excluded.artifacts_json,
			error_json = excluded.error_json,
			current_worker = excluded.current_worker,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			available_at = excluded.available_at
	`

	err = retryWithExponentialBackoff(ctx, func() error {
		_, dbErr := s.db.db.ExecContext(ctx, query,
			job.ID, job.TargetURL, string(actionsJSON), string(job.BrowserFamily), string(job.Status),
			job.Priority, job.RetryCount, job.MaxRetries, job.TimeoutMs, string(job.WaitUntil),
			storageJSON, resultJSON, artifactsJSON, errorJSON,
			job.CorrelationID, job.CurrentWorker, job.CreatedAt.Unix(), startedAt, completedAt, availableAt,
		)
		return dbErr
	}, 5, 100*time.Millisecond, s.logger)

	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

const jobColumns = `id, target_url, actions_json, browser_family, status, priority, retry_count, max_retries,
	timeout_ms, wait_until, browser_storage_json, result_json, artifacts_json, error_json,
	correlation_id, current_worker, created_at, started_at, completed_at, available_at`

// GetJob retrieves a job by id.
func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.AutomationJob, error) {
	row := s.db.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	return scanJob(row)
}

// ListJobs returns jobs ordered by createdAt DESC, optionally filtered by status.
func (s *JobStorage) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.AutomationJob, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE 1=1"
	args := []interface{}{}

	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// GetJobsByStatus filters jobs by a single status.
func (s *JobStorage) GetJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.AutomationJob, error) {
	return s.ListJobs(ctx, status, 0)
}

// ClaimNext implements the dispatch algorithm of spec section 4.1: select the
// highest-priority, oldest PENDING job and flip it to PROCESSING in the same
// transaction. SQLite has no row locks: the UPDATE only applies while the row
// is still PENDING, so of two concurrent callers only one claims it.
// Returns (nil, nil) if no claimable row exists.
func (s *JobStorage) ClaimNext(ctx context.Context, workerID string) (*models.AutomationJob, error) {
	var claimed *models.AutomationJob

	err := retryWithExponentialBackoff(ctx, func() error {
		tx, err := s.db.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		row := tx.QueryRowContext(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE status = ? AND (available_at IS NULL OR available_at <= ?)
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
		`, string(models.JobStatusPending), time.Now().Unix())

		job, err := scanJob(row)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				return tx.Commit()
			}
			return err
		}

		now := time.Now()
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, started_at = ?, current_worker = ?
			WHERE id = ? AND status = ?
		`, string(models.JobStatusProcessing), now.Unix(), workerID, job.ID, string(models.JobStatusPending))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// another worker claimed it between SELECT and UPDATE; caller retries next poll tick.
			return tx.Commit()
		}

		job.Status = models.JobStatusProcessing
		job.StartedAt = &now
		job.CurrentWorker = workerID
		claimed = job

		return tx.Commit()
	}, 5, 50*time.Millisecond, s.logger)

	if err != nil {
		return nil, fmt.Errorf("claim next: %w", err)
	}
	return claimed, nil
}

// MarkCompleted finalizes a successful job.
func (s *JobStorage) MarkCompleted(ctx context.Context, jobID string, result []models.ActionResult, artifacts []models.Artifact) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil // idempotent: replaying markCompleted on a terminal job is a no-op
	}
	now := time.Now()
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	job.Result = result
	job.Artifacts = artifacts
	job.CurrentWorker = ""
	return s.SaveJob(ctx, job)
}

// MarkFailed sets a job terminally FAILED.
func (s *JobStorage) MarkFailed(ctx context.Context, jobID string, errSummary models.ErrorSummary) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}
	now := time.Now()
	job.Status = models.JobStatusFailed
	job.CompletedAt = &now
	job.Error = &errSummary
	job.CurrentWorker = ""
	return s.SaveJob(ctx, job)
}

// MarkRetry requeues a job to PENDING with retryCount incremented, per spec
// section 4.1's retry policy. backoff sets AvailableAt so ClaimNext excludes
// the row until the delay elapses, rather than the job being immediately
// re-claimable on the next poll tick.
func (s *JobStorage) MarkRetry(ctx context.Context, jobID string, errSummary models.ErrorSummary, backoff time.Duration) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}
	availableAt := time.Now().Add(backoff)
	job.Status = models.JobStatusPending
	job.RetryCount++
	job.StartedAt = nil
	job.Error = &errSummary
	job.CurrentWorker = ""
	job.AvailableAt = &availableAt
	return s.SaveJob(ctx, job)
}

// RecordPartialResult attaches in-flight action results/artifacts to a job
// without touching its status or timestamps, used when the processor
// discovers mid-run that the job was cancelled out from under it and needs
// to preserve whatever actions did complete (spec section 5).
func (s *JobStorage) RecordPartialResult(ctx context.Context, jobID string, result []models.ActionResult, artifacts []models.Artifact) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Result = result
	job.Artifacts = artifacts
	return s.SaveJob(ctx, job)
}

// MarkCancelled sets a PENDING or PROCESSING job to CANCELLED.
func (s *JobStorage) MarkCancelled(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}
	now := time.Now()
	job.Status = models.JobStatusCancelled
	job.CompletedAt = &now
	job.CurrentWorker = ""
	return s.SaveJob(ctx, job)
}

// RequeueOrphansOf resets every PROCESSING job owned by workerID back to
// PENDING, used by the reaper when a worker is declared dead (spec 4.1).
func (s *JobStorage) RequeueOrphansOf(ctx context.Context, workerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, started_at = NULL, current_worker = NULL
		WHERE current_worker = ? AND status = ?
	`, string(models.JobStatusPending), workerID, string(models.JobStatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("requeue orphans: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanJob(row *sql.Row) (*models.AutomationJob, error) {
	job, rawActions, rawStorage, rawResult, rawArtifacts, rawErr, createdAt, startedAt, completedAt, availableAt, err := scanJobRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return finishJob(job, rawActions, rawStorage, rawResult, rawArtifacts, rawErr, createdAt, startedAt, completedAt, availableAt)
}

func scanJobs(rows *sql.Rows) ([]*models.AutomationJob, error) {
	var out []*models.AutomationJob
	for rows.Next() {
		job, rawActions, rawStorage, rawResult, rawArtifacts, rawErr, createdAt, startedAt, completedAt, availableAt, err := scanJobRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		full, err := finishJob(job, rawActions, rawStorage, rawResult, rawArtifacts, rawErr, createdAt, startedAt, completedAt, availableAt)
		if err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	return out, rows.Err()
}

type scanFn func(dest ...interface{}) error

func scanJobRow(scan scanFn) (job *models.AutomationJob, actionsJSON string, storageJSON, resultJSON, artifactsJSON, errJSON sql.NullString, createdAt int64, startedAt, completedAt, availableAt sql.NullInt64, err error) {
	job = &models.AutomationJob{}
	var family, status, waitUntil string
	var correlationID, currentWorker sql.NullString

	err = scan(
		&job.ID, &job.TargetURL, &actionsJSON, &family, &status, &job.Priority, &job.RetryCount, &job.MaxRetries,
		&job.TimeoutMs, &waitUntil, &storageJSON, &resultJSON, &artifactsJSON, &errJSON,
		&correlationID, &currentWorker, &createdAt, &startedAt, &completedAt, &availableAt,
	)
	if err != nil {
		return
	}

	job.BrowserFamily = models.BrowserFamily(family)
	job.Status = models.JobStatus(status)
	job.WaitUntil = models.WaitUntil(waitUntil)
	if correlationID.Valid {
		job.CorrelationID = correlationID.String
	}
	if currentWorker.Valid {
		job.CurrentWorker = currentWorker.String
	}
	return
}

func finishJob(job *models.AutomationJob, actionsJSON string, storageJSON, resultJSON, artifactsJSON, errJSON sql.NullString, createdAt int64, startedAt, completedAt, availableAt sql.NullInt64) (*models.AutomationJob, error) {
	if err := json.Unmarshal([]byte(actionsJSON), &job.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal actions: %w", err)
	}
	if storageJSON.Valid {
		var bs models.BrowserStorage
		if err := json.Unmarshal([]byte(storageJSON.String), &bs); err != nil {
			return nil, fmt.Errorf("unmarshal browser storage: %w", err)
		}
		job.BrowserStorage = &bs
	}
	if resultJSON.Valid {
		if err := json.Unmarshal([]byte(resultJSON.String), &job.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if artifactsJSON.Valid {
		if err := json.Unmarshal([]byte(artifactsJSON.String), &job.Artifacts); err != nil {
			return nil, fmt.Errorf("unmarshal artifacts: %w", err)
		}
	}
	if errJSON.Valid {
		var es models.ErrorSummary
		if err := json.Unmarshal([]byte(errJSON.String), &es); err != nil {
			return nil, fmt.Errorf("unmarshal error summary: %w", err)
		}
		job.Error = &es
	}

	job.CreatedAt = time.Unix(createdAt, 0)
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		job.CompletedAt = &t
	}
	if availableAt.Valid {
		t := time.Unix(availableAt.Int64, 0)
		job.AvailableAt = &t
	}
	return job, nil
}
