// Package scheduler implements C1: the durable priority queue and worker
// registry (spec section 4.1).
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/common"
	"github.com/corvidworks/hive/internal/errctx"
	"github.com/corvidworks/hive/internal/events"
	"github.com/corvidworks/hive/internal/models"
	"github.com/corvidworks/hive/internal/storage/sqlite"
)

// Scheduler owns the AutomationJob record exclusively (spec section 3) and
// tracks BrowserWorker liveness. Mirrors the teacher's scheduler.Service
// shape: a cron instance for calendar-shaped maintenance plus a raw
// time.Ticker reaper for sub-minute liveness checks.
type Scheduler struct {
	jobs    *sqlite.JobStorage
	workers *sqlite.WorkerStorage
	logs    *sqlite.JobLogStorage
	events  *events.Service
	cron    *cron.Cron
	logger  arbor.ILogger
	cfg     common.SchedulerConfig

	mu         sync.Mutex
	running    bool
	pollCancel context.CancelFunc
	reaperStop *time.Ticker

	validate *validator.Validate
}

// New wires a Scheduler around its durable stores and event bus.
func New(jobs *sqlite.JobStorage, workers *sqlite.WorkerStorage, logs *sqlite.JobLogStorage, evs *events.Service, cfg common.SchedulerConfig, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		workers:  workers,
		logs:     logs,
		events:   evs,
		cron:     cron.New(),
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
	}
}

// Enqueue validates and persists a new PENDING job, returning its id.
func (s *Scheduler) Enqueue(ctx context.Context, spec models.JobSpec) (string, error) {
	if err := s.validate.Struct(spec); err != nil {
		return "", errctx.NewCoreError(errctx.CategoryInvalidInput, "invalid_job_spec", err, nil)
	}

	job := &models.AutomationJob{
		ID:             common.NewJobID(),
		TargetURL:      spec.TargetURL,
		Actions:        spec.Actions,
		BrowserFamily:  spec.BrowserFamily,
		Status:         models.JobStatusPending,
		Priority:       spec.Priority,
		MaxRetries:     spec.MaxRetries,
		TimeoutMs:      spec.TimeoutMs,
		WaitUntil:      spec.WaitUntil,
		BrowserStorage: spec.BrowserStorage,
		CorrelationID:  common.NewCorrelationID(),
		CreatedAt:      time.Now(),
	}

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	s.logger.Info().Str("job_id", job.ID).Str("target_url", job.TargetURL).Msg("job enqueued")
	return job.ID, nil
}

// ClaimNext attempts to dispatch the next job to workerID. Returns (nil, nil)
// if the queue is empty or the race was lost to another worker.
func (s *Scheduler) ClaimNext(ctx context.Context, workerID string) (*models.AutomationJob, error) {
	job, err := s.jobs.ClaimNext(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	if err := s.workers.SetStatus(ctx, workerID, models.WorkerStatusBusy, job.ID); err != nil {
		return nil, fmt.Errorf("mark worker busy: %w", err)
	}

	s.events.Publish(ctx, events.Event{
		Type:      events.EventJobStarted,
		JobID:     job.ID,
		Status:    string(job.Status),
		Timestamp: time.Now(),
	})
	return job, nil
}

// PublishProgress emits a job.progress event for (index+1)/total*100% (spec section 4.4 step 6).
func (s *Scheduler) PublishProgress(ctx context.Context, jobID string, index, total int) {
	pct := float64(index+1) / float64(total) * 100
	s.events.Publish(ctx, events.Event{
		Type:      events.EventJobProgress,
		JobID:     jobID,
		Status:    string(models.JobStatusProcessing),
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"percent": pct},
	})
}

// MarkCompleted finalizes a job as COMPLETED and publishes job.completed.
func (s *Scheduler) MarkCompleted(ctx context.Context, jobID string, result []models.ActionResult, artifacts []models.Artifact) error {
	if err := s.jobs.MarkCompleted(ctx, jobID, result, artifacts); err != nil {
		return err
	}
	s.events.Publish(ctx, events.Event{Type: events.EventJobCompleted, JobID: jobID, Status: string(models.JobStatusCompleted), Timestamp: time.Now()})
	return nil
}

// MarkOutcome applies C1's retry policy (spec section 4.1/7): retryable
// errors requeue with backoff; non-retryable or exhausted retries fail the job.
func (s *Scheduler) MarkOutcome(ctx context.Context, job *models.AutomationJob, failure error) error {
	category := errctx.Classify(failure)
	recoverable := errctx.IsRecoverable(failure)

	summary := models.ErrorSummary{
		Category:      string(category),
		Message:       failure.Error(),
		CorrelationID: job.CorrelationID,
		Attempts:      job.RetryCount + 1,
	}

	if recoverable && job.RetryCount < job.MaxRetries {
		backoff := time.Duration(math.Pow(float64(job.RetryCount+1), 2)) * time.Second
		if s.cfg.MaxRetryBackoff > 0 && backoff > s.cfg.MaxRetryBackoff {
			backoff = s.cfg.MaxRetryBackoff
		}
		if err := s.jobs.MarkRetry(ctx, job.ID, summary, backoff); err != nil {
			return err
		}
		s.logger.Warn().Str("job_id", job.ID).Str("category", string(category)).Dur("backoff", backoff).Msg("job scheduled for retry")
		return nil
	}

	if err := s.jobs.MarkFailed(ctx, job.ID, summary); err != nil {
		return err
	}
	s.events.Publish(ctx, events.Event{Type: events.EventJobFailed, JobID: job.ID, Status: string(models.JobStatusFailed), Timestamp: time.Now(), Data: map[string]interface{}{"category": string(category)}})
	return nil
}

// Cancel sets job to CANCELLED if it is not already terminal (spec section 4.1/5).
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	return s.jobs.MarkCancelled(ctx, jobID)
}

// JobStatus returns jobID's current persisted status, used by the processor
// to detect an external Cancel between action steps (spec section 5).
func (s *Scheduler) JobStatus(ctx context.Context, jobID string) (models.JobStatus, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// RecordPartialResult preserves the action results and artifacts produced
// before a job was cancelled mid-run, without disturbing its CANCELLED
// status or timestamps.
func (s *Scheduler) RecordPartialResult(ctx context.Context, jobID string, result []models.ActionResult, artifacts []models.Artifact) error {
	return s.jobs.RecordPartialResult(ctx, jobID, result, artifacts)
}

// Heartbeat records workerID's liveness.
func (s *Scheduler) Heartbeat(ctx context.Context, workerID string) error {
	return s.workers.Heartbeat(ctx, workerID)
}

// ReleaseWorker returns workerID to IDLE and clears its currentJob pointer
// (spec section 4.4 step 9), the counterpart to ClaimNext's BUSY transition.
func (s *Scheduler) ReleaseWorker(ctx context.Context, workerID string) error {
	return s.workers.SetStatus(ctx, workerID, models.WorkerStatusIdle, "")
}

// RegisterWorker persists a new worker record as IDLE.
func (s *Scheduler) RegisterWorker(ctx context.Context, w *models.BrowserWorker) error {
	w.Status = models.WorkerStatusIdle
	w.LastHeartbeatAt = time.Now()
	return s.workers.Register(ctx, w)
}

// ListActiveWorkers returns every worker not OFFLINE.
func (s *Scheduler) ListActiveWorkers(ctx context.Context) ([]*models.BrowserWorker, error) {
	return s.workers.ListActiveWorkers(ctx)
}

// ListLogs returns the durable job_logs rows for jobID (SPEC_FULL section 12).
func (s *Scheduler) ListLogs(ctx context.Context, jobID string) ([]models.JobLog, error) {
	return s.logs.ListByJob(ctx, jobID)
}

// AppendLog writes one durable JobLog row.
func (s *Scheduler) AppendLog(ctx context.Context, entry models.JobLog) {
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("job_id", entry.JobID).Msg("failed to append job log")
	}
}

// Drain marks a worker OFFLINE only after its current job reaches a terminal
// state or is requeued, instead of the reaper's hard cutover (SPEC_FULL
// section 12's supplemented graceful-drain feature).
func (s *Scheduler) Drain(ctx context.Context, workerID string, pollInterval time.Duration, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		workers, err := s.workers.ListActiveWorkers(ctx)
		if err != nil {
			return err
		}
		var w *models.BrowserWorker
		for _, cand := range workers {
			if cand.ID == workerID {
				w = cand
				break
			}
		}
		if w == nil || w.Status != models.WorkerStatusBusy {
			break
		}
		if time.Now().After(deadline) {
			if _, err := s.jobs.RequeueOrphansOf(ctx, workerID); err != nil {
				return err
			}
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return s.workers.SetStatus(ctx, workerID, models.WorkerStatusOffline, "")
}

// Start brings up the background reaper and cron-scheduled maintenance jobs.
// The 1Hz dispatch poll is caller-driven (workers call ClaimNext themselves)
// and is not started here.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true

	reaperCtx, cancel := context.WithCancel(ctx)
	s.pollCancel = cancel

	s.reaperStop = time.NewTicker(s.cfg.ReaperInterval)
	common.SafeGoWithContext(reaperCtx, s.logger, "scheduler-reaper", func() {
		for {
			select {
			case <-reaperCtx.Done():
				return
			case <-s.reaperStop.C:
				s.reapDeadWorkers(reaperCtx)
			}
		}
	})

	s.cron.Start()
	s.logger.Info().Msg("scheduler started")
	return nil
}

// Stop halts the reaper and cron maintenance jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if s.pollCancel != nil {
		s.pollCancel()
	}
	if s.reaperStop != nil {
		s.reaperStop.Stop()
	}
	s.cron.Stop()
	s.running = false
	s.logger.Info().Msg("scheduler stopped")
}

// RegisterMaintenance adds a robfig/cron-scheduled job (SPEC_FULL section 11:
// detection-cache sweep, transcription-cache sweep, solver performance log).
func (s *Scheduler) RegisterMaintenance(spec string, name string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug().Str("job", name).Msg("running scheduled maintenance")
		fn()
	})
	return err
}

// reapDeadWorkers marks workers with a stale heartbeat OFFLINE and requeues
// their current job back to PENDING (spec section 4.1's liveness invariant:
// a job never remains PROCESSING while its worker is OFFLINE).
func (s *Scheduler) reapDeadWorkers(ctx context.Context) {
	stale, err := s.workers.ListStaleWorkers(ctx, s.cfg.HeartbeatTimeout)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list stale workers")
		return
	}

	for _, w := range stale {
		n, err := s.jobs.RequeueOrphansOf(ctx, w.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("worker_id", w.ID).Msg("failed to requeue orphaned jobs")
			continue
		}
		if err := s.workers.SetStatus(ctx, w.ID, models.WorkerStatusOffline, ""); err != nil {
			s.logger.Error().Err(err).Str("worker_id", w.ID).Msg("failed to mark worker offline")
			continue
		}
		s.logger.Warn().Str("worker_id", w.ID).Int("requeued_jobs", n).Msg("dead worker reaped")
	}
}
