// Package jobprocessor implements C4: the per-worker execution loop that
// realizes a dispatched AutomationJob (spec section 4.4).
package jobprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/browsercontext"
	"github.com/corvidworks/hive/internal/browserpool"
	"github.com/corvidworks/hive/internal/common"
	"github.com/corvidworks/hive/internal/errctx"
	"github.com/corvidworks/hive/internal/jobprocessor/actions"
	"github.com/corvidworks/hive/internal/models"
	"github.com/corvidworks/hive/internal/scheduler"
)

// Pools resolves a browser pool by family; cmd/hive builds one Pool per
// configured BrowserFamily and hands this lookup to the processor.
type Pools interface {
	Get(family models.BrowserFamily) (*browserpool.Pool, bool)
}

// RegistryFactory builds the action registry for a job, letting the caller
// graft solveCaptcha in (internal/captcha/solver) without this package
// importing the captcha tree.
type RegistryFactory func(page actions.PageDriver) *actions.Registry

// Processor executes dispatched jobs to completion (spec section 4.4).
type Processor struct {
	sched     *scheduler.Scheduler
	pools     Pools
	cfg       common.ContextConfig
	logger    arbor.ILogger
	newRegistry RegistryFactory
}

// New builds a Processor. newRegistry defaults to actions.NewRegistry when nil.
func New(sched *scheduler.Scheduler, pools Pools, cfg common.ContextConfig, logger arbor.ILogger, newRegistry RegistryFactory) *Processor {
	if newRegistry == nil {
		newRegistry = func(page actions.PageDriver) *actions.Registry { return actions.NewRegistry(page) }
	}
	return &Processor{sched: sched, pools: pools, cfg: cfg, logger: logger, newRegistry: newRegistry}
}

// Run executes job end to end per spec section 4.4's nine-step sequence,
// reporting the outcome back through the scheduler and never leaving
// workerID stuck BUSY regardless of how execution ends.
func (p *Processor) Run(ctx context.Context, job *models.AutomationJob, workerID string) {
	err := errctx.RunInScope(ctx, job.CorrelationID, "job", func(scopedCtx context.Context) error {
		return p.run(scopedCtx, job, workerID)
	})

	if err != nil {
		if markErr := p.sched.MarkOutcome(ctx, job, err); markErr != nil {
			p.logger.Error().Err(markErr).Str("job_id", job.ID).Msg("failed to record job outcome")
		}
		if relErr := p.sched.ReleaseWorker(context.Background(), workerID); relErr != nil {
			p.logger.Warn().Err(relErr).Str("worker_id", workerID).Msg("failed to release worker back to idle")
		}
		return
	}
}

func (p *Processor) run(ctx context.Context, job *models.AutomationJob, workerID string) (execErr error) {
	pool, ok := p.pools.Get(job.BrowserFamily)
	if !ok {
		return errctx.NewCoreError(errctx.CategoryInternal, "no_pool_for_family", fmt.Errorf("no browser pool configured for family %s", job.BrowserFamily), nil)
	}

	browserCtx, releaseBrowser, err := pool.Acquire(ctx)
	if err != nil {
		return errctx.NewCoreError(errctx.CategoryInternal, "acquire_failed", err, nil)
	}

	bctx, err := browsercontext.Create(browserCtx, contextOptionsFor(job, p.cfg), p.logger)
	if err != nil {
		releaseBrowser()
		return errctx.NewCoreError(errctx.CategoryInternal, "context_create_failed", err, nil)
	}

	defer func() {
		p.cleanup(bctx, releaseBrowser, workerID, execErr)
	}()

	if job.BrowserStorage != nil {
		if err := seedCookies(bctx.Ctx, job.BrowserStorage.Cookies); err != nil {
			p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to seed cookies")
		}
	}

	driver := &chromedpPageDriver{ctx: bctx.Ctx}
	if err := driver.Navigate(job.TargetURL, job.WaitUntil, navigateTimeout(job)); err != nil {
		return errctx.NewCoreError(errctx.Classify(err), "navigate_failed", err, nil)
	}

	if job.BrowserStorage != nil {
		if err := seedWebStorage(bctx.Ctx, job.BrowserStorage.LocalStorage, job.BrowserStorage.SessionStorage); err != nil {
			p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to seed web storage")
		}
	}

	registry := p.newRegistry(driver)

	results := make([]models.ActionResult, 0, len(job.Actions))
	var artifacts []models.Artifact

	for i, action := range job.Actions {
		// spec section 5: check for an external Cancel before every action
		// step and abort the remaining action list if one landed.
		status, err := p.sched.JobStatus(ctx, job.ID)
		if err != nil {
			return errctx.NewCoreError(errctx.CategoryInternal, "status_check_failed", err, nil)
		}
		if status == models.JobStatusCancelled {
			job.Result = results
			job.Artifacts = artifacts
			if err := p.sched.RecordPartialResult(ctx, job.ID, results, artifacts); err != nil {
				p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record partial result for cancelled job")
			}
			p.logger.Info().Str("job_id", job.ID).Int("completed_actions", i).Msg("job cancelled, aborting remaining actions")
			return nil
		}

		if action.Type == models.ActionSummarizePdf {
			action = withPriorResults(action, results)
		}
		result := registry.Execute(ctx, action)
		results = append(results, result)
		p.sched.PublishProgress(ctx, job.ID, i, len(job.Actions))

		if artifact, ok := artifactFrom(result); ok {
			artifacts = append(artifacts, artifact)
		}

		if !result.Success {
			job.Result = results
			job.Artifacts = artifacts
			return errctx.NewCoreError(errctx.CategoryInternal, "action_failed", fmt.Errorf("action %q failed: %s", action.Type, result.Error), nil)
		}
	}

	if err := p.sched.MarkCompleted(ctx, job.ID, results, artifacts); err != nil {
		return err
	}
	return nil
}

// cleanup is the guaranteed finally block of spec section 4.4 step 9: every
// individual failure is logged and non-fatal, execution always continues to
// the next cleanup step and always returns the worker to IDLE.
func (p *Processor) cleanup(bctx *browsercontext.Context, releaseBrowser func(), workerID string, execErr error) {
	if err := clearCookies(bctx.Ctx); err != nil {
		p.logger.Debug().Err(err).Msg("cleanup: failed to clear cookies")
	}
	if err := clearWebStorage(bctx.Ctx); err != nil {
		p.logger.Debug().Err(err).Msg("cleanup: failed to clear web storage")
	}
	bctx.Close()
	releaseBrowser()

	if err := p.sched.ReleaseWorker(context.Background(), workerID); err != nil {
		p.logger.Warn().Err(err).Str("worker_id", workerID).Msg("cleanup: failed to release worker back to idle")
	}
	if err := p.sched.Heartbeat(context.Background(), workerID); err != nil {
		p.logger.Debug().Err(err).Msg("cleanup: failed to heartbeat worker after job")
	}
}

// withPriorResults copies action and grafts the job's accumulated results so
// far onto it under an internal key, letting the summarizePdf handler build
// its report without the actions package depending on Processor internals.
func withPriorResults(action models.Action, results []models.ActionResult) models.Action {
	params := make(map[string]interface{}, len(action.Parameters)+1)
	for k, v := range action.Parameters {
		params[k] = v
	}
	params["_priorResults"] = results
	action.Parameters = params
	return action
}

func navigateTimeout(job *models.AutomationJob) time.Duration {
	if job.TimeoutMs > 0 {
		return time.Duration(job.TimeoutMs) * time.Millisecond
	}
	return 30 * time.Second
}

func contextOptionsFor(job *models.AutomationJob, cfg common.ContextConfig) browsercontext.Options {
	return browsercontext.Options{
		ViewportWidth:     cfg.ViewportWidth,
		ViewportHeight:    cfg.ViewportHeight,
		Locale:            cfg.DefaultLocale,
		TimezoneID:        cfg.DefaultTimezone,
		IgnoreHTTPSErrors: true,
		HardwareMin:       cfg.HardwareMin,
		HardwareMax:       cfg.HardwareMax,
	}
}

// artifactFrom extracts an Artifact from an action result carrying an
// internal "_artifactData" payload (screenshot, markdown extract), stripping
// the internal key so it never leaks into the persisted result JSON.
func artifactFrom(result models.ActionResult) (models.Artifact, bool) {
	if result.Data == nil {
		return models.Artifact{}, false
	}
	raw, ok := result.Data["_artifactData"]
	if !ok {
		return models.Artifact{}, false
	}
	data, ok := raw.([]byte)
	if !ok {
		return models.Artifact{}, false
	}
	delete(result.Data, "_artifactData")

	contentType, _ := result.Data["contentType"].(string)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return models.Artifact{ContentType: contentType, Size: len(data), Data: data}, true
}
