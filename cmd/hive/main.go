package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/browserpool"
	"github.com/corvidworks/hive/internal/captcha/audio"
	"github.com/corvidworks/hive/internal/captcha/detection"
	"github.com/corvidworks/hive/internal/captcha/solver"
	"github.com/corvidworks/hive/internal/captcha/solver/external"
	"github.com/corvidworks/hive/internal/common"
	"github.com/corvidworks/hive/internal/events"
	"github.com/corvidworks/hive/internal/jobprocessor"
	"github.com/corvidworks/hive/internal/jobprocessor/actions"
	"github.com/corvidworks/hive/internal/models"
	"github.com/corvidworks/hive/internal/scheduler"
	"github.com/corvidworks/hive/internal/storage/cache"
	"github.com/corvidworks/hive/internal/storage/sqlite"
)

var (
	configPath  = flag.String("config", "", "Path to hive.toml (optional; defaults are used when absent)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(common.GetFullVersion())
		os.Exit(0)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	logger := common.SetupLogger(cfg)
	common.InitLogger(logger)
	defer common.Stop()

	common.PrintBanner(cfg, logger)

	app, err := wireApplication(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire application")
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.scheduler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}

	workerCount := cfg.Scheduler.MaxConcurrentJobs
	if workerCount <= 0 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		common.SafeGoWithContext(ctx, logger, fmt.Sprintf("worker-%d", i), func() {
			runWorkerLoop(ctx, app, models.BrowserFamilyChromium)
		})
	}

	logger.Info().Int("workers", workerCount).Msg("hive ready - press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("interrupt received, shutting down")
	cancel()
	app.scheduler.Stop()

	common.PrintShutdownBanner(logger)
}

// application bundles every long-lived component wireApplication assembles,
// mirroring the teacher's app.Application lifecycle shape (New/Close).
type application struct {
	cfg          *common.Config
	logger       arbor.ILogger
	db           *sqlite.DB
	cacheStore   *cache.Store
	scheduler    *scheduler.Scheduler
	pools        jobprocessor.PoolSet
	processor    *jobprocessor.Processor
	detector     *detection.Registry
	orchestrator *solver.Orchestrator
}

func (a *application) Close() {
	for _, pool := range a.pools {
		pool.Cleanup()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close sqlite connection")
		}
	}
	if a.cacheStore != nil {
		if err := a.cacheStore.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close cache store")
		}
	}
}

// wireApplication builds every component in dependency order: storage,
// caches, event bus, scheduler, captcha detection/solving, browser pool,
// job processor, then registers the cache-sweep maintenance jobs.
func wireApplication(cfg *common.Config, logger arbor.ILogger) (*application, error) {
	db, err := sqlite.Open(cfg.Storage.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	cacheStore, err := cache.Open(cfg.Storage.BadgerPath, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open cache store: %w", err)
	}

	jobs := sqlite.NewJobStorage(db, logger)
	workers := sqlite.NewWorkerStorage(db, logger)
	logs := sqlite.NewJobLogStorage(db, logger)
	evs := events.NewService(logger)

	sched := scheduler.New(jobs, workers, logs, evs, cfg.Scheduler, logger)

	detectionCache := cache.NewDetectionCache(cacheStore, logger)
	transcriptionCache := cache.NewTranscriptionCache(cacheStore, logger)
	detector := detection.New(detectionCache, cfg.Captcha, logger)
	audioPipeline := audio.New(transcriptionCache, cfg.Audio, logger)
	_ = audioPipeline // wired into native solvers once a concrete widget.Driver exists; see DESIGN.md

	registry := solver.New(cfg.Captcha.CircuitBreakerFailureThreshold, cfg.Captcha.CircuitBreakerTimeoutPeriod, cfg.Solver.MaxConcurrency)
	registerExternalSolvers(registry)
	orchestrator := solver.NewOrchestrator(registry, cfg.Solver.MaxAttempts, cfg.Solver.InitialRetryDelay, cfg.Solver.MaxRetryDelay, logger)

	poolCtx := context.Background()
	pool, err := browserpool.New(poolCtx, models.BrowserFamilyChromium, cfg.Pool, logger)
	if err != nil {
		db.Close()
		cacheStore.Close()
		return nil, fmt.Errorf("start browser pool: %w", err)
	}
	pools := jobprocessor.PoolSet{models.BrowserFamilyChromium: pool}

	newRegistry := func(page actions.PageDriver) *actions.Registry {
		r := actions.NewRegistry(page)
		r.Register(models.ActionSolveCaptcha, solver.ActionHandler(detector, orchestrator, page))
		return r
	}
	processor := jobprocessor.New(sched, pools, cfg.Context, logger, newRegistry)

	if err := sched.RegisterMaintenance("@every 10m", "detection-cache-sweep", func() {
		if n, err := detectionCache.SweepExpired(); err != nil {
			logger.Warn().Err(err).Msg("detection cache sweep failed")
		} else if n > 0 {
			logger.Debug().Int("swept", n).Msg("detection cache sweep")
		}
	}); err != nil {
		return nil, fmt.Errorf("register detection cache sweep: %w", err)
	}

	if err := sched.RegisterMaintenance("@every 10m", "transcription-cache-sweep", func() {
		if n, err := transcriptionCache.SweepExpired(); err != nil {
			logger.Warn().Err(err).Msg("transcription cache sweep failed")
		} else if n > 0 {
			logger.Debug().Int("swept", n).Msg("transcription cache sweep")
		}
	}); err != nil {
		return nil, fmt.Errorf("register transcription cache sweep: %w", err)
	}

	if err := sched.RegisterMaintenance("@every 1m", "solver-performance-log", func() {
		for _, d := range registry.Descriptors() {
			logger.Debug().
				Str("solver", d.Name).
				Bool("enabled", d.Enabled).
				Float64("success_rate", d.Capability.RollingSuccessRate).
				Dur("avg_response_time", d.Capability.AverageResponseTime).
				Msg("solver performance")
		}
	}); err != nil {
		return nil, fmt.Errorf("register solver performance log: %w", err)
	}

	return &application{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		cacheStore:   cacheStore,
		scheduler:    sched,
		pools:        pools,
		processor:    processor,
		detector:     detector,
		orchestrator: orchestrator,
	}, nil
}

// registerExternalSolvers wires the paid HTTP fallback solvers when their
// API keys are present in the environment; absent credentials mean the
// orchestrator simply has fewer candidates (spec section 5's lazy-loading
// convention, mirrored from C7's provider loading).
func registerExternalSolvers(registry *solver.Registry) {
	allSystems := []models.AntiBotSystem{models.SystemRecaptcha, models.SystemHCaptcha, models.SystemTurnstile}

	if keys := common.APIKeysFromEnv("2CAPTCHA_API_KEY"); len(keys) > 0 {
		registry.Register(external.New2Captcha(keys, allSystems), 1)
	}
	if keys := common.APIKeysFromEnv("ANTICAPTCHA_API_KEY"); len(keys) > 0 {
		registry.Register(external.NewAntiCaptcha(keys, allSystems), 1)
	}
}

// runWorkerLoop registers one browser worker and repeatedly claims and runs
// jobs until ctx is cancelled, then drains in-flight work before going
// offline (spec section 4.1's worker lifecycle).
func runWorkerLoop(ctx context.Context, app *application, family models.BrowserFamily) {
	workerID := common.NewWorkerID()
	worker := &models.BrowserWorker{
		ID:              workerID,
		BrowserFamily:   family,
		Status:          models.WorkerStatusIdle,
		LastHeartbeatAt: time.Now(),
	}
	if err := app.scheduler.RegisterWorker(ctx, worker); err != nil {
		app.logger.Error().Err(err).Str("worker_id", workerID).Msg("failed to register worker")
		return
	}

	heartbeat := time.NewTicker(app.cfg.Scheduler.HeartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(app.cfg.Scheduler.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := app.scheduler.Drain(drainCtx, workerID, app.cfg.Scheduler.PollInterval, 30*time.Second); err != nil {
				app.logger.Warn().Err(err).Str("worker_id", workerID).Msg("worker drain failed")
			}
			cancel()
			return
		case <-heartbeat.C:
			if err := app.scheduler.Heartbeat(ctx, workerID); err != nil {
				app.logger.Warn().Err(err).Str("worker_id", workerID).Msg("heartbeat failed")
			}
		case <-poll.C:
			job, err := app.scheduler.ClaimNext(ctx, workerID)
			if err != nil {
				app.logger.Warn().Err(err).Str("worker_id", workerID).Msg("claim failed")
				continue
			}
			if job == nil {
				continue
			}
			app.processor.Run(ctx, job, workerID)
		}
	}
}
