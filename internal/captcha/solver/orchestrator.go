package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/errctx"
	"github.com/corvidworks/hive/internal/models"
)

// Orchestrator routes a detected challenge to the best available solver and
// enforces fault tolerance across candidates (spec section 4.8).
type Orchestrator struct {
	registry          *Registry
	logger            arbor.ILogger
	maxAttempts       int
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
}

// NewOrchestrator builds an Orchestrator over registry using the retry knobs
// from common.SolverConfig.
func NewOrchestrator(registry *Registry, maxAttempts int, initialRetryDelay, maxRetryDelay time.Duration, logger arbor.ILogger) *Orchestrator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if initialRetryDelay <= 0 {
		initialRetryDelay = time.Second
	}
	if maxRetryDelay <= 0 {
		maxRetryDelay = 30 * time.Second
	}
	return &Orchestrator{
		registry:          registry,
		logger:            logger,
		maxAttempts:       maxAttempts,
		initialRetryDelay: initialRetryDelay,
		maxRetryDelay:     maxRetryDelay,
	}
}

// Solve implements spec 4.8's solve(challenge, context) algorithm.
func (o *Orchestrator) Solve(ctx context.Context, challenge models.Challenge) (models.SolveResult, error) {
	candidates := o.registry.candidates(challenge.Type.Tag)
	if len(candidates) == 0 {
		return models.SolveResult{}, o.unavailable(challenge, nil)
	}

	var attempts []errctx.AttemptError
	timeout := TimeoutFor(challenge.Type)
	candidateIndex := 0

	for attemptNum := 1; attemptNum <= o.maxAttempts && candidateIndex < len(candidates); attemptNum++ {
		e := candidates[candidateIndex]
		candidateIndex++

		if ctx.Err() != nil {
			return models.SolveResult{}, ctx.Err()
		}

		if !e.breaker.Allow() {
			attempts = append(attempts, errctx.AttemptError{
				SolverName: e.solver.Name(),
				Category:   errctx.CategoryCircuitOpen,
				Message:    "circuit breaker open",
				At:         time.Now(),
			})
			continue
		}

		if !e.tryAcquire(o.registry.maxConcurrency) {
			attempts = append(attempts, errctx.AttemptError{
				SolverName: e.solver.Name(),
				Category:   errctx.CategoryInternal,
				Message:    "solver at max concurrency",
				At:         time.Now(),
			})
			continue
		}

		result, err := o.attempt(ctx, e, challenge, timeout)
		e.release()

		if err == nil {
			return result, nil
		}

		attempts = append(attempts, errctx.AttemptError{
			SolverName: e.solver.Name(),
			Category:   errctx.Classify(err),
			Message:    err.Error(),
			At:         time.Now(),
		})

		if attemptNum < o.maxAttempts && candidateIndex < len(candidates) {
			if !o.sleepBackoff(ctx, attemptNum) {
				return models.SolveResult{}, ctx.Err()
			}
		}
	}

	return models.SolveResult{}, o.unavailable(challenge, attempts)
}

func (o *Orchestrator) attempt(ctx context.Context, e *entry, challenge models.Challenge, timeout time.Duration) (models.SolveResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := e.solver.Solve(attemptCtx, challenge)
	elapsed := time.Since(start)

	e.recordOutcome(err == nil, elapsed)

	if err != nil {
		return models.SolveResult{}, err
	}
	return result, nil
}

// sleepBackoff applies exponential backoff between candidates: initialDelay
// * 2^(attempt-1), capped at maxRetryDelay (spec 4.8 step 3).
func (o *Orchestrator) sleepBackoff(ctx context.Context, attempt int) bool {
	delay := time.Duration(float64(o.initialRetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay > o.maxRetryDelay {
		delay = o.maxRetryDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) unavailable(challenge models.Challenge, attempts []errctx.AttemptError) error {
	agg := errctx.NewAggregate(attempts, nil)
	return errctx.NewCoreError(errctx.CategorySolverUnavailable, "solver_unavailable",
		fmt.Errorf("no solver available for %s: %s", challenge.Type.Tag, agg.Summary()), nil)
}
