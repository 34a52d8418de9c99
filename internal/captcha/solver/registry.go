package solver

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/corvidworks/hive/internal/models"
)

// Solver solves one detected Challenge, returning a usable token.
type Solver interface {
	Name() string
	SupportedChallengeTypes() []models.AntiBotSystem
	Solve(ctx context.Context, challenge models.Challenge) (models.SolveResult, error)
}

// entry is one registry row: the solver implementation plus its rolling
// performance tracker and circuit breaker (spec section 4.8).
type entry struct {
	solver     Solver
	priority   int
	enabled    bool
	breaker    *CircuitBreaker
	mu         sync.Mutex
	inFlight   int
	metrics    models.CapabilityMetrics
}

func (e *entry) supports(system models.AntiBotSystem) bool {
	for _, s := range e.solver.SupportedChallengeTypes() {
		if s == system {
			return true
		}
	}
	return false
}

// Registry maps solverName -> {constructor, capability} per spec 4.8 and
// ranks candidates for a given challenge.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	failureThreshold int
	timeoutPeriod    time.Duration
	maxConcurrency   int
}

// New builds a Registry; failureThreshold/timeoutPeriod size every solver's
// circuit breaker, maxConcurrency bounds per-solver in-flight attempts.
func New(failureThreshold int, timeoutPeriod time.Duration, maxConcurrency int) *Registry {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Registry{
		entries:          make(map[string]*entry),
		failureThreshold: failureThreshold,
		timeoutPeriod:    timeoutPeriod,
		maxConcurrency:   maxConcurrency,
	}
}

// Register adds or replaces a named solver. Registering an existing name
// leaves its breaker/metrics behind and starts fresh, matching spec 4.8's
// idempotence law: register; unregister; register again is semantically a
// single register.
func (r *Registry) Register(s Solver, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[s.Name()] = &entry{
		solver:   s,
		priority: priority,
		enabled:  true,
		breaker:  NewCircuitBreaker(r.failureThreshold, r.timeoutPeriod),
	}
}

// Unregister removes a solver by name; a no-op if absent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// SetEnabled toggles isEnabled for a registered solver.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.enabled = enabled
	}
}

// candidates returns the entries eligible for system, sorted by
// (priority DESC, successRate DESC, averageResponseTime ASC) per spec 4.8.
func (r *Registry) candidates(system models.AntiBotSystem) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entry
	for _, e := range r.entries {
		if !e.enabled || !e.supports(system) {
			continue
		}
		if e.breaker.State() == models.CircuitOpen {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.metrics.RollingSuccessRate != b.metrics.RollingSuccessRate {
			return a.metrics.RollingSuccessRate > b.metrics.RollingSuccessRate
		}
		return a.metrics.AverageResponseTime < b.metrics.AverageResponseTime
	})
	return out
}

// Descriptors returns a snapshot of every registered solver's public state,
// useful for diagnostics/admin surfaces.
func (r *Registry) Descriptors() []models.SolverDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.SolverDescriptor, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, models.SolverDescriptor{
			Name:                    name,
			SupportedChallengeTypes: e.solver.SupportedChallengeTypes(),
			Priority:                e.priority,
			Enabled:                 e.enabled,
			Capability:              e.metrics,
		})
	}
	return out
}

// recordOutcome updates the entry's EMA-based performance tracker and
// circuit breaker after one attempt (spec 4.8: "update performance tracker
// (EMA of solvingTime, successRate); close/half-close breaker").
func (e *entry) recordOutcome(success bool, elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	const alpha = 0.3 // EMA smoothing factor
	if e.metrics.AverageResponseTime == 0 {
		e.metrics.AverageResponseTime = elapsed
	} else {
		e.metrics.AverageResponseTime = time.Duration(alpha*float64(elapsed) + (1-alpha)*float64(e.metrics.AverageResponseTime))
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	if e.metrics.RollingSuccessRate == 0 && !success {
		e.metrics.RollingSuccessRate = outcome
	} else {
		e.metrics.RollingSuccessRate = alpha*outcome + (1-alpha)*e.metrics.RollingSuccessRate
	}

	if success {
		e.breaker.RecordSuccess()
	} else {
		e.breaker.RecordFailure()
	}
}

func (e *entry) tryAcquire(maxConcurrency int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight >= maxConcurrency {
		return false
	}
	e.inFlight++
	return true
}

func (e *entry) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight--
}
