package solver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidworks/hive/internal/errctx"
	"github.com/corvidworks/hive/internal/models"
)

type scriptedSolver struct {
	name    string
	systems []models.AntiBotSystem
	results []error
	calls   int
}

func (s *scriptedSolver) Name() string                                   { return s.name }
func (s *scriptedSolver) SupportedChallengeTypes() []models.AntiBotSystem { return s.systems }
func (s *scriptedSolver) Solve(ctx context.Context, challenge models.Challenge) (models.SolveResult, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	if s.results[idx] != nil {
		return models.SolveResult{}, s.results[idx]
	}
	return models.SolveResult{Token: "token-" + s.name, SolverID: s.name}, nil
}

func recaptchaChallenge() models.Challenge {
	return models.Challenge{Type: models.ChallengeRecaptchaV3, PageURL: "https://example.com"}
}

func TestOrchestratorReturnsSuccessFromHighestRankedCandidate(t *testing.T) {
	r := New(3, time.Minute, 5)
	r.Register(&scriptedSolver{name: "a", systems: []models.AntiBotSystem{models.SystemRecaptcha}, results: []error{nil}}, 10)
	o := NewOrchestrator(r, 3, time.Millisecond, 5*time.Millisecond, nil)

	result, err := o.Solve(context.Background(), recaptchaChallenge())

	require.NoError(t, err)
	assert.Equal(t, "token-a", result.Token)
}

func TestOrchestratorFallsThroughToNextCandidateOnFailure(t *testing.T) {
	r := New(3, time.Minute, 5)
	failing := &scriptedSolver{name: "fails", systems: []models.AntiBotSystem{models.SystemRecaptcha}, results: []error{fmt.Errorf("boom")}}
	working := &scriptedSolver{name: "works", systems: []models.AntiBotSystem{models.SystemRecaptcha}, results: []error{nil}}
	r.Register(failing, 10)
	r.Register(working, 5)
	o := NewOrchestrator(r, 3, time.Millisecond, 5*time.Millisecond, nil)

	result, err := o.Solve(context.Background(), recaptchaChallenge())

	require.NoError(t, err)
	assert.Equal(t, "token-works", result.Token)
	assert.Equal(t, 1, failing.calls)
}

func TestOrchestratorReturnsSolverUnavailableWhenNoCandidatesRegistered(t *testing.T) {
	r := New(3, time.Minute, 5)
	o := NewOrchestrator(r, 3, time.Millisecond, 5*time.Millisecond, nil)

	_, err := o.Solve(context.Background(), recaptchaChallenge())

	require.Error(t, err)
	assert.Equal(t, errctx.CategorySolverUnavailable, errctx.Classify(err))
}

func TestOrchestratorExhaustsAllCandidatesThenReturnsAggregateError(t *testing.T) {
	r := New(3, time.Minute, 5)
	a := &scriptedSolver{name: "a", systems: []models.AntiBotSystem{models.SystemRecaptcha}, results: []error{fmt.Errorf("a failed")}}
	b := &scriptedSolver{name: "b", systems: []models.AntiBotSystem{models.SystemRecaptcha}, results: []error{fmt.Errorf("b failed")}}
	r.Register(a, 10)
	r.Register(b, 5)
	o := NewOrchestrator(r, 2, time.Millisecond, 5*time.Millisecond, nil)

	_, err := o.Solve(context.Background(), recaptchaChallenge())

	require.Error(t, err)
	assert.Equal(t, errctx.CategorySolverUnavailable, errctx.Classify(err))
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestOrchestratorSkipsSolverWithOpenCircuitBreaker(t *testing.T) {
	r := New(1, time.Minute, 5)
	tripped := &scriptedSolver{name: "tripped", systems: []models.AntiBotSystem{models.SystemRecaptcha}, results: []error{nil}}
	r.Register(tripped, 10)
	r.entries["tripped"].breaker.RecordFailure()

	fallback := &scriptedSolver{name: "fallback", systems: []models.AntiBotSystem{models.SystemRecaptcha}, results: []error{nil}}
	r.Register(fallback, 5)

	o := NewOrchestrator(r, 3, time.Millisecond, 5*time.Millisecond, nil)

	result, err := o.Solve(context.Background(), recaptchaChallenge())

	require.NoError(t, err)
	assert.Equal(t, "token-fallback", result.Token)
	assert.Zero(t, tripped.calls, "open-circuit solver should never be invoked")
}

func TestOrchestratorRecordsOutcomeOnEntryAfterAttempt(t *testing.T) {
	r := New(3, time.Minute, 5)
	r.Register(&scriptedSolver{name: "a", systems: []models.AntiBotSystem{models.SystemRecaptcha}, results: []error{nil}}, 10)
	o := NewOrchestrator(r, 3, time.Millisecond, 5*time.Millisecond, nil)

	_, err := o.Solve(context.Background(), recaptchaChallenge())
	require.NoError(t, err)

	assert.NotZero(t, r.entries["a"].metrics.AverageResponseTime)
	assert.Equal(t, models.CircuitClosed, r.entries["a"].breaker.State())
}

func TestOrchestratorRespectsContextCancellationBetweenAttempts(t *testing.T) {
	r := New(3, time.Minute, 5)
	a := &scriptedSolver{name: "a", systems: []models.AntiBotSystem{models.SystemRecaptcha}, results: []error{fmt.Errorf("fail")}}
	b := &scriptedSolver{name: "b", systems: []models.AntiBotSystem{models.SystemRecaptcha}, results: []error{nil}}
	r.Register(a, 10)
	r.Register(b, 5)
	o := NewOrchestrator(r, 3, 50*time.Millisecond, 100*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := o.Solve(ctx, recaptchaChallenge())

	assert.Error(t, err)
	assert.Zero(t, b.calls, "candidate b should never run once the context is cancelled during backoff")
}
