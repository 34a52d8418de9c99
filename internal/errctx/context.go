// Package errctx threads a correlation scope through a job attempt using
// context.Context values rather than goroutine-local storage, per the
// standard Go context-propagation idiom every async boundary must preserve.
package errctx

import (
	"context"
	"time"
)

type ctxKey struct{}

// Timing is a single start/end measurement recorded against the scope.
type Timing struct {
	Label    string
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// Context is the scoped record carried through an attempt (spec section 3).
// It is held by pointer inside the *Scope installed in context.Context; the
// helpers below mutate it in place without locking, and GetContext returns a
// shallow copy.
type Context struct {
	CorrelationID   string
	SolverType      string
	AttemptNumber   int
	Timings         []Timing
	AdditionalContext map[string]interface{}
}

// Scope is the mutable holder installed into a context.Context so descendants
// sharing the same context.Context value observe updates made via the helpers below.
type Scope struct {
	data *Context
}

func newScope(correlationID, solverType string) *Scope {
	return &Scope{data: &Context{
		CorrelationID:     correlationID,
		SolverType:        solverType,
		AttemptNumber:     1,
		AdditionalContext: make(map[string]interface{}),
	}}
}

// RunInScope establishes a new ErrorContext scope visible to body and everything
// it calls, including across goroutines started with the returned context.
// If correlationID is empty a fresh UUID-shaped one is not generated here —
// callers that need one should supply common.NewCorrelationID().
func RunInScope(ctx context.Context, correlationID, solverType string, body func(context.Context) error) error {
	scope := newScope(correlationID, solverType)
	return body(context.WithValue(ctx, ctxKey{}, scope))
}

// GetContext returns the active ErrorContext snapshot, or nil if no scope is active.
func GetContext(ctx context.Context) *Context {
	scope, ok := ctx.Value(ctxKey{}).(*Scope)
	if !ok {
		return nil
	}
	snapshot := *scope.data
	return &snapshot
}

// AddTiming records a start/end measurement on the active scope, if any.
func AddTiming(ctx context.Context, label string, start, end time.Time) {
	scope, ok := ctx.Value(ctxKey{}).(*Scope)
	if !ok {
		return
	}
	scope.data.Timings = append(scope.data.Timings, Timing{
		Label:    label,
		Start:    start,
		End:      end,
		Duration: end.Sub(start),
	})
}

// SetSolverMetadata updates the active scope's solverType, if any.
func SetSolverMetadata(ctx context.Context, solverType string) {
	if scope, ok := ctx.Value(ctxKey{}).(*Scope); ok {
		scope.data.SolverType = solverType
	}
}

// SetAttemptNumber updates the active scope's attempt counter, if any.
func SetAttemptNumber(ctx context.Context, attempt int) {
	if scope, ok := ctx.Value(ctxKey{}).(*Scope); ok {
		scope.data.AttemptNumber = attempt
	}
}

// AddAdditionalContext stashes an arbitrary key/value on the active scope, if any.
func AddAdditionalContext(ctx context.Context, key string, value interface{}) {
	if scope, ok := ctx.Value(ctxKey{}).(*Scope); ok {
		scope.data.AdditionalContext[key] = value
	}
}
