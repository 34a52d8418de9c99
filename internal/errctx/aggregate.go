package errctx

import (
	"fmt"
	"strings"
	"time"
)

// AttemptError is one candidate/attempt's recorded failure, used by
// SolverUnavailable reporting (spec section 7).
type AttemptError struct {
	SolverName string
	Category   Category
	Message    string
	At         time.Time
}

// Aggregate combines multi-attempt failures into the structure spec section
// 4.9/8 describes: {errors[], totalAttempts, firstError, lastError,
// mostCommonCategory, totalDuration, errorContext}.
type Aggregate struct {
	Errors             []AttemptError
	TotalAttempts      int
	FirstError         *AttemptError
	LastError          *AttemptError
	MostCommonCategory Category
	TotalDuration      time.Duration
	ErrorContext       *Context
}

// NewAggregate builds an Aggregate from an ordered list of attempt errors.
func NewAggregate(errs []AttemptError, ctx *Context) *Aggregate {
	agg := &Aggregate{
		Errors:        errs,
		TotalAttempts: len(errs),
		ErrorContext:  ctx,
	}
	if len(errs) == 0 {
		return agg
	}

	agg.FirstError = &errs[0]
	agg.LastError = &errs[len(errs)-1]
	agg.TotalDuration = errs[len(errs)-1].At.Sub(errs[0].At)

	counts := make(map[Category]int)
	best := Category("")
	bestCount := 0
	for _, e := range errs {
		counts[e.Category]++
		if counts[e.Category] > bestCount {
			best = e.Category
			bestCount = counts[e.Category]
		}
	}
	agg.MostCommonCategory = best
	return agg
}

// Summary produces the one-line human-readable summary spec section 4.9 requires.
func (a *Aggregate) Summary() string {
	if a.TotalAttempts == 0 {
		return "no attempts recorded"
	}
	names := make([]string, 0, len(a.Errors))
	for _, e := range a.Errors {
		names = append(names, fmt.Sprintf("%s(%s)", e.SolverName, e.Category))
	}
	return fmt.Sprintf("%d attempts failed [%s], most common category=%s, last=%q",
		a.TotalAttempts, strings.Join(names, ", "), a.MostCommonCategory, a.LastError.Message)
}
