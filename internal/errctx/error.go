package errctx

import "fmt"

// Category is the error classification table of spec section 7.
type Category string

const (
	CategoryTimeout          Category = "Timeout"
	CategoryNetwork          Category = "Network"
	CategoryInvalidInput     Category = "InvalidInput"
	CategoryAuth             Category = "Auth"
	CategoryRateLimited      Category = "RateLimited"
	CategoryCircuitOpen      Category = "CircuitOpen"
	CategorySolverUnavailable Category = "SolverUnavailable"
	CategoryInternal         Category = "Internal"
)

// defaultRecoverable mirrors the "Recoverable" column of the spec section 7 table.
var defaultRecoverable = map[Category]bool{
	CategoryTimeout:           true,
	CategoryNetwork:           true,
	CategoryInvalidInput:      false,
	CategoryAuth:              false,
	CategoryRateLimited:       true,
	CategoryCircuitOpen:       true,
	CategorySolverUnavailable: false,
	CategoryInternal:          false,
}

// CoreError wraps an underlying error with the classification and scope
// needed by C1's retry decision and by user-visible failure reporting.
type CoreError struct {
	Category      Category
	Code          string
	IsRecoverable bool
	Context       *Context
	Err           error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Code)
}

func (e *CoreError) Unwrap() error { return e.Err }

// NewCoreError builds a CoreError using the category's default recoverability.
func NewCoreError(category Category, code string, err error, ctx *Context) *CoreError {
	return &CoreError{
		Category:      category,
		Code:          code,
		IsRecoverable: defaultRecoverable[category],
		Context:       ctx,
		Err:           err,
	}
}

// Classify maps a bare error to a Category. Callers at the chromedp/HTTP
// boundary (navigation, evaluate, provider calls) should prefer building a
// CoreError directly when they know the category; Classify is the fallback
// for errors surfacing from opaque dependencies.
func Classify(err error) Category {
	if err == nil {
		return CategoryInternal
	}
	if ce, ok := err.(*CoreError); ok {
		return ce.Category
	}
	return CategoryInternal
}

// IsRecoverable reports whether err (a *CoreError or otherwise) should be retried.
func IsRecoverable(err error) bool {
	if ce, ok := err.(*CoreError); ok {
		return ce.IsRecoverable
	}
	return false
}
