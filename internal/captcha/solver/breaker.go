package solver

import (
	"sync"
	"time"

	"github.com/corvidworks/hive/internal/models"
)

// CircuitBreaker is the explicit three-state machine spec section 4.8
// describes, generalizing the teacher pack's threshold-based open/closed
// breaker (see other_examples' funding webhook processor) with an explicit
// HALF_OPEN single-trial state instead of a silent timeout-based retry.
type CircuitBreaker struct {
	mu                  sync.Mutex
	state               models.CircuitState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    bool

	failureThreshold int
	timeoutPeriod    time.Duration
}

// NewCircuitBreaker builds a breaker starting CLOSED.
func NewCircuitBreaker(failureThreshold int, timeoutPeriod time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if timeoutPeriod <= 0 {
		timeoutPeriod = 60 * time.Second
	}
	return &CircuitBreaker{
		state:            models.CircuitClosed,
		failureThreshold: failureThreshold,
		timeoutPeriod:    timeoutPeriod,
	}
}

// State reports the breaker's current state, promoting OPEN to HALF_OPEN
// once timeoutPeriod has elapsed (spec 4.8: "After the open period, the next
// attempt is HALF_OPEN").
func (cb *CircuitBreaker) State() models.CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() models.CircuitState {
	if cb.state == models.CircuitOpen && time.Since(cb.openedAt) >= cb.timeoutPeriod {
		cb.state = models.CircuitHalfOpen
		cb.halfOpenInFlight = false
	}
	return cb.state
}

// Allow reports whether a candidate attempt may proceed: always true when
// CLOSED, true exactly once (one trial) when HALF_OPEN, false when OPEN.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateLocked() {
	case models.CircuitClosed:
		return true
	case models.CircuitHalfOpen:
		if cb.halfOpenInFlight {
			return false
		}
		cb.halfOpenInFlight = true
		return true
	default: // OPEN
		return false
	}
}

// RecordSuccess closes the breaker (from CLOSED or a winning HALF_OPEN trial).
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = models.CircuitClosed
	cb.consecutiveFailures = 0
	cb.halfOpenInFlight = false
}

// RecordFailure increments the consecutive-failure count and opens the
// breaker once failureThreshold is reached, or immediately re-opens on a
// failed HALF_OPEN trial (spec 4.8: "failure -> OPEN again").
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == models.CircuitHalfOpen {
		cb.open()
		return
	}

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.failureThreshold {
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = models.CircuitOpen
	cb.openedAt = time.Now()
	cb.halfOpenInFlight = false
}
