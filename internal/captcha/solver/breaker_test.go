package solver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/corvidworks/hive/internal/models"
)

func TestNewCircuitBreakerStartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	assert.Equal(t, models.CircuitClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreakerOpensAfterThresholdConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, models.CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, models.CircuitOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, models.CircuitClosed, cb.State(), "success should have reset the consecutive-failure count")
}

func TestCircuitBreakerPromotesToHalfOpenAfterTimeoutPeriod(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	assert.Equal(t, models.CircuitOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, models.CircuitHalfOpen, cb.State())
}

func TestCircuitBreakerHalfOpenAdmitsExactlyOneTrial(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	a := assert.New(t)
	a.Equal(models.CircuitHalfOpen, cb.State())

	first := cb.Allow()
	second := cb.Allow()

	a.True(first, "first half-open trial should be admitted")
	a.False(second, "a second concurrent half-open trial must be rejected")
}

func TestCircuitBreakerHalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	cb.Allow()

	cb.RecordSuccess()

	assert.Equal(t, models.CircuitClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	cb.Allow()

	cb.RecordFailure()

	assert.Equal(t, models.CircuitOpen, cb.State())
	assert.False(t, cb.Allow())
}
