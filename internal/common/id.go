package common

import "github.com/google/uuid"

// NewJobID generates a unique automation job identifier.
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewWorkerID generates a unique browser worker identifier.
func NewWorkerID() string {
	return "wrk_" + uuid.New().String()
}

// NewCorrelationID generates a fresh correlation identifier for an attempt scope.
func NewCorrelationID() string {
	return uuid.New().String()
}
