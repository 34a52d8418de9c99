package models

import "time"

// LogLevel mirrors arbor's level vocabulary for durable per-job log rows.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// JobLog is an append-only record (spec section 3). Never mutated once written.
type JobLog struct {
	ID            int64             `json:"id,omitempty"`
	JobID         string            `json:"jobId"`
	Level         LogLevel          `json:"level"`
	Message       string            `json:"message"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}
