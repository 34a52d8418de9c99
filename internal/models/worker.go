package models

import "time"

// WorkerStatus is the BrowserWorker lifecycle state (spec section 3).
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "IDLE"
	WorkerStatusBusy    WorkerStatus = "BUSY"
	WorkerStatusOffline WorkerStatus = "OFFLINE"
)

// WorkerMetadata is free-form process identification attached to a worker record.
type WorkerMetadata struct {
	PID  int    `json:"pid"`
	Host string `json:"host"`
}

// BrowserWorker is a process registered in the scheduler (spec section 3).
type BrowserWorker struct {
	ID              string         `json:"id"`
	BrowserFamily   BrowserFamily  `json:"browserFamily"`
	Status          WorkerStatus   `json:"status"`
	CurrentJobID    string         `json:"currentJobId,omitempty"`
	LastHeartbeatAt time.Time      `json:"lastHeartbeatAt"`
	Metadata        WorkerMetadata `json:"metadata"`
}

// IsDead reports whether the worker's heartbeat has exceeded timeout as of now.
func (w *BrowserWorker) IsDead(now time.Time, heartbeatTimeout time.Duration) bool {
	return now.Sub(w.LastHeartbeatAt) > heartbeatTimeout
}
