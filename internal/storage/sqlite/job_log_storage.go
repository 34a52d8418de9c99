package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/models"
)

// JobLogStorage persists the durable, append-only JobLog table (spec section
// 3; exposed as Scheduler.ListLogs per SPEC_FULL section 12).
type JobLogStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewJobLogStorage wraps db with job-log persistence.
func NewJobLogStorage(db *DB, logger arbor.ILogger) *JobLogStorage {
	return &JobLogStorage{db: db, logger: logger}
}

// Append inserts a single JobLog row. Never mutated once written.
func (s *JobLogStorage) Append(ctx context.Context, entry models.JobLog) error {
	var metaJSON sql.NullString
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal log metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO job_logs (job_id, level, message, metadata_json, correlation_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.JobID, string(entry.Level), entry.Message, metaJSON, entry.CorrelationID, entry.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}

// ListByJob returns every log row for jobID, ordered by timestamp ascending.
func (s *JobLogStorage) ListByJob(ctx context.Context, jobID string) ([]models.JobLog, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, job_id, level, message, metadata_json, correlation_id, timestamp
		FROM job_logs WHERE job_id = ? ORDER BY timestamp ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job logs: %w", err)
	}
	defer rows.Close()

	var out []models.JobLog
	for rows.Next() {
		var entry models.JobLog
		var metaJSON sql.NullString
		var correlationID sql.NullString
		var ts int64
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.Level, &entry.Message, &metaJSON, &correlationID, &ts); err != nil {
			return nil, fmt.Errorf("scan job log: %w", err)
		}
		entry.Timestamp = time.Unix(0, ts)
		if correlationID.Valid {
			entry.CorrelationID = correlationID.String
		}
		if metaJSON.Valid {
			if err := json.Unmarshal([]byte(metaJSON.String), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal log metadata: %w", err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
