package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hive.db")
	db, err := Open(path, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestJob(id string, priority int, createdAt time.Time) *models.AutomationJob {
	return &models.AutomationJob{
		ID:            id,
		TargetURL:     "https://example.com",
		Actions:       []models.Action{{Type: models.ActionScreenshot}},
		BrowserFamily: models.BrowserFamilyChromium,
		Status:        models.JobStatusPending,
		Priority:      priority,
		MaxRetries:    2,
		CreatedAt:     createdAt,
	}
}

func TestSaveAndGetJobRoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := newTestJob("job_1", 5, time.Now())
	require.NoError(t, storage.SaveJob(ctx, job))

	got, err := storage.GetJob(ctx, "job_1")
	require.NoError(t, err)
	require.Equal(t, job.TargetURL, got.TargetURL)
	require.Equal(t, job.Priority, got.Priority)
	require.Equal(t, models.JobStatusPending, got.Status)
}

func TestClaimNextOrdersByPriorityThenCreatedAt(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	older := time.Now().Add(-time.Minute)
	newer := time.Now()
	require.NoError(t, storage.SaveJob(ctx, newTestJob("low-old", 1, older)))
	require.NoError(t, storage.SaveJob(ctx, newTestJob("high-new", 9, newer)))
	require.NoError(t, storage.SaveJob(ctx, newTestJob("high-old", 9, older)))

	claimed, err := storage.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, "high-old", claimed.ID) // priority DESC, createdAt ASC tie-break
	require.Equal(t, models.JobStatusProcessing, claimed.Status)
	require.NotNil(t, claimed.StartedAt)
	require.Equal(t, "worker-1", claimed.CurrentWorker)
}

func TestClaimNextReturnsNilWhenQueueEmpty(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	claimed, err := storage.ClaimNext(context.Background(), "worker-1")
	require.NoError(t, err)
	require.Nil(t, claimed)
}

func TestConcurrentClaimNextExclusivity(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveJob(ctx, newTestJob("only-job", 1, time.Now())))

	var wg sync.WaitGroup
	results := make([]*models.AutomationJob, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			job, err := storage.ClaimNext(ctx, "worker-concurrent")
			require.NoError(t, err)
			results[idx] = job
		}(i)
	}
	wg.Wait()

	var winners int
	for _, r := range results {
		if r != nil {
			winners++
		}
	}
	require.Equal(t, 1, winners, "exactly one concurrent claimNext call should win the only job")
}

func TestMarkCompletedIsIdempotentOnTerminalJob(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := newTestJob("job_term", 1, time.Now())
	require.NoError(t, storage.SaveJob(ctx, job))
	_, err := storage.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)

	require.NoError(t, storage.MarkCompleted(ctx, "job_term", nil, nil))
	completedJob, err := storage.GetJob(ctx, "job_term")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, completedJob.Status)
	firstCompletedAt := completedJob.CompletedAt

	// Replaying markCompleted on a terminal job must be a no-op.
	require.NoError(t, storage.MarkCompleted(ctx, "job_term", nil, nil))
	again, err := storage.GetJob(ctx, "job_term")
	require.NoError(t, err)
	require.Equal(t, firstCompletedAt.Unix(), again.CompletedAt.Unix())
}

func TestMarkRetryIncrementsRetryCountAndClearsStartedAt(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := newTestJob("job_retry", 1, time.Now())
	require.NoError(t, storage.SaveJob(ctx, job))
	_, err := storage.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)

	require.NoError(t, storage.MarkRetry(ctx, "job_retry", models.ErrorSummary{Category: "Timeout", Message: "nav timeout"}, time.Second))

	got, err := storage.GetJob(ctx, "job_retry")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPending, got.Status)
	require.Equal(t, 1, got.RetryCount)
	require.Nil(t, got.StartedAt)
	require.NotNil(t, got.AvailableAt)
	require.True(t, got.AvailableAt.After(time.Now()))
}

func TestMarkRetryAvailableAtGatesClaimNextUntilBackoffElapses(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := newTestJob("job_backoff", 1, time.Now())
	require.NoError(t, storage.SaveJob(ctx, job))
	_, err := storage.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)

	require.NoError(t, storage.MarkRetry(ctx, "job_backoff", models.ErrorSummary{Category: "Timeout"}, time.Hour))

	claimed, err := storage.ClaimNext(ctx, "worker-2")
	require.NoError(t, err)
	require.Nil(t, claimed, "job must not be claimable before its backoff elapses")

	require.NoError(t, storage.MarkRetry(ctx, "job_backoff", models.ErrorSummary{Category: "Timeout"}, -time.Hour))
	claimed, err = storage.ClaimNext(ctx, "worker-2")
	require.NoError(t, err)
	require.NotNil(t, claimed, "job must be claimable once its backoff has elapsed")
}

func TestRequeueOrphansOfDeadWorker(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveJob(ctx, newTestJob("job_orphan", 1, time.Now())))
	claimed, err := storage.ClaimNext(ctx, "dead-worker")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	n, err := storage.RequeueOrphansOf(ctx, "dead-worker")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := storage.GetJob(ctx, "job_orphan")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusPending, got.Status)
	require.Nil(t, got.StartedAt)
	require.Empty(t, got.CurrentWorker)
	require.Equal(t, 0, got.RetryCount) // requeue from dead worker does not touch retryCount
}
