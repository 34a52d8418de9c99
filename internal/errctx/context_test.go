package errctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunInScopePropagatesAcrossCalls(t *testing.T) {
	err := RunInScope(context.Background(), "corr-1", "job", func(ctx context.Context) error {
		SetAttemptNumber(ctx, 2)
		AddAdditionalContext(ctx, "jobId", "job_abc")
		AddTiming(ctx, "navigate", time.Now(), time.Now().Add(50*time.Millisecond))

		got := GetContext(ctx)
		require.NotNil(t, got)
		require.Equal(t, "corr-1", got.CorrelationID)
		require.Equal(t, 2, got.AttemptNumber)
		require.Equal(t, "job_abc", got.AdditionalContext["jobId"])
		require.Len(t, got.Timings, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestGetContextNilOutsideScope(t *testing.T) {
	require.Nil(t, GetContext(context.Background()))
}

func TestCoreErrorDefaultRecoverability(t *testing.T) {
	timeoutErr := NewCoreError(CategoryTimeout, "nav-timeout", nil, nil)
	require.True(t, timeoutErr.IsRecoverable)

	authErr := NewCoreError(CategoryAuth, "missing-key", nil, nil)
	require.False(t, authErr.IsRecoverable)
}

func TestAggregateMostCommonCategory(t *testing.T) {
	now := time.Now()
	errs := []AttemptError{
		{SolverName: "a", Category: CategoryTimeout, Message: "timed out", At: now},
		{SolverName: "b", Category: CategoryTimeout, Message: "timed out again", At: now.Add(time.Second)},
		{SolverName: "c", Category: CategoryNetwork, Message: "dns failure", At: now.Add(2 * time.Second)},
	}
	agg := NewAggregate(errs, nil)
	require.Equal(t, CategoryTimeout, agg.MostCommonCategory)
	require.Equal(t, 3, agg.TotalAttempts)
	require.Equal(t, &errs[0], agg.FirstError)
	require.Equal(t, &errs[2], agg.LastError)
	require.NotEmpty(t, agg.Summary())
}
