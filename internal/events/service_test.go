package events

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestPublishSyncDeliversToAllSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var calls int32
	require.NoError(t, svc.Subscribe(EventJobCompleted, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	require.NoError(t, svc.Subscribe(EventJobCompleted, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	err := svc.PublishSync(context.Background(), Event{Type: EventJobCompleted, JobID: "job_1"})
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestPublishSyncNoSubscribersIsNoop(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	require.NoError(t, svc.PublishSync(context.Background(), Event{Type: EventJobStarted}))
}

func TestCloseClearsSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	var called bool
	require.NoError(t, svc.Subscribe(EventJobFailed, func(ctx context.Context, e Event) error {
		called = true
		return nil
	}))
	require.NoError(t, svc.Close())
	require.NoError(t, svc.PublishSync(context.Background(), Event{Type: EventJobFailed}))
	require.False(t, called)
}
