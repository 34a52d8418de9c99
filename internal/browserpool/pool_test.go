package browserpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/common"
	"github.com/corvidworks/hive/internal/models"
)

// newFakeInstance builds an instance backed by a cancellable context instead
// of a real chromedp browser, so pool bookkeeping can be tested without a
// chrome binary present in the test environment.
func newFakeInstance() *instance {
	ctx, cancel := context.WithCancel(context.Background())
	return &instance{browserCtx: ctx, browserCancel: cancel, allocatorCancel: func() {}}
}

func newFakePool(maxSize int, idleTimeout time.Duration) *Pool {
	return &Pool{
		family: models.BrowserFamilyChromium,
		cfg:    common.BrowserPoolConfig{MaxSize: maxSize, IdleTimeout: idleTimeout, AcquireWait: time.Second},
		logger: arbor.NewLogger(),
		active: make(map[*instance]struct{}),
	}
}

func TestAcquireReusesAvailableInstanceBeforeLaunchingNew(t *testing.T) {
	p := newFakePool(2, time.Minute)
	inst := newFakeInstance()
	p.available = append(p.available, inst)
	p.total = 1

	ctx, release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, inst.browserCtx, ctx)
	require.Equal(t, 1, p.total)
	require.Len(t, p.active, 1)

	release()
	require.Len(t, p.active, 0)
	require.Len(t, p.available, 1)
}

func TestReleaseDiscardsDisconnectedInstance(t *testing.T) {
	p := newFakePool(2, time.Minute)
	inst := newFakeInstance()
	p.active[inst] = struct{}{}
	p.total = 1

	inst.browserCancel()
	p.release(inst)

	require.Equal(t, 0, p.total)
	require.Len(t, p.available, 0)
}

func TestReleaseHandsInstanceDirectlyToWaitingFIFO(t *testing.T) {
	p := newFakePool(1, time.Minute)
	inst := newFakeInstance()
	p.active[inst] = struct{}{}
	p.total = 1

	wait := make(chan *instance, 1)
	p.waiters = append(p.waiters, wait)

	p.release(inst)

	select {
	case got := <-wait:
		require.Equal(t, inst, got)
	case <-time.After(time.Second):
		t.Fatal("waiter was not served")
	}
	require.Len(t, p.active, 1)
}

func TestAcquireBlocksAtMaxSizeUntilRelease(t *testing.T) {
	p := newFakePool(1, time.Minute)
	inst := newFakeInstance()
	p.available = append(p.available, inst)
	p.total = 1

	_, release1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan struct{})
	go func() {
		defer wg.Done()
		_, release2, err := p.Acquire(context.Background())
		require.NoError(t, err)
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should not succeed before release")
	case <-time.After(50 * time.Millisecond):
	}

	release1()
	wg.Wait()
}

func TestAcquireRespectsContextCancellationWhileWaiting(t *testing.T) {
	p := newFakePool(1, time.Minute)
	inst := newFakeInstance()
	p.available = append(p.available, inst)
	p.total = 1

	_, _, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvictIdleRemovesFromAvailableAndDecrementsTotal(t *testing.T) {
	p := newFakePool(2, time.Millisecond)
	inst := newFakeInstance()
	p.available = append(p.available, inst)
	p.total = 1

	p.evictIdle(inst)

	require.Equal(t, 0, p.total)
	require.Len(t, p.available, 0)
}

func TestCleanupClosesEverythingAndUnblocksWaiters(t *testing.T) {
	p := newFakePool(1, time.Minute)
	avail := newFakeInstance()
	active := newFakeInstance()
	p.available = append(p.available, avail)
	p.active[active] = struct{}{}
	p.total = 2

	wait := make(chan *instance)
	p.waiters = append(p.waiters, wait)

	p.Cleanup()

	_, ok := <-wait
	require.False(t, ok)
	require.Equal(t, 0, p.total)

	_, _, err := p.Acquire(context.Background())
	require.Error(t, err)
}

func TestPoolSizeInvariantHoldsAfterAcquireRelease(t *testing.T) {
	p := newFakePool(3, time.Minute)
	for i := 0; i < 3; i++ {
		inst := newFakeInstance()
		p.available = append(p.available, inst)
	}
	p.total = 3

	var releases []func()
	for i := 0; i < 3; i++ {
		_, release, err := p.Acquire(context.Background())
		require.NoError(t, err)
		releases = append(releases, release)
		require.LessOrEqual(t, len(p.available)+len(p.active), p.cfg.MaxSize)
	}

	for _, release := range releases {
		release()
		require.LessOrEqual(t, len(p.available)+len(p.active), p.cfg.MaxSize)
	}
}
