// Package browserpool implements C2: a per-family bounded pool of warm
// browser instances (spec section 4.2).
package browserpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/corvidworks/hive/internal/common"
	"github.com/corvidworks/hive/internal/models"
)

// instance is a warm browser: its chromedp allocator + browser contexts and
// an idle timer armed on release.
type instance struct {
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	idleTimer       *time.Timer
}

// Pool is a bounded, per-family pool of chromedp browser instances. It
// generalizes the teacher's round-robin ChromeDPPool into a true
// acquire/release pool with min/max sizing, idle eviction, and FIFO waiters
// (spec section 4.2's invariants).
type Pool struct {
	family models.BrowserFamily
	cfg    common.BrowserPoolConfig
	logger arbor.ILogger

	mu        sync.Mutex
	available []*instance
	active    map[*instance]struct{}
	waiters   []chan *instance
	total     int
	closed    bool

	launchLimiter *rate.Limiter
}

// New builds a Pool for family and prewarms minSize instances.
func New(ctx context.Context, family models.BrowserFamily, cfg common.BrowserPoolConfig, logger arbor.ILogger) (*Pool, error) {
	p := &Pool{
		family:        family,
		cfg:           cfg,
		logger:        logger,
		active:        make(map[*instance]struct{}),
		launchLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}

	for i := 0; i < cfg.MinSize; i++ {
		inst, err := p.launch(ctx)
		if err != nil {
			p.logger.Warn().Err(err).Int("index", i).Str("family", string(family)).Msg("failed to prewarm browser instance")
			continue
		}
		p.available = append(p.available, inst)
		p.total++
	}

	if p.total == 0 && cfg.MinSize > 0 {
		return nil, fmt.Errorf("browserpool: failed to prewarm any instance for family %s", family)
	}

	p.logger.Info().Str("family", string(family)).Int("prewarmed", p.total).Msg("browser pool initialized")
	return p, nil
}

// launch starts a fresh chromedp browser instance with family-tuned launch
// args (spec section 4.2: fixed args tuned for headless stability).
func (p *Pool) launch(ctx context.Context) (*instance, error) {
	if err := p.launchLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	launchTimeout := p.cfg.AcquireWait
	if launchTimeout <= 0 {
		launchTimeout = 30 * time.Second
	}
	testCtx, cancel := context.WithTimeout(browserCtx, launchTimeout)
	defer cancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browserpool: launch failed: %w", err)
	}

	return &instance{
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
	}, nil
}

// ProxyConfig describes an upstream HTTP(S) proxy to bake into a browser
// launch. Chrome's proxy server is a process-wide launch switch, not a
// per-tab setting, so a proxied job cannot share the warm pool: it gets a
// freshly launched, never-pooled instance via AcquireDedicated instead.
type ProxyConfig struct {
	Server   string
	Username string
	Password string
}

// AcquireDedicated launches a private browser instance configured with
// proxy and returns it outside the pool's accounting; release always closes
// it rather than returning it to available (spec section 4.3's optional
// per-context proxy).
func (p *Pool) AcquireDedicated(ctx context.Context, proxy *ProxyConfig) (context.Context, func(), error) {
	inst, err := p.launchWithProxy(ctx, proxy)
	if err != nil {
		return nil, nil, err
	}
	var once sync.Once
	return inst.browserCtx, func() { once.Do(func() { closeInstance(inst) }) }, nil
}

func (p *Pool) launchWithProxy(ctx context.Context, proxy *ProxyConfig) (*instance, error) {
	if err := p.launchLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if proxy != nil && proxy.Server != "" {
		opts = append(opts, chromedp.ProxyServer(proxy.Server))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	launchTimeout := p.cfg.AcquireWait
	if launchTimeout <= 0 {
		launchTimeout = 30 * time.Second
	}
	testCtx, cancel := context.WithTimeout(browserCtx, launchTimeout)
	defer cancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browserpool: dedicated launch failed: %w", err)
	}

	return &instance{browserCtx: browserCtx, browserCancel: browserCancel, allocatorCancel: allocatorCancel}, nil
}

// Acquire returns a connected browser context, blocking FIFO when the pool
// is at maxSize until one is released (spec section 4.2).
func (p *Pool) Acquire(ctx context.Context) (context.Context, func(), error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil, fmt.Errorf("browserpool: pool closed")
	}

	if len(p.available) > 0 {
		inst := p.popAvailable()
		p.active[inst] = struct{}{}
		p.mu.Unlock()
		return inst.browserCtx, p.releaseFunc(inst), nil
	}

	if p.total < p.cfg.MaxSize {
		p.total++
		p.mu.Unlock()

		inst, err := p.launch(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			return nil, nil, err
		}

		p.mu.Lock()
		p.active[inst] = struct{}{}
		p.mu.Unlock()
		return inst.browserCtx, p.releaseFunc(inst), nil
	}

	wait := make(chan *instance, 1)
	p.waiters = append(p.waiters, wait)
	p.mu.Unlock()

	select {
	case inst, ok := <-wait:
		if !ok || inst == nil {
			return nil, nil, fmt.Errorf("browserpool: pool closed while waiting")
		}
		return inst.browserCtx, p.releaseFunc(inst), nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// popAvailable removes and returns the most recently released instance,
// disarming its idle timer. Caller must hold p.mu.
func (p *Pool) popAvailable() *instance {
	n := len(p.available)
	inst := p.available[n-1]
	p.available = p.available[:n-1]
	if inst.idleTimer != nil {
		inst.idleTimer.Stop()
		inst.idleTimer = nil
	}
	return inst
}

// releaseFunc builds the idempotent release closure handed to the caller.
func (p *Pool) releaseFunc(inst *instance) func() {
	var once sync.Once
	return func() {
		once.Do(func() { p.release(inst) })
	}
}

// release returns inst to the available set if still connected, discarding
// it otherwise (spec section 4.2). If a waiter is queued, hands inst
// directly to the head of the FIFO instead of parking it.
func (p *Pool) release(inst *instance) {
	p.mu.Lock()
	delete(p.active, inst)

	if p.closed || !isConnected(inst.browserCtx) {
		p.total--
		p.mu.Unlock()
		closeInstance(inst)
		return
	}

	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.active[inst] = struct{}{}
		p.mu.Unlock()
		w <- inst
		return
	}

	inst.idleTimer = time.AfterFunc(p.cfg.IdleTimeout, func() { p.evictIdle(inst) })
	p.available = append(p.available, inst)
	p.mu.Unlock()
}

// evictIdle closes an instance that has sat unused past idleTimeout.
func (p *Pool) evictIdle(inst *instance) {
	p.mu.Lock()
	idx := -1
	for i, avail := range p.available {
		if avail == inst {
			idx = i
			break
		}
	}
	if idx == -1 {
		p.mu.Unlock()
		return
	}
	p.available = append(p.available[:idx], p.available[idx+1:]...)
	p.total--
	p.mu.Unlock()

	p.logger.Debug().Str("family", string(p.family)).Msg("evicting idle browser instance")
	closeInstance(inst)
}

// isConnected checks that the browser context has not already been
// cancelled (the allocator process died or chromedp.Cancel was called).
func isConnected(browserCtx context.Context) bool {
	select {
	case <-browserCtx.Done():
		return false
	default:
		return true
	}
}

func closeInstance(inst *instance) {
	if inst.idleTimer != nil {
		inst.idleTimer.Stop()
	}
	inst.browserCancel()
	inst.allocatorCancel()
}

// Cleanup closes every instance, available or active, and unblocks any
// waiters with a failure (spec section 4.2's `cleanup()`).
func (p *Pool) Cleanup() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	for _, inst := range p.available {
		closeInstance(inst)
	}
	p.available = nil

	for inst := range p.active {
		closeInstance(inst)
	}
	p.active = make(map[*instance]struct{})

	for _, w := range p.waiters {
		close(w)
	}
	p.waiters = nil
	p.total = 0
	p.mu.Unlock()

	p.logger.Info().Str("family", string(p.family)).Msg("browser pool cleaned up")
}

// Stats reports pool occupancy, mirroring the teacher's GetPoolStats shape.
func (p *Pool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]interface{}{
		"family":    string(p.family),
		"available": len(p.available),
		"active":    len(p.active),
		"total":     p.total,
		"max_size":  p.cfg.MaxSize,
		"waiting":   len(p.waiters),
	}
}
