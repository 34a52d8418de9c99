// Package browsercontext implements C3: per-job execution sandboxes with
// stealth fingerprint overrides and human-like input (spec section 4.3).
package browsercontext

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/browserpool"
)

// Options configures a per-job context (spec section 4.3).
type Options struct {
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string
	Platform          string
	TimezoneID        string
	Locale            string
	// Proxy is consulted by the caller (jobprocessor) to decide between
	// Pool.Acquire and Pool.AcquireDedicated before Create is called; Chrome's
	// proxy server is a launch-time switch, so Create itself never sets it.
	Proxy             *browserpool.ProxyConfig
	IgnoreHTTPSErrors bool
	FullLoad          bool // opt out of the default static-asset route filter
	HardwareMin       int
	HardwareMax       int
}

// Context wraps a single chromedp tab acting as a job's execution sandbox.
type Context struct {
	Ctx    context.Context
	cancel context.CancelFunc
	logger arbor.ILogger

	closeOnce sync.Once
}

// Create builds a context on top of browserCtx: a new chromedp tab with
// viewport, user agent, timezone, locale, the default blocked-asset route
// filter, and the combined stealth init script injected so it runs
// before every page's own scripts (spec section 4.3).
func Create(browserCtx context.Context, opts Options, logger arbor.ILogger) (*Context, error) {
	tabCtx, cancel := chromedp.NewContext(browserCtx)

	tasks := chromedp.Tasks{}

	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		tasks = append(tasks, chromedp.EmulateViewport(int64(opts.ViewportWidth), int64(opts.ViewportHeight)))
	}

	if opts.UserAgent != "" {
		acceptLang := opts.Locale
		if acceptLang == "" {
			acceptLang = "en-US"
		}
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetUserAgentOverride(opts.UserAgent).WithAcceptLanguage(acceptLang).Do(ctx)
		}))
	}

	if opts.TimezoneID != "" {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetTimezoneOverride(opts.TimezoneID).Do(ctx)
		}))
	}

	if opts.Locale != "" {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetLocaleOverride(opts.Locale).Do(ctx)
		}))
	}

	if opts.IgnoreHTTPSErrors {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			return security.SetIgnoreCertificateErrors(true).Do(ctx)
		}))
	}

	script := buildStealthScript(opts)
	tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))

	if !opts.FullLoad {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			return installRouteFilter(ctx, logger)
		}))
	}

	if err := chromedp.Run(tabCtx, tasks); err != nil {
		cancel()
		return nil, fmt.Errorf("browsercontext: create failed: %w", err)
	}

	checkPlatformConsistency(opts, logger)

	return &Context{Ctx: tabCtx, cancel: cancel, logger: logger}, nil
}

// Close closes every non-closed page then the context itself, swallowing
// and logging errors; safe to call multiple times (spec section 4.3).
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		if err := chromedp.Run(c.Ctx, page.Close()); err != nil {
			c.logger.Debug().Err(err).Msg("error closing page during context cleanup")
		}
		c.cancel()
	})
}

// checkPlatformConsistency logs a warning (does not fail context creation)
// when userAgent and platform disagree (spec section 4.3).
func checkPlatformConsistency(opts Options, logger arbor.ILogger) {
	if opts.UserAgent == "" || opts.Platform == "" {
		return
	}
	ua := opts.UserAgent
	platform := opts.Platform

	var want string
	switch {
	case strings.Contains(ua, "Windows"):
		want = "Win"
	case strings.Contains(ua, "Macintosh") || strings.Contains(ua, "Mac OS"):
		want = "Mac"
	case strings.Contains(ua, "Linux") && !strings.Contains(ua, "Android"):
		want = "Linux"
	default:
		return
	}

	if !strings.Contains(platform, want) {
		logger.Warn().Str("user_agent", ua).Str("platform", platform).Msg("user-agent/platform mismatch may weaken fingerprint consistency")
	}
}
