// Package widget implements C6: manipulating in-page captcha widgets once
// C5 has flagged a page as carrying one (spec section 4.6).
package widget

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/captcha/detection"
	"github.com/corvidworks/hive/internal/common"
	"github.com/corvidworks/hive/internal/models"
)

// SelectorKind discriminates the locator strategy a call site is using.
type SelectorKind string

const (
	KindCSS       SelectorKind = "css"
	KindXPath     SelectorKind = "xpath"
	KindRole      SelectorKind = "role"
	KindText      SelectorKind = "text"
	KindAriaLabel SelectorKind = "aria-label"
)

// FrameInfo describes one frame in the page's frame tree.
type FrameInfo struct {
	ID  string
	URL string
}

// Driver is the page surface C6 operations act on. The repository has no
// chromedp-backed implementation of it; this interface keeps the widget
// package's locator and scoring logic testable without a live browser.
type Driver interface {
	detection.Page
	Exists(selector string, kind SelectorKind) (bool, error)
	WaitVisible(selector string, kind SelectorKind, timeout time.Duration) error
	WaitAttached(selector string, kind SelectorKind, timeout time.Duration) error
	Click(selector string, kind SelectorKind) error
	SendKeys(selector string, kind SelectorKind, text string) error
	SelectOption(selector string, kind SelectorKind, value string) error
	Screenshot() ([]byte, error)
	Frames() ([]FrameInfo, error)
	SwitchToFrame(frameID string) (Driver, error)
}

// Result is the structured, non-throwing outcome every C6 operation returns
// (spec section 4.6: "{success, error, duration, data?}").
type Result struct {
	Success  bool
	Error    string
	Duration time.Duration
	Data     map[string]interface{}
}

func ok(start time.Time, data map[string]interface{}) Result {
	return Result{Success: true, Duration: time.Since(start), Data: data}
}

func fail(start time.Time, err error) Result {
	return Result{Success: false, Error: err.Error(), Duration: time.Since(start)}
}

// Widget drives captcha widget interactions for one page.
type Widget struct {
	driver   Driver
	detector *detection.Registry
	cfg      common.WidgetConfig
	logger   arbor.ILogger
}

// New builds a Widget over driver, using detector for confidence scoring
// (spec 4.6 reuses 4.5's per-type scoring).
func New(driver Driver, detector *detection.Registry, cfg common.WidgetConfig, logger arbor.ILogger) *Widget {
	return &Widget{driver: driver, detector: detector, cfg: cfg, logger: logger}
}

// canonicalSelector maps a system to the DOM marker §4.6 treats as inner
// confirmation for detectWidget's +0.1 bonus.
var canonicalSelector = map[models.AntiBotSystem]string{
	models.SystemRecaptcha: ".g-recaptcha, textarea[name=g-recaptcha-response]",
	models.SystemHCaptcha:  ".h-captcha",
	models.SystemTurnstile: ".cf-turnstile",
	models.SystemDataDome:  "[id*=datadome]",
}

// WaitForCaptchaWidget polls detectWidget until it resolves above the
// detection registry's action threshold or timeout elapses (spec 4.6).
func (w *Widget) WaitForCaptchaWidget(ctx context.Context, system models.AntiBotSystem, timeout time.Duration) Result {
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		result := w.DetectWidget(ctx, system)
		if result.Success && result.Data != nil {
			if confidence, _ := result.Data["confidence"].(float64); w.detector.IsActionable(models.DetectionResult{Confidence: confidence}) {
				return ok(start, result.Data)
			}
		}
		if time.Now().After(deadline) {
			return fail(start, fmt.Errorf("widget %s not found within %s", system, timeout))
		}
		if !sleepOrDone(ctx, w.pollInterval()) {
			return fail(start, ctx.Err())
		}
	}
}

// WaitForDynamicWidget is the early-resolving variant: it returns as soon as
// confidence exceeds 0.5 instead of waiting for the full actionable bar.
func (w *Widget) WaitForDynamicWidget(ctx context.Context, system models.AntiBotSystem, timeout time.Duration) Result {
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		result := w.DetectWidget(ctx, system)
		if result.Success && result.Data != nil {
			if confidence, _ := result.Data["confidence"].(float64); confidence > 0.5 {
				return ok(start, result.Data)
			}
		}
		if time.Now().After(deadline) {
			return fail(start, fmt.Errorf("widget %s did not exceed confidence 0.5 within %s", system, timeout))
		}
		if !sleepOrDone(ctx, w.pollInterval()) {
			return fail(start, ctx.Err())
		}
	}
}

// DetectWidget scores system's presence as in C5, plus an inner-DOM
// confirmation bonus (spec 4.6: "+0.1 if the canonical selector exists
// inside the frame").
func (w *Widget) DetectWidget(ctx context.Context, system models.AntiBotSystem) Result {
	start := time.Now()

	results, err := w.detector.Detect(ctx, "", w.driver)
	if err != nil {
		return fail(start, err)
	}

	var confidence float64
	var signals []models.DetectionSignal
	for _, r := range results {
		if r.SystemType == system {
			confidence = r.Confidence
			signals = r.Signals
			break
		}
	}

	if selector, ok := canonicalSelector[system]; ok {
		if present, _ := w.driver.Exists(selector, KindCSS); present {
			confidence += 0.1
		}
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return ok(start, map[string]interface{}{
		"widgetType": system,
		"confidence": confidence,
		"signals":    signals,
	})
}

// SwitchToIframe resolves frameRefOrURLSubstring to a live frame, matching on
// frame ID first and then URL substring.
func (w *Widget) SwitchToIframe(frameRefOrURLSubstring string) Result {
	start := time.Now()
	frames, err := w.driver.Frames()
	if err != nil {
		return fail(start, err)
	}
	for _, f := range frames {
		if f.ID == frameRefOrURLSubstring || strings.Contains(f.URL, frameRefOrURLSubstring) {
			scoped, err := w.driver.SwitchToFrame(f.ID)
			if err != nil {
				return fail(start, err)
			}
			w.driver = scoped
			return ok(start, map[string]interface{}{"frame": f.ID, "url": f.URL})
		}
	}
	return fail(start, fmt.Errorf("no frame matches %q", frameRefOrURLSubstring))
}

// LocateOptions configures LocateElement's multi-strategy lookup chain.
type LocateOptions struct {
	CSS       string
	XPath     string
	Role      string
	Name      string
	Text      string
	AriaLabel string
	Visible   bool
	Timeout   time.Duration
}

// LocateElement tries CSS, XPath, role+name, text, then aria-label in order,
// returning the first that resolves within Timeout (default 5s). Visible
// required waits for state=visible; otherwise state=attached (spec 4.6).
func (w *Widget) LocateElement(opts LocateOptions) Result {
	start := time.Now()
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = w.cfg.LocateTimeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
	}

	candidates := []struct {
		selector string
		kind     SelectorKind
	}{}
	if opts.CSS != "" {
		candidates = append(candidates, struct {
			selector string
			kind     SelectorKind
		}{opts.CSS, KindCSS})
	}
	if opts.XPath != "" {
		candidates = append(candidates, struct {
			selector string
			kind     SelectorKind
		}{opts.XPath, KindXPath})
	}
	if opts.Role != "" {
		selector := fmt.Sprintf("[role=%q]", opts.Role)
		if opts.Name != "" {
			selector = fmt.Sprintf("[role=%q][aria-label=%q]", opts.Role, opts.Name)
		}
		candidates = append(candidates, struct {
			selector string
			kind     SelectorKind
		}{selector, KindRole})
	}
	if opts.Text != "" {
		candidates = append(candidates, struct {
			selector string
			kind     SelectorKind
		}{opts.Text, KindText})
	}
	if opts.AriaLabel != "" {
		selector := fmt.Sprintf("[aria-label=%q]", opts.AriaLabel)
		candidates = append(candidates, struct {
			selector string
			kind     SelectorKind
		}{selector, KindAriaLabel})
	}

	for _, c := range candidates {
		var err error
		if opts.Visible {
			err = w.driver.WaitVisible(c.selector, c.kind, timeout)
		} else {
			err = w.driver.WaitAttached(c.selector, c.kind, timeout)
		}
		if err == nil {
			return ok(start, map[string]interface{}{"selector": c.selector, "kind": string(c.kind)})
		}
	}
	return fail(start, fmt.Errorf("no locator strategy resolved an element within %s", timeout))
}

// ClickElement locates then clicks after a human-like delay drawn from
// ClickDelayRange; forceClicks bypasses visibility enforcement.
func (w *Widget) ClickElement(ctx context.Context, opts LocateOptions, forceClicks bool) Result {
	start := time.Now()
	if !forceClicks {
		opts.Visible = true
	}
	located := w.LocateElement(opts)
	if !located.Success {
		return located
	}
	selector, _ := located.Data["selector"].(string)
	kind, _ := located.Data["kind"].(string)

	if !sleepOrDone(ctx, w.randomDelay(w.cfg.ClickDelayMinMs, w.cfg.ClickDelayMaxMs, 500, 2000)) {
		return fail(start, ctx.Err())
	}
	if err := w.driver.Click(selector, SelectorKind(kind)); err != nil {
		return fail(start, err)
	}
	return ok(start, located.Data)
}

// TypeText locates then types, applying a per-keystroke-equivalent delay
// drawn from TypingDelayRange.
func (w *Widget) TypeText(ctx context.Context, opts LocateOptions, text string, forceClicks bool) Result {
	start := time.Now()
	if !forceClicks {
		opts.Visible = true
	}
	located := w.LocateElement(opts)
	if !located.Success {
		return located
	}
	selector, _ := located.Data["selector"].(string)
	kind, _ := located.Data["kind"].(string)

	if !sleepOrDone(ctx, w.randomDelay(w.cfg.TypingDelayMinMs, w.cfg.TypingDelayMaxMs, 50, 150)) {
		return fail(start, ctx.Err())
	}
	if err := w.driver.SendKeys(selector, SelectorKind(kind), text); err != nil {
		return fail(start, err)
	}
	return ok(start, located.Data)
}

// SelectOption locates a <select>-like control then sets value.
func (w *Widget) SelectOption(ctx context.Context, opts LocateOptions, value string, forceClicks bool) Result {
	start := time.Now()
	if !forceClicks {
		opts.Visible = true
	}
	located := w.LocateElement(opts)
	if !located.Success {
		return located
	}
	selector, _ := located.Data["selector"].(string)
	kind, _ := located.Data["kind"].(string)

	if err := w.driver.SelectOption(selector, SelectorKind(kind), value); err != nil {
		return fail(start, err)
	}
	return ok(start, located.Data)
}

// CaptureDebugScreenshot writes a screenshot to cfg.DebugScreenshotDir named
// captcha-{taskId}-{unix-ms}.png. No-op (success, no data) if the directory
// is not configured.
func (w *Widget) CaptureDebugScreenshot(taskID string, at time.Time, write func(path string, data []byte) error) Result {
	start := time.Now()
	if w.cfg.DebugScreenshotDir == "" {
		return ok(start, nil)
	}
	data, err := w.driver.Screenshot()
	if err != nil {
		return fail(start, err)
	}
	path := fmt.Sprintf("%s/captcha-%s-%d.png", w.cfg.DebugScreenshotDir, taskID, at.UnixMilli())
	if err := write(path, data); err != nil {
		return fail(start, err)
	}
	return ok(start, map[string]interface{}{"path": path})
}

func (w *Widget) pollInterval() time.Duration {
	if w.cfg.PollInterval > 0 {
		return w.cfg.PollInterval
	}
	return 500 * time.Millisecond
}

func (w *Widget) randomDelay(minMs, maxMs, fallbackMin, fallbackMax int) time.Duration {
	if minMs <= 0 || maxMs <= 0 || maxMs < minMs {
		minMs, maxMs = fallbackMin, fallbackMax
	}
	span := maxMs - minMs
	if span <= 0 {
		return time.Duration(minMs) * time.Millisecond
	}
	return time.Duration(minMs+rand.Intn(span)) * time.Millisecond
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if ctx == nil {
		time.Sleep(d)
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
