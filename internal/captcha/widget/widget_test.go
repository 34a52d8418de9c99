package widget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corvidworks/hive/internal/captcha/detection"
	"github.com/corvidworks/hive/internal/common"
	"github.com/corvidworks/hive/internal/models"
)

type fakeDriver struct {
	html          string
	existsFn      func(selector string, kind SelectorKind) (bool, error)
	waitVisibleErr map[string]error
	waitAttachedErr map[string]error
	clicked       []string
	typed         map[string]string
	frames        []FrameInfo
	switchErr     error
}

func (d *fakeDriver) OuterHTML() (string, error)                      { return d.html, nil }
func (d *fakeDriver) Evaluate(script string) (interface{}, error)     { return "", nil }
func (d *fakeDriver) Exists(selector string, kind SelectorKind) (bool, error) {
	if d.existsFn != nil {
		return d.existsFn(selector, kind)
	}
	return false, nil
}
func (d *fakeDriver) WaitVisible(selector string, kind SelectorKind, timeout time.Duration) error {
	if err, ok := d.waitVisibleErr[selector]; ok {
		return err
	}
	return errors.New("not found")
}
func (d *fakeDriver) WaitAttached(selector string, kind SelectorKind, timeout time.Duration) error {
	if err, ok := d.waitAttachedErr[selector]; ok {
		return err
	}
	return errors.New("not found")
}
func (d *fakeDriver) Click(selector string, kind SelectorKind) error {
	d.clicked = append(d.clicked, selector)
	return nil
}
func (d *fakeDriver) SendKeys(selector string, kind SelectorKind, text string) error {
	if d.typed == nil {
		d.typed = map[string]string{}
	}
	d.typed[selector] = text
	return nil
}
func (d *fakeDriver) SelectOption(selector string, kind SelectorKind, value string) error { return nil }
func (d *fakeDriver) Screenshot() ([]byte, error)                                          { return []byte{9}, nil }
func (d *fakeDriver) Frames() ([]FrameInfo, error)                                         { return d.frames, nil }
func (d *fakeDriver) SwitchToFrame(frameID string) (Driver, error) {
	if d.switchErr != nil {
		return nil, d.switchErr
	}
	return d, nil
}

func newWidget(driver *fakeDriver) *Widget {
	cfg := common.WidgetConfig{LocateTimeout: 10 * time.Millisecond, PollInterval: time.Millisecond}
	registry := detection.New(nil, common.CaptchaConfig{MinConfidenceThreshold: 0.2}, nil)
	return New(driver, registry, cfg, nil)
}

func TestLocateElementTriesStrategiesInOrderAndReturnsFirstMatch(t *testing.T) {
	driver := &fakeDriver{waitVisibleErr: map[string]error{`[aria-label="audio"]`: nil}}
	w := newWidget(driver)

	result := w.LocateElement(LocateOptions{CSS: ".missing", AriaLabel: "audio", Visible: true})
	require.True(t, result.Success)
	require.Equal(t, `[aria-label="audio"]`, result.Data["selector"])
}

func TestLocateElementFailsWhenNoStrategyResolves(t *testing.T) {
	driver := &fakeDriver{}
	w := newWidget(driver)

	result := w.LocateElement(LocateOptions{CSS: ".missing", Visible: true})
	require.False(t, result.Success)
	require.NotEmpty(t, result.Error)
}

func TestClickElementLocatesThenClicks(t *testing.T) {
	driver := &fakeDriver{waitVisibleErr: map[string]error{".submit": nil}}
	w := newWidget(driver)

	result := w.ClickElement(context.Background(), LocateOptions{CSS: ".submit"}, false)
	require.True(t, result.Success)
	require.Equal(t, []string{".submit"}, driver.clicked)
}

func TestClickElementForceClicksBypassesVisibility(t *testing.T) {
	driver := &fakeDriver{waitAttachedErr: map[string]error{".hidden": nil}}
	w := newWidget(driver)

	result := w.ClickElement(context.Background(), LocateOptions{CSS: ".hidden"}, true)
	require.True(t, result.Success)
}

func TestTypeTextSendsKeysToLocatedElement(t *testing.T) {
	driver := &fakeDriver{waitVisibleErr: map[string]error{"#field": nil}}
	w := newWidget(driver)

	result := w.TypeText(context.Background(), LocateOptions{CSS: "#field"}, "hello", false)
	require.True(t, result.Success)
	require.Equal(t, "hello", driver.typed["#field"])
}

func TestDetectWidgetAddsInnerDOMConfirmationBonus(t *testing.T) {
	driver := &fakeDriver{
		html:     `<html><body><iframe src="https://www.google.com/recaptcha/api2/anchor"></iframe><div class="g-recaptcha"></div></body></html>`,
		existsFn: func(selector string, kind SelectorKind) (bool, error) { return true, nil },
	}
	w := newWidget(driver)

	result := w.DetectWidget(context.Background(), models.SystemRecaptcha)
	require.True(t, result.Success)
	confidence := result.Data["confidence"].(float64)
	require.True(t, confidence > 0.9)
}

func TestSwitchToIframeMatchesByURLSubstring(t *testing.T) {
	driver := &fakeDriver{frames: []FrameInfo{{ID: "f1", URL: "https://www.google.com/recaptcha/api2/anchor"}}}
	w := newWidget(driver)

	result := w.SwitchToIframe("recaptcha")
	require.True(t, result.Success)
	require.Equal(t, "f1", result.Data["frame"])
}

func TestSwitchToIframeFailsWhenNoFrameMatches(t *testing.T) {
	driver := &fakeDriver{frames: []FrameInfo{{ID: "f1", URL: "https://example.com"}}}
	w := newWidget(driver)

	result := w.SwitchToIframe("nope")
	require.False(t, result.Success)
}

func TestWaitForDynamicWidgetResolvesEarlyAboveHalfConfidence(t *testing.T) {
	driver := &fakeDriver{html: `<html><body><iframe src="https://www.google.com/recaptcha/api2/anchor"></iframe></body></html>`}
	w := newWidget(driver)

	result := w.WaitForDynamicWidget(context.Background(), models.SystemRecaptcha, 50*time.Millisecond)
	require.True(t, result.Success)
}

func TestWaitForCaptchaWidgetTimesOutWhenAbsent(t *testing.T) {
	driver := &fakeDriver{html: `<html><body></body></html>`}
	w := newWidget(driver)

	result := w.WaitForCaptchaWidget(context.Background(), models.SystemRecaptcha, 5*time.Millisecond)
	require.False(t, result.Success)
}

func TestCaptureDebugScreenshotNoopWithoutConfiguredDir(t *testing.T) {
	driver := &fakeDriver{}
	w := newWidget(driver)

	result := w.CaptureDebugScreenshot("task1", time.Now(), func(path string, data []byte) error {
		t.Fatal("write should not be called")
		return nil
	})
	require.True(t, result.Success)
}

func TestCaptureDebugScreenshotWritesWhenConfigured(t *testing.T) {
	driver := &fakeDriver{}
	w := newWidget(driver)
	w.cfg.DebugScreenshotDir = "/tmp/hive-debug"

	var writtenPath string
	result := w.CaptureDebugScreenshot("task1", time.UnixMilli(1000), func(path string, data []byte) error {
		writtenPath = path
		return nil
	})
	require.True(t, result.Success)
	require.Contains(t, writtenPath, "captcha-task1-1000.png")
}
