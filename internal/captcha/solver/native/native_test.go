package native

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidworks/hive/internal/captcha/detection"
	"github.com/corvidworks/hive/internal/captcha/widget"
	"github.com/corvidworks/hive/internal/common"
	"github.com/corvidworks/hive/internal/models"
)

type fakeDriver struct {
	html     string
	existsOK bool
	clicked  []string
	typed    map[string]string
	frames   []widget.FrameInfo
}

func (d *fakeDriver) OuterHTML() (string, error)                  { return d.html, nil }
func (d *fakeDriver) Evaluate(script string) (interface{}, error) { return nil, nil }
func (d *fakeDriver) Exists(selector string, kind widget.SelectorKind) (bool, error) {
	return d.existsOK, nil
}
func (d *fakeDriver) WaitVisible(selector string, kind widget.SelectorKind, timeout time.Duration) error {
	if d.existsOK {
		return nil
	}
	return errors.New("not visible")
}
func (d *fakeDriver) WaitAttached(selector string, kind widget.SelectorKind, timeout time.Duration) error {
	return d.WaitVisible(selector, kind, timeout)
}
func (d *fakeDriver) Click(selector string, kind widget.SelectorKind) error {
	d.clicked = append(d.clicked, selector)
	return nil
}
func (d *fakeDriver) SendKeys(selector string, kind widget.SelectorKind, text string) error {
	if d.typed == nil {
		d.typed = make(map[string]string)
	}
	d.typed[selector] = text
	return nil
}
func (d *fakeDriver) SelectOption(selector string, kind widget.SelectorKind, value string) error {
	return nil
}
func (d *fakeDriver) Screenshot() ([]byte, error)                        { return []byte("png"), nil }
func (d *fakeDriver) Frames() ([]widget.FrameInfo, error)                { return d.frames, nil }
func (d *fakeDriver) SwitchToFrame(frameID string) (widget.Driver, error) { return d, nil }

func newTestWidget(d widget.Driver) *widget.Widget {
	cfg := common.WidgetConfig{LocateTimeout: 10 * time.Millisecond, PollInterval: time.Millisecond}
	registry := detection.New(nil, common.CaptchaConfig{MinConfidenceThreshold: 0.2}, nil)
	return widget.New(d, registry, cfg, nil)
}

func TestTurnstileSolverClicksAndReadsToken(t *testing.T) {
	d := &fakeDriver{existsOK: true, html: `<div class="cf-turnstile"></div>`}
	s := NewTurnstileSolver(newTestWidget(d))

	result, err := s.Solve(context.Background(), models.Challenge{Type: models.ChallengeTurnstile})

	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "native_turnstile", s.Name())
}

func TestTurnstileSolverFailsWhenTokenFieldNeverAppears(t *testing.T) {
	d := &fakeDriver{existsOK: false}
	s := NewTurnstileSolver(newTestWidget(d))

	_, err := s.Solve(context.Background(), models.Challenge{Type: models.ChallengeTurnstile})

	assert.Error(t, err)
}

func TestRecaptchaV2SolverResolvesViaCheckboxWithoutAudioFallback(t *testing.T) {
	d := &fakeDriver{existsOK: true, frames: []widget.FrameInfo{{ID: "f1", URL: "https://www.google.com/recaptcha/api2/anchor"}}}
	s := NewRecaptchaV2Solver(newTestWidget(d), nil)

	result, err := s.Solve(context.Background(), models.Challenge{Type: models.ChallengeRecaptchaV2Checkbox})

	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestRecaptchaV2SolverFailsWithoutTranscriberWhenCheckboxInsufficient(t *testing.T) {
	d := &checkboxFailsDriver{fakeDriver: fakeDriver{frames: []widget.FrameInfo{{ID: "f1", URL: "google.com/recaptcha"}}}}
	s := NewRecaptchaV2Solver(newTestWidget(d), nil)

	_, err := s.Solve(context.Background(), models.Challenge{Type: models.ChallengeRecaptchaV2Image})

	assert.ErrorContains(t, err, "no audio fallback")
}

// checkboxFailsDriver reports the checkbox click as having "succeeded" (it
// always does, a click is a click) but never exposes the token textarea,
// forcing the solver into its audio-fallback branch. The audio response
// input is never exposed either, so that branch stops after transcription.
type checkboxFailsDriver struct{ fakeDriver }

func (d *checkboxFailsDriver) hidden(selector string) bool {
	return selector == "textarea[name=g-recaptcha-response]" || selector == "#audio-response"
}

func (d *checkboxFailsDriver) Exists(selector string, kind widget.SelectorKind) (bool, error) {
	return false, nil
}
func (d *checkboxFailsDriver) WaitVisible(selector string, kind widget.SelectorKind, timeout time.Duration) error {
	if d.hidden(selector) {
		return errors.New("never visible")
	}
	return nil
}
func (d *checkboxFailsDriver) WaitAttached(selector string, kind widget.SelectorKind, timeout time.Duration) error {
	if d.hidden(selector) {
		return errors.New("never attached")
	}
	return nil
}
func (d *checkboxFailsDriver) SwitchToFrame(frameID string) (widget.Driver, error) { return d, nil }

func TestRecaptchaV2SolverUsesAudioTranscriberWhenCheckboxInsufficient(t *testing.T) {
	d := &checkboxFailsDriver{fakeDriver: fakeDriver{frames: []widget.FrameInfo{{ID: "f1", URL: "google.com/recaptcha"}}}}
	called := false
	transcribe := func(ctx context.Context, audioURL string) (string, error) {
		called = true
		return "eight four two", nil
	}
	s := NewRecaptchaV2Solver(newTestWidget(d), transcribe)

	_, err := s.Solve(context.Background(), models.Challenge{Type: models.ChallengeRecaptchaV2Audio})

	// The fake driver never exposes the audio response input, so the audio
	// path still fails past the transcriber call; what this test asserts is
	// that the fallback was actually attempted rather than short-circuited.
	assert.Error(t, err)
	assert.True(t, called, "transcriber should be reached once the audio challenge is located")
}

func TestRecaptchaV3SolverReadsInvisibleToken(t *testing.T) {
	d := &fakeDriver{existsOK: true}
	s := NewRecaptchaV3Solver(newTestWidget(d))

	result, err := s.Solve(context.Background(), models.Challenge{Type: models.ChallengeRecaptchaV3})

	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestHCaptchaSolverClicksCheckbox(t *testing.T) {
	d := &fakeDriver{existsOK: true}
	s := NewHCaptchaSolver(newTestWidget(d))

	result, err := s.Solve(context.Background(), models.Challenge{Type: models.ChallengeHCaptchaCheckbox})

	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Contains(t, d.clicked, "#checkbox")
}

func TestDataDomeSolverDragsSliderWhenPresent(t *testing.T) {
	d := &fakeDriver{existsOK: true}
	s := NewDataDomeSolver(newTestWidget(d))

	result, err := s.Solve(context.Background(), models.Challenge{Type: models.ChallengeDataDomeSlider})

	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestDataDomeSolverSkipsDragWhenNoSliderPresent(t *testing.T) {
	d := &fakeDriver{existsOK: false}
	s := NewDataDomeSolver(newTestWidget(d))

	result, err := s.Solve(context.Background(), models.Challenge{Type: models.ChallengeDataDomeSensor})

	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Empty(t, d.clicked)
}

func TestFingerprintIsInternallyConsistentAndNonEmpty(t *testing.T) {
	fp := NewFingerprint()

	assert.NotZero(t, fp.ScreenWidth)
	assert.NotZero(t, fp.ScreenHeight)
	assert.NotEmpty(t, fp.Timezone)
	assert.NotEmpty(t, fp.WebGLRenderer)
	assert.Len(t, fp.CanvasHash, 16)
}

func TestSignSensorPayloadIsDeterministicForSameInput(t *testing.T) {
	sensor := SensorData{SensorVersion: "4.2.0", Timestamp: 1000, MouseEvents: 20}
	key := []byte("secret")

	sig1 := SignSensorPayload(sensor, key)
	sig2 := SignSensorPayload(sensor, key)

	assert.Equal(t, sig1, sig2)
}

func TestSignSensorPayloadDiffersForDifferentKeys(t *testing.T) {
	sensor := SensorData{SensorVersion: "4.2.0", Timestamp: 1000}

	sigA := SignSensorPayload(sensor, []byte("key-a"))
	sigB := SignSensorPayload(sensor, []byte("key-b"))

	assert.NotEqual(t, sigA, sigB)
}

func TestAbckCookieLooksSolvedGatesOnLength(t *testing.T) {
	assert.False(t, AbckCookieLooksSolved("short"))
	assert.True(t, AbckCookieLooksSolved("this-is-a-long-enough-abck-cookie-value-to-pass-the-fifty-byte-gate"))
}
