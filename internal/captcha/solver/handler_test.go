package solver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidworks/hive/internal/captcha/detection"
	"github.com/corvidworks/hive/internal/common"
	"github.com/corvidworks/hive/internal/models"
)

type fakeDetectionPage struct{ html string }

func (p *fakeDetectionPage) OuterHTML() (string, error)              { return p.html, nil }
func (p *fakeDetectionPage) Evaluate(script string) (interface{}, error) { return nil, nil }

func TestActionHandlerReportsUndetectedWithoutError(t *testing.T) {
	reg := detection.New(nil, common.CaptchaConfig{MinConfidenceThreshold: 0.5, MinStrongConfidence: 0.7}, nil)
	orch := NewOrchestrator(New(3, time.Minute, 5), 3, time.Millisecond, time.Millisecond, nil)
	page := &fakeDetectionPage{html: "<html><body>nothing here</body></html>"}

	handler := ActionHandler(reg, orch, page)
	data, err := handler(context.Background(), models.Action{Type: models.ActionSolveCaptcha, Parameters: map[string]interface{}{"pageUrl": "https://example.com"}})

	require.NoError(t, err)
	assert.Equal(t, false, data["detected"])
}

func TestActionHandlerSolvesDetectedChallenge(t *testing.T) {
	reg := detection.New(nil, common.CaptchaConfig{MinConfidenceThreshold: 0.3, MinStrongConfidence: 0.5}, nil)
	registry := New(3, time.Minute, 5)
	registry.Register(&stubSolver{name: "turnstile-solver", systems: []models.AntiBotSystem{models.SystemTurnstile}}, 10)
	orch := NewOrchestrator(registry, 3, time.Millisecond, time.Millisecond, nil)
	page := &fakeDetectionPage{html: `<div class="cf-turnstile" data-sitekey="x"></div><iframe src="https://challenges.cloudflare.com/cdn-cgi/challenge-platform"></iframe>`}

	handler := ActionHandler(reg, orch, page)
	data, err := handler(context.Background(), models.Action{Type: models.ActionSolveCaptcha, Parameters: map[string]interface{}{"pageUrl": "https://example.com"}})

	require.NoError(t, err)
	assert.Equal(t, true, data["detected"])
	assert.Equal(t, string(models.SystemTurnstile), data["system"])
	assert.Equal(t, "t", data["token"])
}
