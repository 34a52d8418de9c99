package detection

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/corvidworks/hive/internal/common"
	"github.com/corvidworks/hive/internal/models"
)

type fakePage struct {
	html       string
	cookieJar  string
	globals    map[string]bool
	evalErr    error
}

func (p *fakePage) OuterHTML() (string, error) { return p.html, nil }

func (p *fakePage) Evaluate(script string) (interface{}, error) {
	if p.evalErr != nil {
		return nil, p.evalErr
	}
	if script == "document.cookie" {
		return p.cookieJar, nil
	}
	for k, v := range p.globals {
		if script == "typeof "+k+" !== 'undefined'" {
			return v, nil
		}
	}
	return false, nil
}

func TestRecaptchaStrategyScoresIframeAndSelector(t *testing.T) {
	html := `<html><body><iframe src="https://www.google.com/recaptcha/api2/anchor"></iframe><div class="g-recaptcha"></div></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	result, err := (recaptchaStrategy{}).Detect(nil, nil, doc)
	require.NoError(t, err)
	require.Equal(t, models.SystemRecaptcha, result.SystemType)
	require.InDelta(t, 0.9, result.Confidence, 0.001)
	require.Len(t, result.Signals, 2)
}

func TestAkamaiStrategyReadsCookiesAndGlobals(t *testing.T) {
	page := &fakePage{cookieJar: "_abck=xyz; bm_sz=abc", globals: map[string]bool{"window.bmak": true}}

	result, err := (akamaiStrategy{}).Detect(nil, page, nil)
	require.NoError(t, err)
	require.Equal(t, models.SystemAkamai, result.SystemType)
	require.True(t, result.Confidence > 0.9)
}

func TestRegistryDetectAggregatesMaxConfidencePerSystemAndFiltersThreshold(t *testing.T) {
	html := `<html><body><div class="g-recaptcha"></div></body></html>`
	page := &fakePage{html: html}
	cfg := common.CaptchaConfig{MinConfidenceThreshold: 0.2, MinStrongConfidence: 0.7}
	registry := New(nil, cfg, nil)

	results, err := registry.Detect(nil, "https://example.com/login", page)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, models.SystemRecaptcha, results[0].SystemType)
}

func TestRegistryDetectFiltersBelowThreshold(t *testing.T) {
	html := `<html><body></body></html>`
	page := &fakePage{html: html}
	cfg := common.CaptchaConfig{MinConfidenceThreshold: 0.5}
	registry := New(nil, cfg, nil)

	results, err := registry.Detect(nil, "https://example.com", page)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestIsActionableUsesStrongConfidenceThreshold(t *testing.T) {
	cfg := common.CaptchaConfig{MinStrongConfidence: 0.7}
	registry := New(nil, cfg, nil)

	require.True(t, registry.IsActionable(models.DetectionResult{Confidence: 0.8}))
	require.False(t, registry.IsActionable(models.DetectionResult{Confidence: 0.6}))
}

func TestFingerprintIsStableForSameURL(t *testing.T) {
	a := Fingerprint("https://example.com/page")
	b := Fingerprint("https://example.com/page")
	c := Fingerprint("https://example.com/other")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
