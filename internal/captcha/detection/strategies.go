package detection

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/corvidworks/hive/internal/models"
)

// signal builds a DetectionSignal carrying kind, value and weight.
func signal(kind, value string, weight float64) models.DetectionSignal {
	return models.DetectionSignal{Kind: kind, Value: value, Weight: weight}
}

// iframeSrcContains reports whether any iframe's src contains substr, and
// returns the first matching src.
func iframeSrcContains(doc *goquery.Document, substr string) (bool, string) {
	var matched string
	doc.Find("iframe").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, ok := s.Attr("src")
		if ok && strings.Contains(src, substr) {
			matched = src
			return false
		}
		return true
	})
	return matched != "", matched
}

func selectorExists(doc *goquery.Document, selector string) bool {
	return doc.Find(selector).Length() > 0
}

func cookiesContain(page Page, names ...string) []string {
	raw, err := page.Evaluate("document.cookie")
	if err != nil {
		return nil
	}
	cookieStr, _ := raw.(string)
	var found []string
	for _, name := range names {
		if strings.Contains(cookieStr, name+"=") {
			found = append(found, name)
		}
	}
	return found
}

func globalDefined(page Page, expr string) bool {
	raw, err := page.Evaluate("typeof " + expr + " !== 'undefined'")
	if err != nil {
		return false
	}
	defined, _ := raw.(bool)
	return defined
}

// recaptchaStrategy detects Google reCAPTCHA (v2/v3) widgets.
type recaptchaStrategy struct{}

func (recaptchaStrategy) System() models.AntiBotSystem { return models.SystemRecaptcha }

func (s recaptchaStrategy) Detect(_ context.Context, _ Page, doc *goquery.Document) (models.DetectionResult, error) {
	var signals []models.DetectionSignal
	var confidence float64

	if ok, src := iframeSrcContains(doc, "google.com/recaptcha"); ok {
		signals = append(signals, signal("iframe", src, 0.6))
		confidence += 0.6
	}
	if selectorExists(doc, ".g-recaptcha") {
		signals = append(signals, signal("selector", ".g-recaptcha", 0.3))
		confidence += 0.3
	}
	if selectorExists(doc, "textarea[name=g-recaptcha-response]") {
		signals = append(signals, signal("selector", "textarea[name=g-recaptcha-response]", 0.2))
		confidence += 0.2
	}

	return models.DetectionResult{SystemType: s.System(), Confidence: confidence, Signals: signals}, nil
}

// hcaptchaStrategy detects hCaptcha widgets.
type hcaptchaStrategy struct{}

func (hcaptchaStrategy) System() models.AntiBotSystem { return models.SystemHCaptcha }

func (s hcaptchaStrategy) Detect(_ context.Context, _ Page, doc *goquery.Document) (models.DetectionResult, error) {
	var signals []models.DetectionSignal
	var confidence float64

	if ok, src := iframeSrcContains(doc, "hcaptcha.com"); ok {
		signals = append(signals, signal("iframe", src, 0.6))
		confidence += 0.6
	}
	if selectorExists(doc, ".h-captcha") {
		signals = append(signals, signal("selector", ".h-captcha", 0.3))
		confidence += 0.3
	}

	return models.DetectionResult{SystemType: s.System(), Confidence: confidence, Signals: signals}, nil
}

// turnstileStrategy detects Cloudflare Turnstile widgets.
type turnstileStrategy struct{}

func (turnstileStrategy) System() models.AntiBotSystem { return models.SystemTurnstile }

func (s turnstileStrategy) Detect(_ context.Context, _ Page, doc *goquery.Document) (models.DetectionResult, error) {
	var signals []models.DetectionSignal
	var confidence float64

	if ok, src := iframeSrcContains(doc, "challenges.cloudflare.com"); ok {
		signals = append(signals, signal("iframe", src, 0.6))
		confidence += 0.6
	}
	if selectorExists(doc, ".cf-turnstile") {
		signals = append(signals, signal("selector", ".cf-turnstile", 0.3))
		confidence += 0.3
	}

	return models.DetectionResult{SystemType: s.System(), Confidence: confidence, Signals: signals}, nil
}

// dataDomeStrategy detects DataDome's cookie/selector/iframe markers.
type dataDomeStrategy struct{}

func (dataDomeStrategy) System() models.AntiBotSystem { return models.SystemDataDome }

func (s dataDomeStrategy) Detect(_ context.Context, page Page, doc *goquery.Document) (models.DetectionResult, error) {
	var signals []models.DetectionSignal
	var confidence float64

	if ok, src := iframeSrcContains(doc, "datadome"); ok {
		signals = append(signals, signal("iframe", src, 0.5))
		confidence += 0.5
	}
	if selectorExists(doc, "[id*=datadome]") {
		signals = append(signals, signal("selector", "[id*=datadome]", 0.2))
		confidence += 0.2
	}
	for _, cookie := range cookiesContain(page, "datadome") {
		signals = append(signals, signal("cookie", cookie, 0.4))
		confidence += 0.4
	}

	return models.DetectionResult{SystemType: s.System(), Confidence: confidence, Signals: signals}, nil
}

// akamaiStrategy detects Akamai Bot Manager's cookie/global markers.
type akamaiStrategy struct{}

func (akamaiStrategy) System() models.AntiBotSystem { return models.SystemAkamai }

func (s akamaiStrategy) Detect(_ context.Context, page Page, _ *goquery.Document) (models.DetectionResult, error) {
	var signals []models.DetectionSignal
	var confidence float64

	for _, cookie := range cookiesContain(page, "_abck", "bm_sz") {
		signals = append(signals, signal("cookie", cookie, 0.35))
		confidence += 0.35
	}
	if globalDefined(page, "window.bmak") {
		signals = append(signals, signal("global", "window.bmak", 0.3))
		confidence += 0.3
	}
	if globalDefined(page, "window._cf") {
		signals = append(signals, signal("global", "window._cf", 0.2))
		confidence += 0.2
	}

	return models.DetectionResult{SystemType: s.System(), Confidence: confidence, Signals: signals}, nil
}
