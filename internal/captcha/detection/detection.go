// Package detection implements C5: identifying which anti-bot system a page
// is exhibiting (spec section 4.5).
package detection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/common"
	"github.com/corvidworks/hive/internal/models"
	"github.com/corvidworks/hive/internal/storage/cache"
)

// Page is the minimal page surface a detection strategy needs: the current
// HTML and the ability to evaluate a JS expression (for cookies and global
// object probes that don't appear in the DOM tree).
type Page interface {
	OuterHTML() (string, error)
	Evaluate(script string) (interface{}, error)
}

// Strategy scores one anti-bot system's presence on the current page.
type Strategy interface {
	System() models.AntiBotSystem
	Detect(ctx context.Context, page Page, doc *goquery.Document) (models.DetectionResult, error)
}

// Registry runs every registered strategy and aggregates by max-confidence
// per system (spec section 4.5).
type Registry struct {
	strategies []Strategy
	cache      *cache.DetectionCache
	cfg        common.CaptchaConfig
	logger     arbor.ILogger
}

// New builds a Registry with the default built-in strategies registered.
func New(detectionCache *cache.DetectionCache, cfg common.CaptchaConfig, logger arbor.ILogger) *Registry {
	r := &Registry{cache: detectionCache, cfg: cfg, logger: logger}
	r.Register(
		&recaptchaStrategy{},
		&hcaptchaStrategy{},
		&turnstileStrategy{},
		&dataDomeStrategy{},
		&akamaiStrategy{},
	)
	return r
}

// Register adds one or more strategies to the registry.
func (r *Registry) Register(strategies ...Strategy) {
	r.strategies = append(r.strategies, strategies...)
}

// Detect runs every registered strategy against page, aggregates by
// max-confidence per system, and filters by MinConfidenceThreshold. Results
// are memoized by URL fingerprint for cfg.CacheTTL.
func (r *Registry) Detect(ctx context.Context, pageURL string, page Page) ([]models.DetectionResult, error) {
	fingerprint := Fingerprint(pageURL)

	if r.cache != nil {
		if cached, ok := r.cache.Get(fingerprint); ok {
			return cached, nil
		}
	}

	html, err := page.OuterHTML()
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	bySystem := make(map[models.AntiBotSystem]models.DetectionResult)
	for _, strat := range r.strategies {
		result, err := strat.Detect(ctx, page, doc)
		if err != nil {
			r.logger.Debug().Err(err).Str("system", string(strat.System())).Msg("detection strategy failed")
			continue
		}
		if result.Confidence > 1.0 {
			result.Confidence = 1.0
		}
		existing, ok := bySystem[result.SystemType]
		if !ok || result.Confidence > existing.Confidence {
			bySystem[result.SystemType] = result
		}
	}

	threshold := r.cfg.MinConfidenceThreshold
	if threshold == 0 {
		threshold = 0.5
	}

	var out []models.DetectionResult
	for _, result := range bySystem {
		if result.Confidence >= threshold {
			out = append(out, result)
		}
	}

	if r.cache != nil {
		ttl := r.cfg.CacheTTL
		if ttl == 0 {
			ttl = 5 * time.Minute
		}
		if err := r.cache.Put(fingerprint, out, ttl); err != nil {
			r.logger.Warn().Err(err).Msg("failed to cache detection result")
		}
	}

	return out, nil
}

// IsActionable reports whether result meets the strong-confidence bar the
// solver orchestrator requires before attempting a candidate (spec 4.5, 4.8).
func (r *Registry) IsActionable(result models.DetectionResult) bool {
	strong := r.cfg.MinStrongConfidence
	if strong == 0 {
		strong = 0.7
	}
	return result.Confidence >= strong
}

// Fingerprint derives the cache key for a page URL (spec section 4.5: "memoized
// by page URL fingerprint").
func Fingerprint(pageURL string) string {
	sum := sha256.Sum256([]byte(pageURL))
	return hex.EncodeToString(sum[:])
}
