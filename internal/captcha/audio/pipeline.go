// Package audio implements C7: turning an audio captcha challenge URL into
// recognized text (spec section 4.7).
package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/common"
	"github.com/corvidworks/hive/internal/errctx"
	"github.com/corvidworks/hive/internal/models"
	"github.com/corvidworks/hive/internal/storage/cache"
)

// Pipeline runs the full detect-free transcription path: download,
// cache-lookup, persist, transcribe-via-ranked-providers (preprocessing on
// retry attempts), cache.
// Detection of the audio control itself is C6's job (spec 4.7 step 1); a
// caller invokes Pipeline.Transcribe once it already has the challenge URL.
type Pipeline struct {
	providers  []Provider
	cache      *cache.TranscriptionCache
	httpClient *http.Client
	cfg        common.AudioConfig
	logger     arbor.ILogger
}

// New builds a Pipeline from cfg.ProviderPriority-ordered lazily-loaded
// providers (spec 4.7: "Providers are loaded lazily").
func New(transcriptionCache *cache.TranscriptionCache, cfg common.AudioConfig, logger arbor.ILogger) *Pipeline {
	providers := OrderByPriority(LoadProviders(cfg.RateLimitPerMinute), cfg.ProviderPriority)
	return &Pipeline{
		providers:  providers,
		cache:      transcriptionCache,
		httpClient: httpClient(),
		cfg:        cfg,
		logger:     logger,
	}
}

// Transcribe executes spec 4.7 steps 2-8 for one audio challenge URL.
func (p *Pipeline) Transcribe(ctx context.Context, page PageFetcher, sourceURL string) (Transcription, error) {
	data, err := Download(ctx, page, p.httpClient, sourceURL)
	if err != nil {
		return Transcription{}, errctx.NewCoreError(errctx.CategoryNetwork, "audio_download_failed", err, nil)
	}

	format := DetectFormat(sourceURL, data)
	audioHash := sha256Hex(data)

	if p.cfg.EnableCache && p.cache != nil {
		if entry, ok := p.cache.Get(audioHash); ok {
			return Transcription{Text: entry.Text, Confidence: entry.Confidence}, nil
		}
	}

	var cleanup func()
	if RequiresFileBasedProcessing(format) && p.cfg.TempDir != "" {
		_, cleanupFn, err := PersistTemp(p.cfg.TempDir, data, Extension(format))
		if err != nil {
			return Transcription{}, errctx.NewCoreError(errctx.CategoryInternal, "audio_temp_persist_failed", err, nil)
		}
		cleanup = cleanupFn
		defer cleanup()
	}

	result, provider, err := p.transcribeViaRankedProviders(ctx, data, format)
	if err != nil {
		return Transcription{}, err
	}

	minConfidence := p.cfg.MinConfidence
	if minConfidence == 0 {
		minConfidence = 0.7
	}
	if p.cfg.EnableCache && p.cache != nil && result.Confidence >= minConfidence {
		entry := models.TranscriptionCacheEntry{
			Text:       result.Text,
			Confidence: result.Confidence,
			Provider:   provider,
			ExpiresAt:  cacheExpiry(p.cfg.CacheTTL),
		}
		if err := p.cache.Put(audioHash, entry); err != nil {
			p.logger.Warn().Err(err).Msg("failed to cache audio transcription")
		}
	}

	return result, nil
}

// transcribeViaRankedProviders implements spec 4.7 step 6: walks the
// provider list in priority order, retrying each up to MaxRetries with
// progressively "enhanced" preprocessing before moving to the next provider.
func (p *Pipeline) transcribeViaRankedProviders(ctx context.Context, data []byte, format Format) (Transcription, string, error) {
	if len(p.providers) == 0 {
		return Transcription{}, "", errctx.NewCoreError(errctx.CategorySolverUnavailable, "no_audio_providers_configured", fmt.Errorf("no transcription provider credentials configured"), nil)
	}

	minConfidence := p.cfg.MinConfidence
	if minConfidence == 0 {
		minConfidence = 0.7
	}
	maxRetries := p.cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	var lastErr error
	for _, provider := range p.providers {
		audioData := data
		for attempt := 0; attempt < maxRetries; attempt++ {
			if attempt > 0 {
				audioData = Preprocess(data, EnhancedPreprocess)
			}
			result, err := provider.Transcribe(ctx, audioData, format)
			if err != nil {
				lastErr = err
				if err == errRateLimited {
					break // skip to next provider immediately
				}
				continue
			}
			if result.Confidence >= minConfidence {
				return result, provider.Name(), nil
			}
			lastErr = fmt.Errorf("%s: confidence %.2f below threshold %.2f", provider.Name(), result.Confidence, minConfidence)
		}
	}

	return Transcription{}, "", errctx.NewCoreError(errctx.CategorySolverUnavailable, "audio_transcription_exhausted", lastErr, nil)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
