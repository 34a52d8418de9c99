package audio

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Transcription is one provider attempt's result.
type Transcription struct {
	Text       string
	Confidence float64
}

// Provider transcribes raw audio bytes. Implementations wrap a specific
// vendor's speech-to-text HTTP API.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, format Format) (Transcription, error)
}

// rateLimitedProvider wraps a Provider with the per-provider token bucket and
// single-in-flight queue spec section 4.7 step 6 requires, so every provider
// implementation gets this for free instead of reimplementing it.
type rateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	mu      sync.Mutex // single-in-flight queue: only one request per provider at a time
}

// newRateLimitedProvider bounds inner to ratePerMinute requests in any 60s
// sliding window, approximated with a token bucket refilling at that rate.
func newRateLimitedProvider(inner Provider, ratePerMinute int) *rateLimitedProvider {
	if ratePerMinute <= 0 {
		ratePerMinute = 60
	}
	limit := rate.Limit(float64(ratePerMinute) / 60.0)
	return &rateLimitedProvider{inner: inner, limiter: rate.NewLimiter(limit, ratePerMinute)}
}

func (p *rateLimitedProvider) Name() string { return p.inner.Name() }

// Transcribe returns errRateLimited immediately if the token bucket is
// exhausted (the pipeline then skips to the next provider, per spec), and
// otherwise serializes concurrent callers through mu before delegating.
func (p *rateLimitedProvider) Transcribe(ctx context.Context, data []byte, format Format) (Transcription, error) {
	if !p.limiter.Allow() {
		return Transcription{}, errRateLimited
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inner.Transcribe(ctx, data, format)
}

var errRateLimited = fmt.Errorf("provider rate limit exceeded")

// httpClient builds the shared 60s-deadline client. It sets no User-Agent;
// each request sets its own header.
func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

// LoadProviders registers one rate-limited Provider per vendor whose
// credential environment variable is set, keeping startup cheap when a
// transcription provider isn't configured (spec 4.7: "Providers are loaded
// lazily").
func LoadProviders(ratePerMinute int) []Provider {
	var providers []Provider
	if key := os.Getenv("GOOGLE_SPEECH_API_KEY"); key != "" {
		providers = append(providers, newRateLimitedProvider(&googleSpeechProvider{apiKey: key, client: httpClient()}, ratePerMinute))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers = append(providers, newRateLimitedProvider(&openAIWhisperProvider{apiKey: key, client: httpClient()}, ratePerMinute))
	}
	if key := os.Getenv("AZURE_SPEECH_KEY"); key != "" {
		providers = append(providers, newRateLimitedProvider(&azureSpeechProvider{apiKey: key, client: httpClient()}, ratePerMinute))
	}
	return providers
}

// OrderByPriority reorders providers to match the configured priority list
// (provider Name() values), appending any unmatched provider at the end in
// registration order.
func OrderByPriority(providers []Provider, priority []string) []Provider {
	if len(priority) == 0 {
		return providers
	}
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	ordered := make([]Provider, 0, len(providers))
	used := make(map[string]bool, len(providers))
	for _, name := range priority {
		if p, ok := byName[name]; ok {
			ordered = append(ordered, p)
			used[name] = true
		}
	}
	for _, p := range providers {
		if !used[p.Name()] {
			ordered = append(ordered, p)
		}
	}
	return ordered
}
