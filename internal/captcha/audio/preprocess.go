package audio

import "time"

// PreprocessLevel selects how aggressively Preprocess conditions the audio
// before a (re)transcription attempt (spec section 4.7 step 5).
type PreprocessLevel int

const (
	// BasicPreprocess: format conversion, mono 16kHz resample.
	BasicPreprocess PreprocessLevel = iota
	// EnhancedPreprocess additionally applies noise reduction, volume
	// normalization, and silence trimming; used on retry attempts after a
	// low-confidence first pass (spec 4.7 step 6).
	EnhancedPreprocess
)

// Preprocess conditions raw audio bytes for transcription. The actual DSP
// (resampling, noise reduction, normalization, silence trimming) requires a
// dedicated audio codec library outside this pack's dependency set; this is
// an intentional stub per spec 4.7's "Implementations may stub" and returns
// data unchanged, but preserves the call site and level distinction so a
// real DSP backend can be dropped in without touching the pipeline.
func Preprocess(data []byte, level PreprocessLevel) []byte {
	return data
}

// cacheExpiry computes the TTL expiry for a freshly transcribed result,
// defaulting to spec 4.7's 24h when ttl is unset.
func cacheExpiry(ttl time.Duration) time.Time {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return time.Now().Add(ttl)
}
