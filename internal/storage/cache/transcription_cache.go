package cache

import (
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/corvidworks/hive/internal/models"
)

// transcriptionRecord is the badgerhold-stored row; Hash (sha256 hex) is the primary key.
type transcriptionRecord struct {
	Hash  string `badgerhold:"key"`
	Entry models.TranscriptionCacheEntry
}

// TranscriptionCache memoizes C7 audio transcriptions by sha256(audioBytes)
// with TTL (spec section 3, 4.7; default 24h via common.AudioConfig.CacheTTL).
type TranscriptionCache struct {
	store  *Store
	logger arbor.ILogger
}

// NewTranscriptionCache wraps store with the audio transcription cache.
func NewTranscriptionCache(store *Store, logger arbor.ILogger) *TranscriptionCache {
	return &TranscriptionCache{store: store, logger: logger}
}

// Get returns the cached transcription for audioHash if present and unexpired.
// Spec section 8: a cache hit must trigger zero provider calls.
func (c *TranscriptionCache) Get(audioHash string) (models.TranscriptionCacheEntry, bool) {
	var rec transcriptionRecord
	if err := c.store.store.Get(audioHash, &rec); err != nil {
		return models.TranscriptionCacheEntry{}, false
	}
	if time.Now().After(rec.Entry.ExpiresAt) {
		_ = c.store.store.Delete(audioHash, transcriptionRecord{})
		return models.TranscriptionCacheEntry{}, false
	}
	return rec.Entry, true
}

// Put stores a successful high-confidence transcription for audioHash.
func (c *TranscriptionCache) Put(audioHash string, entry models.TranscriptionCacheEntry) error {
	rec := transcriptionRecord{Hash: audioHash, Entry: entry}
	return c.store.store.Upsert(audioHash, rec)
}

// SweepExpired deletes every entry whose TTL has passed.
func (c *TranscriptionCache) SweepExpired() (int, error) {
	now := time.Now()
	var expired []transcriptionRecord
	if err := c.store.store.Find(&expired, badgerhold.Where("Entry.ExpiresAt").Lt(now)); err != nil {
		return 0, err
	}
	for _, rec := range expired {
		if err := c.store.store.Delete(rec.Hash, transcriptionRecord{}); err != nil {
			c.logger.Warn().Err(err).Str("hash", rec.Hash).Msg("failed to delete expired transcription cache entry")
		}
	}
	return len(expired), nil
}
