package cache

import (
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/corvidworks/hive/internal/models"
)

// detectionRecord is the badgerhold-stored row; Fingerprint is the primary key.
type detectionRecord struct {
	Fingerprint string `badgerhold:"key"`
	Entry       models.DetectionCacheEntry
}

// DetectionCache memoizes C5 detection verdicts by page URL fingerprint with
// TTL (spec section 4.5; default 5 min via common.CaptchaConfig.CacheTTL).
type DetectionCache struct {
	store  *Store
	logger arbor.ILogger
}

// NewDetectionCache wraps store with the detection-result cache.
func NewDetectionCache(store *Store, logger arbor.ILogger) *DetectionCache {
	return &DetectionCache{store: store, logger: logger}
}

// Get returns cached results for fingerprint if present and unexpired.
func (c *DetectionCache) Get(fingerprint string) ([]models.DetectionResult, bool) {
	var rec detectionRecord
	if err := c.store.store.Get(fingerprint, &rec); err != nil {
		return nil, false
	}
	if time.Now().After(rec.Entry.ExpiresAt) {
		_ = c.store.store.Delete(fingerprint, detectionRecord{})
		return nil, false
	}
	return rec.Entry.Results, true
}

// Put stores results for fingerprint with the given TTL.
func (c *DetectionCache) Put(fingerprint string, results []models.DetectionResult, ttl time.Duration) error {
	rec := detectionRecord{
		Fingerprint: fingerprint,
		Entry: models.DetectionCacheEntry{
			Results:   results,
			ExpiresAt: time.Now().Add(ttl),
		},
	}
	return c.store.store.Upsert(fingerprint, rec)
}

// SweepExpired deletes every entry whose TTL has passed. Registered as a
// robfig/cron maintenance job (SPEC_FULL section 11).
func (c *DetectionCache) SweepExpired() (int, error) {
	now := time.Now()
	var expired []detectionRecord
	if err := c.store.store.Find(&expired, badgerhold.Where("Entry.ExpiresAt").Lt(now)); err != nil {
		return 0, err
	}
	for _, rec := range expired {
		if err := c.store.store.Delete(rec.Fingerprint, detectionRecord{}); err != nil {
			c.logger.Warn().Err(err).Str("fingerprint", rec.Fingerprint).Msg("failed to delete expired detection cache entry")
		}
	}
	return len(expired), nil
}
