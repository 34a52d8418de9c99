package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/corvidworks/hive/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("", arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDetectionCacheHitWithinTTL(t *testing.T) {
	store := newTestStore(t)
	c := NewDetectionCache(store, arbor.NewLogger())

	results := []models.DetectionResult{{SystemType: models.SystemRecaptcha, Confidence: 0.9}}
	require.NoError(t, c.Put("fp-1", results, time.Minute))

	got, ok := c.Get("fp-1")
	require.True(t, ok)
	require.Equal(t, results, got)
}

func TestDetectionCacheExpiredEntryMisses(t *testing.T) {
	store := newTestStore(t)
	c := NewDetectionCache(store, arbor.NewLogger())

	require.NoError(t, c.Put("fp-2", []models.DetectionResult{{SystemType: models.SystemHCaptcha, Confidence: 0.8}}, -time.Second))

	_, ok := c.Get("fp-2")
	require.False(t, ok)
}

func TestTranscriptionCacheRoundTrip(t *testing.T) {
	store := newTestStore(t)
	c := NewTranscriptionCache(store, arbor.NewLogger())

	entry := models.TranscriptionCacheEntry{Text: "seven four two", Confidence: 0.95, Provider: "google_speech", ExpiresAt: time.Now().Add(24 * time.Hour)}
	require.NoError(t, c.Put("sha-abc", entry))

	got, ok := c.Get("sha-abc")
	require.True(t, ok)
	require.Equal(t, entry.Text, got.Text)
	require.Equal(t, entry.Provider, got.Provider)
}

func TestTranscriptionCacheSweepExpired(t *testing.T) {
	store := newTestStore(t)
	c := NewTranscriptionCache(store, arbor.NewLogger())

	require.NoError(t, c.Put("expired-1", models.TranscriptionCacheEntry{Text: "x", ExpiresAt: time.Now().Add(-time.Hour)}))
	require.NoError(t, c.Put("fresh-1", models.TranscriptionCacheEntry{Text: "y", ExpiresAt: time.Now().Add(time.Hour)}))

	n, err := c.SweepExpired()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok := c.Get("fresh-1")
	require.True(t, ok)
}
