// Package cache provides per-process, TTL-bounded Badger-backed caches for
// captcha detection results and audio transcriptions (spec sections 4.5, 4.7).
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// Store wraps a badgerhold.Store shared by the detection and transcription caches.
type Store struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// Open creates (or attaches to) the Badger store at path. An empty path opens
// an in-memory store, used by tests and by single-shot CLI invocations.
func Open(path string, logger arbor.ILogger) (*Store, error) {
	options := badgerhold.DefaultOptions
	options.Logger = nil // defer logging to arbor

	if path == "" {
		options.InMemory = true
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
		options.Dir = path
		options.ValueDir = path
	}

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	logger.Info().Str("path", path).Msg("badger cache store opened")
	return &Store{store: store, logger: logger}, nil
}

// Raw exposes the underlying badgerhold.Store for specialized queries.
func (s *Store) Raw() *badgerhold.Store { return s.store }

// Close releases the underlying store.
func (s *Store) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
