package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
)

// Handler processes one published event. A returned error is logged, never
// propagated back to the publisher.
type Handler func(ctx context.Context, event Event) error

// Service is an in-process pub/sub event bus. Job lifecycle producers publish
// to it; a WebSocket facade (out of scope) would be one subscriber among others.
type Service struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	logger      arbor.ILogger
}

// NewService constructs an event bus bound to logger.
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		subscribers: make(map[EventType][]Handler),
		logger:      logger,
	}
}

// Subscribe registers handler for eventType.
func (s *Service) Subscribe(eventType EventType, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)
	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("event handler subscribed")

	return nil
}

// Publish sends event to all subscribers asynchronously; handler failures are logged only.
func (s *Service) Publish(ctx context.Context, event Event) {
	s.mu.RLock()
	handlers := append([]Handler(nil), s.subscribers[event.Type]...)
	s.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				s.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("event handler failed")
			}
		}(handler)
	}
}

// PublishSync sends event to all subscribers and waits for every handler to finish.
// Used by tests asserting on the monotone event sequence of spec section 5.
func (s *Service) PublishSync(ctx context.Context, event Event) error {
	s.mu.RLock()
	handlers := append([]Handler(nil), s.subscribers[event.Type]...)
	s.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(handlers))
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("event handler failed")
				errCh <- err
			}
		}(handler)
	}
	wg.Wait()
	close(errCh)

	var failures int
	for range errCh {
		failures++
	}
	if failures > 0 {
		return fmt.Errorf("event handlers failed: %d errors", failures)
	}
	return nil
}

// Close discards all subscriptions.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = make(map[EventType][]Handler)
	s.logger.Info().Msg("event service closed")
	return nil
}
