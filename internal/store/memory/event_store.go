// Package memory provides in-memory store implementations for
// development/testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/store"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// EventStore implements store.EventStore with a mutexed map.
type EventStore struct {
	mu     sync.RWMutex
	events map[string]webhook.WebhookEvent
}

// NewEventStore constructs an EventStore.
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string]webhook.WebhookEvent)}
}

// Insert stores a new pending event.
func (s *EventStore) Insert(_ context.Context, event webhook.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.EventID]; exists {
		return errors.New("event already exists")
	}
	s.events[event.EventID] = event
	return nil
}

// Get returns one event by ID.
func (s *EventStore) Get(_ context.Context, eventID string) (webhook.WebhookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[eventID]
	if !ok {
		return webhook.WebhookEvent{}, store.ErrNotFound
	}
	return event, nil
}

// Claim transitions a pending or failed event to processing.
func (s *EventStore) Claim(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	if event.Status != webhook.EventPending && event.Status != webhook.EventFailed {
		return store.ErrNotFound
	}
	event.Status = webhook.EventProcessing
	s.events[eventID] = event
	return nil
}

// MarkCompleted finishes an event successfully.
func (s *EventStore) MarkCompleted(_ context.Context, eventID string, processedAt time.Time) error {
	return s.finish(eventID, webhook.EventCompleted, processedAt, "")
}

// MarkFailed finishes an event with an error message.
func (s *EventStore) MarkFailed(_ context.Context, eventID string, processedAt time.Time, errMsg string) error {
	return s.finish(eventID, webhook.EventFailed, processedAt, errMsg)
}

// Release returns a processing event to pending.
func (s *EventStore) Release(_ context.Context, eventID string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	if event.Status != webhook.EventProcessing {
		return store.ErrNotFound
	}
	event.Status = webhook.EventPending
	event.ErrorMessage = errMsg
	s.events[eventID] = event
	return nil
}

func (s *EventStore) finish(eventID string, status webhook.EventStatus, processedAt time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	event.Status = status
	event.ProcessedAt = &processedAt
	event.ErrorMessage = errMsg
	s.events[eventID] = event
	return nil
}

// ListReplayable returns the oldest pending/failed events, bounded by limit.
func (s *EventStore) ListReplayable(_ context.Context, limit int) ([]webhook.WebhookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []webhook.WebhookEvent
	for _, event := range s.events {
		if event.Status == webhook.EventPending || event.Status == webhook.EventFailed {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
