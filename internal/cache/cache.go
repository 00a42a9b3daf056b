// Package cache defines the key-value store used for rate counters and
// replay markers. The interface keeps the gate testable against an in-memory
// map while allowing a distributed cache in production.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache is a TTL key-value store with atomic operations.
type Cache interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments the counter at key and returns the new
	// value. The TTL is applied only when the counter is created, so a
	// burst cannot keep its own window alive.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Add stores a marker under key only if it does not already exist.
	// Returns true when the marker was created. This is the check-then-set
	// primitive the replay detector relies on.
	Add(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
