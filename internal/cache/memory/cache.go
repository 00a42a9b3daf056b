// Package memory provides an in-memory cache for development/testing.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/cache"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

type entry struct {
	value     string
	counter   int64
	expiresAt time.Time
}

// Cache implements cache.Cache with a mutexed map and lazy expiry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   webhook.Clock
}

// New constructs a Cache. A nil clock falls back to the system clock.
func New(clock webhook.Clock) *Cache {
	if clock == nil {
		clock = systemClock{}
	}
	return &Cache{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Get returns the value for key, or cache.ErrNotFound.
func (c *Cache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return "", cache.ErrNotFound
	}
	return e.value, nil
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.clock.Now().Add(ttl)}
	return nil
}

// Incr atomically increments the counter at key, creating it with the TTL.
func (c *Cache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		e = entry{expiresAt: c.clock.Now().Add(ttl)}
	}
	e.counter++
	e.value = strconv.FormatInt(e.counter, 10)
	c.entries[key] = e
	return e.counter, nil
}

// Add stores a marker only if the key is absent; returns true when created.
func (c *Cache) Add(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live(key); ok {
		return false, nil
	}
	c.entries[key] = entry{value: "1", expiresAt: c.clock.Now().Add(ttl)}
	return true, nil
}

// live returns the entry if present and unexpired, deleting expired rows.
// Callers must hold the mutex.
func (c *Cache) live(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if c.clock.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return entry{}, false
	}
	return e, true
}
