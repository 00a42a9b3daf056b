// Package memory stores archived payloads in-memory for development.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Archive keeps payloads in a map and returns pseudo URIs.
type Archive struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates a new in-memory archive.
func New() *Archive {
	return &Archive{data: make(map[string][]byte)}
}

// Store persists the payload under its digest. A repeated digest keeps the
// first copy.
func (a *Archive) Store(_ context.Context, digest string, payload []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.data[digest]; !ok {
		a.data[digest] = append([]byte(nil), payload...)
	}
	return fmt.Sprintf("memory://%s", digest), nil
}

// Get returns an archived payload for inspection in tests.
func (a *Archive) Get(digest string) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	payload, ok := a.data[digest]
	return payload, ok
}
