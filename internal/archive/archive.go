// Package archive persists raw delivery payloads as immutable blobs. The
// event store keeps the payload for replay; the archive is the cold copy
// operators pull when disputing what a provider actually sent.
package archive

import "context"

// Archive stores raw payload bytes keyed by their content digest.
type Archive interface {
	// Store writes the payload and returns the URI of the stored object.
	// Storing the same digest twice is a no-op on the second call.
	Store(ctx context.Context, digest string, payload []byte) (string, error)
}
