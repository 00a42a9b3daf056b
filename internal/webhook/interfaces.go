package webhook

import "time"

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers for stored events.
type IDGenerator interface {
	NewID() (string, error)
}
