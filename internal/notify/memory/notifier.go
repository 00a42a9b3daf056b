// Package memory contains an in-memory alert sink for tests.
package memory

import (
	"context"
	"sync"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/notify"
)

// Notifier records alerts for inspection.
type Notifier struct {
	mu     sync.RWMutex
	alerts []notify.Alert
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Notify records the alert.
func (n *Notifier) Notify(_ context.Context, alert notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

// Alerts returns the recorded alerts.
func (n *Notifier) Alerts() []notify.Alert {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]notify.Alert, len(n.alerts))
	copy(out, n.alerts)
	return out
}
