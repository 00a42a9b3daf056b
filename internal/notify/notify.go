// Package notify defines the alert fan-out surface. The monitor raises
// alerts; sinks decide where they go.
package notify

import (
	"context"
	"time"
)

// Severity ranks an alert.
type Severity string

// Alert severities, lowest to highest.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one deduplicated operational signal from the monitor.
type Alert struct {
	Type     string    `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
}

// Notifier delivers alerts to an operator-facing channel.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}
