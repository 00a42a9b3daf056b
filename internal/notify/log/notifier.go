// Package log delivers alerts to the structured log.
package log

import (
	"context"

	"go.uber.org/zap"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/notify"
)

// Notifier writes every alert as a log record at a level matching its
// severity.
type Notifier struct {
	logger *zap.Logger
}

// New returns a log Notifier.
func New(logger *zap.Logger) *Notifier {
	return &Notifier{logger: logger.Named("alerts")}
}

// Notify logs the alert.
func (n *Notifier) Notify(_ context.Context, alert notify.Alert) error {
	fields := []zap.Field{
		zap.String("alert_type", alert.Type),
		zap.String("severity", string(alert.Severity)),
		zap.Time("raised_at", alert.RaisedAt),
	}
	switch alert.Severity {
	case notify.SeverityCritical:
		n.logger.Error(alert.Message, fields...)
	case notify.SeverityWarning:
		n.logger.Warn(alert.Message, fields...)
	default:
		n.logger.Info(alert.Message, fields...)
	}
	return nil
}
