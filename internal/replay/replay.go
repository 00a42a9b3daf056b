// Package replay reprocesses stored events that never reached a terminal
// state. It pulls the oldest pending/failed rows from the event store and
// runs them back through the ingestion pipeline.
package replay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/config"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/ingest"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/store"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/telemetry"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// Summary reports one replay pass.
type Summary struct {
	Candidates  int                    `json:"candidates"`
	Reprocessed int                    `json:"reprocessed"`
	Succeeded   int                    `json:"succeeded"`
	Failed      int                    `json:"failed"`
	Events      []webhook.WebhookEvent `json:"events,omitempty"`
}

// Consumer drains replayable events through the pipeline at a bounded pace.
type Consumer struct {
	cfg      config.ReplayConfig
	events   store.EventStore
	pipeline *ingest.Pipeline
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// New constructs a Consumer.
func New(cfg config.ReplayConfig, events store.EventStore, pipeline *ingest.Pipeline, logger *zap.Logger) *Consumer {
	eps := cfg.EventsPerSecond
	if eps <= 0 {
		eps = 5
	}
	return &Consumer{
		cfg:      cfg,
		events:   events,
		pipeline: pipeline,
		limiter:  rate.NewLimiter(rate.Limit(eps), 1),
		logger:   logger,
	}
}

// Run performs one replay pass over at most limit events. With dryRun set
// it only lists the candidates and mutates nothing.
func (c *Consumer) Run(ctx context.Context, limit int, dryRun bool) (Summary, error) {
	if limit <= 0 {
		limit = c.cfg.DefaultLimit
	}

	candidates, err := c.events.ListReplayable(ctx, limit)
	if err != nil {
		telemetry.ObserveReplayRun("error")
		return Summary{}, fmt.Errorf("failed to list replayable events: %w", err)
	}

	summary := Summary{Candidates: len(candidates)}
	if dryRun {
		summary.Events = candidates
		c.logger.Info("replay dry run",
			zap.Int("candidates", summary.Candidates))
		telemetry.ObserveReplayRun("dry_run")
		return summary, nil
	}

	for _, event := range candidates {
		if err := c.limiter.Wait(ctx); err != nil {
			telemetry.ObserveReplayRun("canceled")
			return summary, fmt.Errorf("replay interrupted: %w", err)
		}
		result, err := c.pipeline.Process(ctx, event)
		if err != nil {
			c.logger.Warn("replay processing error",
				zap.String("event_id", event.EventID),
				zap.Error(err))
			summary.Failed++
			continue
		}
		summary.Reprocessed++
		if result.Failed || result.NotReady {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}

	c.logger.Info("replay pass finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("reprocessed", summary.Reprocessed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	telemetry.ObserveReplayRun("ok")
	return summary, nil
}

// Start runs replay passes on the configured interval until the context is
// canceled. Used by the server so stuck deliveries drain without operator
// action.
func (c *Consumer) Start(ctx context.Context) {
	interval := time.Duration(c.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Run(ctx, c.cfg.DefaultLimit, false); err != nil {
				c.logger.Warn("background replay pass failed", zap.Error(err))
			}
		}
	}
}
