// Package status propagates delivery outcomes up the scraper request tree.
// A delivery resolves to requests via its snapshot ID; from there each level
// (batch, job, run) is re-derived from all of its children so the aggregate
// is correct regardless of arrival order.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/store"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// Engine cascades a delivery outcome from requests to their run.
type Engine struct {
	statuses store.StatusStore
	logger   *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(statuses store.StatusStore, logger *zap.Logger) *Engine {
	return &Engine{statuses: statuses, logger: logger}
}

// ApplyDelivery records the outcome of one processed delivery and recomputes
// every affected aggregate. A completed request is never changed, so a late
// redelivery cannot flip a finished request. A failed request may still be
// promoted to completed: failures can be transient (the replay consumer
// reprocesses them) and a later success must win.
func (e *Engine) ApplyDelivery(ctx context.Context, snapshotID string, success bool, at time.Time) error {
	requests, err := e.statuses.RequestsBySnapshot(ctx, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to resolve requests for snapshot %s: %w", snapshotID, err)
	}
	if len(requests) == 0 {
		e.logger.Warn("delivery matched no scraper requests",
			zap.String("snapshot_id", snapshotID))
		return nil
	}

	target := webhook.StatusCompleted
	if !success {
		target = webhook.StatusFailed
	}

	batches := make(map[string]struct{})
	for _, req := range requests {
		if req.Status == webhook.StatusCompleted || req.Status == target {
			batches[req.BatchID] = struct{}{}
			continue
		}
		if err := e.statuses.UpdateRequestStatus(ctx, req.ID, target, at); err != nil {
			return fmt.Errorf("failed to update request %s: %w", req.ID, err)
		}
		batches[req.BatchID] = struct{}{}
	}

	for batchID := range batches {
		if err := e.cascade(ctx, batchID, at); err != nil {
			return err
		}
	}
	return nil
}

// cascade recomputes one batch and then walks up through its job and run.
// Each level is its own transaction inside the store; a parent missing from
// the tree ends the walk without error since the upper levels are owned
// elsewhere and may not exist yet.
func (e *Engine) cascade(ctx context.Context, batchID string, at time.Time) error {
	batchStatus, err := e.statuses.RecomputeBatch(ctx, batchID, at)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to recompute batch %s: %w", batchID, err)
	}

	batch, err := e.statuses.BatchJob(ctx, batchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}

	jobStatus, err := e.statuses.RecomputeJob(ctx, batch.JobID, at)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to recompute job %s: %w", batch.JobID, err)
	}

	job, err := e.statuses.Job(ctx, batch.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load job %s: %w", batch.JobID, err)
	}

	runStatus, err := e.statuses.RecomputeRun(ctx, job.RunID, at)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to recompute run %s: %w", job.RunID, err)
	}

	e.logger.Debug("status cascade applied",
		zap.String("batch_id", batchID),
		zap.String("batch_status", string(batchStatus)),
		zap.String("job_id", batch.JobID),
		zap.String("job_status", string(jobStatus)),
		zap.String("run_id", job.RunID),
		zap.String("run_status", string(runStatus)))
	return nil
}
