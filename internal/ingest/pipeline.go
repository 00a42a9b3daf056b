// Package ingest runs an admitted delivery through its full lifecycle:
// archive the raw body, stage an event row, normalize, upsert posts, cascade
// statuses, and record the outcome.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/archive"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/monitor"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/normalize"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/status"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/store"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/telemetry"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// Hasher digests raw bodies for the archive key.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Delivery is one admitted webhook call handed to the pipeline.
type Delivery struct {
	SnapshotID string
	Platform   webhook.Platform
	SourceIP   string
	Body       []byte
}

// Result reports what happened to a delivery.
type Result struct {
	EventID        string
	FolderID       string
	ItemsProcessed int
	ItemsSkipped   int
	// NotReady means the destination folder does not exist yet; the event
	// stays pending and the caller should signal a retry.
	NotReady bool
	// Failed means processing ended in a terminal failure (the event row
	// records why). The delivery itself was still accepted.
	Failed bool
}

// Pipeline owns the ingestion path for accepted deliveries.
type Pipeline struct {
	events   store.EventStore
	posts    store.PostStore
	statuses store.StatusStore
	engine   *status.Engine
	mapper   *normalize.Mapper
	archive  archive.Archive
	monitor  *monitor.Monitor
	hasher   Hasher
	ids      webhook.IDGenerator
	clock    webhook.Clock
	logger   *zap.Logger
}

// Deps bundles the pipeline collaborators.
type Deps struct {
	Events   store.EventStore
	Posts    store.PostStore
	Statuses store.StatusStore
	Engine   *status.Engine
	Mapper   *normalize.Mapper
	Archive  archive.Archive
	Monitor  *monitor.Monitor
	Hasher   Hasher
	IDs      webhook.IDGenerator
	Clock    webhook.Clock
	Logger   *zap.Logger
}

// New constructs a Pipeline.
func New(deps Deps) *Pipeline {
	return &Pipeline{
		events:   deps.Events,
		posts:    deps.Posts,
		statuses: deps.Statuses,
		engine:   deps.Engine,
		mapper:   deps.Mapper,
		archive:  deps.Archive,
		monitor:  deps.Monitor,
		hasher:   deps.Hasher,
		ids:      deps.IDs,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
}

// Ingest stages and processes one fresh delivery. The event row is inserted
// before any processing so acceptance survives a crash; processing errors
// after that point never lose the payload.
func (p *Pipeline) Ingest(ctx context.Context, d Delivery) (Result, error) {
	eventID, err := p.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("failed to generate event id: %w", err)
	}

	digest, err := p.hasher.Hash(d.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to hash payload: %w", err)
	}
	if p.archive != nil {
		if _, err := p.archive.Store(ctx, digest, d.Body); err != nil {
			// The event store keeps the payload too, so archive trouble
			// must not reject the delivery.
			p.logger.Warn("failed to archive raw payload",
				zap.String("event_id", eventID),
				zap.Error(err))
		}
	}

	event := webhook.WebhookEvent{
		EventID:    eventID,
		SnapshotID: d.SnapshotID,
		Platform:   d.Platform,
		RawPayload: d.Body,
		Status:     webhook.EventPending,
		ReceivedAt: p.clock.Now(),
	}
	if err := p.events.Insert(ctx, event); err != nil {
		return Result{}, fmt.Errorf("failed to stage webhook event: %w", err)
	}

	return p.process(ctx, event, d.SourceIP)
}

// Process runs the normalization stage for a staged event. Replay calls
// this directly with rows loaded from the event store.
func (p *Pipeline) Process(ctx context.Context, event webhook.WebhookEvent) (Result, error) {
	return p.process(ctx, event, "")
}

func (p *Pipeline) process(ctx context.Context, event webhook.WebhookEvent, sourceIP string) (Result, error) {
	started := p.clock.Now()
	result := Result{EventID: event.EventID}

	if err := p.events.Claim(ctx, event.EventID); err != nil {
		return result, fmt.Errorf("failed to claim event %s: %w", event.EventID, err)
	}

	folderID := p.resolveFolder(ctx, event)
	result.FolderID = folderID

	posts, outcome, err := p.mapper.Normalize(event.Platform, folderID, event.RawPayload)
	if err != nil {
		p.finishFailed(ctx, event, started, sourceIP, err.Error())
		result.Failed = true
		return result, nil
	}
	result.ItemsProcessed = outcome.ItemsValid
	result.ItemsSkipped = outcome.ItemsWarned + outcome.ItemsFailed

	if len(posts) > 0 {
		if _, err := p.posts.UpsertPosts(ctx, posts); err != nil {
			if errors.Is(err, store.ErrFolderNotReady) {
				if relErr := p.events.Release(ctx, event.EventID, "destination folder not ready"); relErr != nil {
					p.logger.Error("failed to release event",
						zap.String("event_id", event.EventID),
						zap.Error(relErr))
				}
				result.NotReady = true
				return result, nil
			}
			p.finishFailed(ctx, event, started, sourceIP, err.Error())
			result.Failed = true
			return result, nil
		}
		telemetry.ObservePostsUpserted(string(event.Platform), len(posts))
	}

	// A failed status cascade never rejects the delivery, but the event must
	// stay replayable so the consumer retries the cascade. The upserts are
	// idempotent, so reprocessing rewrites nothing.
	if err := p.engine.ApplyDelivery(ctx, event.SnapshotID, true, p.clock.Now()); err != nil {
		p.logger.Error("status cascade failed",
			zap.String("event_id", event.EventID),
			zap.String("snapshot_id", event.SnapshotID),
			zap.Error(err))
		if mErr := p.events.MarkFailed(ctx, event.EventID, p.clock.Now(), "status cascade failed: "+err.Error()); mErr != nil {
			p.logger.Error("failed to mark event for cascade retry",
				zap.String("event_id", event.EventID),
				zap.Error(mErr))
		}
		p.record(ctx, event, started, sourceIP, false, "status cascade failed")
		return result, nil
	}

	now := p.clock.Now()
	if err := p.events.MarkCompleted(ctx, event.EventID, now); err != nil {
		p.logger.Error("failed to mark event completed",
			zap.String("event_id", event.EventID),
			zap.Error(err))
	}
	p.record(ctx, event, started, sourceIP, true, "")
	return result, nil
}

// resolveFolder maps the snapshot to its scraper request's folder. A
// delivery with no matching request gets an empty folder, which the post
// store reports as not ready, so the event stays pending until the request
// side catches up.
func (p *Pipeline) resolveFolder(ctx context.Context, event webhook.WebhookEvent) string {
	requests, err := p.statuses.RequestsBySnapshot(ctx, event.SnapshotID)
	if err != nil {
		p.logger.Warn("failed to resolve scraper requests",
			zap.String("snapshot_id", event.SnapshotID),
			zap.Error(err))
		return ""
	}
	for _, req := range requests {
		if req.FolderID != "" {
			return req.FolderID
		}
	}
	return ""
}

func (p *Pipeline) finishFailed(ctx context.Context, event webhook.WebhookEvent, started time.Time, sourceIP, errMsg string) {
	if err := p.engine.ApplyDelivery(ctx, event.SnapshotID, false, p.clock.Now()); err != nil {
		p.logger.Error("status cascade failed",
			zap.String("event_id", event.EventID),
			zap.String("snapshot_id", event.SnapshotID),
			zap.Error(err))
	}
	if err := p.events.MarkFailed(ctx, event.EventID, p.clock.Now(), errMsg); err != nil {
		p.logger.Error("failed to mark event failed",
			zap.String("event_id", event.EventID),
			zap.Error(err))
	}
	p.record(ctx, event, started, sourceIP, false, errMsg)
}

func (p *Pipeline) record(ctx context.Context, event webhook.WebhookEvent, started time.Time, sourceIP string, success bool, errMsg string) {
	latency := p.clock.Now().Sub(started)
	statusLabel := "completed"
	errKind := ""
	if !success {
		statusLabel = "failed"
		errKind = errMsg
	}
	telemetry.ObserveDelivery(string(event.Platform), statusLabel, latency)
	if p.monitor != nil {
		p.monitor.Record(ctx, monitor.Delivery{
			EventID:   event.EventID,
			Platform:  event.Platform,
			SourceIP:  sourceIP,
			Success:   success,
			ErrorKind: errKind,
			Latency:   latency,
			At:        p.clock.Now(),
		})
	}
}
