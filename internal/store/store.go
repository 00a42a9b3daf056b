// Package store defines the persistence interfaces for webhook events,
// canonical posts, and the request/batch/job/run status tree. Implementations
// live in the memory and postgres subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrFolderNotReady is returned when a delivery targets a folder that does
// not exist yet. The caller should answer 202 and let replay finish the job.
var ErrFolderNotReady = errors.New("store: destination folder not ready")

// EventStore persists the delivery staging records. Rows are never deleted.
type EventStore interface {
	// Insert stores a new pending event. It must complete before the HTTP
	// response is returned so acceptance survives a crash.
	Insert(ctx context.Context, event webhook.WebhookEvent) error

	// Get returns one event by ID.
	Get(ctx context.Context, eventID string) (webhook.WebhookEvent, error)

	// Claim transitions a pending or failed event to processing. Returns
	// ErrNotFound when the event is missing or already claimed.
	Claim(ctx context.Context, eventID string) error

	// MarkCompleted finishes an event successfully.
	MarkCompleted(ctx context.Context, eventID string, processedAt time.Time) error

	// MarkFailed finishes an event with an error message.
	MarkFailed(ctx context.Context, eventID string, processedAt time.Time, errMsg string) error

	// Release returns a processing event to pending, keeping it eligible
	// for replay. Used when the destination is not ready yet.
	Release(ctx context.Context, eventID string, errMsg string) error

	// ListReplayable returns the oldest events still in pending or failed,
	// bounded by limit.
	ListReplayable(ctx context.Context, limit int) ([]webhook.WebhookEvent, error)
}

// PostStore persists canonical posts inside externally-owned folders.
type PostStore interface {
	// UpsertPosts applies idempotent upserts keyed by (platform, post_id)
	// within the folder and returns the number of rows written. Identity
	// fields are never overwritten with empty values; engagement counters
	// are last-write-wins. Returns ErrFolderNotReady when the folder is
	// unknown.
	UpsertPosts(ctx context.Context, posts []webhook.CanonicalPost) (int, error)

	// GetPost fetches one post by natural key.
	GetPost(ctx context.Context, folderID string, platform webhook.Platform, postID string) (webhook.CanonicalPost, error)

	// FolderExists reports whether the destination folder is known.
	FolderExists(ctx context.Context, folderID string) (bool, error)
}

// StatusStore persists the request/batch/job/run tree. Each Recompute call
// re-derives the parent's status from all children inside one transaction,
// serialized on the parent row so concurrent sibling deliveries cannot leave
// an inconsistent aggregate.
type StatusStore interface {
	RequestsBySnapshot(ctx context.Context, snapshotID string) ([]webhook.ScraperRequest, error)
	UpdateRequestStatus(ctx context.Context, requestID string, status webhook.RequestStatus, at time.Time) error

	BatchJob(ctx context.Context, batchID string) (webhook.BatchJob, error)
	Job(ctx context.Context, jobID string) (webhook.Job, error)

	RecomputeBatch(ctx context.Context, batchID string, at time.Time) (webhook.RequestStatus, error)
	RecomputeJob(ctx context.Context, jobID string, at time.Time) (webhook.RequestStatus, error)
	RecomputeRun(ctx context.Context, runID string, at time.Time) (webhook.RequestStatus, error)
}
