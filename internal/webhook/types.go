// Package webhook defines the core types shared by the ingestion pipeline.
package webhook

import (
	"encoding/json"
	"time"
)

// Platform identifies the social platform a delivery was collected from.
type Platform string

// Supported platforms.
const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTikTok    Platform = "tiktok"
	PlatformLinkedIn  Platform = "linkedin"
)

// KnownPlatforms lists every platform the normalizer has a field table for.
var KnownPlatforms = []Platform{
	PlatformInstagram,
	PlatformFacebook,
	PlatformTikTok,
	PlatformLinkedIn,
}

// IsKnown reports whether the platform has a normalization table.
func (p Platform) IsKnown() bool {
	for _, k := range KnownPlatforms {
		if p == k {
			return true
		}
	}
	return false
}

// EventStatus is the processing state of a stored delivery.
type EventStatus string

// Event lifecycle: pending -> processing -> {completed, failed}.
const (
	EventPending    EventStatus = "pending"
	EventProcessing EventStatus = "processing"
	EventCompleted  EventStatus = "completed"
	EventFailed     EventStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s EventStatus) Terminal() bool {
	return s == EventCompleted || s == EventFailed
}

// WebhookEvent is the durable staging record of one accepted delivery.
// Rows are never deleted; they form the audit trail and the replay source.
type WebhookEvent struct {
	EventID      string      `json:"event_id"`
	SnapshotID   string      `json:"snapshot_id"`
	Platform     Platform    `json:"platform"`
	RawPayload   []byte      `json:"raw_payload"`
	Status       EventStatus `json:"status"`
	ReceivedAt   time.Time   `json:"received_at"`
	ProcessedAt  *time.Time  `json:"processed_at,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// RequestStatus is the state of a scraper request or an aggregate above it.
type RequestStatus string

// Request/batch/job/run states.
const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ScraperRequest is one logical "collect for this target" ask. Many
// deliveries may resolve to one request via SnapshotID.
type ScraperRequest struct {
	ID         string        `json:"id"`
	BatchID    string        `json:"batch_id"`
	Platform   Platform      `json:"platform"`
	Target     string        `json:"target"`
	FolderID   string        `json:"folder_id"`
	SnapshotID string        `json:"snapshot_id"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// BatchJob groups requests across platforms. Status is derived from children
// by the propagation engine, never set directly.
type BatchJob struct {
	ID        string        `json:"id"`
	JobID     string        `json:"job_id"`
	Status    RequestStatus `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Job groups batches.
type Job struct {
	ID        string        `json:"id"`
	RunID     string        `json:"run_id"`
	Status    RequestStatus `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Run is the top-level unit a human tracks.
type Run struct {
	ID        string        `json:"id"`
	Status    RequestStatus `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CanonicalPost is the normalized, platform-agnostic post record. Natural
// key is (platform, post_id) scoped to a folder.
type CanonicalPost struct {
	FolderID   string          `json:"folder_id"`
	Platform   Platform        `json:"platform"`
	PostID     string          `json:"post_id"`
	URL        string          `json:"url"`
	AuthorName string          `json:"author_name"`
	Content    string          `json:"content"`
	Likes      int64           `json:"likes"`
	Comments   int64           `json:"comments"`
	Shares     int64           `json:"shares"`
	Views      int64           `json:"views"`
	PostedAt   *time.Time      `json:"posted_at,omitempty"`
	MediaURLs  []string        `json:"media_urls,omitempty"`
	Verified   bool            `json:"verified"`
	RawSource  json.RawMessage `json:"raw_source,omitempty"`
}

// Outcome summarizes one normalization pass over a delivery payload.
type Outcome struct {
	ItemsTotal  int `json:"items_total"`
	ItemsValid  int `json:"items_valid"`
	ItemsWarned int `json:"items_warned"`
	ItemsFailed int `json:"items_failed"`
}

