// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/store"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// db is the subset of pgxpool.Pool the stores use; pgxmock satisfies it.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EventStore implements store.EventStore on Postgres.
//
// Expected schema:
//
//	CREATE TABLE webhook_events (
//	    event_id      TEXT PRIMARY KEY,
//	    snapshot_id   TEXT NOT NULL,
//	    platform      TEXT NOT NULL,
//	    raw_payload   BYTEA NOT NULL,
//	    status        TEXT NOT NULL,
//	    received_at   TIMESTAMPTZ NOT NULL,
//	    processed_at  TIMESTAMPTZ,
//	    error_message TEXT NOT NULL DEFAULT ''
//	);
type EventStore struct {
	db db
}

// NewEventStore creates an EventStore with its own connection pool.
func NewEventStore(ctx context.Context, dsn string) (*EventStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &EventStore{db: pool}, nil
}

// NewEventStoreWithDB wraps an existing pool or mock.
func NewEventStoreWithDB(db db) *EventStore {
	return &EventStore{db: db}
}

// Insert stores a new pending event.
func (s *EventStore) Insert(ctx context.Context, event webhook.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (event_id, snapshot_id, platform, raw_payload, status, received_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := s.db.Exec(ctx, query,
		event.EventID,
		event.SnapshotID,
		event.Platform,
		event.RawPayload,
		event.Status,
		event.ReceivedAt,
		event.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert webhook event: %w", err)
	}
	return nil
}

// Get returns one event by ID.
func (s *EventStore) Get(ctx context.Context, eventID string) (webhook.WebhookEvent, error) {
	query := `
		SELECT event_id, snapshot_id, platform, raw_payload, status, received_at, processed_at, error_message
		FROM webhook_events
		WHERE event_id = $1;
	`
	var event webhook.WebhookEvent
	err := s.db.QueryRow(ctx, query, eventID).Scan(
		&event.EventID,
		&event.SnapshotID,
		&event.Platform,
		&event.RawPayload,
		&event.Status,
		&event.ReceivedAt,
		&event.ProcessedAt,
		&event.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return webhook.WebhookEvent{}, store.ErrNotFound
		}
		return webhook.WebhookEvent{}, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return event, nil
}

// Claim transitions a pending or failed event to processing. The status
// guard in the WHERE clause makes concurrent claims lose cleanly.
func (s *EventStore) Claim(ctx context.Context, eventID string) error {
	query := `
		UPDATE webhook_events
		SET status = $1
		WHERE event_id = $2 AND status IN ($3, $4);
	`
	tag, err := s.db.Exec(ctx, query,
		webhook.EventProcessing, eventID, webhook.EventPending, webhook.EventFailed)
	if err != nil {
		return fmt.Errorf("failed to claim webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkCompleted finishes an event successfully.
func (s *EventStore) MarkCompleted(ctx context.Context, eventID string, processedAt time.Time) error {
	return s.finish(ctx, eventID, webhook.EventCompleted, processedAt, "")
}

// MarkFailed finishes an event with an error message.
func (s *EventStore) MarkFailed(ctx context.Context, eventID string, processedAt time.Time, errMsg string) error {
	return s.finish(ctx, eventID, webhook.EventFailed, processedAt, errMsg)
}

// Release returns a processing event to pending so replay can retry it.
func (s *EventStore) Release(ctx context.Context, eventID string, errMsg string) error {
	query := `
		UPDATE webhook_events
		SET status = $1, error_message = $2
		WHERE event_id = $3 AND status = $4;
	`
	tag, err := s.db.Exec(ctx, query, webhook.EventPending, errMsg, eventID, webhook.EventProcessing)
	if err != nil {
		return fmt.Errorf("failed to release webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *EventStore) finish(ctx context.Context, eventID string, status webhook.EventStatus, processedAt time.Time, errMsg string) error {
	query := `
		UPDATE webhook_events
		SET status = $1, processed_at = $2, error_message = $3
		WHERE event_id = $4;
	`
	tag, err := s.db.Exec(ctx, query, status, processedAt, errMsg, eventID)
	if err != nil {
		return fmt.Errorf("failed to finish webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListReplayable returns the oldest pending/failed events, bounded by limit.
func (s *EventStore) ListReplayable(ctx context.Context, limit int) ([]webhook.WebhookEvent, error) {
	query := `
		SELECT event_id, snapshot_id, platform, raw_payload, status, received_at, processed_at, error_message
		FROM webhook_events
		WHERE status IN ($1, $2)
		ORDER BY received_at ASC
		LIMIT $3;
	`
	rows, err := s.db.Query(ctx, query, webhook.EventPending, webhook.EventFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list replayable events: %w", err)
	}
	defer rows.Close()

	var events []webhook.WebhookEvent
	for rows.Next() {
		var event webhook.WebhookEvent
		err := rows.Scan(
			&event.EventID,
			&event.SnapshotID,
			&event.Platform,
			&event.RawPayload,
			&event.Status,
			&event.ReceivedAt,
			&event.ProcessedAt,
			&event.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
