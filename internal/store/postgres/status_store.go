package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/store"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// StatusStore implements store.StatusStore on Postgres.
//
// Expected schema:
//
//	CREATE TABLE runs       (id TEXT PRIMARY KEY, status TEXT NOT NULL, updated_at TIMESTAMPTZ NOT NULL);
//	CREATE TABLE jobs       (id TEXT PRIMARY KEY, run_id TEXT REFERENCES runs (id), status TEXT NOT NULL, updated_at TIMESTAMPTZ NOT NULL);
//	CREATE TABLE batch_jobs (id TEXT PRIMARY KEY, job_id TEXT REFERENCES jobs (id), status TEXT NOT NULL, updated_at TIMESTAMPTZ NOT NULL);
//	CREATE TABLE scraper_requests (
//	    id TEXT PRIMARY KEY, batch_id TEXT REFERENCES batch_jobs (id),
//	    platform TEXT NOT NULL, target TEXT NOT NULL, folder_id TEXT NOT NULL,
//	    snapshot_id TEXT NOT NULL, status TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL, updated_at TIMESTAMPTZ NOT NULL
//	);
type StatusStore struct {
	db db
}

// NewStatusStore creates a StatusStore with its own connection pool.
func NewStatusStore(ctx context.Context, dsn string) (*StatusStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &StatusStore{db: pool}, nil
}

// NewStatusStoreWithDB wraps an existing pool or mock.
func NewStatusStoreWithDB(db db) *StatusStore {
	return &StatusStore{db: db}
}

// RequestsBySnapshot returns every request sharing the snapshot ID.
func (s *StatusStore) RequestsBySnapshot(ctx context.Context, snapshotID string) ([]webhook.ScraperRequest, error) {
	query := `
		SELECT id, batch_id, platform, target, folder_id, snapshot_id, status, created_at, updated_at
		FROM scraper_requests
		WHERE snapshot_id = $1;
	`
	rows, err := s.db.Query(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests by snapshot: %w", err)
	}
	defer rows.Close()

	var reqs []webhook.ScraperRequest
	for rows.Next() {
		var req webhook.ScraperRequest
		err := rows.Scan(
			&req.ID,
			&req.BatchID,
			&req.Platform,
			&req.Target,
			&req.FolderID,
			&req.SnapshotID,
			&req.Status,
			&req.CreatedAt,
			&req.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request row: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// UpdateRequestStatus sets one request's status.
func (s *StatusStore) UpdateRequestStatus(ctx context.Context, requestID string, status webhook.RequestStatus, at time.Time) error {
	query := `
		UPDATE scraper_requests
		SET status = $1, updated_at = $2
		WHERE id = $3;
	`
	tag, err := s.db.Exec(ctx, query, status, at, requestID)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// BatchJob returns one batch.
func (s *StatusStore) BatchJob(ctx context.Context, batchID string) (webhook.BatchJob, error) {
	var batch webhook.BatchJob
	err := s.db.QueryRow(ctx,
		`SELECT id, job_id, status, updated_at FROM batch_jobs WHERE id = $1;`, batchID).
		Scan(&batch.ID, &batch.JobID, &batch.Status, &batch.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return webhook.BatchJob{}, store.ErrNotFound
		}
		return webhook.BatchJob{}, fmt.Errorf("failed to get batch: %w", err)
	}
	return batch, nil
}

// Job returns one job.
func (s *StatusStore) Job(ctx context.Context, jobID string) (webhook.Job, error) {
	var job webhook.Job
	err := s.db.QueryRow(ctx,
		`SELECT id, run_id, status, updated_at FROM jobs WHERE id = $1;`, jobID).
		Scan(&job.ID, &job.RunID, &job.Status, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return webhook.Job{}, store.ErrNotFound
		}
		return webhook.Job{}, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// RecomputeBatch re-derives a batch's status from its child requests inside
// one transaction. The FOR UPDATE lock serializes concurrent sibling
// deliveries on the parent row.
func (s *StatusStore) RecomputeBatch(ctx context.Context, batchID string, at time.Time) (webhook.RequestStatus, error) {
	return s.recompute(ctx, recomputePlan{
		lockQuery:     `SELECT status FROM batch_jobs WHERE id = $1 FOR UPDATE;`,
		childrenQuery: `SELECT status FROM scraper_requests WHERE batch_id = $1;`,
		updateQuery:   `UPDATE batch_jobs SET status = $1, updated_at = $2 WHERE id = $3;`,
		parentID:      batchID,
		at:            at,
	})
}

// RecomputeJob re-derives a job's status from its child batches.
func (s *StatusStore) RecomputeJob(ctx context.Context, jobID string, at time.Time) (webhook.RequestStatus, error) {
	return s.recompute(ctx, recomputePlan{
		lockQuery:     `SELECT status FROM jobs WHERE id = $1 FOR UPDATE;`,
		childrenQuery: `SELECT status FROM batch_jobs WHERE job_id = $1;`,
		updateQuery:   `UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3;`,
		parentID:      jobID,
		at:            at,
	})
}

// RecomputeRun re-derives a run's status from its child jobs.
func (s *StatusStore) RecomputeRun(ctx context.Context, runID string, at time.Time) (webhook.RequestStatus, error) {
	return s.recompute(ctx, recomputePlan{
		lockQuery:     `SELECT status FROM runs WHERE id = $1 FOR UPDATE;`,
		childrenQuery: `SELECT status FROM jobs WHERE run_id = $1;`,
		updateQuery:   `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3;`,
		parentID:      runID,
		at:            at,
	})
}

type recomputePlan struct {
	lockQuery     string
	childrenQuery string
	updateQuery   string
	parentID      string
	at            time.Time
}

func (s *StatusStore) recompute(ctx context.Context, plan recomputePlan) (webhook.RequestStatus, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin recompute tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current webhook.RequestStatus
	if err := tx.QueryRow(ctx, plan.lockQuery, plan.parentID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("failed to lock parent row: %w", err)
	}

	rows, err := tx.Query(ctx, plan.childrenQuery, plan.parentID)
	if err != nil {
		return "", fmt.Errorf("failed to read children: %w", err)
	}
	var children []webhook.RequestStatus
	for rows.Next() {
		var status webhook.RequestStatus
		if err := rows.Scan(&status); err != nil {
			rows.Close()
			return "", fmt.Errorf("failed to scan child status: %w", err)
		}
		children = append(children, status)
	}
	rows.Close()

	derived := webhook.DeriveStatus(children)
	if _, err := tx.Exec(ctx, plan.updateQuery, derived, plan.at, plan.parentID); err != nil {
		return "", fmt.Errorf("failed to write derived status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit recompute tx: %w", err)
	}
	return derived, nil
}
