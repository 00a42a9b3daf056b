package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/store"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// StatusStore implements store.StatusStore over in-memory maps. A single
// mutex stands in for the per-row locks the Postgres implementation takes,
// so every recompute observes a consistent tree.
type StatusStore struct {
	mu       sync.Mutex
	requests map[string]webhook.ScraperRequest
	batches  map[string]webhook.BatchJob
	jobs     map[string]webhook.Job
	runs     map[string]webhook.Run
}

// NewStatusStore constructs a StatusStore.
func NewStatusStore() *StatusStore {
	return &StatusStore{
		requests: make(map[string]webhook.ScraperRequest),
		batches:  make(map[string]webhook.BatchJob),
		jobs:     make(map[string]webhook.Job),
		runs:     make(map[string]webhook.Run),
	}
}

// Seed helpers stand in for the externally-owned request-triggering surface.

// AddRun registers a run.
func (s *StatusStore) AddRun(run webhook.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

// AddJob registers a job under a run.
func (s *StatusStore) AddJob(job webhook.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// AddBatch registers a batch under a job.
func (s *StatusStore) AddBatch(batch webhook.BatchJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = batch
}

// AddRequest registers a scraper request under a batch.
func (s *StatusStore) AddRequest(req webhook.ScraperRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
}

// RequestsBySnapshot returns every request sharing the snapshot ID.
func (s *StatusStore) RequestsBySnapshot(_ context.Context, snapshotID string) ([]webhook.ScraperRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []webhook.ScraperRequest
	for _, req := range s.requests {
		if req.SnapshotID == snapshotID {
			out = append(out, req)
		}
	}
	return out, nil
}

// UpdateRequestStatus sets one request's status.
func (s *StatusStore) UpdateRequestStatus(_ context.Context, requestID string, status webhook.RequestStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return store.ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = at
	s.requests[requestID] = req
	return nil
}

// BatchJob returns one batch.
func (s *StatusStore) BatchJob(_ context.Context, batchID string) (webhook.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return webhook.BatchJob{}, store.ErrNotFound
	}
	return batch, nil
}

// Job returns one job.
func (s *StatusStore) Job(_ context.Context, jobID string) (webhook.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return webhook.Job{}, store.ErrNotFound
	}
	return job, nil
}

// RecomputeBatch re-derives a batch's status from its child requests.
func (s *StatusStore) RecomputeBatch(_ context.Context, batchID string, at time.Time) (webhook.RequestStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return "", store.ErrNotFound
	}
	var children []webhook.RequestStatus
	for _, req := range s.requests {
		if req.BatchID == batchID {
			children = append(children, req.Status)
		}
	}
	batch.Status = webhook.DeriveStatus(children)
	batch.UpdatedAt = at
	s.batches[batchID] = batch
	return batch.Status, nil
}

// RecomputeJob re-derives a job's status from its child batches.
func (s *StatusStore) RecomputeJob(_ context.Context, jobID string, at time.Time) (webhook.RequestStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return "", store.ErrNotFound
	}
	var children []webhook.RequestStatus
	for _, batch := range s.batches {
		if batch.JobID == jobID {
			children = append(children, batch.Status)
		}
	}
	job.Status = webhook.DeriveStatus(children)
	job.UpdatedAt = at
	s.jobs[jobID] = job
	return job.Status, nil
}

// RecomputeRun re-derives a run's status from its child jobs.
func (s *StatusStore) RecomputeRun(_ context.Context, runID string, at time.Time) (webhook.RequestStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return "", store.ErrNotFound
	}
	var children []webhook.RequestStatus
	for _, job := range s.jobs {
		if job.RunID == runID {
			children = append(children, job.Status)
		}
	}
	run.Status = webhook.DeriveStatus(children)
	run.UpdatedAt = at
	s.runs[runID] = run
	return run.Status, nil
}

// Run returns one run.
func (s *StatusStore) Run(_ context.Context, runID string) (webhook.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return webhook.Run{}, store.ErrNotFound
	}
	return run, nil
}
