// Package memory provides an in-memory JobRepository for tests and single node
// development runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/recon-armada/internal/domain/autoscan"
)

var _ autoscan.JobRepository = (*JobStore)(nil)

// JobStore keeps reconstructed copies of jobs so callers can never alias the
// stored state.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*autoscan.Job
}

// NewJobStore creates an empty store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*autoscan.Job)}
}

// CreateJob inserts a new job record.
func (s *JobStore) CreateJob(_ context.Context, job *autoscan.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID()]; exists {
		return fmt.Errorf("autoscan job %s already exists", job.JobID())
	}
	s.jobs[job.JobID()] = copyJob(job)

	return nil
}

// UpdateJob replaces the stored job.
func (s *JobStore) UpdateJob(_ context.Context, job *autoscan.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID()]; !exists {
		return autoscan.ErrJobNotFound
	}
	s.jobs[job.JobID()] = copyJob(job)

	return nil
}

// GetJob returns a copy of the stored job.
func (s *JobStore) GetJob(_ context.Context, jobID uuid.UUID) (*autoscan.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, autoscan.ErrJobNotFound
	}

	return copyJob(job), nil
}

// ListJobs returns copies of the matching jobs, newest first.
func (s *JobStore) ListJobs(_ context.Context, filter autoscan.JobFilter) ([]*autoscan.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*autoscan.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Matches(job) {
			out = append(out, copyJob(job))
		}
	}
	slices.SortFunc(out, func(a, b *autoscan.Job) int { return b.CreatedAt().Compare(a.CreatedAt()) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

// DeleteJob removes the job.
func (s *JobStore) DeleteJob(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; !exists {
		return autoscan.ErrJobNotFound
	}
	delete(s.jobs, jobID)

	return nil
}

// copyJob rebuilds job from its exported state, the same way a durable store
// would on read.
func copyJob(job *autoscan.Job) *autoscan.Job {
	return autoscan.ReconstructJob(
		job.JobID(),
		job.WorkspaceID(),
		job.TargetDomain(),
		job.Status(),
		job.CurrentPhase(),
		job.CompletedPhases(),
		job.FailedPhases(),
		job.PhaseProgress(),
		job.Results(),
		job.Settings(),
		job.ErrorMessage(),
		job.Logs(),
		autoscan.ReconstructTimeline(
			job.CreatedAt(),
			job.StartedAt(),
			job.CompletedAt(),
			job.UpdatedAt(),
		),
	)
}
