package autoscan

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobFilter narrows ListJobs results. Zero values mean "no constraint".
type JobFilter struct {
	WorkspaceID     string
	Statuses        []JobStatus
	CompletedBefore time.Time
	Limit           int
}

// Matches reports whether j satisfies the filter.
func (f JobFilter) Matches(j *Job) bool {
	if f.WorkspaceID != "" && j.WorkspaceID() != f.WorkspaceID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if j.Status() == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.CompletedBefore.IsZero() {
		c := j.CompletedAt()
		if c.IsZero() || !c.Before(f.CompletedBefore) {
			return false
		}
	}
	return true
}

// JobRepository is the durable Job State Store. Implementations must persist
// every field of Job, including the bounded log.
type JobRepository interface {
	// CreateJob inserts a new job record.
	CreateJob(ctx context.Context, job *Job) error
	// UpdateJob overwrites the mutable fields of an existing record.
	UpdateJob(ctx context.Context, job *Job) error
	// GetJob loads a job, returning ErrJobNotFound when absent.
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)
	// ListJobs returns jobs matching filter ordered by creation time, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
	// DeleteJob removes a job, returning ErrJobNotFound when absent.
	DeleteJob(ctx context.Context, jobID uuid.UUID) error
}
