// Package redis persists autoscan jobs in Redis. Each job is one JSON document
// and a sorted set indexes job ids by creation time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/infra/storage"
)

var _ autoscan.JobRepository = (*JobStore)(nil)

const defaultKeyPrefix = "autoscan"

// JobStore implements autoscan.JobRepository on a Redis client.
type JobStore struct {
	client redis.UniversalClient
	prefix string
	tracer trace.Tracer
}

// Option configures a JobStore.
type Option func(*JobStore)

// WithKeyPrefix namespaces every key the store writes.
func WithKeyPrefix(prefix string) Option {
	return func(s *JobStore) { s.prefix = prefix }
}

// NewJobStore creates a Redis backed job repository.
func NewJobStore(client redis.UniversalClient, tracer trace.Tracer, opts ...Option) *JobStore {
	s := &JobStore{client: client, prefix: defaultKeyPrefix, tracer: tracer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "redis"),
}

func (s *JobStore) jobKey(id uuid.UUID) string { return fmt.Sprintf("%s:job:%s", s.prefix, id) }
func (s *JobStore) indexKey() string           { return s.prefix + ":jobs" }

// CreateJob stores a new job. It fails if the id is already present.
func (s *JobStore) CreateJob(ctx context.Context, job *autoscan.Job) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", job.JobID().String()),
		attribute.String("workspace_id", job.WorkspaceID()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "redis.create_autoscan_job", dbAttrs, func(ctx context.Context) error {
		data, err := json.Marshal(newJobRecord(job))
		if err != nil {
			return fmt.Errorf("failed to encode job: %w", err)
		}

		created, err := s.client.SetNX(ctx, s.jobKey(job.JobID()), data, 0).Result()
		if err != nil {
			return fmt.Errorf("redis setnx: %w", err)
		}
		if !created {
			return fmt.Errorf("autoscan job %s already exists", job.JobID())
		}

		member := redis.Z{Score: float64(job.CreatedAt().UnixMilli()), Member: job.JobID().String()}
		if err := s.client.ZAdd(ctx, s.indexKey(), member).Err(); err != nil {
			return fmt.Errorf("redis zadd: %w", err)
		}
		return nil
	})
}

// UpdateJob overwrites an existing job document.
func (s *JobStore) UpdateJob(ctx context.Context, job *autoscan.Job) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", job.JobID().String()),
		attribute.String("status", job.Status().String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "redis.update_autoscan_job", dbAttrs, func(ctx context.Context) error {
		data, err := json.Marshal(newJobRecord(job))
		if err != nil {
			return fmt.Errorf("failed to encode job: %w", err)
		}

		updated, err := s.client.SetXX(ctx, s.jobKey(job.JobID()), data, 0).Result()
		if err != nil {
			return fmt.Errorf("redis setxx: %w", err)
		}
		if !updated {
			return autoscan.ErrJobNotFound
		}
		return nil
	})
}

// GetJob loads one job.
func (s *JobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*autoscan.Job, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("job_id", jobID.String()))

	var job *autoscan.Job
	err := storage.ExecuteAndTrace(ctx, s.tracer, "redis.get_autoscan_job", dbAttrs, func(ctx context.Context) error {
		data, err := s.client.Get(ctx, s.jobKey(jobID)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return autoscan.ErrJobNotFound
			}
			return fmt.Errorf("redis get: %w", err)
		}

		job, err = decodeJob(data)
		return err
	})

	return job, err
}

// ListJobs walks the creation index newest first and applies filter.
func (s *JobStore) ListJobs(ctx context.Context, filter autoscan.JobFilter) ([]*autoscan.Job, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("workspace_id", filter.WorkspaceID),
		attribute.Int("limit", filter.Limit),
	)

	var jobs []*autoscan.Job
	err := storage.ExecuteAndTrace(ctx, s.tracer, "redis.list_autoscan_jobs", dbAttrs, func(ctx context.Context) error {
		ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
		if err != nil {
			return fmt.Errorf("redis zrevrange: %w", err)
		}
		if len(ids) == 0 {
			jobs = []*autoscan.Job{}
			return nil
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = fmt.Sprintf("%s:job:%s", s.prefix, id)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("redis mget: %w", err)
		}

		jobs = make([]*autoscan.Job, 0, len(values))
		for _, v := range values {
			// Index entries can briefly outlive a deleted document.
			raw, ok := v.(string)
			if !ok {
				continue
			}
			job, err := decodeJob([]byte(raw))
			if err != nil {
				return err
			}
			if !filter.Matches(job) {
				continue
			}
			jobs = append(jobs, job)
			if filter.Limit > 0 && len(jobs) == filter.Limit {
				break
			}
		}
		return nil
	})

	return jobs, err
}

// DeleteJob removes the document and its index entry atomically.
func (s *JobStore) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	dbAttrs := append(defaultDBAttributes, attribute.String("job_id", jobID.String()))

	return storage.ExecuteAndTrace(ctx, s.tracer, "redis.delete_autoscan_job", dbAttrs, func(ctx context.Context) error {
		var del *redis.IntCmd
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			del = pipe.Del(ctx, s.jobKey(jobID))
			pipe.ZRem(ctx, s.indexKey(), jobID.String())
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis delete pipeline: %w", err)
		}
		if del.Val() == 0 {
			return autoscan.ErrJobNotFound
		}
		return nil
	})
}

// Ping checks connectivity.
func (s *JobStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// jobRecord is the stored JSON shape of a job.
type jobRecord struct {
	JobID           uuid.UUID                           `json:"job_id"`
	WorkspaceID     string                              `json:"workspace_id"`
	TargetDomain    string                              `json:"target_domain"`
	Status          autoscan.JobStatus                  `json:"status"`
	CurrentPhase    autoscan.Phase                      `json:"current_phase,omitempty"`
	CompletedPhases []autoscan.Phase                    `json:"completed_phases"`
	FailedPhases    []autoscan.Phase                    `json:"failed_phases"`
	PhaseProgress   map[autoscan.Phase]autoscan.Payload `json:"phase_progress"`
	Results         map[autoscan.Phase]autoscan.Payload `json:"results"`
	Settings        autoscan.Payload                    `json:"settings"`
	ErrorMessage    string                              `json:"error_message,omitempty"`
	Logs            []autoscan.LogEntry                 `json:"logs"`
	CreatedAt       time.Time                           `json:"created_at"`
	StartedAt       time.Time                           `json:"started_at"`
	CompletedAt     time.Time                           `json:"completed_at"`
	UpdatedAt       time.Time                           `json:"updated_at"`
}

func newJobRecord(job *autoscan.Job) jobRecord {
	return jobRecord{
		JobID:           job.JobID(),
		WorkspaceID:     job.WorkspaceID(),
		TargetDomain:    job.TargetDomain(),
		Status:          job.Status(),
		CurrentPhase:    job.CurrentPhase(),
		CompletedPhases: job.CompletedPhases(),
		FailedPhases:    job.FailedPhases(),
		PhaseProgress:   job.PhaseProgress(),
		Results:         job.Results(),
		Settings:        job.Settings(),
		ErrorMessage:    job.ErrorMessage(),
		Logs:            job.Logs(),
		CreatedAt:       job.CreatedAt(),
		StartedAt:       job.StartedAt(),
		CompletedAt:     job.CompletedAt(),
		UpdatedAt:       job.UpdatedAt(),
	}
}

func decodeJob(data []byte) (*autoscan.Job, error) {
	var rec jobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}

	return autoscan.ReconstructJob(
		rec.JobID,
		rec.WorkspaceID,
		rec.TargetDomain,
		rec.Status,
		rec.CurrentPhase,
		rec.CompletedPhases,
		rec.FailedPhases,
		rec.PhaseProgress,
		rec.Results,
		rec.Settings,
		rec.ErrorMessage,
		rec.Logs,
		autoscan.ReconstructTimeline(rec.CreatedAt, rec.StartedAt, rec.CompletedAt, rec.UpdatedAt),
	), nil
}
