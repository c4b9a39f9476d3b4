// Package postgres persists autoscan jobs in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/recon-armada/internal/db"
	"github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/infra/storage"
)

var _ autoscan.JobRepository = (*jobStore)(nil)

// jobStore implements autoscan.JobRepository with one row per job. Phase
// collections are text arrays; progress, results, settings and logs are JSONB.
type jobStore struct {
	q      *db.Queries
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewJobStore creates a new PostgreSQL-backed autoscan job repository.
func NewJobStore(pool *pgxpool.Pool, tracer trace.Tracer) *jobStore {
	return &jobStore{
		q:      db.New(pool),
		pool:   pool,
		tracer: tracer,
	}
}

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

const queryTimeout = 5 * time.Second

// CreateJob inserts a new job row.
func (s *jobStore) CreateJob(ctx context.Context, job *autoscan.Job) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", job.JobID().String()),
		attribute.String("workspace_id", job.WorkspaceID()),
		attribute.String("status", job.Status().String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.create_autoscan_job", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()

		enc, err := encodeJob(job)
		if err != nil {
			return err
		}

		err = s.q.CreateAutoScanJob(ctx, db.CreateAutoScanJobParams{
			JobID:           pgtype.UUID{Bytes: job.JobID(), Valid: true},
			WorkspaceID:     job.WorkspaceID(),
			TargetDomain:    job.TargetDomain(),
			Status:          db.AutoscanJobStatus(job.Status()),
			CurrentPhase:    job.CurrentPhase().String(),
			CompletedPhases: enc.completed,
			FailedPhases:    enc.failed,
			PhaseProgress:   enc.progress,
			Results:         enc.results,
			Settings:        enc.settings,
			ErrorMessage:    job.ErrorMessage(),
			Logs:            enc.logs,
			CreatedAt:       timestamptz(job.CreatedAt()),
			StartedAt:       timestamptz(job.StartedAt()),
			CompletedAt:     timestamptz(job.CompletedAt()),
			UpdatedAt:       timestamptz(job.UpdatedAt()),
		})
		if err != nil {
			return fmt.Errorf("CreateAutoScanJob insert error: %w", err)
		}
		return nil
	})
}

// UpdateJob overwrites the mutable columns of an existing job.
func (s *jobStore) UpdateJob(ctx context.Context, job *autoscan.Job) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", job.JobID().String()),
		attribute.String("status", job.Status().String()),
		attribute.String("current_phase", job.CurrentPhase().String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_autoscan_job", dbAttrs, func(ctx context.Context) error {
		span := trace.SpanFromContext(ctx)
		ctx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()

		enc, err := encodeJob(job)
		if err != nil {
			return err
		}

		rowsAffected, err := s.q.UpdateAutoScanJob(ctx, db.UpdateAutoScanJobParams{
			JobID:           pgtype.UUID{Bytes: job.JobID(), Valid: true},
			Status:          db.AutoscanJobStatus(job.Status()),
			CurrentPhase:    job.CurrentPhase().String(),
			CompletedPhases: enc.completed,
			FailedPhases:    enc.failed,
			PhaseProgress:   enc.progress,
			Results:         enc.results,
			ErrorMessage:    job.ErrorMessage(),
			Logs:            enc.logs,
			StartedAt:       timestamptz(job.StartedAt()),
			CompletedAt:     timestamptz(job.CompletedAt()),
			UpdatedAt:       timestamptz(job.UpdatedAt()),
		})
		if err != nil {
			return fmt.Errorf("UpdateAutoScanJob query error: %w", err)
		}
		if rowsAffected == 0 {
			span.SetAttributes(attribute.Bool("job_not_found", true))
			return autoscan.ErrJobNotFound
		}

		return nil
	})
}

// GetJob loads a job by id.
func (s *jobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*autoscan.Job, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", jobID.String()),
	)

	var job *autoscan.Job
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_autoscan_job", dbAttrs, func(ctx context.Context) error {
		row, err := s.q.GetAutoScanJob(ctx, pgtype.UUID{Bytes: jobID, Valid: true})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return autoscan.ErrJobNotFound
			}
			return fmt.Errorf("GetAutoScanJob query error: %w", err)
		}

		job, err = decodeJob(row)
		return err
	})

	return job, err
}

// ListJobs returns jobs matching filter, newest first.
func (s *jobStore) ListJobs(ctx context.Context, filter autoscan.JobFilter) ([]*autoscan.Job, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("workspace_id", filter.WorkspaceID),
		attribute.Int("statuses", len(filter.Statuses)),
		attribute.Int("limit", filter.Limit),
	)

	var jobs []*autoscan.Job
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_autoscan_jobs", dbAttrs, func(ctx context.Context) error {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, st.String())
		}

		rows, err := s.q.ListAutoScanJobs(ctx, db.ListAutoScanJobsParams{
			WorkspaceID:     pgtype.Text{String: filter.WorkspaceID, Valid: filter.WorkspaceID != ""},
			Statuses:        statuses,
			CompletedBefore: timestamptz(filter.CompletedBefore),
			MaxRows:         pgtype.Int4{Int32: int32(filter.Limit), Valid: filter.Limit > 0},
		})
		if err != nil {
			return fmt.Errorf("ListAutoScanJobs query error: %w", err)
		}

		jobs = make([]*autoscan.Job, 0, len(rows))
		for _, row := range rows {
			job, err := decodeJob(row)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("jobs_found", len(jobs)))

		return nil
	})

	return jobs, err
}

// DeleteJob removes a job row.
func (s *jobStore) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("job_id", jobID.String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.delete_autoscan_job", dbAttrs, func(ctx context.Context) error {
		rowsAffected, err := s.q.DeleteAutoScanJob(ctx, pgtype.UUID{Bytes: jobID, Valid: true})
		if err != nil {
			return fmt.Errorf("DeleteAutoScanJob query error: %w", err)
		}
		if rowsAffected == 0 {
			return autoscan.ErrJobNotFound
		}
		return nil
	})
}

type encodedJob struct {
	completed []string
	failed    []string
	progress  []byte
	results   []byte
	settings  []byte
	logs      []byte
}

func encodeJob(job *autoscan.Job) (encodedJob, error) {
	var (
		enc encodedJob
		err error
	)
	enc.completed = phaseNames(job.CompletedPhases())
	enc.failed = phaseNames(job.FailedPhases())

	if enc.progress, err = json.Marshal(job.PhaseProgress()); err != nil {
		return enc, fmt.Errorf("failed to encode phase progress: %w", err)
	}
	if enc.results, err = json.Marshal(job.Results()); err != nil {
		return enc, fmt.Errorf("failed to encode results: %w", err)
	}
	settings := job.Settings()
	if settings == nil {
		settings = autoscan.Payload{}
	}
	if enc.settings, err = json.Marshal(settings); err != nil {
		return enc, fmt.Errorf("failed to encode settings: %w", err)
	}
	logs := job.Logs()
	if logs == nil {
		logs = []autoscan.LogEntry{}
	}
	if enc.logs, err = json.Marshal(logs); err != nil {
		return enc, fmt.Errorf("failed to encode logs: %w", err)
	}

	return enc, nil
}

func decodeJob(row db.AutoscanJob) (*autoscan.Job, error) {
	var (
		progress map[autoscan.Phase]autoscan.Payload
		results  map[autoscan.Phase]autoscan.Payload
		settings autoscan.Payload
		logs     []autoscan.LogEntry
	)
	if err := json.Unmarshal(row.PhaseProgress, &progress); err != nil {
		return nil, fmt.Errorf("failed to decode phase progress: %w", err)
	}
	if err := json.Unmarshal(row.Results, &results); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	if err := json.Unmarshal(row.Settings, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := json.Unmarshal(row.Logs, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode logs: %w", err)
	}

	completed, err := parsePhases(row.CompletedPhases)
	if err != nil {
		return nil, err
	}
	failed, err := parsePhases(row.FailedPhases)
	if err != nil {
		return nil, err
	}

	return autoscan.ReconstructJob(
		row.JobID.Bytes,
		row.WorkspaceID,
		row.TargetDomain,
		autoscan.ParseJobStatus(string(row.Status)),
		autoscan.Phase(row.CurrentPhase),
		completed,
		failed,
		progress,
		results,
		settings,
		row.ErrorMessage,
		logs,
		autoscan.ReconstructTimeline(
			row.CreatedAt.Time,
			row.StartedAt.Time,
			row.CompletedAt.Time,
			row.UpdatedAt.Time,
		),
	), nil
}

func phaseNames(phases []autoscan.Phase) []string {
	out := make([]string, len(phases))
	for i, p := range phases {
		out[i] = p.String()
	}
	return out
}

func parsePhases(names []string) ([]autoscan.Phase, error) {
	out := make([]autoscan.Phase, 0, len(names))
	for _, n := range names {
		p, err := autoscan.ParsePhase(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
