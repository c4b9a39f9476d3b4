// Package autoscan drives autoscan jobs through the reconnaissance pipeline. It
// owns the in-memory job registry, applies pause, resume and cancel signals at
// phase boundaries and keeps the durable store in step with every transition.
package autoscan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/domain/events"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

var (
	// ErrUnknownProfile is returned when a start request names a settings
	// profile that is not configured.
	ErrUnknownProfile = errors.New("unknown settings profile")

	// ErrShuttingDown is returned by StartScan once Shutdown has been called.
	ErrShuttingDown = errors.New("autoscan service is shutting down")
)

// StartScanCommand carries the input of a start request.
type StartScanCommand struct {
	WorkspaceID  string
	TargetDomain string
	// Settings override the profile and the defaults key by key.
	Settings domain.Payload
	// Profile optionally names a configured settings preset.
	Profile string
}

// Service is the control surface for autoscan jobs. It creates jobs, runs each
// one on a goroutine detached from the request that started it, and serves
// snapshots from the registry.
type Service struct {
	repo      domain.JobRepository
	registry  *registry
	runner    *phaseRunner
	persister *persister
	publisher events.DomainEventPublisher
	metrics   AutoScanMetrics
	slots     *semaphore.Weighted
	profiles  map[string]domain.Payload
	jobOpts   []domain.JobOption

	// baseCtx parents every job goroutine. It is cancelled only by Shutdown.
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool

	logger *logger.Logger
	tracer trace.Tracer
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithPublisher sets the publisher used for lifecycle events.
func WithPublisher(p events.DomainEventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m AutoScanMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithProfiles registers named settings presets.
func WithProfiles(profiles map[string]domain.Payload) Option {
	return func(s *Service) { s.profiles = profiles }
}

// WithJobOptions applies domain options to every job the service creates.
func WithJobOptions(opts ...domain.JobOption) Option {
	return func(s *Service) { s.jobOpts = append(s.jobOpts, opts...) }
}

// NewService wires the orchestrator. Collaborators must cover every phase;
// a missing one makes that phase a partial failure at run time.
func NewService(
	repo domain.JobRepository,
	collaborators domain.Collaborators,
	cfg Config,
	logger *logger.Logger,
	tracer trace.Tracer,
	opts ...Option,
) *Service {
	logger = logger.With("component", "autoscan_service")
	baseCtx, stop := context.WithCancel(context.Background())

	s := &Service{
		repo:      repo,
		registry:  newRegistry(),
		publisher: noopPublisher{},
		metrics:   noopMetrics{},
		profiles:  make(map[string]domain.Payload),
		baseCtx:   baseCtx,
		stop:      stop,
		logger:    logger,
		tracer:    tracer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.MaxConcurrentJobs > 0 {
		s.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs))
	}
	s.runner = newPhaseRunner(collaborators, cfg.PhaseTimeout, logger, tracer)
	s.persister = newPersister(repo, cfg, s.metrics, logger)

	return s
}

// StartScan creates a Pending job, registers it, stores it and launches its
// execution in the background. The returned id is usable immediately.
func (s *Service) StartScan(ctx context.Context, cmd StartScanCommand) (uuid.UUID, error) {
	logger := s.logger.With("operation", "start_scan", "workspace_id", cmd.WorkspaceID)
	ctx, span := s.tracer.Start(ctx, "autoscan_service.start_scan",
		trace.WithAttributes(
			attribute.String("workspace_id", cmd.WorkspaceID),
			attribute.String("target_domain", cmd.TargetDomain),
			attribute.String("profile", cmd.Profile),
		),
	)
	defer span.End()

	if s.closed.Load() {
		span.SetStatus(codes.Error, "service shutting down")
		return uuid.Nil, ErrShuttingDown
	}

	settings, err := s.resolveSettings(cmd.Profile, cmd.Settings)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve settings")
		return uuid.Nil, err
	}

	job, err := domain.NewJob(cmd.WorkspaceID, cmd.TargetDomain, settings, s.jobOpts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid start request")
		return uuid.Nil, err
	}
	span.SetAttributes(attribute.String("job_id", job.JobID().String()))

	h, previous, err := s.registry.reserve(job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workspace already has an active job")
		return uuid.Nil, err
	}

	if err := s.repo.CreateJob(ctx, h.snapshot()); err != nil {
		s.registry.release(job, previous)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create job")
		return uuid.Nil, fmt.Errorf("failed to create autoscan job (job_id: %s): %w", job.JobID(), err)
	}
	span.AddEvent("job_created")

	s.launch(h)
	logger.Info(ctx, "AutoScan job accepted", "job_id", job.JobID(), "target_domain", job.TargetDomain())
	span.SetStatus(codes.Ok, "job accepted")

	return job.JobID(), nil
}

func (s *Service) resolveSettings(profile string, overrides domain.Payload) (domain.Payload, error) {
	settings := domain.DefaultSettings()
	if profile != "" {
		preset, ok := s.profiles[profile]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
		}
		settings = settings.Merge(preset)
	}
	return settings.Merge(overrides), nil
}

// GetJob returns a snapshot of the job. Jobs unknown to the registry are read
// from the store.
func (s *Service) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	if h, ok := s.registry.get(jobID); ok {
		return h.snapshot(), nil
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil, &domain.NotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("failed to get autoscan job (job_id: %s): %w", jobID, err)
	}
	return job, nil
}

// GetWorkspaceJob returns the workspace's current or most recent job. The bool
// is false when the workspace is idle.
func (s *Service) GetWorkspaceJob(_ context.Context, workspaceID string) (*domain.Job, bool) {
	h, ok := s.registry.workspaceJob(workspaceID)
	if !ok {
		return nil, false
	}
	return h.snapshot(), true
}

// ListJobs returns snapshots matching filter, newest first.
func (s *Service) ListJobs(_ context.Context, filter domain.JobFilter) []*domain.Job {
	return s.registry.list(filter)
}

// PauseScan asks a Running job to stop before its next phase. It returns at
// once; the job becomes Paused when the in-flight phase call returns.
func (s *Service) PauseScan(ctx context.Context, jobID uuid.UUID) error {
	h, ok := s.registry.get(jobID)
	if !ok {
		return &domain.NotFoundError{JobID: jobID}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if st := h.job.Status(); st != domain.JobStatusRunning || h.cancelRequested {
		return &domain.InvalidStateError{JobID: jobID, Op: "pause", Status: st}
	}
	h.pauseRequested = true
	s.logger.Debug(ctx, "Pause requested", "job_id", jobID)

	return nil
}

// ResumeScan moves a Paused job back to Running and continues at the next
// phase without an outcome.
func (s *Service) ResumeScan(ctx context.Context, jobID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "autoscan_service.resume_scan",
		trace.WithAttributes(attribute.String("job_id", jobID.String())),
	)
	defer span.End()

	h, ok := s.registry.get(jobID)
	if !ok {
		return &domain.NotFoundError{JobID: jobID}
	}
	if s.closed.Load() {
		return ErrShuttingDown
	}

	h.mu.Lock()
	if err := h.job.Resume(); err != nil {
		h.mu.Unlock()
		span.SetStatus(codes.Error, "invalid state")
		return err
	}
	h.pauseRequested, h.cancelRequested = false, false
	h.mu.Unlock()

	if !s.persist(ctx, h) {
		span.SetStatus(codes.Error, "failed to persist resume")
		return fmt.Errorf("failed to persist resume of autoscan job (job_id: %s)", jobID)
	}
	s.publishLifecycle(ctx, h, domain.EventTypeJobResumed)
	s.launch(h)
	span.SetStatus(codes.Ok, "job resumed")

	return nil
}

// CancelScan cancels a Paused job immediately. A Running job is flagged and
// becomes Cancelled when its in-flight phase call returns.
func (s *Service) CancelScan(ctx context.Context, jobID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "autoscan_service.cancel_scan",
		trace.WithAttributes(attribute.String("job_id", jobID.String())),
	)
	defer span.End()

	h, ok := s.registry.get(jobID)
	if !ok {
		return &domain.NotFoundError{JobID: jobID}
	}

	h.mu.Lock()
	switch st := h.job.Status(); st {
	case domain.JobStatusRunning:
		h.cancelRequested = true
		h.pauseRequested = false
		h.mu.Unlock()
		span.AddEvent("cancel_requested")
		return nil
	case domain.JobStatusPaused:
		err := h.job.Cancel()
		h.mu.Unlock()
		if err != nil {
			return err
		}
		if !s.persist(ctx, h) {
			span.SetStatus(codes.Error, "failed to persist cancel")
			return fmt.Errorf("failed to persist cancel of autoscan job (job_id: %s)", jobID)
		}
		s.finished(ctx, h, domain.EventTypeJobCancelled)
		span.AddEvent("cancelled")
		return nil
	default:
		h.mu.Unlock()
		span.SetStatus(codes.Error, "invalid state")
		return &domain.InvalidStateError{JobID: jobID, Op: "cancel", Status: st}
	}
}

// DeleteJob removes a terminal job from the store and the registry.
func (s *Service) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "autoscan_service.delete_job",
		trace.WithAttributes(attribute.String("job_id", jobID.String())),
	)
	defer span.End()

	h, ok := s.registry.get(jobID)
	if !ok {
		return &domain.NotFoundError{JobID: jobID}
	}

	// Holding persistMu orders the delete after any in-flight write of the
	// job's last transition. Terminal jobs never change again, so the
	// snapshot stays valid while the lock is held.
	h.persistMu.Lock()
	defer h.persistMu.Unlock()
	if h.deleted {
		return &domain.NotFoundError{JobID: jobID}
	}
	job := h.snapshot()
	if st := job.Status(); !st.IsTerminal() {
		span.SetStatus(codes.Error, "invalid state")
		return &domain.InvalidStateError{JobID: jobID, Op: "delete", Status: st}
	}

	// The terminal transition may not have reached the store yet. Write it
	// first so the orchestrator's pending write can be skipped.
	if h.stored != job.Status() {
		if err := s.persister.save(ctx, job); err != nil && !errors.Is(err, domain.ErrJobNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to persist job before delete")
			return fmt.Errorf("failed to persist autoscan job before delete (job_id: %s): %w", jobID, err)
		}
		h.stored = job.Status()
	}

	if err := s.repo.DeleteJob(ctx, jobID); err != nil && !errors.Is(err, domain.ErrJobNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete job")
		return fmt.Errorf("failed to delete autoscan job (job_id: %s): %w", jobID, err)
	}
	h.deleted = true
	s.registry.remove(jobID)
	s.logger.Info(ctx, "AutoScan job deleted", "job_id", jobID)
	span.SetStatus(codes.Ok, "job deleted")

	return nil
}

// Reconcile loads every stored job into the registry. Jobs last seen Running
// lost their goroutine with the previous process and become Paused; Pending
// jobs are launched again.
func (s *Service) Reconcile(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "autoscan_service.reconcile")
	defer span.End()

	jobs, err := s.repo.ListJobs(ctx, domain.JobFilter{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list jobs")
		return fmt.Errorf("failed to list autoscan jobs for reconciliation: %w", err)
	}
	slices.SortFunc(jobs, func(a, b *domain.Job) int { return a.CreatedAt().Compare(b.CreatedAt()) })

	var interrupted, relaunched int
	var pending []*jobHandle
	for _, job := range jobs {
		if job.Status() == domain.JobStatusRunning {
			job.AddLog(domain.LogLevelWarning, "", "AutoScan interrupted by a service restart")
			if err := job.Pause(); err != nil {
				return fmt.Errorf("failed to pause interrupted job (job_id: %s): %w", job.JobID(), err)
			}
			if err := s.persister.save(ctx, job); err != nil {
				s.logger.Error(ctx, "Failed to persist interrupted job", "job_id", job.JobID(), "error", err)
			}
			interrupted++
		}
		h := s.registry.load(job)
		if job.Status() == domain.JobStatusPending {
			pending = append(pending, h)
		}
	}
	for _, h := range pending {
		s.launch(h)
		relaunched++
	}

	span.SetAttributes(
		attribute.Int("jobs_loaded", len(jobs)),
		attribute.Int("jobs_interrupted", interrupted),
		attribute.Int("jobs_relaunched", relaunched),
	)
	s.logger.Info(ctx, "AutoScan registry reconciled",
		"jobs_loaded", len(jobs),
		"jobs_interrupted", interrupted,
		"jobs_relaunched", relaunched,
	)

	return nil
}

// Ready reports whether the job store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	if _, err := s.repo.ListJobs(ctx, domain.JobFilter{Limit: 1}); err != nil {
		return fmt.Errorf("autoscan store not ready: %w", err)
	}
	return nil
}

// Collector exposes registry gauges for Prometheus.
func (s *Service) Collector() prometheus.Collector { return newRegistryCollector(s.registry) }

// Shutdown stops accepting work and signals every job goroutine. Jobs pause at
// their next boundary; Shutdown waits for them until ctx expires.
func (s *Service) Shutdown(ctx context.Context) error {
	s.closed.Store(true)
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info(ctx, "AutoScan orchestrator stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for autoscan jobs to stop: %w", ctx.Err())
	}
}

type noopPublisher struct{}

func (noopPublisher) PublishDomainEvent(context.Context, events.DomainEvent, ...events.PublishOption) error {
	return nil
}
