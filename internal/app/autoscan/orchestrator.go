package autoscan

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/domain/events"
)

// launch starts the job's orchestrator goroutine on the service context, never
// on the caller's request context.
func (s *Service) launch(h *jobHandle) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.drive(s.baseCtx, h)
	}()
}

// drive runs the job until it pauses or reaches a terminal state. Control
// signals are only observed between stages; a phase call is never interrupted.
func (s *Service) drive(ctx context.Context, h *jobHandle) {
	job := h.snapshot()
	logger := s.logger.With("job_id", job.JobID(), "workspace_id", job.WorkspaceID())
	ctx, span := s.tracer.Start(ctx, "autoscan_orchestrator.drive",
		trace.WithAttributes(
			attribute.String("job_id", job.JobID().String()),
			attribute.String("target_domain", job.TargetDomain()),
		),
	)
	defer span.End()

	if s.slots != nil {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			logger.Info(ctx, "Orchestrator stopped while waiting for a job slot")
			span.SetStatus(codes.Error, "no job slot acquired")
			return
		}
		defer s.slots.Release(1)
	}

	h.mu.Lock()
	if h.job.Status() == domain.JobStatusPending {
		if err := h.job.Start(); err != nil {
			h.mu.Unlock()
			logger.Error(ctx, "Failed to start job", "error", err)
			return
		}
		h.mu.Unlock()
		if !s.persist(ctx, h) {
			return
		}
		s.metrics.IncJobsStarted(ctx)
		s.publishLifecycle(ctx, h, domain.EventTypeJobStarted)
		logger.Info(ctx, "AutoScan job started")
	} else {
		h.mu.Unlock()
	}

	for {
		stage, ok := s.boundary(ctx, h)
		if !ok {
			break
		}
		span.AddEvent("stage_started", trace.WithAttributes(attribute.Int("phases", len(stage))))
		if !s.runStage(ctx, h, stage) {
			break
		}
	}

	final := h.snapshot()
	span.SetAttributes(attribute.String("status", final.Status().String()))
	logger.Info(ctx, "Orchestrator loop exited",
		"status", final.Status(),
		"completed_phases", len(final.CompletedPhases()),
		"failed_phases", len(final.FailedPhases()),
	)
}

// boundary applies pending signals between stages. Cancel wins over a
// shutdown, which wins over pause. Without a signal it returns the next stage
// to run, or completes the job when none is left.
func (s *Service) boundary(ctx context.Context, h *jobHandle) ([]domain.Phase, bool) {
	h.mu.Lock()
	if h.job.Status() != domain.JobStatusRunning {
		h.mu.Unlock()
		return nil, false
	}

	var (
		evt events.EventType
		err error
	)
	switch {
	case h.cancelRequested:
		evt, err = domain.EventTypeJobCancelled, h.job.Cancel()
	case ctx.Err() != nil:
		h.job.AddLog(domain.LogLevelWarning, "", "AutoScan paused by service shutdown")
		evt, err = domain.EventTypeJobPaused, h.job.Pause()
	case h.pauseRequested:
		evt, err = domain.EventTypeJobPaused, h.job.Pause()
	default:
		if stage, ok := h.job.NextStage(); ok {
			h.mu.Unlock()
			return stage, true
		}
		evt, err = domain.EventTypeJobCompleted, h.job.Complete()
	}
	h.pauseRequested, h.cancelRequested = false, false
	h.mu.Unlock()

	if err != nil {
		s.logger.Error(ctx, "Boundary transition rejected", "event", evt, "error", err)
		return nil, false
	}
	if s.persist(ctx, h) {
		s.finished(ctx, h, evt)
	}

	return nil, false
}

// runStage executes every phase of stage concurrently and waits for all of
// them. It returns false when the job left Running during the stage.
func (s *Service) runStage(ctx context.Context, h *jobHandle, stage []domain.Phase) bool {
	outcomes := make([]domain.PhaseOutcome, len(stage))
	recorded := make([]bool, len(stage))

	var g errgroup.Group
	for i, phase := range stage {
		g.Go(func() error {
			outcomes[i], recorded[i] = s.executePhase(ctx, h, phase)
			return nil
		})
	}
	_ = g.Wait()

	h.mu.Lock()
	if h.job.IsTerminal() {
		h.mu.Unlock()
		return false
	}

	// A fatal outcome filed before a cancel request arrived still fails the
	// job; the cancel is dropped.
	var fatal *domain.PhaseOutcome
	for i := range outcomes {
		if recorded[i] && outcomes[i].Kind == domain.OutcomeFatalFailure {
			fatal = &outcomes[i]
			break
		}
	}
	if fatal == nil {
		h.mu.Unlock()
		return true
	}

	err := h.job.Fail(fmt.Sprintf("%s: %v", fatal.Phase, fatal.Err))
	h.pauseRequested, h.cancelRequested = false, false
	h.mu.Unlock()
	if err != nil {
		s.logger.Error(ctx, "Failed to fail job after fatal phase", "phase", fatal.Phase, "error", err)
		return false
	}
	if s.persist(ctx, h) {
		s.finished(ctx, h, domain.EventTypeJobFailed)
	}

	return false
}

// executePhase runs one phase and records its outcome. The bool reports whether
// the outcome was filed into the phase sets; an outcome that arrives after a
// cancel request or during shutdown is kept for observability only.
func (s *Service) executePhase(ctx context.Context, h *jobHandle, phase domain.Phase) (domain.PhaseOutcome, bool) {
	h.mu.Lock()
	results := h.job.Results()
	in := domain.PhaseInput{
		JobID:        h.job.JobID(),
		WorkspaceID:  h.job.WorkspaceID(),
		TargetDomain: h.job.TargetDomain(),
		Phase:        phase,
		Settings:     h.job.Settings(),
		Results:      results,
		Targets:      domain.DeriveTargets(phase, h.job.TargetDomain(), results),
		Progress:     progressFunc(h, phase),
	}
	skip := domain.ShouldSkip(phase, results)
	err := h.job.BeginPhase(phase)
	h.mu.Unlock()
	if err != nil {
		s.logger.Error(ctx, "Failed to begin phase", "phase", phase, "error", err)
		return domain.PhaseOutcome{}, false
	}
	if !s.persist(ctx, h) {
		return domain.PhaseOutcome{}, false
	}

	start := time.Now()
	var outcome domain.PhaseOutcome
	if skip {
		outcome = domain.Success(phase, domain.Payload{})
		h.mu.Lock()
		h.job.AddLog(domain.LogLevelInfo, phase, fmt.Sprintf("Phase %s skipped: no subdomains to probe", phase))
		h.mu.Unlock()
	} else {
		outcome = s.runner.Run(ctx, in)
	}
	elapsed := time.Since(start)
	s.metrics.ObservePhase(ctx, phase, outcome.Kind, elapsed)

	h.mu.Lock()
	abandoned := h.cancelRequested || ctx.Err() != nil
	if abandoned {
		h.job.RecordAbandonedOutcome(outcome)
	} else if err := h.job.RecordOutcome(outcome); err != nil {
		s.logger.Warn(ctx, "Phase outcome not recorded", "phase", phase, "error", err)
		abandoned = true
	}
	evt := domain.NewPhaseFinishedEvent(h.job, outcome, elapsed)
	h.mu.Unlock()

	if !s.persist(ctx, h) {
		return outcome, false
	}
	s.publish(ctx, evt)

	return outcome, !abandoned
}

// progressFunc updates the registry copy of the job only; progress reaches the
// store with the next persisted step.
func progressFunc(h *jobHandle, phase domain.Phase) domain.ProgressFunc {
	return func(progress domain.Payload) {
		h.mu.Lock()
		defer h.mu.Unlock()
		_ = h.job.UpdateProgress(phase, progress)
	}
}

// persist writes the registry copy of the job to the store. When the write
// cannot be completed a non-terminal job is failed in the registry and one
// final write is attempted; a terminal job keeps its status. It returns false
// when the snapshot did not reach the store.
func (s *Service) persist(ctx context.Context, h *jobHandle) bool {
	h.persistMu.Lock()
	defer h.persistMu.Unlock()

	// DeleteJob stores the terminal snapshot before removing the record.
	if h.deleted {
		return true
	}

	job := h.snapshot()
	err := s.persister.save(ctx, job)
	if err == nil {
		h.stored = job.Status()
		return true
	}

	h.mu.Lock()
	aborted := h.job.AbortPersistence(fmt.Sprintf("job state could not be persisted: %v", err))
	failed := h.job.Clone()
	h.mu.Unlock()

	if !aborted {
		s.logger.Error(ctx, "Terminal job state could not be persisted",
			"job_id", failed.JobID(), "status", failed.Status(), "error", err)
		return false
	}

	s.logger.Error(ctx, "Aborting job after persistence failure", "job_id", failed.JobID(), "error", err)
	if err := s.persister.saveOnce(ctx, failed); err != nil {
		s.logger.Error(ctx, "Final write of aborted job failed", "job_id", failed.JobID(), "error", err)
	} else {
		h.stored = failed.Status()
	}
	s.metrics.IncJobsFinished(ctx, domain.JobStatusFailed)
	s.publish(ctx, domain.NewJobLifecycleEvent(domain.EventTypeJobFailed, failed))

	return false
}

// finished publishes the lifecycle event for a transition and counts terminal
// states.
func (s *Service) finished(ctx context.Context, h *jobHandle, evt events.EventType) {
	job := h.snapshot()
	if job.IsTerminal() {
		s.metrics.IncJobsFinished(ctx, job.Status())
	}
	s.publish(ctx, domain.NewJobLifecycleEvent(evt, job))
}

func (s *Service) publishLifecycle(ctx context.Context, h *jobHandle, evt events.EventType) {
	s.publish(ctx, domain.NewJobLifecycleEvent(evt, h.snapshot()))
}

// publish delivers evt keyed by job id. Failures are logged and counted but
// never affect the job.
func (s *Service) publish(ctx context.Context, evt events.DomainEvent) {
	var key string
	switch e := evt.(type) {
	case domain.JobLifecycleEvent:
		key = e.JobID.String()
	case domain.PhaseFinishedEvent:
		key = e.JobID.String()
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.publisher.PublishDomainEvent(ctx, evt, events.WithKey(key)); err != nil {
		s.metrics.IncEventPublishErrors(ctx)
		s.logger.Warn(ctx, "Failed to publish autoscan event", "event_type", evt.EventType(), "key", key, "error", err)
	}
}
