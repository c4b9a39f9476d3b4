package autoscan

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

// phaseRunner executes a single phase by calling its collaborator and folds
// whatever comes back, including a panic, into a PhaseOutcome. It holds no job
// state and knows nothing about other phases.
type phaseRunner struct {
	collaborators domain.Collaborators
	timeout       time.Duration

	logger *logger.Logger
	tracer trace.Tracer
}

func newPhaseRunner(
	collaborators domain.Collaborators,
	timeout time.Duration,
	logger *logger.Logger,
	tracer trace.Tracer,
) *phaseRunner {
	return &phaseRunner{
		collaborators: collaborators,
		timeout:       timeout,
		logger:        logger.With("component", "phase_runner"),
		tracer:        tracer,
	}
}

// Run invokes the collaborator for in.Phase and blocks until it returns.
func (r *phaseRunner) Run(ctx context.Context, in domain.PhaseInput) (outcome domain.PhaseOutcome) {
	logger := r.logger.With("job_id", in.JobID, "phase", in.Phase)
	ctx, span := r.tracer.Start(ctx, "phase_runner.run",
		trace.WithAttributes(
			attribute.String("job_id", in.JobID.String()),
			attribute.String("phase", in.Phase.String()),
			attribute.Int("target_count", len(in.Targets)),
		),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("collaborator for phase %s panicked: %v", in.Phase, rec)
			logger.Error(ctx, "Collaborator panicked", "panic", rec, "stack", string(debug.Stack()))
			outcome = domain.PartialFailure(in.Phase, nil, err)
		}
		span.SetAttributes(attribute.String("outcome", outcome.Kind.String()))
		if outcome.Err != nil {
			span.RecordError(outcome.Err)
			span.SetStatus(codes.Error, outcome.Err.Error())
			return
		}
		span.SetStatus(codes.Ok, "phase completed")
	}()

	collab, ok := r.collaborators[in.Phase]
	if !ok || collab == nil {
		return domain.PartialFailure(in.Phase, nil, fmt.Errorf("no collaborator registered for phase %s", in.Phase))
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger.Debug(ctx, "Invoking collaborator", "targets", len(in.Targets))
	summary, err := collab.Run(ctx, in)
	outcome = domain.Classify(in.Phase, summary, err)
	logger.Debug(ctx, "Collaborator returned", "outcome", outcome.Kind.String())

	return outcome
}
