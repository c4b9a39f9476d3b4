package autoscan

import (
	"context"

	"github.com/google/uuid"
)

// ProgressFunc lets a collaborator publish an opaque progress payload while its
// phase is executing.
type ProgressFunc func(progress Payload)

// PhaseInput is everything a collaborator receives for one phase call.
type PhaseInput struct {
	JobID        uuid.UUID
	WorkspaceID  string
	TargetDomain string
	Phase        Phase
	Settings     Payload
	// Results holds copies of the summaries of every phase recorded so far.
	Results map[Phase]Payload
	// Targets is the input set derived from earlier results.
	Targets  []string
	Progress ProgressFunc
}

// ReportProgress forwards p to the progress callback when one is set.
func (in PhaseInput) ReportProgress(p Payload) {
	if in.Progress != nil {
		in.Progress(p)
	}
}

// Collaborator performs the reconnaissance work for one phase. A nil error means
// success. An error wrapping ErrFatal aborts the job; any other error is recorded
// as a partial failure alongside the returned summary.
type Collaborator interface {
	Run(ctx context.Context, in PhaseInput) (Payload, error)
}

// CollaboratorFunc adapts a function to the Collaborator interface.
type CollaboratorFunc func(ctx context.Context, in PhaseInput) (Payload, error)

// Run implements Collaborator.
func (f CollaboratorFunc) Run(ctx context.Context, in PhaseInput) (Payload, error) {
	return f(ctx, in)
}

// Collaborators maps every phase to the collaborator that implements it.
type Collaborators map[Phase]Collaborator
