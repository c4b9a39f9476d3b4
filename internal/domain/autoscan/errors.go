package autoscan

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrJobNotFound is returned by repositories when no record exists for an id.
	ErrJobNotFound = errors.New("autoscan job not found")

	// ErrFatal marks a collaborator error that makes continuing the pipeline
	// meaningless. Collaborators wrap it; the phase runner classifies on it.
	ErrFatal = errors.New("fatal phase error")

	// ErrTargetUnresolvable is returned when the target domain has no DNS
	// presence at all.
	ErrTargetUnresolvable = fmt.Errorf("%w: target domain cannot be resolved", ErrFatal)

	// ErrInvalidTarget is returned for syntactically invalid target domains.
	ErrInvalidTarget = errors.New("invalid target domain")
)

// Fatal wraps err so that it is classified as a FatalFailure.
func Fatal(err error) error {
	if err == nil || errors.Is(err, ErrFatal) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// IsFatal reports whether err should abort the job.
func IsFatal(err error) bool { return errors.Is(err, ErrFatal) }

// ConflictError is returned when a workspace already has a non-terminal job.
type ConflictError struct {
	WorkspaceID string
	ActiveJobID uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("workspace %s already has an active autoscan job %s", e.WorkspaceID, e.ActiveJobID)
}

// InvalidStateError is returned when a control operation is not legal for the
// job's current status.
type InvalidStateError struct {
	JobID  uuid.UUID
	Op     string
	Status JobStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s autoscan job %s in status %s", e.Op, e.JobID, e.Status)
}

// NotFoundError is returned by control operations for unknown job ids.
type NotFoundError struct {
	JobID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("autoscan job %s not found", e.JobID)
}

// Is lets callers match a NotFoundError against ErrJobNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrJobNotFound }
