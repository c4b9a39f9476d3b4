package autoscan

import (
	"fmt"
	"strings"
)

// JobStatus represents the current state of an autoscan job. It enables tracking
// of the job lifecycle from acceptance through completion, failure or cancellation.
type JobStatus string

const (
	// JobStatusPending indicates a job has been accepted but no phase has started.
	JobStatusPending JobStatus = "PENDING"

	// JobStatusRunning indicates the orchestrator is actively driving phases.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusPaused indicates the orchestrator stopped at a phase boundary on request.
	JobStatusPaused JobStatus = "PAUSED"

	// JobStatusCompleted indicates every phase returned without a fatal failure.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusFailed indicates a fatal phase failure or unrecoverable persistence error.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusCancelled indicates the job was stopped on request.
	JobStatusCancelled JobStatus = "CANCELLED"
)

func (s JobStatus) String() string { return string(s) }

// ParseJobStatus converts a string to a JobStatus. Matching is case-insensitive;
// unknown values yield the empty status.
func ParseJobStatus(s string) JobStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return JobStatusPending
	case "RUNNING":
		return JobStatusRunning
	case "PAUSED":
		return JobStatusPaused
	case "COMPLETED":
		return JobStatusCompleted
	case "FAILED":
		return JobStatusFailed
	case "CANCELLED", "CANCELED":
		return JobStatusCancelled
	default:
		return "" // represents unspecified
	}
}

// IsTerminal reports whether no further transitions are possible from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// IsActive reports whether a job in this status still occupies its workspace.
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusPaused
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s JobStatus) ValidateTransition(target JobStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid job status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target status.
func (s JobStatus) isValidTransition(target JobStatus) bool {
	switch s {
	case JobStatusPending:
		return target == JobStatusRunning
	case JobStatusRunning:
		return target == JobStatusPaused ||
			target == JobStatusCompleted ||
			target == JobStatusFailed ||
			target == JobStatusCancelled
	case JobStatusPaused:
		return target == JobStatusRunning || target == JobStatusCancelled
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
