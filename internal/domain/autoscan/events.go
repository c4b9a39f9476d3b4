package autoscan

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/recon-armada/internal/domain/events"
)

// Lifecycle event types published by the orchestrator.
const (
	EventTypeJobStarted    events.EventType = "autoscan.job.started"
	EventTypeJobPaused     events.EventType = "autoscan.job.paused"
	EventTypeJobResumed    events.EventType = "autoscan.job.resumed"
	EventTypeJobCancelled  events.EventType = "autoscan.job.cancelled"
	EventTypeJobCompleted  events.EventType = "autoscan.job.completed"
	EventTypeJobFailed     events.EventType = "autoscan.job.failed"
	EventTypePhaseFinished events.EventType = "autoscan.phase.finished"
)

// JobLifecycleEvent reports a status change of an autoscan job.
type JobLifecycleEvent struct {
	Type         events.EventType `json:"type"`
	Timestamp    time.Time        `json:"occurred_at"`
	JobID        uuid.UUID        `json:"job_id"`
	WorkspaceID  string           `json:"workspace_id"`
	TargetDomain string           `json:"target_domain"`
	Status       JobStatus        `json:"status"`
	Reason       string           `json:"reason,omitempty"`
}

// NewJobLifecycleEvent builds the event matching the job's current status.
func NewJobLifecycleEvent(eventType events.EventType, job *Job) JobLifecycleEvent {
	return JobLifecycleEvent{
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		JobID:        job.JobID(),
		WorkspaceID:  job.WorkspaceID(),
		TargetDomain: job.TargetDomain(),
		Status:       job.Status(),
		Reason:       job.ErrorMessage(),
	}
}

func (e JobLifecycleEvent) EventType() events.EventType { return e.Type }
func (e JobLifecycleEvent) OccurredAt() time.Time       { return e.Timestamp }

// PhaseFinishedEvent reports the outcome of one phase call.
type PhaseFinishedEvent struct {
	Timestamp   time.Time     `json:"occurred_at"`
	JobID       uuid.UUID     `json:"job_id"`
	WorkspaceID string        `json:"workspace_id"`
	Phase       Phase         `json:"phase"`
	Outcome     string        `json:"outcome"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// NewPhaseFinishedEvent builds a PhaseFinishedEvent from an outcome.
func NewPhaseFinishedEvent(job *Job, o PhaseOutcome, d time.Duration) PhaseFinishedEvent {
	e := PhaseFinishedEvent{
		Timestamp:   time.Now().UTC(),
		JobID:       job.JobID(),
		WorkspaceID: job.WorkspaceID(),
		Phase:       o.Phase,
		Outcome:     o.Kind.String(),
		Duration:    d,
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	return e
}

func (e PhaseFinishedEvent) EventType() events.EventType { return EventTypePhaseFinished }
func (e PhaseFinishedEvent) OccurredAt() time.Time       { return e.Timestamp }
