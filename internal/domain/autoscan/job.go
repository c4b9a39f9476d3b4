// Package autoscan models a multi-phase reconnaissance run: the job aggregate,
// its status machine, the fixed phase pipeline and the ports that collaborators
// and stores implement.
package autoscan

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job is one orchestrated, resumable run of the phase pipeline for a workspace
// and target domain. Only the orchestrator that owns a running job mutates it;
// everyone else works with clones.
type Job struct {
	jobID        uuid.UUID
	workspaceID  string
	targetDomain string
	status       JobStatus
	currentPhase Phase

	completedPhases []Phase
	failedPhases    []Phase
	phaseProgress   map[Phase]Payload
	results         map[Phase]Payload

	settings     Payload
	errorMessage string
	logs         []LogEntry
	timeline     *Timeline

	// inFlight lists phases begun but not yet recorded, in start order. It is
	// process local and never persisted.
	inFlight []Phase
}

// JobOption configures a new Job.
type JobOption func(*Job)

// WithTimeProvider overrides the clock used for lifecycle timestamps.
func WithTimeProvider(tp TimeProvider) JobOption {
	return func(j *Job) { j.timeline = NewTimeline(tp) }
}

// WithJobID fixes the job identifier instead of generating one.
func WithJobID(id uuid.UUID) JobOption {
	return func(j *Job) { j.jobID = id }
}

// NewJob creates a Pending job. The settings snapshot is copied and never
// changes afterwards.
func NewJob(workspaceID, targetDomain string, settings Payload, opts ...JobOption) (*Job, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace id is required")
	}
	targetDomain = NormalizeDomain(targetDomain)
	if err := ValidateDomain(targetDomain); err != nil {
		return nil, err
	}
	if settings == nil {
		settings = Payload{}
	}

	j := &Job{
		jobID:         uuid.New(),
		workspaceID:   workspaceID,
		targetDomain:  targetDomain,
		status:        JobStatusPending,
		phaseProgress: make(map[Phase]Payload),
		results:       make(map[Phase]Payload),
		settings:      settings.Clone(),
		timeline:      NewTimeline(new(realTimeProvider)),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.AddLog(LogLevelInfo, "", fmt.Sprintf("AutoScan queued for %s", targetDomain))
	return j, nil
}

// ReconstructJob creates a Job instance from persisted data without applying
// any validation or side effects.
func ReconstructJob(
	jobID uuid.UUID,
	workspaceID string,
	targetDomain string,
	status JobStatus,
	currentPhase Phase,
	completedPhases []Phase,
	failedPhases []Phase,
	phaseProgress map[Phase]Payload,
	results map[Phase]Payload,
	settings Payload,
	errorMessage string,
	logs []LogEntry,
	timeline *Timeline,
) *Job {
	if phaseProgress == nil {
		phaseProgress = make(map[Phase]Payload)
	}
	if results == nil {
		results = make(map[Phase]Payload)
	}
	if settings == nil {
		settings = Payload{}
	}
	if timeline == nil {
		timeline = NewTimeline(new(realTimeProvider))
	}
	return &Job{
		jobID:           jobID,
		workspaceID:     workspaceID,
		targetDomain:    targetDomain,
		status:          status,
		currentPhase:    currentPhase,
		completedPhases: completedPhases,
		failedPhases:    failedPhases,
		phaseProgress:   phaseProgress,
		results:         results,
		settings:        settings,
		errorMessage:    errorMessage,
		logs:            tail(logs, MaxStoredLogs),
		timeline:        timeline,
	}
}

func (j *Job) JobID() uuid.UUID         { return j.jobID }
func (j *Job) WorkspaceID() string      { return j.workspaceID }
func (j *Job) TargetDomain() string     { return j.targetDomain }
func (j *Job) Status() JobStatus        { return j.status }
func (j *Job) CurrentPhase() Phase      { return j.currentPhase }
func (j *Job) ErrorMessage() string     { return j.errorMessage }
func (j *Job) CreatedAt() time.Time     { return j.timeline.CreatedAt() }
func (j *Job) StartedAt() time.Time     { return j.timeline.StartedAt() }
func (j *Job) CompletedAt() time.Time   { return j.timeline.CompletedAt() }
func (j *Job) UpdatedAt() time.Time     { return j.timeline.UpdatedAt() }
func (j *Job) Settings() Payload        { return j.settings.Clone() }
func (j *Job) CompletedPhases() []Phase { return slices.Clone(j.completedPhases) }
func (j *Job) FailedPhases() []Phase    { return slices.Clone(j.failedPhases) }

// Logs returns every retained log entry, oldest first.
func (j *Job) Logs() []LogEntry { return tail(j.logs, MaxStoredLogs) }

// RecentLogs returns at most the MaxVisibleLogs most recent entries.
func (j *Job) RecentLogs() []LogEntry { return tail(j.logs, MaxVisibleLogs) }

// PhaseProgress returns a copy of the progress payloads keyed by phase.
func (j *Job) PhaseProgress() map[Phase]Payload { return clonePayloads(j.phaseProgress) }

// Results returns a copy of the phase summaries keyed by phase.
func (j *Job) Results() map[Phase]Payload { return clonePayloads(j.results) }

// IsTerminal reports whether the job reached Completed, Failed or Cancelled.
func (j *Job) IsTerminal() bool { return j.status.IsTerminal() }

// HasRecorded reports whether p already has a recorded outcome.
func (j *Job) HasRecorded(p Phase) bool {
	return slices.Contains(j.completedPhases, p) || slices.Contains(j.failedPhases, p)
}

// NextStage returns the phases of the first stage that still has unrecorded
// phases. It returns false once every phase has an outcome.
func (j *Job) NextStage() ([]Phase, bool) {
	for _, stage := range pipeline {
		var pending []Phase
		for _, p := range stage {
			if !j.HasRecorded(p) {
				pending = append(pending, p)
			}
		}
		if len(pending) > 0 {
			return pending, true
		}
	}
	return nil, false
}

// Start moves a Pending job to Running and stamps started_at.
func (j *Job) Start() error {
	if err := j.transition("start", JobStatusRunning); err != nil {
		return err
	}
	j.timeline.MarkStarted()
	j.AddLog(LogLevelInfo, "", fmt.Sprintf("AutoScan started for %s", j.targetDomain))
	return nil
}

// Pause moves a Running job to Paused. The current phase is kept so a reader can
// see where the job stopped.
func (j *Job) Pause() error {
	if err := j.transition("pause", JobStatusPaused); err != nil {
		return err
	}
	j.AddLog(LogLevelWarning, j.currentPhase, "AutoScan paused")
	return nil
}

// Resume moves a Paused job back to Running.
func (j *Job) Resume() error {
	if err := j.transition("resume", JobStatusRunning); err != nil {
		return err
	}
	j.AddLog(LogLevelInfo, "", "AutoScan resumed")
	return nil
}

// Cancel moves a Running or Paused job to Cancelled and stamps completed_at.
func (j *Job) Cancel() error {
	if j.status.isValidTransition(JobStatusCancelled) {
		j.AddLog(LogLevelWarning, j.currentPhase, "AutoScan cancelled")
	}
	if err := j.transition("cancel", JobStatusCancelled); err != nil {
		return err
	}
	j.finish()
	return nil
}

// Complete moves a Running job to Completed.
func (j *Job) Complete() error {
	if j.status.isValidTransition(JobStatusCompleted) {
		msg := "AutoScan completed"
		if n := len(j.failedPhases); n > 0 {
			msg = fmt.Sprintf("AutoScan completed with %d failed phase(s)", n)
		}
		j.AddLog(LogLevelSuccess, "", msg)
	}
	if err := j.transition("complete", JobStatusCompleted); err != nil {
		return err
	}
	j.finish()
	return nil
}

// Fail moves a Running job to Failed with the given reason.
func (j *Job) Fail(reason string) error {
	if j.status.isValidTransition(JobStatusFailed) {
		j.AddLog(LogLevelError, j.currentPhase, "AutoScan failed: "+reason)
	}
	if err := j.transition("fail", JobStatusFailed); err != nil {
		return err
	}
	j.errorMessage = reason
	j.finish()
	return nil
}

// AbortPersistence marks a non-terminal job Failed because its state could
// not be made durable. It is the one path that bypasses the transition table,
// since the state it replaces was never stored. Terminal jobs are left as they
// are and false is returned.
func (j *Job) AbortPersistence(reason string) bool {
	if j.status.IsTerminal() {
		return false
	}
	j.logs = appendBounded(j.logs, LogEntry{
		Timestamp: j.timeline.Now(),
		Level:     LogLevelError,
		Phase:     j.currentPhase,
		Message:   "AutoScan failed: " + reason,
	}, MaxStoredLogs)
	j.status = JobStatusFailed
	j.errorMessage = reason
	j.finish()
	return true
}

// BeginPhase records that p is about to be invoked.
func (j *Job) BeginPhase(p Phase) error {
	if j.status != JobStatusRunning {
		return &InvalidStateError{JobID: j.jobID, Op: "begin phase " + p.String(), Status: j.status}
	}
	j.currentPhase = p
	j.inFlight = append(j.inFlight, p)
	j.timeline.Touch()
	j.AddLog(LogLevelInfo, p, fmt.Sprintf("Phase %s started", p))
	return nil
}

// UpdateProgress replaces the progress payload for p.
func (j *Job) UpdateProgress(p Phase, progress Payload) error {
	if j.status != JobStatusRunning {
		return &InvalidStateError{JobID: j.jobID, Op: "update progress", Status: j.status}
	}
	j.phaseProgress[p] = progress.Clone()
	j.timeline.Touch()
	return nil
}

// RecordOutcome stores the summary of a returned phase and files the phase into
// completed or failed phases. A phase is recorded at most once.
func (j *Job) RecordOutcome(o PhaseOutcome) error {
	if j.status != JobStatusRunning {
		return &InvalidStateError{JobID: j.jobID, Op: "record " + o.Phase.String(), Status: j.status}
	}
	if j.HasRecorded(o.Phase) {
		return fmt.Errorf("phase %s already recorded for job %s", o.Phase, j.jobID)
	}

	j.storeSummary(o)
	switch o.Kind {
	case OutcomeSuccess:
		j.completedPhases = append(j.completedPhases, o.Phase)
		j.AddLog(LogLevelSuccess, o.Phase, fmt.Sprintf("Phase %s completed", o.Phase))
	case OutcomePartialFailure:
		j.failedPhases = append(j.failedPhases, o.Phase)
		j.AddLog(LogLevelWarning, o.Phase, fmt.Sprintf("Phase %s failed: %v", o.Phase, o.Err))
	case OutcomeFatalFailure:
		j.failedPhases = append(j.failedPhases, o.Phase)
		j.AddLog(LogLevelError, o.Phase, fmt.Sprintf("Phase %s failed fatally: %v", o.Phase, o.Err))
	}
	return nil
}

// RecordAbandonedOutcome keeps the summary of a phase that returned after a
// cancel request for observability without filing it as completed or failed.
func (j *Job) RecordAbandonedOutcome(o PhaseOutcome) {
	if j.IsTerminal() {
		return
	}
	j.storeSummary(o)
	msg := fmt.Sprintf("Phase %s returned after cancellation (%s)", o.Phase, o.Kind)
	if o.Err != nil {
		msg += ": " + o.Err.Error()
	}
	j.AddLog(LogLevelWarning, o.Phase, msg)
}

// storeSummary keeps the phase result and moves current_phase to a phase still
// executing, or leaves it on o.Phase when nothing else is in flight.
func (j *Job) storeSummary(o PhaseOutcome) {
	j.inFlight = slices.DeleteFunc(j.inFlight, func(p Phase) bool { return p == o.Phase })
	if n := len(j.inFlight); n > 0 {
		j.currentPhase = j.inFlight[n-1]
	} else {
		j.currentPhase = o.Phase
	}
	if o.Summary != nil {
		j.results[o.Phase] = o.Summary.Clone()
	} else if o.Kind == OutcomeSuccess {
		j.results[o.Phase] = Payload{}
	}
	delete(j.phaseProgress, o.Phase)
	j.timeline.Touch()
}

// AddLog appends an entry to the bounded activity log. Terminal jobs are not
// modified. An empty phase defaults to the current phase.
func (j *Job) AddLog(level LogLevel, phase Phase, message string) {
	if j.IsTerminal() {
		return
	}
	if phase == "" {
		phase = j.currentPhase
	}
	j.logs = appendBounded(j.logs, LogEntry{
		Timestamp: j.timeline.Now(),
		Level:     level,
		Phase:     phase,
		Message:   message,
	}, MaxStoredLogs)
}

// Clone returns a deep copy suitable for handing to readers.
func (j *Job) Clone() *Job {
	cp := *j
	cp.completedPhases = slices.Clone(j.completedPhases)
	cp.failedPhases = slices.Clone(j.failedPhases)
	cp.phaseProgress = clonePayloads(j.phaseProgress)
	cp.results = clonePayloads(j.results)
	cp.settings = j.settings.Clone()
	cp.logs = slices.Clone(j.logs)
	cp.inFlight = slices.Clone(j.inFlight)
	cp.timeline = j.timeline.clone()
	return &cp
}

func (j *Job) transition(op string, target JobStatus) error {
	if err := j.status.ValidateTransition(target); err != nil {
		return &InvalidStateError{JobID: j.jobID, Op: op, Status: j.status}
	}
	j.status = target
	j.timeline.Touch()
	return nil
}

func (j *Job) finish() {
	j.currentPhase = ""
	j.inFlight = nil
	j.timeline.MarkCompleted()
}

func clonePayloads(in map[Phase]Payload) map[Phase]Payload {
	out := make(map[Phase]Payload, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}
