package autoscan

import "time"

// TimeProvider is an interface that provides a Now method to get the current time.
type TimeProvider interface {
	Now() time.Time
}

// Real implementation for production.
type realTimeProvider struct{}

func (r *realTimeProvider) Now() time.Time { return time.Now().UTC() }

// Timeline tracks the lifecycle timestamps of an autoscan job. Each lifecycle
// timestamp is set at most once.
type Timeline struct {
	createdAt    time.Time
	startedAt    time.Time
	completedAt  time.Time
	updatedAt    time.Time
	timeProvider TimeProvider
}

// NewTimeline creates a new Timeline instance stamped with the creation time.
func NewTimeline(timeProvider TimeProvider) *Timeline {
	now := timeProvider.Now()
	return &Timeline{createdAt: now, updatedAt: now, timeProvider: timeProvider}
}

// ReconstructTimeline rebuilds a Timeline from persisted values.
func ReconstructTimeline(createdAt, startedAt, completedAt, updatedAt time.Time) *Timeline {
	return &Timeline{
		createdAt:    createdAt,
		startedAt:    startedAt,
		completedAt:  completedAt,
		updatedAt:    updatedAt,
		timeProvider: new(realTimeProvider),
	}
}

func (t *Timeline) CreatedAt() time.Time   { return t.createdAt }
func (t *Timeline) StartedAt() time.Time   { return t.startedAt }
func (t *Timeline) CompletedAt() time.Time { return t.completedAt }
func (t *Timeline) UpdatedAt() time.Time   { return t.updatedAt }

// MarkStarted records the first start. Later calls are no-ops.
func (t *Timeline) MarkStarted() {
	if t.startedAt.IsZero() {
		t.startedAt = t.timeProvider.Now()
	}
	t.Touch()
}

// MarkCompleted records the terminal time. Later calls are no-ops.
func (t *Timeline) MarkCompleted() {
	if t.completedAt.IsZero() {
		t.completedAt = t.timeProvider.Now()
	}
	t.Touch()
}

// Touch updates the last modification timestamp.
func (t *Timeline) Touch() { t.updatedAt = t.timeProvider.Now() }

// Now exposes the timeline's clock so log entries share it.
func (t *Timeline) Now() time.Time { return t.timeProvider.Now() }

// IsCompleted checks if the timeline has been marked as completed.
func (t *Timeline) IsCompleted() bool { return !t.completedAt.IsZero() }

func (t *Timeline) clone() *Timeline {
	cp := *t
	return &cp
}
