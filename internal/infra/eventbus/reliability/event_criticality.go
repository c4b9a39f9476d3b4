// Package reliability classifies autoscan events by how much their loss
// matters, so transports can pick delivery guarantees per event type.
package reliability

import (
	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/domain/events"
)

// IsCriticalEvent reports whether an event type must not be dropped on a
// transient publish failure.
//
// Critical events are terminal job transitions. No later event restates
// them, so a consumer that misses one never learns how the job ended.
// Intermediate transitions and phase results are superseded by the next
// event for the same job.
func IsCriticalEvent(eventType events.EventType) bool {
	switch eventType {
	case domain.EventTypeJobCompleted,
		domain.EventTypeJobFailed,
		domain.EventTypeJobCancelled:
		return true

	case domain.EventTypeJobStarted,
		domain.EventTypeJobPaused,
		domain.EventTypeJobResumed,
		domain.EventTypePhaseFinished:
		return false

	default:
		return false
	}
}
