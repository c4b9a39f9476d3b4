package events

import "time"

// DomainEvent is implemented by every event raised by the domain layer.
type DomainEvent interface {
	// EventType identifies the category of this event for routing and handling.
	EventType() EventType
	// OccurredAt records when the domain change happened.
	OccurredAt() time.Time
}

// EventEnvelope wraps a domain event with the transport level metadata the event
// bus needs to route and deliver it.
type EventEnvelope struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically a business identifier
	// such as a job ID that events can be partitioned by.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when this event was created.
	Timestamp time.Time

	// Payload contains the actual domain event.
	Payload any
}
