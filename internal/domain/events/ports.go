// Package events defines the domain event model and the ports used to emit
// AutoScan lifecycle changes.
package events

import "context"

// DomainEventPublisher emits domain events. Implementations wrap the event in
// an envelope and hand it to an EventBus.
type DomainEventPublisher interface {
	PublishDomainEvent(ctx context.Context, event DomainEvent, opts ...PublishOption) error
}

// HandlerFunc processes a single event delivered by an EventBus.
type HandlerFunc func(ctx context.Context, evt EventEnvelope) error

// EventBus moves event envelopes between processes.
type EventBus interface {
	// Publish sends evt. PublishOptions may set the partition key and headers.
	Publish(ctx context.Context, evt EventEnvelope, opts ...PublishOption) error

	// Subscribe delivers events of the given types to handler until ctx is
	// done or the bus is closed.
	Subscribe(ctx context.Context, eventTypes []EventType, handler HandlerFunc) error

	Close() error
}
