// Package eventbus adapts the transport specific buses to the domain
// publisher port.
package eventbus

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/ahrav/recon-armada/internal/domain/events"
	"github.com/ahrav/recon-armada/internal/infra/eventbus/reliability"
)

var _ events.DomainEventPublisher = (*DomainEventPublisher)(nil)

// Default retry policy for critical events.
const (
	defaultCriticalRetries  = 3
	defaultCriticalInterval = 250 * time.Millisecond
)

// DomainEventPublisher adapts an events.EventBus to the domain publisher port.
// Critical events are retried with exponential backoff; all others are
// published once.
type DomainEventPublisher struct {
	eventBus events.EventBus

	criticalRetries  uint64
	criticalInterval time.Duration
}

// PublisherOption configures a DomainEventPublisher.
type PublisherOption func(*DomainEventPublisher)

// WithCriticalRetry sets how often and how soon a failed critical event is
// retried. Zero retries disables retrying.
func WithCriticalRetry(retries uint64, initialInterval time.Duration) PublisherOption {
	return func(p *DomainEventPublisher) {
		p.criticalRetries = retries
		p.criticalInterval = initialInterval
	}
}

// NewDomainEventPublisher creates a publisher that sends domain events through bus.
func NewDomainEventPublisher(bus events.EventBus, opts ...PublisherOption) *DomainEventPublisher {
	p := &DomainEventPublisher{
		eventBus:         bus,
		criticalRetries:  defaultCriticalRetries,
		criticalInterval: defaultCriticalInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishDomainEvent wraps event in an envelope and publishes it. The
// envelope carries the event's own timestamp.
func (pub *DomainEventPublisher) PublishDomainEvent(
	ctx context.Context,
	event events.DomainEvent,
	opts ...events.PublishOption,
) error {
	envelope := events.Envelope(event, opts...)
	operation := func() error {
		return pub.eventBus.Publish(ctx, envelope, opts...)
	}

	if pub.criticalRetries == 0 || !reliability.IsCriticalEvent(event.EventType()) {
		return operation()
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = pub.criticalInterval
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(expBackoff, pub.criticalRetries), ctx))
}
