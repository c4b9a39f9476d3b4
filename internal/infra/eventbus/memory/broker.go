// Package memory provides an in-memory event bus. It offers a lightweight,
// non-persistent broker suitable for tests and single process deployments
// where durability is not required.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/ahrav/recon-armada/internal/domain/events"
)

var _ events.EventBus = (*Broker)(nil)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("event bus closed")

type subscription struct {
	id      uint64
	types   []events.EventType
	handler events.HandlerFunc
}

// Broker delivers each published envelope synchronously to every subscriber
// registered for its type, stopping at the first handler error.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker { return new(Broker) }

// Subscribe registers handler for eventTypes until ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, types: slices.Clone(eventTypes), handler: handler})
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
	}()

	return nil
}

// Publish applies opts to evt and hands it to the matching subscribers.
func (b *Broker) Publish(ctx context.Context, evt events.EventEnvelope, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := events.ApplyOptions(opts)
	if params.Key != "" {
		evt.Key = params.Key
	}
	if params.Headers != nil {
		evt.Headers = params.Headers
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	// Copy so handlers run without the lock held.
	var handlers []events.HandlerFunc
	for _, s := range b.subs {
		if slices.Contains(s.types, evt.Type) {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close drops every subscription. Later calls fail with ErrClosed.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
	return nil
}
