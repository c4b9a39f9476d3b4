package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	domain "github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/domain/events"
)

// mockEventBus is a manual mock implementation of events.EventBus.
type mockEventBus struct {
	publishFunc func(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error
}

func (m *mockEventBus) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	return m.publishFunc(ctx, event, opts...)
}

func (m *mockEventBus) Subscribe(context.Context, []events.EventType, events.HandlerFunc) error {
	return nil
}

func (m *mockEventBus) Close() error { return nil }

type mockDomainEvent struct {
	eventType  events.EventType
	occurredAt time.Time
}

func (m mockDomainEvent) EventType() events.EventType { return m.eventType }
func (m mockDomainEvent) OccurredAt() time.Time       { return m.occurredAt }

func TestDomainEventPublisher_PublishDomainEvent(t *testing.T) {
	t.Parallel()

	event := mockDomainEvent{eventType: "test-event", occurredAt: time.Now()}
	bus := &mockEventBus{
		publishFunc: func(_ context.Context, evt events.EventEnvelope, _ ...events.PublishOption) error {
			assert.Equal(t, event.EventType(), evt.Type)
			assert.Equal(t, event.OccurredAt(), evt.Timestamp)
			assert.Equal(t, "job-1", evt.Key)
			assert.Equal(t, event, evt.Payload)
			return nil
		},
	}

	err := NewDomainEventPublisher(bus).PublishDomainEvent(context.Background(), event, events.WithKey("job-1"))
	assert.NoError(t, err)
}

func TestDomainEventPublisher_PublishDomainEvent_Error(t *testing.T) {
	t.Parallel()

	boom := errors.New("publish error")
	bus := &mockEventBus{
		publishFunc: func(context.Context, events.EventEnvelope, ...events.PublishOption) error { return boom },
	}

	err := NewDomainEventPublisher(bus).PublishDomainEvent(context.Background(), mockDomainEvent{eventType: "test-event"})
	assert.ErrorIs(t, err, boom)
}

func TestDomainEventPublisher_CriticalEventRetried(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker unavailable")
	calls := 0
	bus := &mockEventBus{
		publishFunc: func(context.Context, events.EventEnvelope, ...events.PublishOption) error {
			calls++
			if calls < 3 {
				return boom
			}
			return nil
		},
	}

	pub := NewDomainEventPublisher(bus, WithCriticalRetry(5, time.Millisecond))
	err := pub.PublishDomainEvent(context.Background(), mockDomainEvent{eventType: domain.EventTypeJobCompleted})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDomainEventPublisher_RetryPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		eventType events.EventType
		opts      []PublisherOption
		wantCalls int
	}{
		{
			name:      "critical event exhausts retries",
			eventType: domain.EventTypeJobFailed,
			opts:      []PublisherOption{WithCriticalRetry(2, time.Millisecond)},
			wantCalls: 3,
		},
		{
			name:      "progress event published once",
			eventType: domain.EventTypePhaseFinished,
			opts:      []PublisherOption{WithCriticalRetry(2, time.Millisecond)},
			wantCalls: 1,
		},
		{
			name:      "retries disabled",
			eventType: domain.EventTypeJobCancelled,
			opts:      []PublisherOption{WithCriticalRetry(0, 0)},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			boom := errors.New("publish error")
			calls := 0
			bus := &mockEventBus{
				publishFunc: func(context.Context, events.EventEnvelope, ...events.PublishOption) error {
					calls++
					return boom
				},
			}

			err := NewDomainEventPublisher(bus, tt.opts...).PublishDomainEvent(context.Background(), mockDomainEvent{eventType: tt.eventType})
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}
