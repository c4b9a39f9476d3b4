package kafka

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const namespace = "autoscan_eventbus"

type eventBusMetrics struct {
	published     metric.Int64Counter
	consumed      metric.Int64Counter
	publishErrors metric.Int64Counter
	consumeErrors metric.Int64Counter
}

// NewEventBusMetrics registers the Kafka bus counters on mp.
func NewEventBusMetrics(mp metric.MeterProvider) (EventBusMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(eventBusMetrics)
	var err error
	if m.published, err = meter.Int64Counter("messages_published_total",
		metric.WithDescription("Total number of messages published to Kafka")); err != nil {
		return nil, fmt.Errorf("failed to create published counter: %w", err)
	}
	if m.consumed, err = meter.Int64Counter("messages_consumed_total",
		metric.WithDescription("Total number of messages consumed from Kafka")); err != nil {
		return nil, fmt.Errorf("failed to create consumed counter: %w", err)
	}
	if m.publishErrors, err = meter.Int64Counter("publish_errors_total",
		metric.WithDescription("Total number of Kafka publish errors")); err != nil {
		return nil, fmt.Errorf("failed to create publish error counter: %w", err)
	}
	if m.consumeErrors, err = meter.Int64Counter("consume_errors_total",
		metric.WithDescription("Total number of Kafka consume errors")); err != nil {
		return nil, fmt.Errorf("failed to create consume error counter: %w", err)
	}

	return m, nil
}

func topicAttr(topic string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("topic", topic))
}

func (m *eventBusMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.published.Add(ctx, 1, topicAttr(topic))
}

func (m *eventBusMetrics) IncMessageConsumed(ctx context.Context, topic string) {
	m.consumed.Add(ctx, 1, topicAttr(topic))
}

func (m *eventBusMetrics) IncPublishError(ctx context.Context, topic string) {
	m.publishErrors.Add(ctx, 1, topicAttr(topic))
}

func (m *eventBusMetrics) IncConsumeError(ctx context.Context, topic string) {
	m.consumeErrors.Add(ctx, 1, topicAttr(topic))
}
