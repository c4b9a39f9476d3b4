// Package tracing instruments Kafka produce and consume calls and carries the
// trace context across the broker in message headers.
package tracing

import (
	"context"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys shared by the producer and consumer spans.
const (
	EventTypeKey = attribute.Key("autoscan.event_type")
	JobIDKey     = attribute.Key("autoscan.job_id")
)

// StartProducerSpan opens the span for publishing one event. Autoscan events
// are keyed by job id, so the key doubles as the job attribute.
func StartProducerSpan(ctx context.Context, tracer trace.Tracer, topic, eventType, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		semconv.MessagingSystemKafka,
		semconv.MessagingDestinationName(topic),
		semconv.MessagingOperationPublish,
		EventTypeKey.String(eventType),
	}
	if key != "" {
		attrs = append(attrs, semconv.MessagingKafkaMessageKey(key), JobIDKey.String(key))
	}
	return tracer.Start(ctx, "autoscan.event.publish "+topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)
}

// StartConsumerSpan opens the span for handling one received message.
func StartConsumerSpan(ctx context.Context, tracer trace.Tracer, msg *sarama.ConsumerMessage) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		semconv.MessagingSystemKafka,
		semconv.MessagingDestinationName(msg.Topic),
		semconv.MessagingOperationReceive,
		semconv.MessagingKafkaDestinationPartition(int(msg.Partition)),
		semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
	}
	if len(msg.Key) > 0 {
		attrs = append(attrs, JobIDKey.String(string(msg.Key)))
	}
	return tracer.Start(ctx, "autoscan.event.receive "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
}
