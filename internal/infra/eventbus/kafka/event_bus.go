// Package kafka provides a Kafka-based implementation of the event bus for
// autoscan lifecycle events.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/recon-armada/internal/domain/autoscan"
	"github.com/ahrav/recon-armada/internal/domain/events"
	"github.com/ahrav/recon-armada/internal/infra/eventbus/kafka/tracing"
	"github.com/ahrav/recon-armada/internal/infra/eventbus/serialization"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

// EventBusMetrics defines metrics operations needed to monitor Kafka message handling.
type EventBusMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncMessageConsumed(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
	IncConsumeError(ctx context.Context, topic string)
}

// Config contains settings for connecting to Kafka and routing autoscan events.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// AutoScanTopic receives job lifecycle events.
	AutoScanTopic string
	// PhaseTopic receives phase finished events. Empty means AutoScanTopic.
	PhaseTopic string

	// GroupID identifies the consumer group. Empty disables subscriptions.
	GroupID string
	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string
	// ServiceType identifies the process publishing, e.g. "api".
	ServiceType string
}

var _ events.EventBus = (*EventBus)(nil)

// ErrSubscribeUnavailable is returned by Subscribe on a publish only bus.
var ErrSubscribeUnavailable = errors.New("event bus has no consumer group")

// EventBus implements events.EventBus using Kafka as the underlying broker.
type EventBus struct {
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup

	// Maps domain event types to their Kafka topics.
	topicMap map[events.EventType]string

	commitInterval time.Duration

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics EventBusMetrics
}

// NewEventBus assembles a bus from an existing producer and an optional
// consumer group.
func NewEventBus(
	producer sarama.SyncProducer,
	consumerGroup sarama.ConsumerGroup,
	cfg *Config,
	logger *logger.Logger,
	metrics EventBusMetrics,
	tracer trace.Tracer,
) (*EventBus, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer is required for kafka event bus")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics are required for kafka event bus")
	}
	if cfg.AutoScanTopic == "" {
		return nil, fmt.Errorf("autoscan topic is required for kafka event bus")
	}

	phaseTopic := cfg.PhaseTopic
	if phaseTopic == "" {
		phaseTopic = cfg.AutoScanTopic
	}

	return &EventBus{
		producer:      producer,
		consumerGroup: consumerGroup,
		topicMap: map[events.EventType]string{
			autoscan.EventTypeJobStarted:    cfg.AutoScanTopic,
			autoscan.EventTypeJobPaused:     cfg.AutoScanTopic,
			autoscan.EventTypeJobResumed:    cfg.AutoScanTopic,
			autoscan.EventTypeJobCancelled:  cfg.AutoScanTopic,
			autoscan.EventTypeJobCompleted:  cfg.AutoScanTopic,
			autoscan.EventTypeJobFailed:     cfg.AutoScanTopic,
			autoscan.EventTypePhaseFinished: phaseTopic,
		},
		commitInterval: time.Second,
		logger: logger.With(
			"component", "kafka_event_bus",
			"client_id", cfg.ClientID,
			"group_id", cfg.GroupID,
			"service_type", cfg.ServiceType,
		),
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// Publish serializes event and sends it to the topic mapped for its type.
func (b *EventBus) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	topic, ok := b.topicMap[event.Type]
	if !ok {
		return fmt.Errorf("unknown event type '%s', no topic mapped", event.Type)
	}

	params := events.ApplyOptions(opts)
	if params.Key != "" {
		event.Key = params.Key
	}
	if params.Headers != nil {
		event.Headers = params.Headers
	}

	ctx, span := tracing.StartProducerSpan(ctx, b.tracer, topic, string(event.Type), event.Key)
	defer span.End()

	msgBytes, err := serialization.SerializeEventEnvelope(event.Type, event.Timestamp, event.Payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "serialization failed")
		b.metrics.IncPublishError(ctx, topic)
		return fmt.Errorf("failed to serialize payload for event %s: %w", event.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Key),
		Value: sarama.ByteEncoder(msgBytes),
	}
	for k, v := range event.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		b.metrics.IncPublishError(ctx, topic)
		return fmt.Errorf("failed to send message to kafka topic %s: %w", topic, err)
	}
	b.metrics.IncMessagePublished(ctx, topic)

	b.logger.Debug(ctx, "Published message to Kafka",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"key", event.Key,
	)

	return nil
}

// Subscribe registers handler for the given event types and consumes in a
// background goroutine until ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if b.consumerGroup == nil {
		return ErrSubscribeUnavailable
	}

	_, span := b.tracer.Start(ctx, "kafka_event_bus.subscribe")
	defer span.End()

	wanted := make(map[events.EventType]struct{}, len(eventTypes))
	topicSet := make(map[string]struct{})
	var topics []string
	for _, et := range eventTypes {
		topic, ok := b.topicMap[et]
		if !ok {
			err := fmt.Errorf("subscribe: unknown event type %s", et)
			span.RecordError(err)
			span.SetStatus(codes.Error, "unknown event type")
			return err
		}
		wanted[et] = struct{}{}
		if _, seen := topicSet[topic]; !seen {
			topicSet[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}
	span.AddEvent("topics_collected", trace.WithAttributes(attribute.StringSlice("topics", topics)))

	cgHandler := &domainEventHandler{
		wanted:         wanted,
		userHandler:    handler,
		commitInterval: b.commitInterval,
		logger:         b.logger,
		tracer:         b.tracer,
		metrics:        b.metrics,
	}
	go b.consumeLoop(ctx, topics, cgHandler)
	b.logger.Info(ctx, "Subscribed to events", "event_types", eventTypes, "topics", topics)

	return nil
}

// consumeLoop keeps a consumer group session alive across rebalances.
func (b *EventBus) consumeLoop(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) {
	for {
		if err := b.consumerGroup.Consume(ctx, topics, handler); err != nil {
			b.logger.Error(ctx, "Error from consumer group", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// domainEventHandler implements sarama.ConsumerGroupHandler and turns Kafka
// messages back into domain events.
type domainEventHandler struct {
	wanted         map[events.EventType]struct{}
	userHandler    events.HandlerFunc
	commitInterval time.Duration

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics EventBusMetrics
}

func (h *domainEventHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(sess.Context(), "Consumer group session setup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

func (h *domainEventHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(sess.Context(), "Consumer group session cleanup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

// ConsumeClaim processes messages from one partition. Malformed messages and
// handler failures are logged and skipped; offsets are committed periodically.
func (h *domainEventHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	consumeLogger := h.logger.With("operation", "consume_claim", "partition", claim.Partition())
	lastCommit := time.Now()

	for msg := range claim.Messages() {
		h.handleMessage(sess, msg, consumeLogger)
		sess.MarkMessage(msg, "")

		if time.Since(lastCommit) > h.commitInterval {
			sess.Commit()
			lastCommit = time.Now()
		}
	}
	sess.Commit()

	return nil
}

func (h *domainEventHandler) handleMessage(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage, log *logger.Logger) {
	msgCtx := tracing.ExtractTraceContext(sess.Context(), msg)
	msgCtx, span := tracing.StartConsumerSpan(msgCtx, h.tracer, msg)
	defer span.End()

	evtType, occurredAt, payload, err := serialization.UnmarshalUniversalEnvelope(msg.Value)
	if err != nil {
		h.fail(msgCtx, span, msg.Topic, log, "Dropping malformed message", err)
		return
	}
	if _, ok := h.wanted[evtType]; !ok {
		return
	}

	payloadObj, err := serialization.DeserializePayload(evtType, payload)
	if err != nil {
		h.fail(msgCtx, span, msg.Topic, log, "Dropping undecodable message", err)
		return
	}

	headers := make(map[string]string, len(msg.Headers))
	for _, hdr := range msg.Headers {
		if hdr != nil {
			headers[string(hdr.Key)] = string(hdr.Value)
		}
	}

	evt := events.EventEnvelope{
		Type:      evtType,
		Key:       string(msg.Key),
		Headers:   headers,
		Timestamp: occurredAt,
		Payload:   payloadObj,
	}
	if err := h.userHandler(msgCtx, evt); err != nil {
		h.fail(msgCtx, span, msg.Topic, log, "Failed to handle message", err)
		return
	}
	h.metrics.IncMessageConsumed(msgCtx, msg.Topic)

	log.Debug(msgCtx, "Processed Kafka message",
		"topic", msg.Topic,
		"offset", msg.Offset,
		"event_type", evtType,
		"key", evt.Key,
	)
}

func (h *domainEventHandler) fail(
	ctx context.Context,
	span trace.Span,
	topic string,
	log *logger.Logger,
	msg string,
	err error,
) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	h.metrics.IncConsumeError(ctx, topic)
	log.Error(ctx, msg, "topic", topic, "error", err)
}

// Close shuts down the producer and, if present, the consumer group.
func (b *EventBus) Close() error {
	log := b.logger.With("operation", "close")
	ctx, span := b.tracer.Start(context.Background(), "kafka_event_bus.close")
	defer span.End()

	var errs []error
	if err := b.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close producer: %w", err))
	}
	if b.consumerGroup != nil {
		if err := b.consumerGroup.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer group: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to close event bus")
		log.Error(ctx, "Failed to close event bus", "error", err)
		return err
	}

	span.SetStatus(codes.Ok, "closed event bus")
	log.Info(ctx, "Closed event bus")

	return nil
}
