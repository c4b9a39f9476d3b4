package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/recon-armada/internal/domain/events"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

// NewClient returns a sarama client tuned for publishing job events. The
// producer is idempotent and waits for all in-sync replicas, so a
// lifecycle event is never duplicated or reordered within a job's partition.
// Consumer settings are applied only when the bus joins a group.
func NewClient(cfg *Config) (sarama.Client, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Version = sarama.V3_6_0_0

	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Idempotent = true
	sc.Producer.Retry.Max = 5
	sc.Producer.Retry.Backoff = 200 * time.Millisecond
	sc.Net.MaxOpenRequests = 1

	if cfg.GroupID != "" {
		sc.Consumer.Return.Errors = true
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
		sc.Consumer.Offsets.AutoCommit.Enable = false
		sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}
	return sarama.NewClient(cfg.Brokers, sc)
}

// ConnectEventBus creates an EventBus on client, retrying with exponential
// backoff while the cluster is unavailable. A consumer group is only joined
// when cfg.GroupID is set.
func ConnectEventBus(
	cfg *Config,
	client sarama.Client,
	logger *logger.Logger,
	metrics EventBusMetrics,
	tracer trace.Tracer,
) (events.EventBus, error) {
	var eventBus events.EventBus

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = time.Second
	expBackoff.MaxInterval = 30 * time.Second
	expBackoff.MaxElapsedTime = 2 * time.Minute

	operation := func() error {
		producer, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			return fmt.Errorf("creating producer: %w", err)
		}

		var consumerGroup sarama.ConsumerGroup
		if cfg.GroupID != "" {
			consumerGroup, err = sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
			if err != nil {
				producer.Close()
				return fmt.Errorf("creating consumer group: %w", err)
			}
		}

		bus, err := NewEventBus(producer, consumerGroup, cfg, logger, metrics, tracer)
		if err != nil {
			producer.Close()
			if consumerGroup != nil {
				consumerGroup.Close()
			}
			return backoff.Permanent(fmt.Errorf("creating event bus: %w", err))
		}
		eventBus = bus
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn(context.Background(), "Event bus not ready, retrying",
			"brokers", cfg.Brokers, "retry_in", wait, "error", err)
	}
	if err := backoff.RetryNotify(operation, expBackoff, notify); err != nil {
		return nil, fmt.Errorf("failed to connect event bus after retries: %w", err)
	}

	return eventBus, nil
}
