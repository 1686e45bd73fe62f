package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/ayurmart/storefront/pkg/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const publishAttempts = 3

// KafkaPublisher implements Publisher using a Kafka sync producer
type KafkaPublisher struct {
	producer  sarama.SyncProducer
	topic     string
	logger    *zap.Logger
	baseDelay time.Duration
}

// NewKafkaPublisher connects an idempotent producer to cfg.KafkaBrokers.
func NewKafkaPublisher(cfg *config.Config, logger *zap.Logger) (*KafkaPublisher, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.KafkaClientID
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer connected",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopicOrders),
	)
	return NewKafkaPublisherWithProducer(producer, cfg.KafkaTopicOrders, logger), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		producer:  producer,
		topic:     topic,
		logger:    logger,
		baseDelay: 100 * time.Millisecond,
	}
}

// Publish sends the event, retrying with exponential backoff.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.PartitionKey()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.EventType())},
			{Key: []byte("event-id"), Value: []byte(uuid.NewString())},
			{Key: []byte("timestamp"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	var lastErr error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		partition, offset, err := p.producer.SendMessage(msg)
		if err == nil {
			p.logger.Info("Event published to Kafka",
				zap.String("topic", p.topic),
				zap.String("event_type", event.EventType()),
				zap.Int32("partition", partition),
				zap.Int64("offset", offset),
			)
			return nil
		}
		lastErr = err
		p.logger.Warn("Failed to publish event to Kafka, retrying",
			zap.String("event_type", event.EventType()),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		if attempt < publishAttempts-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
			case <-time.After(p.baseDelay << attempt):
			}
		}
	}
	return fmt.Errorf("failed to publish %s after %d attempts: %w", event.EventType(), publishAttempts, lastErr)
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
