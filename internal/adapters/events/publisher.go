package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// LoggingPublisher stands in for the broker when no Kafka brokers are set.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	p.logger.InfoContext(ctx, "published event",
		"module", "events.publisher",
		"layer", "adapter",
		"operation", "publish_event",
		"outcome", "success",
		"event_type", eventType,
		"partition_key", partitionKey,
		"payload_bytes", len(payload),
	)
	return nil
}

// KafkaPublisher writes each event to "<prefix>.<event type>", keyed by
// account so one account's events stay ordered.
type KafkaPublisher struct {
	writer      *kafka.Writer
	topicPrefix string
}

func NewKafkaPublisher(brokers []string, topicPrefix string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topicPrefix: strings.TrimSuffix(topicPrefix, "."),
	}, nil
}

// Topic resolves the destination topic for an event type.
func (p *KafkaPublisher) Topic(eventType string) string {
	if p.topicPrefix == "" {
		return eventType
	}
	return p.topicPrefix + "." + eventType
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.Topic(eventType),
		Key:   []byte(partitionKey),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
