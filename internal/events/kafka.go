package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// publishBatchTimeout bounds how long a synchronous write waits for a batch
// to fill. Publishes happen on the request path after commit.
const publishBatchTimeout = 10 * time.Millisecond

type kafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher writes JSON events to topic, keyed by Event.Key so that
// events for one user or device stay ordered within a partition.
func NewKafkaPublisher(brokers []string, topic string, writeTimeout time.Duration) Publisher {
	return &kafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: publishBatchTimeout,
			WriteTimeout: writeTimeout,
		},
	}
}

func (p *kafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}
