package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"cratekeeper/internal/audit"
)

// Kafka mirrors audit records to a Kafka topic as JSON. Records are keyed by
// entity id so one entity's trail stays in partition order.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka connects a producer for the given brokers and topic.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Kafka{client: client, topic: topic}, nil
}

func (s *Kafka) Write(ctx context.Context, record audit.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	result := s.client.ProduceSync(ctx, &kgo.Record{
		Key:   []byte(record.EntityID),
		Value: payload,
	})
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}

func (s *Kafka) Close() {
	s.client.Close()
}
