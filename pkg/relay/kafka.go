package relay

import (
	"context"
	"fmt"
	"github.com/rs/zerolog"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// KafkaSink produces alerts keyed by video id, so one video's alerts stay on one partition.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaSink(ctx context.Context, bootstrapServers, topic string) (*KafkaSink, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger := zerolog.Ctx(ctx)
	go func() {
		for e := range producer.Events() {
			if msg, ok := e.(*kafka.Message); ok && msg.TopicPartition.Error != nil {
				logger.Warn().Err(msg.TopicPartition.Error).Msg("failed to deliver alert")
			}
		}
	}()

	return &KafkaSink{producer: producer, topic: topic}, nil
}

func (s *KafkaSink) Name() string {
	return "kafka"
}

func (s *KafkaSink) Send(ctx context.Context, key string, payload []byte) error {
	return s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          payload,
	}, nil)
}

func (s *KafkaSink) Close() error {
	s.producer.Flush(5000)
	s.producer.Close()
	return nil
}
