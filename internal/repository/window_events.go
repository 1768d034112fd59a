package repository

import (
	"context"

	"DualSignal/internal/domain/models"
	"DualSignal/internal/domain/repository"
	pkgkafka "DualSignal/pkg/kafka"
)

// KafkaWindowPublisher publishes closed windows keyed by instrument.
type KafkaWindowPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaWindowPublisher(producer *pkgkafka.Producer, topic string) repository.EventPublisher {
	return &KafkaWindowPublisher{producer: producer, topic: topic}
}

func (p *KafkaWindowPublisher) PublishWindowClosed(ctx context.Context, bar *models.RawBar) error {
	return p.producer.Publish(ctx, p.topic, []byte(bar.Instrument), bar)
}

func (p *KafkaWindowPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher is used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishWindowClosed(context.Context, *models.RawBar) error { return nil }
func (NopPublisher) Close() error { return nil }
