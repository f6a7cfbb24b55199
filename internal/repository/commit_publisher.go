package repository

import (
	"context"

	"SentinelX/internal/domain/models"
	domrepo "SentinelX/internal/domain/repository"
	pkgkafka "SentinelX/pkg/kafka"
	applogger "SentinelX/pkg/logger"
)

// KafkaPublisher publishes commit events to a Kafka topic. Events are keyed
// by view and kind so that one slot's history stays on one partition.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev *models.CommitEvent) error {
	return p.producer.Publish(ctx, p.topic, eventKey(ev), ev)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, evs []*models.CommitEvent) error {
	msgs := make([]pkgkafka.Message, 0, len(evs))
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: eventKey(ev), Value: ev})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func eventKey(ev *models.CommitEvent) []byte {
	return []byte(ev.View + ":" + string(ev.Kind))
}

// LogDigestPublisher ships aggregated error logs to Kafka.
type LogDigestPublisher struct {
	producer *pkgkafka.Producer
}

func NewLogDigestPublisher(producer *pkgkafka.Producer) *LogDigestPublisher {
	return &LogDigestPublisher{producer: producer}
}

func (p *LogDigestPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

var (
	_ domrepo.Publisher   = (*KafkaPublisher)(nil)
	_ applogger.Publisher = (*LogDigestPublisher)(nil)
)
