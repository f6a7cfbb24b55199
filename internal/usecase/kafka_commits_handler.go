package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	pkgkafka "SentinelX/pkg/kafka"
)

// KafkaCommitsHandler consumes commit events and writes them to history.
type KafkaCommitsHandler struct {
	topic   string
	store   repository.HistoryStore
	metrics repository.Metrics
}

func NewKafkaCommitsHandler(topic string, store repository.HistoryStore, metrics repository.Metrics) *KafkaCommitsHandler {
	return &KafkaCommitsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaCommitsHandler) Topic() string { return h.topic }

func (h *KafkaCommitsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.CommitEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode commit event: %w", err)
	}
	if ev.View == "" || ev.Kind == "" {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("commit event without view or kind")
	}
	if !ev.Committed.IsZero() {
		h.metrics.RecordLatency("ingest_e2e", time.Since(ev.Committed).Seconds())
	}

	start := time.Now()
	err := h.store.Store(ctx, &ev)
	h.metrics.RecordLatency("ch_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent(SinkClickHouse, ev.View)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaCommitsHandler)(nil)
