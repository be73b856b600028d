package repository

import (
	"context"
	"fmt"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	domrepo "github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
	pkgkafka "github.com/predeshen/yfinance-trading-signal/pkg/kafka"
)

// KafkaSink implements NotificationSink over a Kafka topic. Events are
// keyed by symbol so per-symbol ordering is preserved.
type KafkaSink struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSink(producer *pkgkafka.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (k *KafkaSink) Emit(ctx context.Context, ev models.NotificationEvent) error {
	if err := k.producer.Publish(ctx, k.topic, []byte(ev.Symbol), ev); err != nil {
		return fmt.Errorf("emit %s event: %w", ev.Kind, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}

var _ domrepo.NotificationSink = (*KafkaSink)(nil)
