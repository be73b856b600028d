package usecase

import (
	"context"
	"encoding/json"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	domrepo "github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
	pkgkafka "github.com/predeshen/yfinance-trading-signal/pkg/kafka"
	applogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
)

// EventNotifier delivers one formatted event to the user-facing
// channel.
type EventNotifier interface {
	Send(ev models.NotificationEvent) error
}

// EventsHandler consumes notification events from Kafka and forwards
// them to the notifier. Decoupling delivery from the scan cycle means
// a Telegram outage never stalls scanning.
type EventsHandler struct {
	topic    string
	notifier EventNotifier
	metrics  domrepo.Metrics
	log      *applogger.Logger
}

func NewEventsHandler(topic string, notifier EventNotifier, metrics domrepo.Metrics, log *applogger.Logger) *EventsHandler {
	return &EventsHandler{topic: topic, notifier: notifier, metrics: metrics, log: log}
}

func (h *EventsHandler) Topic() string { return h.topic }

func (h *EventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.NotificationEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("event_unmarshal")
		// Poison messages go to the DLQ via the consumer's retry
		// policy, not back onto the topic.
		return err
	}

	if h.notifier == nil {
		return nil
	}
	if err := h.notifier.Send(ev); err != nil {
		h.metrics.RecordError("event_notify")
		h.log.Error("event delivery failed",
			applogger.String("kind", string(ev.Kind)),
			applogger.String("symbol", ev.Symbol),
			applogger.Error(err),
		)
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*EventsHandler)(nil)
