package repository

import (
	"context"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
)

// CandleProvider retrieves candle series from the quote source. It may
// return fewer candles than requested but never unsorted or
// duplicate-timestamp candles.
type CandleProvider interface {
	GetSeries(ctx context.Context, symbol string, tf Timeframe, lookback time.Duration) (*models.CandleSeries, error)
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// PriceStream is a live quote feed for intrabar price freshness.
type PriceStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// OutcomeStore persists signals and trades and serves closed-trade
// history. CompareAndSetTrade is the sole mutation path for an existing
// trade: it succeeds only when the stored state still equals expected,
// otherwise reports a conflict and the caller re-reads and re-evaluates.
type OutcomeStore interface {
	Init(ctx context.Context) error
	SaveSignal(ctx context.Context, sig *models.Signal) error
	RecentSignals(ctx context.Context, limit int) ([]models.Signal, error)
	CreateTrade(ctx context.Context, t *models.Trade) error
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
	OpenTrades(ctx context.Context, symbol string) ([]*models.Trade, error)
	TradesByState(ctx context.Context, state models.TradeState, limit int) ([]*models.Trade, error)
	CompareAndSetTrade(ctx context.Context, id string, expected models.TradeState, update models.TradeUpdate) (bool, error)
	QueryClosedOutcomes(ctx context.Context, symbol string, dir models.Direction, limit int) ([]models.ClosedOutcome, error)
	Health(ctx context.Context) error
	Close() error
}

// NotificationSink delivers notification events. The core calls Emit at
// most once per actual state transition.
type NotificationSink interface {
	Emit(ctx context.Context, ev models.NotificationEvent) error
	Close() error
}

// Metrics records operational metrics.
type Metrics interface {
	RecordSignal(symbol string, direction string)
	RecordTransition(symbol string, state string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordHeartbeat()
	RecordOpenTrades(symbol string, n int)
}
