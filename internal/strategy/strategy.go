// Package strategy fuses multi-timeframe detector output into trading
// signals. Strategies are pure over the context they are handed: they
// never fetch data and never mutate trades.
package strategy

import (
	"context"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
)

// Strategy evaluates a multi-timeframe context for a new signal and
// assesses open trades. New strategies are added by implementing this
// interface, never by branching on type.
type Strategy interface {
	Name() string

	// EvaluateNewSignal returns at most one signal per symbol per
	// newly closed bias-timeframe bar. lastH4 is the last H4 open time
	// the caller has already evaluated; a context whose H4 head is not
	// newer yields no signal. A nil signal with nil error means the
	// conditions were not met or the data was insufficient.
	EvaluateNewSignal(ctx context.Context, mtf *models.MultiTimeframeContext, lastH4 time.Time) (*models.Signal, error)

	// EvaluateOpenTrade re-runs structure/ATR analysis for an open
	// trade and returns an assessment with no side effects.
	EvaluateOpenTrade(ctx context.Context, trade *models.Trade, mtf *models.MultiTimeframeContext) (*models.TradeAnalytics, error)
}
