package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	domrepo "github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
)

// CandlesUseCase serves candle series for the HTTP API.
type CandlesUseCase struct {
	provider domrepo.CandleProvider
	symbols  map[string]string // display name -> provider ticker
}

func NewCandlesUseCase(provider domrepo.CandleProvider, symbols []SymbolMapping) *CandlesUseCase {
	m := make(map[string]string, len(symbols))
	for _, s := range symbols {
		m[s.Name] = s.Provider
	}
	return &CandlesUseCase{provider: provider, symbols: m}
}

type GetCandlesParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	Limit     int
	From      time.Time // zero means unbounded
	To        time.Time
}

type GetCandlesResult struct {
	Symbol    string
	Timeframe string
	Count     int
	Candles   []models.Candle
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	provider, ok := uc.symbols[p.Symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %q", p.Symbol)
	}
	if !domrepo.IsValidTimeframe(p.Timeframe) {
		return nil, fmt.Errorf("unsupported timeframe %q", p.Timeframe)
	}
	if p.Limit <= 0 {
		p.Limit = 500
	}
	if p.Limit > 5000 {
		p.Limit = 5000
	}

	series, err := uc.provider.GetSeries(ctx, provider, p.Timeframe, p.Timeframe.MaxLookback())
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}

	candles := series.Candles()
	if !p.From.IsZero() || !p.To.IsZero() {
		candles = filterRange(candles, p.From, p.To)
	}
	if len(candles) > p.Limit {
		candles = candles[len(candles)-p.Limit:]
	}

	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Count:     len(candles),
		Candles:   candles,
	}, nil
}

// filterRange keeps candles whose open time is within [from, to]. Zero
// bounds are open-ended. Input is sorted, so the result is a subslice.
func filterRange(candles []models.Candle, from, to time.Time) []models.Candle {
	lo, hi := 0, len(candles)
	if !from.IsZero() {
		for lo < hi && candles[lo].OpenTime.Before(from) {
			lo++
		}
	}
	if !to.IsZero() {
		for hi > lo && candles[hi-1].OpenTime.After(to) {
			hi--
		}
	}
	return candles[lo:hi]
}
