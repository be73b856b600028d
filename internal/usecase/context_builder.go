package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	domrepo "github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
)

// ContextBuilder assembles the multi-timeframe context one scan needs.
// Every timeframe is fetched at its maximum usable lookback; the
// provider clamps further.
type ContextBuilder struct {
	provider domrepo.CandleProvider
}

func NewContextBuilder(provider domrepo.CandleProvider) *ContextBuilder {
	return &ContextBuilder{provider: provider}
}

// Build fetches all six timeframes plus the latest price. A failure on
// any timeframe fails the build; strategies must never see a partial
// context they cannot detect.
func (b *ContextBuilder) Build(ctx context.Context, name, providerSymbol string, now time.Time) (*models.MultiTimeframeContext, error) {
	mtf := &models.MultiTimeframeContext{
		Symbol:         name,
		ProviderSymbol: providerSymbol,
		Now:            now,
	}

	for _, tf := range domrepo.AllTimeframes() {
		series, err := b.provider.GetSeries(ctx, providerSymbol, tf, tf.MaxLookback())
		if err != nil {
			return nil, fmt.Errorf("build context %s/%s: %w", name, tf, err)
		}
		switch tf {
		case domrepo.TFH4:
			mtf.H4 = series
		case domrepo.TFH1:
			mtf.H1 = series
		case domrepo.TFM30:
			mtf.M30 = series
		case domrepo.TFM15:
			mtf.M15 = series
		case domrepo.TFM5:
			mtf.M5 = series
		case domrepo.TFM1:
			mtf.M1 = series
		}
	}

	price, err := b.provider.LatestPrice(ctx, providerSymbol)
	if err != nil {
		// Fall back to the freshest M1 close rather than failing the
		// scan; candles remain the source of truth.
		last, ok := mtf.M1.Last()
		if !ok {
			return nil, fmt.Errorf("build context %s: latest price: %w", name, err)
		}
		price = last.Close
	}
	mtf.CurrentPrice = price
	return mtf, nil
}
