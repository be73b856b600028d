package models

import "time"

// MultiTimeframeContext bundles one candle series per timeframe for a
// single symbol, built fresh per scan and discarded after use.
type MultiTimeframeContext struct {
	Symbol         string // internal alias, e.g. "US30"
	ProviderSymbol string // quote-source symbol, e.g. "^DJI"
	Now            time.Time
	CurrentPrice   float64

	H4  *CandleSeries
	H1  *CandleSeries
	M30 *CandleSeries
	M15 *CandleSeries
	M5  *CandleSeries
	M1  *CandleSeries
}

// Complete reports whether every timeframe carries at least minBars
// candles. Callers treat an incomplete context as insufficient data,
// not as a directional conclusion.
func (c *MultiTimeframeContext) Complete(minBars int) bool {
	for _, s := range []*CandleSeries{c.H4, c.H1, c.M30, c.M15, c.M5, c.M1} {
		if s.Len() < minBars {
			return false
		}
	}
	return true
}
