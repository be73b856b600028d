// Package analysis holds the pure, synchronous detectors the strategy
// engine runs over candle series: ATR, swing points, structural events,
// fair value gaps and order blocks. Detectors never block and hold no
// shared state; a series shorter than a detector's minimum window yields
// an empty result, never an error.
package analysis

import (
	"math"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
)

// DefaultATRPeriod matches the conventional ATR(14).
const DefaultATRPeriod = 14

// TrueRange returns the true range of candle c given the previous close.
func TrueRange(c models.Candle, prevClose float64) float64 {
	tr := c.High - c.Low
	if v := math.Abs(c.High - prevClose); v > tr {
		tr = v
	}
	if v := math.Abs(c.Low - prevClose); v > tr {
		tr = v
	}
	return tr
}

// ATRSeries computes Wilder-smoothed ATR values. The result is aligned
// with the input: index i holds the ATR as of candle i, with zeros
// before the seed is available. Seed is the simple mean of the first
// `period` true ranges; thereafter ATR_t = ATR_{t-1} + (TR_t-ATR_{t-1})/period.
func ATRSeries(candles []models.Candle, period int) []float64 {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	out := make([]float64, len(candles))
	if len(candles) < period+1 {
		return out
	}

	var sum float64
	for i := 1; i <= period; i++ {
		sum += TrueRange(candles[i], candles[i-1].Close)
	}
	atr := sum / float64(period)
	out[period] = atr

	for i := period + 1; i < len(candles); i++ {
		tr := TrueRange(candles[i], candles[i-1].Close)
		atr += (tr - atr) / float64(period)
		out[i] = atr
	}
	return out
}

// ATR returns the latest Wilder ATR value. ok is false when the series
// is too short to seed the average.
func ATR(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(candles) < period+1 {
		return 0, false
	}
	s := ATRSeries(candles, period)
	return s[len(s)-1], true
}
