package models

import (
	"fmt"
	"math"
	"time"
)

// Candle represents one OHLCV bar. Immutable once the bar has closed.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

func (c Candle) Bullish() bool { return c.Close > c.Open }
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Range is the full high-low extent of the bar.
func (c Candle) Range() float64 { return c.High - c.Low }

// Body is the absolute open-close extent.
func (c Candle) Body() float64 { return math.Abs(c.Close - c.Open) }

// UpperWick is the distance from the body top to the high.
func (c Candle) UpperWick() float64 { return c.High - math.Max(c.Open, c.Close) }

// LowerWick is the distance from the body bottom to the low.
func (c Candle) LowerWick() float64 { return math.Min(c.Open, c.Close) - c.Low }

// CandleSeries is a time-ordered sequence of candles for one
// (symbol, timeframe) pair. Construction rejects duplicate or
// out-of-order timestamps; consumers treat the series as read-only.
type CandleSeries struct {
	Symbol    string
	Timeframe string
	candles   []Candle
}

// NewCandleSeries validates ordering and returns a series.
func NewCandleSeries(symbol, timeframe string, candles []Candle) (*CandleSeries, error) {
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return nil, fmt.Errorf("candle series %s/%s: non-increasing timestamp at index %d", symbol, timeframe, i)
		}
	}
	return &CandleSeries{Symbol: symbol, Timeframe: timeframe, candles: candles}, nil
}

func (s *CandleSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.candles)
}

// At returns the candle at index i. Panics on out-of-range like a slice.
func (s *CandleSeries) At(i int) Candle { return s.candles[i] }

// Last returns the most recent candle, false when the series is empty.
func (s *CandleSeries) Last() (Candle, bool) {
	if s.Len() == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Candles returns the backing slice. Callers must not mutate it.
func (s *CandleSeries) Candles() []Candle {
	if s == nil {
		return nil
	}
	return s.candles
}

// Tail returns the last n candles (fewer when the series is shorter).
func (s *CandleSeries) Tail(n int) []Candle {
	if s == nil || n <= 0 {
		return nil
	}
	if n > len(s.candles) {
		n = len(s.candles)
	}
	return s.candles[len(s.candles)-n:]
}
