package analysis

import "github.com/predeshen/yfinance-trading-signal/internal/domain/models"

// DetectFVGs finds fair value gaps over every consecutive candle triple
// (a, b, c): a bullish gap exists when a.High < c.Low (zone
// [a.High, c.Low]), a bearish gap when a.Low > c.High (zone
// [c.High, a.Low]). A gap is marked filled the first time a later bar's
// range fully covers the zone; filled gaps stay in the output for audit
// but are excluded from bias decisions by the strategy. Zero-width or
// inverted candidate zones are discarded.
func DetectFVGs(candles []models.Candle) []models.FairValueGap {
	if len(candles) < 3 {
		return nil
	}

	var gaps []models.FairValueGap
	for i := 1; i < len(candles)-1; i++ {
		a, c := candles[i-1], candles[i+1]

		var gap models.FairValueGap
		switch {
		case a.High < c.Low:
			gap = models.FairValueGap{
				High:        c.Low,
				Low:         a.High,
				Direction:   models.BiasBullish,
				OriginIndex: i,
				Time:        candles[i].OpenTime,
			}
		case a.Low > c.High:
			gap = models.FairValueGap{
				High:        a.Low,
				Low:         c.High,
				Direction:   models.BiasBearish,
				OriginIndex: i,
				Time:        candles[i].OpenTime,
			}
		default:
			continue
		}
		if gap.High <= gap.Low {
			continue
		}

		for j := i + 2; j < len(candles); j++ {
			if candles[j].Low <= gap.Low && candles[j].High >= gap.High {
				gap.Filled = true
				break
			}
		}
		gaps = append(gaps, gap)
	}
	return gaps
}

// LastUnfilledFVG returns the most recent unfilled gap, ok=false when
// every gap is filled or none exist.
func LastUnfilledFVG(gaps []models.FairValueGap) (models.FairValueGap, bool) {
	for i := len(gaps) - 1; i >= 0; i-- {
		if !gaps[i].Filled {
			return gaps[i], true
		}
	}
	return models.FairValueGap{}, false
}
