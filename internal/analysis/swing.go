package analysis

import "github.com/predeshen/yfinance-trading-signal/internal/domain/models"

// DefaultSwingWindow is the number of bars required on each side of a
// swing point.
const DefaultSwingWindow = 5

// FindSwings identifies swing highs and lows: a bar is a swing high
// when its high is the maximum of the surrounding window on both sides,
// and symmetrically for swing lows. With fewer than 2*window+1 bars the
// result is empty; callers treat that as insufficient evidence.
func FindSwings(candles []models.Candle, window int) []models.SwingPoint {
	if window <= 0 {
		window = DefaultSwingWindow
	}
	if len(candles) < 2*window+1 {
		return nil
	}

	var swings []models.SwingPoint
	for i := window; i < len(candles)-window; i++ {
		isHigh, isLow := true, true
		for j := i - window; j <= i+window; j++ {
			if j == i {
				continue
			}
			if candles[j].High > candles[i].High {
				isHigh = false
			}
			if candles[j].Low < candles[i].Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			swings = append(swings, models.SwingPoint{
				Index: i,
				Time:  candles[i].OpenTime,
				Price: candles[i].High,
				Kind:  models.SwingHigh,
			})
		}
		if isLow {
			swings = append(swings, models.SwingPoint{
				Index: i,
				Time:  candles[i].OpenTime,
				Price: candles[i].Low,
				Kind:  models.SwingLow,
			})
		}
	}
	return swings
}

// LastSwing returns the most recent swing of the given kind strictly
// before index before, or ok=false.
func LastSwing(swings []models.SwingPoint, kind models.SwingKind, before int) (models.SwingPoint, bool) {
	for i := len(swings) - 1; i >= 0; i-- {
		if swings[i].Kind == kind && swings[i].Index < before {
			return swings[i], true
		}
	}
	return models.SwingPoint{}, false
}
