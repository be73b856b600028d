package analysis

import "github.com/predeshen/yfinance-trading-signal/internal/domain/models"

// DefaultStructureLookback bounds how far back a swing point may sit to
// still anchor a structural event.
const DefaultStructureLookback = 20

// FindStructure evaluates the latest closed bar against the most recent
// swing points and reports structural events:
//
//   - BOS when the close decisively breaks beyond the most recent
//     opposite-direction swing point (a wick alone does not qualify);
//   - CHOCH when that break runs against the previously established
//     trend, invalidating it;
//   - liquidity sweep when the bar's wick pierces a prior swing point
//     but the close reverses back inside the prior range.
//
// An empty result means insufficient evidence, never a directional
// conclusion.
func FindStructure(candles []models.Candle, swings []models.SwingPoint, lookback int) []models.StructureEvent {
	if lookback <= 0 {
		lookback = DefaultStructureLookback
	}
	n := len(candles)
	if n < 2 || len(swings) == 0 {
		return nil
	}
	last := candles[n-1]
	trend := establishTrend(swings)

	var events []models.StructureEvent

	if sh, ok := LastSwing(swings, models.SwingHigh, n-1); ok && n-1-sh.Index <= lookback {
		switch {
		case last.Close > sh.Price:
			kind := models.StructureBOS
			if trend == models.BiasBearish {
				kind = models.StructureCHOCH
			}
			events = append(events, models.StructureEvent{
				Kind:      kind,
				Direction: models.BiasBullish,
				Price:     sh.Price,
				Time:      last.OpenTime,
			})
		case last.High > sh.Price && last.Close < sh.Price:
			events = append(events, models.StructureEvent{
				Kind:      models.StructureSweep,
				Direction: models.BiasBearish,
				Price:     sh.Price,
				Time:      last.OpenTime,
			})
		}
	}

	if sl, ok := LastSwing(swings, models.SwingLow, n-1); ok && n-1-sl.Index <= lookback {
		switch {
		case last.Close < sl.Price:
			kind := models.StructureBOS
			if trend == models.BiasBullish {
				kind = models.StructureCHOCH
			}
			events = append(events, models.StructureEvent{
				Kind:      kind,
				Direction: models.BiasBearish,
				Price:     sl.Price,
				Time:      last.OpenTime,
			})
		case last.Low < sl.Price && last.Close > sl.Price:
			events = append(events, models.StructureEvent{
				Kind:      models.StructureSweep,
				Direction: models.BiasBullish,
				Price:     sl.Price,
				Time:      last.OpenTime,
			})
		}
	}

	return events
}

// establishTrend reads the prevailing trend from the last two swing
// highs and lows: higher highs with higher lows is bullish, lower highs
// with lower lows bearish, anything mixed is no trend.
func establishTrend(swings []models.SwingPoint) models.Bias {
	var highs, lows []models.SwingPoint
	for _, s := range swings {
		switch s.Kind {
		case models.SwingHigh:
			highs = append(highs, s)
		case models.SwingLow:
			lows = append(lows, s)
		}
	}
	if len(highs) < 2 || len(lows) < 2 {
		return models.BiasNone
	}
	hh := highs[len(highs)-1].Price > highs[len(highs)-2].Price
	hl := lows[len(lows)-1].Price > lows[len(lows)-2].Price
	lh := highs[len(highs)-1].Price < highs[len(highs)-2].Price
	ll := lows[len(lows)-1].Price < lows[len(lows)-2].Price
	switch {
	case hh && hl:
		return models.BiasBullish
	case lh && ll:
		return models.BiasBearish
	}
	return models.BiasNone
}

// HasAligned reports whether any event is a BOS or CHOCH in the given
// direction.
func HasAligned(events []models.StructureEvent, dir models.Bias) bool {
	for _, ev := range events {
		if ev.Direction != dir {
			continue
		}
		if ev.Kind == models.StructureBOS || ev.Kind == models.StructureCHOCH {
			return true
		}
	}
	return false
}
