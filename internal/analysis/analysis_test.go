package analysis

import (
	"testing"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
)

var t0 = time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)

// bar builds a candle with open/close centered between high and low
// unless overridden by mk* helpers below.
func bar(i int, open, high, low, closep float64) models.Candle {
	return models.Candle{
		OpenTime: t0.Add(time.Duration(i) * time.Hour),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closep,
	}
}

func TestATRWilderSeed(t *testing.T) {
	// Constant true range of 1.0 keeps the ATR pinned at 1.0.
	var candles []models.Candle
	for i := 0; i < 20; i++ {
		candles = append(candles, bar(i, 10.5, 11, 10, 10.5))
	}
	v, ok := ATR(candles, 14)
	if !ok {
		t.Fatalf("expected ok")
	}
	if v < 0.999 || v > 1.001 {
		t.Fatalf("expected ATR 1.0, got %v", v)
	}
}

func TestATRInsufficient(t *testing.T) {
	candles := []models.Candle{bar(0, 10, 11, 10, 10.5)}
	if _, ok := ATR(candles, 14); ok {
		t.Fatalf("expected not ok on short series")
	}
}

func TestFindSwingsShortSeriesEmpty(t *testing.T) {
	var candles []models.Candle
	for i := 0; i < 10; i++ {
		candles = append(candles, bar(i, 10, 11, 10, 10.5))
	}
	if got := FindSwings(candles, 5); got != nil {
		t.Fatalf("expected empty swings, got %d", len(got))
	}
}

func TestFindSwingsPeakAndTrough(t *testing.T) {
	candles := []models.Candle{
		bar(0, 10, 10.5, 9.5, 10),
		bar(1, 10, 11, 10, 10.5),
		bar(2, 11, 12, 11, 11.5), // swing high at 12
		bar(3, 11, 11, 10, 10.5),
		bar(4, 10, 10.5, 8, 8.5), // swing low at 8
		bar(5, 8.5, 9.5, 8.5, 9),
		bar(6, 9, 10, 9, 9.5),
	}
	swings := FindSwings(candles, 2)
	var high, low *models.SwingPoint
	for i := range swings {
		switch swings[i].Kind {
		case models.SwingHigh:
			high = &swings[i]
		case models.SwingLow:
			low = &swings[i]
		}
	}
	if high == nil || high.Index != 2 || high.Price != 12 {
		t.Fatalf("unexpected swing high %+v", high)
	}
	if low == nil || low.Index != 4 || low.Price != 8 {
		t.Fatalf("unexpected swing low %+v", low)
	}
}

func TestDetectFVGBullishScenario(t *testing.T) {
	// Candle A high=100, candle C low=105 -> one bullish gap [100,105].
	candles := []models.Candle{
		bar(0, 99, 100, 98, 99.5),
		bar(1, 100, 104, 100, 103),
		bar(2, 105, 107, 105, 106),
	}
	gaps := DetectFVGs(candles)
	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d", len(gaps))
	}
	g := gaps[0]
	if g.Direction != models.BiasBullish {
		t.Fatalf("expected bullish gap, got %s", g.Direction)
	}
	if g.Low != 100 || g.High != 105 {
		t.Fatalf("expected zone [100,105], got [%v,%v]", g.Low, g.High)
	}
	if g.Filled {
		t.Fatalf("gap should be unfilled")
	}
}

func TestDetectFVGFilledRetained(t *testing.T) {
	candles := []models.Candle{
		bar(0, 99, 100, 98, 99.5),
		bar(1, 100, 104, 100, 103),
		bar(2, 105, 107, 105, 106),
		// later bar covering the full zone fills the gap
		bar(3, 106, 106.5, 99, 100),
	}
	gaps := DetectFVGs(candles)
	if len(gaps) != 1 {
		t.Fatalf("expected gap retained for audit, got %d", len(gaps))
	}
	if !gaps[0].Filled {
		t.Fatalf("expected gap marked filled")
	}
	if _, ok := LastUnfilledFVG(gaps); ok {
		t.Fatalf("filled gap must be excluded from bias selection")
	}
}

func TestDetectFVGShortSeriesEmpty(t *testing.T) {
	candles := []models.Candle{bar(0, 10, 11, 9, 10), bar(1, 10, 11, 9, 10)}
	if got := DetectFVGs(candles); got != nil {
		t.Fatalf("expected empty, got %d", len(got))
	}
}

func structureFixture() []models.Candle {
	// Swing high 12 at index 2, flat drift afterwards.
	return []models.Candle{
		bar(0, 10, 10, 9, 9.5),
		bar(1, 10, 11, 10, 10.5),
		bar(2, 11, 12, 11, 11.5),
		bar(3, 11, 11, 10, 10.5),
		bar(4, 10, 10, 9, 9.5),
		bar(5, 9.5, 10, 9, 9.8),
	}
}

func TestFindStructureBOSOnCloseBeyondSwingHigh(t *testing.T) {
	candles := append(structureFixture(), bar(6, 10, 13, 10, 12.5))
	swings := FindSwings(candles, 2)
	events := FindStructure(candles, swings, 20)
	var found bool
	for _, ev := range events {
		if ev.Kind == models.StructureBOS && ev.Direction == models.BiasBullish && ev.Price == 12 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected bullish BOS at 12, got %+v", events)
	}
}

func TestFindStructureWickAloneIsSweepNotBOS(t *testing.T) {
	// Wick pierces the swing high, close falls back inside range.
	candles := append(structureFixture(), bar(6, 10, 13, 10, 11))
	swings := FindSwings(candles, 2)
	events := FindStructure(candles, swings, 20)
	for _, ev := range events {
		if ev.Kind == models.StructureBOS && ev.Direction == models.BiasBullish {
			t.Fatalf("wick alone must not qualify as BOS")
		}
	}
	var sweep bool
	for _, ev := range events {
		if ev.Kind == models.StructureSweep && ev.Direction == models.BiasBearish && ev.Price == 12 {
			sweep = true
		}
	}
	if !sweep {
		t.Fatalf("expected bearish sweep of the swing high, got %+v", events)
	}
}

func TestFindStructureCHOCHAgainstTrend(t *testing.T) {
	// Bearish trend: lower swing highs (20 -> 18) and lower swing lows
	// (10 -> 8). The final close above 18 is a change of character.
	candles := []models.Candle{
		bar(0, 17.5, 18, 16, 17),
		bar(1, 18, 19, 17, 18.5),
		bar(2, 19, 20, 18, 19.5),
		bar(3, 18, 19, 14, 15),
		bar(4, 15, 17, 12, 13),
		bar(5, 13, 15, 10, 11),
		bar(6, 11, 16, 11, 15),
		bar(7, 15, 17, 12, 16),
		bar(8, 16, 18, 13, 14),
		bar(9, 14, 17, 12, 13),
		bar(10, 13, 15, 10, 11),
		bar(11, 11, 13, 8, 9),
		bar(12, 9, 14, 9, 13),
		bar(13, 13, 15, 10, 14),
		bar(14, 17.5, 19.5, 17, 19),
	}
	swings := FindSwings(candles, 2)
	events := FindStructure(candles, swings, 20)
	var choch bool
	for _, ev := range events {
		if ev.Kind == models.StructureCHOCH && ev.Direction == models.BiasBullish {
			choch = true
		}
	}
	if !choch {
		t.Fatalf("expected bullish CHOCH, got %+v (swings %+v)", events, swings)
	}
}

func TestFindStructureNoSwingsEmpty(t *testing.T) {
	candles := structureFixture()
	if got := FindStructure(candles, nil, 20); got != nil {
		t.Fatalf("expected empty without swings")
	}
}

func TestDetectOrderBlocksBullish(t *testing.T) {
	candles := []models.Candle{
		bar(0, 10.5, 11, 10, 10.4),
		bar(1, 10.5, 11, 10, 10.4),
		bar(2, 10.5, 11, 10, 10.4),
		bar(3, 10.5, 11, 10, 10.4),
		// bearish base candle, then a strong bullish impulse
		bar(4, 11, 11.2, 9.8, 10),
		bar(5, 10, 15.2, 9.9, 15),
	}
	blocks := DetectOrderBlocks(candles, OrderBlockConfig{ATRPeriod: 3, StrengthMult: 1.5})
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	b := blocks[0]
	if b.Direction != models.BiasBullish {
		t.Fatalf("expected bullish block, got %s", b.Direction)
	}
	if b.Low != 9.8 || b.High != 11.2 {
		t.Fatalf("expected zone [9.8,11.2], got [%v,%v]", b.Low, b.High)
	}
}

func TestDetectOrderBlocksWeakMoveIgnored(t *testing.T) {
	candles := []models.Candle{
		bar(0, 10.5, 11, 10, 10.4),
		bar(1, 10.5, 11, 10, 10.4),
		bar(2, 10.5, 11, 10, 10.4),
		bar(3, 10.5, 11, 10, 10.4),
		bar(4, 11, 11.2, 9.8, 10),
		// impulse range below the strength threshold
		bar(5, 10, 11.3, 10, 11.25),
	}
	if blocks := DetectOrderBlocks(candles, OrderBlockConfig{ATRPeriod: 3, StrengthMult: 1.5}); len(blocks) != 0 {
		t.Fatalf("expected no blocks, got %d", len(blocks))
	}
}

func TestDetectOrderBlocksShortSeriesEmpty(t *testing.T) {
	candles := []models.Candle{bar(0, 10, 11, 10, 10.5)}
	if got := DetectOrderBlocks(candles, DefaultOrderBlockConfig()); got != nil {
		t.Fatalf("expected empty on short series")
	}
}
