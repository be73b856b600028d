package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/analysis"
	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
)

var t0 = time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)

func bar(i int, open, high, low, closep float64) models.Candle {
	return models.Candle{
		OpenTime: t0.Add(time.Duration(i) * time.Hour),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closep,
	}
}

func series(t *testing.T, tf string, candles []models.Candle) *models.CandleSeries {
	t.Helper()
	s, err := models.NewCandleSeries("US30", tf, candles)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	return s
}

// h4WithBullishGap produces an H4 series carrying one unfilled bullish
// FVG ([100,105]) and no order blocks.
func h4WithBullishGap(t *testing.T) *models.CandleSeries {
	candles := []models.Candle{
		bar(0, 99, 100, 98, 99.5),
		bar(1, 100, 104, 100, 103),
		bar(2, 105, 107, 105, 106),
		bar(3, 105.5, 107.5, 105.2, 107),
		bar(4, 106, 108, 105.5, 107.5),
		bar(5, 106.5, 108, 106, 107),
		bar(6, 106, 107.5, 105.8, 107),
		bar(7, 106.5, 108.5, 106, 108),
	}
	return series(t, "240m", candles)
}

// bullishBOSSeries closes its last bar beyond the prior swing high.
func bullishBOSSeries(t *testing.T, tf string) *models.CandleSeries {
	candles := []models.Candle{
		bar(0, 10, 10.5, 9.5, 10),
		bar(1, 9.5, 10, 9, 9.5),
		bar(2, 10, 11, 10, 10.5),
		bar(3, 11, 12, 11, 11.5),
		bar(4, 11, 11, 10, 10.5),
		bar(5, 10, 10, 9, 9.5),
		bar(6, 9.5, 10, 9, 9.8),
		bar(7, 10, 13, 10, 12.5),
	}
	return series(t, tf, candles)
}

// flatSeries never breaks structure.
func flatSeries(t *testing.T, tf string) *models.CandleSeries {
	var candles []models.Candle
	for i := 0; i < 8; i++ {
		candles = append(candles, bar(i, 10, 10.4, 9.6, 10.1))
	}
	return series(t, tf, candles)
}

// m5WithWickRejection ends on a bullish candle whose lower wick is more
// than twice the body.
func m5WithWickRejection(t *testing.T) *models.CandleSeries {
	var candles []models.Candle
	for i := 0; i < 7; i++ {
		candles = append(candles, bar(i, 10, 10.4, 9.6, 10.1))
	}
	candles = append(candles, bar(7, 10, 10.3, 9.3, 10.2))
	return series(t, "5m", candles)
}

func testConfig() Config {
	return Config{
		SwingWindow:       2,
		StructureLookback: 20,
		ZoneLookback:      50,
		OrderBlock:        analysis.OrderBlockConfig{ATRPeriod: 3, StrengthMult: 1.5},
		EntryWickRatio:    2.0,
		MicroSwingWindow:  2,
		MinBars:           8,
	}
}

func alignedContext(t *testing.T) *models.MultiTimeframeContext {
	return &models.MultiTimeframeContext{
		Symbol:         "US30",
		ProviderSymbol: "^DJI",
		Now:            t0.Add(100 * time.Hour),
		CurrentPrice:   106,
		H4:             h4WithBullishGap(t),
		H1:             bullishBOSSeries(t, "60m"),
		M30:            bullishBOSSeries(t, "30m"),
		M15:            bullishBOSSeries(t, "15m"),
		M5:             m5WithWickRejection(t),
		M1:             flatSeries(t, "1m"),
	}
}

func TestEvaluateNewSignalAligned(t *testing.T) {
	s := NewH4FvgStrategy(testConfig(), nil)
	mtf := alignedContext(t)

	sig, err := s.EvaluateNewSignal(context.Background(), mtf, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil {
		t.Fatalf("expected a signal")
	}
	if sig.Direction != models.Buy {
		t.Fatalf("expected buy, got %s", sig.Direction)
	}
	if sig.EntryPrice != 106 {
		t.Fatalf("expected entry at current price 106, got %v", sig.EntryPrice)
	}
	if sig.Notes == "" || sig.ID == "" {
		t.Fatalf("expected rationale notes and id, got %+v", sig)
	}
}

func TestEvaluateNewSignalOncePerH4Bar(t *testing.T) {
	s := NewH4FvgStrategy(testConfig(), nil)
	mtf := alignedContext(t)

	head, _ := mtf.H4.Last()
	sig, err := s.EvaluateNewSignal(context.Background(), mtf, head.OpenTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != nil {
		t.Fatalf("no new H4 close, expected no signal")
	}
}

func TestEvaluateNewSignalNoStructureNoSignal(t *testing.T) {
	s := NewH4FvgStrategy(testConfig(), nil)
	mtf := alignedContext(t)
	mtf.H1 = flatSeries(t, "60m")
	mtf.M30 = flatSeries(t, "30m")
	mtf.M15 = flatSeries(t, "15m")

	sig, err := s.EvaluateNewSignal(context.Background(), mtf, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != nil {
		t.Fatalf("expected no signal without structure confirmation")
	}
}

func TestEvaluateNewSignalInsufficientDataSkips(t *testing.T) {
	s := NewH4FvgStrategy(testConfig(), nil)
	mtf := alignedContext(t)
	short := []models.Candle{bar(0, 10, 11, 9, 10.5)}
	mtf.M1 = series(t, "1m", short)

	sig, err := s.EvaluateNewSignal(context.Background(), mtf, time.Time{})
	if err != nil {
		t.Fatalf("insufficient data must not raise: %v", err)
	}
	if sig != nil {
		t.Fatalf("expected evaluation skipped on short series")
	}
}

func TestEvaluateOpenTrade(t *testing.T) {
	s := NewH4FvgStrategy(testConfig(), nil)
	mtf := alignedContext(t)

	trade := &models.Trade{
		ID:          "t1",
		Direction:   models.Buy,
		EntryPrice:  100,
		InitialStop: 96,
		StopLoss:    96,
		TakeProfit:  112,
		State:       models.StateOpen,
		OpenTime:    t0,
	}
	an, err := s.EvaluateOpenTrade(context.Background(), trade, mtf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if an.UnrealizedR != 1.5 {
		t.Fatalf("expected 1.5R at price 106 with 4pt stop, got %v", an.UnrealizedR)
	}
	if an.Holding != 100*time.Hour {
		t.Fatalf("unexpected holding %v", an.Holding)
	}
	if !an.FavorableStructure {
		t.Fatalf("expected favorable structure from bullish H1 BOS")
	}
}
