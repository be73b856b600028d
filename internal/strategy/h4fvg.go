package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/predeshen/yfinance-trading-signal/internal/analysis"
	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	applogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
)

// Config tunes the H4 FVG strategy. Zero values fall back to the
// defaults below.
type Config struct {
	SwingWindow       int
	StructureLookback int
	ZoneLookback      int // H4 candles scanned for FVG/OB zones
	OrderBlock        analysis.OrderBlockConfig
	EntryWickRatio    float64 // rejection wick must exceed ratio x body
	MicroSwingWindow  int     // swing window for M5/M1 micro structure
	MinBars           int     // minimum candles per timeframe
}

func (c *Config) applyDefaults() {
	if c.SwingWindow <= 0 {
		c.SwingWindow = analysis.DefaultSwingWindow
	}
	if c.StructureLookback <= 0 {
		c.StructureLookback = analysis.DefaultStructureLookback
	}
	if c.ZoneLookback <= 0 {
		c.ZoneLookback = 50
	}
	if c.OrderBlock.ATRPeriod <= 0 {
		c.OrderBlock = analysis.DefaultOrderBlockConfig()
	}
	if c.EntryWickRatio <= 0 {
		c.EntryWickRatio = 2.0
	}
	if c.MicroSwingWindow <= 0 {
		c.MicroSwingWindow = 2
	}
	if c.MinBars <= 0 {
		c.MinBars = 2*analysis.DefaultSwingWindow + 1
	}
}

// H4FvgStrategy derives bias from H4 fair value gaps and order blocks,
// confirms it with H1/M30/M15 structure, and triggers on M5/M1
// micro-confirmation.
type H4FvgStrategy struct {
	cfg Config
	log *applogger.Logger
}

func NewH4FvgStrategy(cfg Config, log *applogger.Logger) *H4FvgStrategy {
	cfg.applyDefaults()
	return &H4FvgStrategy{cfg: cfg, log: log}
}

func (s *H4FvgStrategy) Name() string { return "H4 FVG / OB + structure" }

func (s *H4FvgStrategy) EvaluateNewSignal(_ context.Context, mtf *models.MultiTimeframeContext, lastH4 time.Time) (*models.Signal, error) {
	if !mtf.Complete(s.cfg.MinBars) {
		s.debug(mtf.Symbol, "insufficient data, evaluation skipped")
		return nil, nil
	}

	head, ok := mtf.H4.Last()
	if !ok || !head.OpenTime.After(lastH4) {
		return nil, nil
	}

	bias, zone := s.determineBias(mtf)
	if bias == models.BiasNone {
		s.debug(mtf.Symbol, "no clear H4 bias")
		return nil, nil
	}

	confirmations := s.structureConfirmations(mtf, bias)
	if len(confirmations) == 0 {
		s.debug(mtf.Symbol, "no lower-timeframe structure alignment")
		return nil, nil
	}

	trigger := s.entryTrigger(mtf, bias)
	if trigger == "" {
		s.debug(mtf.Symbol, "no entry trigger on M5/M1")
		return nil, nil
	}

	notes := fmt.Sprintf("H4 %s %s; confirmed by %s; entry %s",
		zone, bias, strings.Join(confirmations, ", "), trigger)

	return &models.Signal{
		ID:             uuid.NewString(),
		Symbol:         mtf.Symbol,
		ProviderSymbol: mtf.ProviderSymbol,
		Direction:      bias.Directional(),
		Time:           mtf.Now,
		EntryPrice:     mtf.CurrentPrice,
		StrategyName:   s.Name(),
		Notes:          notes,
	}, nil
}

// determineBias picks the most recent unfilled H4 zone. When the latest
// unfilled gap and the latest order block disagree, the bias is
// rejected as conflicting.
func (s *H4FvgStrategy) determineBias(mtf *models.MultiTimeframeContext) (models.Bias, string) {
	h4 := mtf.H4.Tail(s.cfg.ZoneLookback)

	gap, hasGap := analysis.LastUnfilledFVG(analysis.DetectFVGs(h4))
	block, hasBlock := analysis.LastOrderBlock(analysis.DetectOrderBlocks(h4, s.cfg.OrderBlock))

	switch {
	case hasGap && hasBlock:
		if gap.Direction != block.Direction {
			return models.BiasNone, ""
		}
		if block.OriginIndex > gap.OriginIndex {
			return block.Direction, "OB"
		}
		return gap.Direction, "FVG"
	case hasGap:
		return gap.Direction, "FVG"
	case hasBlock:
		return block.Direction, "OB"
	}
	return models.BiasNone, ""
}

// structureConfirmations runs structure detection on the confirmation
// timeframes and returns the names of those aligned with the bias.
func (s *H4FvgStrategy) structureConfirmations(mtf *models.MultiTimeframeContext, bias models.Bias) []string {
	frames := []struct {
		name   string
		series *models.CandleSeries
	}{
		{"H1", mtf.H1},
		{"M30", mtf.M30},
		{"M15", mtf.M15},
	}

	var confirmed []string
	for _, f := range frames {
		candles := f.series.Candles()
		swings := analysis.FindSwings(candles, s.cfg.SwingWindow)
		events := analysis.FindStructure(candles, swings, s.cfg.StructureLookback)
		if analysis.HasAligned(events, bias) {
			confirmed = append(confirmed, f.name+" structure")
		}
	}
	return confirmed
}

// entryTrigger checks M5 and M1 for a wick rejection consistent with
// the bias or a micro break of structure in the bias direction. Returns
// a short description of what fired, or "".
func (s *H4FvgStrategy) entryTrigger(mtf *models.MultiTimeframeContext, bias models.Bias) string {
	for _, f := range []struct {
		name   string
		series *models.CandleSeries
	}{
		{"M5", mtf.M5},
		{"M1", mtf.M1},
	} {
		if s.hasWickRejection(f.series.Tail(3), bias) {
			return f.name + " wick rejection"
		}
		candles := f.series.Candles()
		swings := analysis.FindSwings(candles, s.cfg.MicroSwingWindow)
		events := analysis.FindStructure(candles, swings, s.cfg.StructureLookback)
		if analysis.HasAligned(events, bias) {
			return f.name + " micro BOS"
		}
	}
	return ""
}

func (s *H4FvgStrategy) hasWickRejection(candles []models.Candle, bias models.Bias) bool {
	for _, c := range candles {
		body := c.Body()
		if bias == models.BiasBullish && c.Bullish() && c.LowerWick() > body*s.cfg.EntryWickRatio {
			return true
		}
		if bias == models.BiasBearish && c.Bearish() && c.UpperWick() > body*s.cfg.EntryWickRatio {
			return true
		}
	}
	return false
}

func (s *H4FvgStrategy) EvaluateOpenTrade(_ context.Context, trade *models.Trade, mtf *models.MultiTimeframeContext) (*models.TradeAnalytics, error) {
	if trade == nil {
		return nil, fmt.Errorf("trade is nil")
	}

	atrH4, _ := analysis.ATR(mtf.H4.Candles(), analysis.DefaultATRPeriod)

	bias := models.BiasBullish
	if trade.Direction == models.Sell {
		bias = models.BiasBearish
	}
	favorable := false
	for _, series := range []*models.CandleSeries{mtf.H4, mtf.H1} {
		candles := series.Candles()
		swings := analysis.FindSwings(candles, s.cfg.SwingWindow)
		if analysis.HasAligned(analysis.FindStructure(candles, swings, s.cfg.StructureLookback), bias) {
			favorable = true
			break
		}
	}

	return &models.TradeAnalytics{
		Trade:              trade,
		CurrentPrice:       mtf.CurrentPrice,
		UnrealizedR:        trade.UnrealizedR(mtf.CurrentPrice),
		Holding:            mtf.Now.Sub(trade.OpenTime),
		ATRH4:              atrH4,
		FavorableStructure: favorable,
	}, nil
}

func (s *H4FvgStrategy) debug(symbol, msg string) {
	if s.log != nil {
		s.log.Debug(msg, applogger.String("symbol", symbol))
	}
}

var _ Strategy = (*H4FvgStrategy)(nil)
