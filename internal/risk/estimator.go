// Package risk prices signals into stop/target/size plans from
// volatility and historical outcome statistics, and recommends
// adjustments to open trades.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/analysis"
	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	"github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
	applogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
)

// ErrInvalidRiskPlan rejects signal acceptance: non-positive stop
// distance or non-finite size. No trade is created from such a plan.
var ErrInvalidRiskPlan = errors.New("risk: invalid risk plan")

// SignalContext carries what the estimator needs to price a new signal.
type SignalContext struct {
	Signal *models.Signal
	H4     *models.CandleSeries
	H1     *models.CandleSeries
	Swings []models.SwingPoint // H4 swing points, most recent last
}

// Estimator prices new signals and evaluates adjustments for open
// trades.
type Estimator interface {
	EstimateForNewSignal(ctx context.Context, sc SignalContext) (models.RiskPlan, error)
	EvaluateAdjustment(ctx context.Context, an *models.TradeAnalytics) (*models.Adjustment, error)
}

// Config tunes the dynamic estimator. Zero values fall back to the
// defaults in applyDefaults.
type Config struct {
	ATRPeriod     int
	StopATRMult   float64 // k: buffer beyond the structural stop
	FallbackRR    float64 // target multiple when history is thin
	MinSamples    int     // closed trades required to trust median MFE
	HistoryLimit  int     // closed trades fetched per query
	Equity        float64
	RiskFraction  float64
	PointValue    float64
	SwingLookback int // candles back a swing may sit to anchor the stop

	BreakEvenR   float64
	TrailR       float64
	TrailATRFrac float64
	StaleFactor  float64 // multiple of winners' median holding time

	// RuleOrder fixes adjustment rule precedence; first match wins.
	// The ordering is policy, not correctness, hence configurable.
	RuleOrder []models.AdjustmentKind
}

func (c *Config) applyDefaults() {
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = analysis.DefaultATRPeriod
	}
	if c.StopATRMult <= 0 {
		c.StopATRMult = 1.5
	}
	if c.FallbackRR <= 0 {
		c.FallbackRR = 2.0
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 10
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 100
	}
	if c.Equity <= 0 {
		c.Equity = 10000
	}
	if c.RiskFraction <= 0 {
		c.RiskFraction = 0.01
	}
	if c.PointValue <= 0 {
		c.PointValue = 1.0
	}
	if c.SwingLookback <= 0 {
		c.SwingLookback = 50
	}
	if c.BreakEvenR <= 0 {
		c.BreakEvenR = 1.0
	}
	if c.TrailR <= 0 {
		c.TrailR = 2.0
	}
	if c.TrailATRFrac <= 0 {
		c.TrailATRFrac = 1.0
	}
	if c.StaleFactor <= 0 {
		c.StaleFactor = 2.0
	}
	if len(c.RuleOrder) == 0 {
		c.RuleOrder = []models.AdjustmentKind{
			models.AdjustBreakEven,
			models.AdjustTrail,
			models.AdjustCloseEarly,
		}
	}
}

// DynamicEstimator derives stops from structure plus an ATR buffer and
// targets from historical MFE, falling back to a fixed risk-reward
// multiple when history is thin.
type DynamicEstimator struct {
	cfg   Config
	store repository.OutcomeStore
	log   *applogger.Logger
}

func NewDynamicEstimator(cfg Config, store repository.OutcomeStore, log *applogger.Logger) *DynamicEstimator {
	cfg.applyDefaults()
	return &DynamicEstimator{cfg: cfg, store: store, log: log}
}

func (e *DynamicEstimator) EstimateForNewSignal(ctx context.Context, sc SignalContext) (models.RiskPlan, error) {
	sig := sc.Signal
	if sig == nil {
		return models.RiskPlan{}, fmt.Errorf("%w: signal is nil", ErrInvalidRiskPlan)
	}

	atrH4, okH4 := analysis.ATR(sc.H4.Candles(), e.cfg.ATRPeriod)
	atrH1, _ := analysis.ATR(sc.H1.Candles(), e.cfg.ATRPeriod)
	if !okH4 || atrH4 <= 0 {
		return models.RiskPlan{}, fmt.Errorf("%w: no H4 ATR available", ErrInvalidRiskPlan)
	}

	stop := e.structuralStop(sig, sc.Swings, atrH4)
	stopDist := math.Abs(sig.EntryPrice - stop)
	if stopDist <= 0 {
		return models.RiskPlan{}, fmt.Errorf("%w: stop distance %.5f", ErrInvalidRiskPlan, stopDist)
	}

	target := e.target(ctx, sig, stopDist)

	riskAmount := e.cfg.Equity * e.cfg.RiskFraction
	size := riskAmount / (stopDist * e.cfg.PointValue)

	plan := models.RiskPlan{
		StopLoss:   stop,
		TakeProfit: target,
		RiskAmount: riskAmount,
		Size:       size,
	}
	if err := plan.Validate(sig.EntryPrice, sig.Direction); err != nil {
		return models.RiskPlan{}, fmt.Errorf("%w: %v", ErrInvalidRiskPlan, err)
	}

	if e.log != nil {
		e.log.Debug("risk plan estimated",
			applogger.String("symbol", sig.Symbol),
			applogger.String("direction", string(sig.Direction)),
			applogger.Any("atr_h4", atrH4),
			applogger.Any("atr_h1", atrH1),
			applogger.Any("stop", stop),
			applogger.Any("target", target),
		)
	}
	return plan, nil
}

// structuralStop anchors the stop to the nearest opposite swing point
// within the lookback and pushes it further out by k*ATR_H4. Without a
// usable swing the anchor degrades to one ATR beyond entry.
func (e *DynamicEstimator) structuralStop(sig *models.Signal, swings []models.SwingPoint, atrH4 float64) float64 {
	buffer := e.cfg.StopATRMult * atrH4

	start := 0
	if len(swings) > e.cfg.SwingLookback {
		start = len(swings) - e.cfg.SwingLookback
	}
	recent := swings[start:]

	if sig.Direction == models.Buy {
		anchor := sig.EntryPrice - atrH4
		best := math.Inf(-1)
		for _, s := range recent {
			if s.Kind == models.SwingLow && s.Price < sig.EntryPrice && s.Price > best {
				best = s.Price
			}
		}
		if !math.IsInf(best, -1) {
			anchor = best
		}
		return anchor - buffer
	}

	anchor := sig.EntryPrice + atrH4
	best := math.Inf(1)
	for _, s := range recent {
		if s.Kind == models.SwingHigh && s.Price > sig.EntryPrice && s.Price < best {
			best = s.Price
		}
	}
	if !math.IsInf(best, 1) {
		anchor = best
	}
	return anchor + buffer
}

// target places the take profit at the median historical MFE when
// enough closed trades exist, otherwise at FallbackRR times the stop
// distance.
func (e *DynamicEstimator) target(ctx context.Context, sig *models.Signal, stopDist float64) float64 {
	offset := e.cfg.FallbackRR * stopDist

	outcomes, err := e.store.QueryClosedOutcomes(ctx, sig.Symbol, sig.Direction, e.cfg.HistoryLimit)
	if err != nil {
		if e.log != nil {
			e.log.Warn("outcome history unavailable, using fallback target",
				applogger.String("symbol", sig.Symbol), applogger.Error(err))
		}
	} else {
		stats := ComputeStats(sig.Symbol, sig.Direction, outcomes)
		if stats.Count >= e.cfg.MinSamples && stats.MedianMFE > 0 {
			offset = stats.MedianMFE
		}
	}

	if sig.Direction == models.Buy {
		return sig.EntryPrice + offset
	}
	return sig.EntryPrice - offset
}

// EvaluateAdjustment applies the ordered adjustment rules and returns
// at most one recommendation; the first matching rule wins.
func (e *DynamicEstimator) EvaluateAdjustment(ctx context.Context, an *models.TradeAnalytics) (*models.Adjustment, error) {
	if an == nil || an.Trade == nil {
		return nil, fmt.Errorf("risk: analytics is nil")
	}

	for _, rule := range e.cfg.RuleOrder {
		var adj *models.Adjustment
		switch rule {
		case models.AdjustBreakEven:
			adj = e.breakEven(an)
		case models.AdjustTrail:
			adj = e.trail(an)
		case models.AdjustCloseEarly:
			adj = e.closeStale(ctx, an)
		}
		if adj != nil {
			return adj, nil
		}
	}
	return nil, nil
}

func (e *DynamicEstimator) breakEven(an *models.TradeAnalytics) *models.Adjustment {
	if an.UnrealizedR < e.cfg.BreakEvenR {
		return nil
	}
	t := an.Trade
	if t.Direction == models.Buy && t.StopLoss >= t.EntryPrice {
		return nil
	}
	if t.Direction == models.Sell && t.StopLoss <= t.EntryPrice {
		return nil
	}
	be := t.EntryPrice
	return &models.Adjustment{
		Kind:        models.AdjustBreakEven,
		NewStopLoss: &be,
		Reason:      fmt.Sprintf("move stop to break-even at %.1fR", an.UnrealizedR),
	}
}

func (e *DynamicEstimator) trail(an *models.TradeAnalytics) *models.Adjustment {
	if an.UnrealizedR < e.cfg.TrailR || an.ATRH4 <= 0 {
		return nil
	}
	t := an.Trade
	var trailed float64
	if t.Direction == models.Buy {
		trailed = an.CurrentPrice - e.cfg.TrailATRFrac*an.ATRH4
		if trailed <= t.StopLoss {
			return nil
		}
	} else {
		trailed = an.CurrentPrice + e.cfg.TrailATRFrac*an.ATRH4
		if trailed >= t.StopLoss {
			return nil
		}
	}
	return &models.Adjustment{
		Kind:        models.AdjustTrail,
		NewStopLoss: &trailed,
		Reason:      fmt.Sprintf("trail stop by ATR at %.1fR", an.UnrealizedR),
	}
}

// closeStale recommends an early close when the trade has outlived the
// winners' median holding time by the configured factor with no fresh
// favorable structure.
func (e *DynamicEstimator) closeStale(ctx context.Context, an *models.TradeAnalytics) *models.Adjustment {
	if an.FavorableStructure {
		return nil
	}
	t := an.Trade

	outcomes, err := e.store.QueryClosedOutcomes(ctx, t.Signal.Symbol, t.Direction, e.cfg.HistoryLimit)
	if err != nil || len(outcomes) == 0 {
		return nil
	}
	stats := ComputeStats(t.Signal.Symbol, t.Direction, outcomes)
	if stats.MedianWinHolding <= 0 {
		return nil
	}
	limit := time.Duration(float64(stats.MedianWinHolding) * e.cfg.StaleFactor)
	if an.Holding <= limit {
		return nil
	}
	return &models.Adjustment{
		Kind:   models.AdjustCloseEarly,
		Reason: fmt.Sprintf("held %s, beyond %s median winner holding", an.Holding, limit),
	}
}

// ComputeStats reduces closed outcomes to the aggregates the estimator
// consumes.
func ComputeStats(symbol string, dir models.Direction, outcomes []models.ClosedOutcome) models.OutcomeStats {
	stats := models.OutcomeStats{Symbol: symbol, Direction: dir, Count: len(outcomes)}
	if len(outcomes) == 0 {
		return stats
	}

	maes := make([]float64, 0, len(outcomes))
	mfes := make([]float64, 0, len(outcomes))
	var winHoldings []time.Duration
	var maeSum, mfeSum float64
	for _, o := range outcomes {
		maes = append(maes, o.MAE)
		mfes = append(mfes, o.MFE)
		maeSum += o.MAE
		mfeSum += o.MFE
		if o.RMult > 0 {
			winHoldings = append(winHoldings, o.Holding)
		}
	}

	stats.MedianMAE = median(maes)
	stats.MedianMFE = median(mfes)
	stats.AvgMAE = maeSum / float64(len(outcomes))
	stats.AvgMFE = mfeSum / float64(len(outcomes))

	if len(winHoldings) > 0 {
		sort.Slice(winHoldings, func(i, j int) bool { return winHoldings[i] < winHoldings[j] })
		stats.MedianWinHolding = winHoldings[len(winHoldings)/2]
	}
	return stats
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

var _ Estimator = (*DynamicEstimator)(nil)
