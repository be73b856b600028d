package models

import (
	"fmt"
	"time"
)

// TradeState is the lifecycle state of a tracked trade.
type TradeState string

const (
	StateOpen         TradeState = "Open"
	StateClosedByTp   TradeState = "ClosedByTp"
	StateClosedBySl   TradeState = "ClosedBySl"
	StateClosedManual TradeState = "ClosedManual"
	StateExpired      TradeState = "Expired"
)

// Terminal reports whether the state is absorbing.
func (s TradeState) Terminal() bool {
	switch s {
	case StateClosedByTp, StateClosedBySl, StateClosedManual, StateExpired:
		return true
	case StateOpen:
		return false
	}
	return false
}

// Trade is a tracked position in pure-signal mode. Mutated only by the
// lifecycle state machine; terminal once closed.
type Trade struct {
	ID         string
	Signal     Signal
	Direction  Direction
	EntryPrice float64
	// InitialStop is the stop the trade opened with. Break-even and
	// trailing moves rewrite StopLoss, never InitialStop, so open
	// profit keeps being measured against the risk taken at entry.
	InitialStop float64
	StopLoss    float64
	TakeProfit  float64
	Size       float64
	State      TradeState
	OpenTime   time.Time

	CloseTime   *time.Time
	ClosePrice  float64
	CloseReason string

	// Excursion extrema recorded while the trade is open; feed the
	// MAE/MFE history once closed.
	MaxAdverse   float64
	MaxFavorable float64
}

// NewTrade opens a trade from an accepted signal and its priced risk
// plan. Construction fails if the plan violates side invariants; a
// value is never silently corrected.
func NewTrade(id string, sig Signal, plan RiskPlan, openTime time.Time) (*Trade, error) {
	if id == "" {
		return nil, fmt.Errorf("trade: id required")
	}
	if err := plan.Validate(sig.EntryPrice, sig.Direction); err != nil {
		return nil, err
	}
	return &Trade{
		ID:          id,
		Signal:      sig,
		Direction:   sig.Direction,
		EntryPrice:  sig.EntryPrice,
		InitialStop: plan.StopLoss,
		StopLoss:    plan.StopLoss,
		TakeProfit:  plan.TakeProfit,
		Size:        plan.Size,
		State:       StateOpen,
		OpenTime:    openTime,
	}, nil
}

// StopDistance is the unsigned distance between entry and the current
// stop.
func (t *Trade) StopDistance() float64 {
	d := t.EntryPrice - t.StopLoss
	if d < 0 {
		d = -d
	}
	return d
}

// InitialRisk is the unsigned distance between entry and the initial
// stop.
func (t *Trade) InitialRisk() float64 {
	d := t.EntryPrice - t.InitialStop
	if d < 0 {
		d = -d
	}
	return d
}

// UnrealizedR expresses the open profit at price as a multiple of the
// initial risk. Zero when the initial risk is degenerate.
func (t *Trade) UnrealizedR(price float64) float64 {
	dist := t.InitialRisk()
	if dist <= 0 {
		return 0
	}
	pnl := price - t.EntryPrice
	if t.Direction == Sell {
		pnl = -pnl
	}
	return pnl / dist
}

// TradeUpdate carries the fields a lifecycle transition writes through
// the store's compare-and-set. Nil pointers mean "leave unchanged".
type TradeUpdate struct {
	State       TradeState
	CloseTime   *time.Time
	ClosePrice  *float64
	CloseReason string
	StopLoss    *float64
	TakeProfit  *float64

	MaxAdverse   *float64
	MaxFavorable *float64
}

// ClosedOutcome is one historical closed trade reduced to the numbers
// the estimator consumes.
type ClosedOutcome struct {
	MAE      float64
	MFE      float64
	RMult    float64
	Holding  time.Duration
	ClosedAt time.Time
}

// OutcomeStats aggregates closed-trade history per (symbol, direction).
type OutcomeStats struct {
	Symbol           string
	Direction        Direction
	Count            int
	MedianMAE        float64
	MedianMFE        float64
	AvgMAE           float64
	AvgMFE           float64
	MedianWinHolding time.Duration
}
