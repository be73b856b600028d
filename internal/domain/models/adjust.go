package models

import "time"

// TradeAnalytics is the no-side-effect assessment the strategy engine
// produces for an open trade; the estimator turns it into at most one
// adjustment recommendation.
type TradeAnalytics struct {
	Trade        *Trade
	CurrentPrice float64
	UnrealizedR  float64
	Holding      time.Duration
	ATRH4        float64
	// FavorableStructure is true when H4/H1 shows fresh structure in
	// the trade's direction (continuation, not exhaustion).
	FavorableStructure bool
}

// AdjustmentKind identifies an adjustment recommendation.
type AdjustmentKind string

const (
	AdjustBreakEven  AdjustmentKind = "break_even"
	AdjustTrail      AdjustmentKind = "trail"
	AdjustCloseEarly AdjustmentKind = "close_early"
)

// Adjustment is a recommendation to move the stop/target or close a
// trade early. Nil price pointers leave the level unchanged.
type Adjustment struct {
	Kind          AdjustmentKind
	NewStopLoss   *float64
	NewTakeProfit *float64
	Reason        string
}
