package models

import (
	"fmt"
	"math"
	"time"
)

// Signal is a generated trading idea. Created once by the strategy
// engine, immutable afterwards.
type Signal struct {
	ID             string
	Symbol         string
	ProviderSymbol string
	Direction      Direction
	Time           time.Time
	EntryPrice     float64
	StrategyName   string
	Notes          string
	EstimatedRR    float64
}

// RiskPlan prices the risk for a signal. Attached to the trade at
// creation.
type RiskPlan struct {
	StopLoss   float64
	TakeProfit float64
	RiskAmount float64
	Size       float64
}

// Validate checks that the plan is sane for the given entry and
// direction: stop strictly on the adverse side, target strictly on the
// favorable side, finite size.
func (p RiskPlan) Validate(entry float64, dir Direction) error {
	switch dir {
	case Buy:
		if p.StopLoss >= entry {
			return fmt.Errorf("risk plan: buy stop %.5f not below entry %.5f", p.StopLoss, entry)
		}
		if p.TakeProfit <= entry {
			return fmt.Errorf("risk plan: buy target %.5f not above entry %.5f", p.TakeProfit, entry)
		}
	case Sell:
		if p.StopLoss <= entry {
			return fmt.Errorf("risk plan: sell stop %.5f not above entry %.5f", p.StopLoss, entry)
		}
		if p.TakeProfit >= entry {
			return fmt.Errorf("risk plan: sell target %.5f not below entry %.5f", p.TakeProfit, entry)
		}
	default:
		return fmt.Errorf("risk plan: unknown direction %q", dir)
	}
	if math.IsNaN(p.Size) || math.IsInf(p.Size, 0) || p.Size <= 0 {
		return fmt.Errorf("risk plan: non-finite or non-positive size %v", p.Size)
	}
	return nil
}
