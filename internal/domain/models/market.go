package models

import "time"

// Direction is a trade direction.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// Bias is a market bias derived from zones and structure.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNone    Bias = ""
)

// Directional maps a bias onto a trade direction. Only valid for a
// non-empty bias.
func (b Bias) Directional() Direction {
	if b == BiasBearish {
		return Sell
	}
	return Buy
}

// SwingKind marks a swing point as a local high or low.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a local price extremum.
type SwingPoint struct {
	Index int
	Time  time.Time
	Price float64
	Kind  SwingKind
}

// StructureKind classifies a structural shift.
type StructureKind string

const (
	StructureBOS   StructureKind = "bos"
	StructureCHOCH StructureKind = "choch"
	StructureSweep StructureKind = "sweep"
)

// StructureEvent is a structural shift detected on one series.
type StructureEvent struct {
	Kind      StructureKind
	Direction Bias
	Price     float64
	Time      time.Time
}

// FairValueGap is a three-candle price imbalance zone. Filled gaps are
// retained for audit but excluded from bias decisions.
type FairValueGap struct {
	High        float64
	Low         float64
	Direction   Bias
	OriginIndex int
	Time        time.Time
	Filled      bool
}

// OrderBlock is the last opposing candle before a strong directional
// move. Immutable once computed.
type OrderBlock struct {
	High        float64
	Low         float64
	Direction   Bias
	OriginIndex int
	Time        time.Time
}

// Tick is a single live quote from the price stream.
type Tick struct {
	Symbol    string
	Timestamp int64 // unix seconds
	Price     float64
	Volume    float64
}
