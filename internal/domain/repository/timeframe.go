package repository

import "time"

// Timeframe identifies a candle interval.
type Timeframe string

const (
	TFH4  Timeframe = "240m"
	TFH1  Timeframe = "60m"
	TFM30 Timeframe = "30m"
	TFM15 Timeframe = "15m"
	TFM5  Timeframe = "5m"
	TFM1  Timeframe = "1m"
)

// AllTimeframes lists every timeframe a scan context needs, largest
// first.
func AllTimeframes() []Timeframe {
	return []Timeframe{TFH4, TFH1, TFM30, TFM15, TFM5, TFM1}
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TFH4, TFH1, TFM30, TFM15, TFM5, TFM1:
		return true
	default:
		return false
	}
}

// Duration returns the bar length of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TFH4:
		return 4 * time.Hour
	case TFH1:
		return time.Hour
	case TFM30:
		return 30 * time.Minute
	case TFM15:
		return 15 * time.Minute
	case TFM5:
		return 5 * time.Minute
	case TFM1:
		return time.Minute
	}
	return time.Minute
}

// MaxLookback is the farthest history the quote source serves per
// interval. Requests beyond it are clamped by the provider.
func (tf Timeframe) MaxLookback() time.Duration {
	switch tf {
	case TFM1:
		return 7 * 24 * time.Hour
	case TFM5, TFM15, TFM30:
		return 60 * 24 * time.Hour
	case TFH1, TFH4:
		return 730 * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}

// NormalizeTimeframe converts a raw string to a valid timeframe (or M1).
func NormalizeTimeframe(s string) Timeframe {
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return TFM1
}
