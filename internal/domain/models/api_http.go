package models

// SignalsRequest queries recently generated signals.
type SignalsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

// TradesRequest filters tracked trades by lifecycle state.
type TradesRequest struct {
	State string `query:"state" json:"state" default:"Open" validate:"oneof=Open ClosedByTp ClosedBySl ClosedManual Expired"`
	Limit int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// CandlesRequest queries a candle series for one symbol and timeframe.
type CandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"60m" validate:"oneof=240m 60m 30m 15m 5m 1m"`
	Limit  int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
}

// OutcomeStatsRequest queries closed-trade outcome statistics.
type OutcomeStatsRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	Direction string `query:"direction" json:"direction" default:"buy" validate:"oneof=buy sell"`
	Limit     int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=5000"`
}

// CloseTradeRequest manually closes an open trade at the given price.
type CloseTradeRequest struct {
	Price  float64 `json:"price" validate:"required,gt=0"`
	Reason string  `json:"reason" default:"manual close"`
}
