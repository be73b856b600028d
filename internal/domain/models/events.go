package models

import "time"

// EventKind identifies a notification event.
type EventKind string

const (
	EventSignalAccepted    EventKind = "SignalAccepted"
	EventAdjustmentApplied EventKind = "AdjustmentApplied"
	EventClosedBySl        EventKind = "ClosedBySl"
	EventClosedByTp        EventKind = "ClosedByTp"
	EventClosedManual      EventKind = "ClosedManual"
	EventTradeExpired      EventKind = "TradeExpired"
	EventHeartbeat         EventKind = "Heartbeat"
)

// NotificationEvent is published once per accepted signal or successful
// state transition. The core guarantees at most one event per actual
// transition and none for no-op attempts.
type NotificationEvent struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Symbol    string    `json:"symbol"`
	TradeID   string    `json:"trade_id,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Time      time.Time `json:"time"`

	EntryPrice float64 `json:"entry_price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Size       float64 `json:"size,omitempty"`
	RR         float64 `json:"rr,omitempty"`

	OldStopLoss   float64 `json:"old_sl,omitempty"`
	NewStopLoss   float64 `json:"new_sl,omitempty"`
	OldTakeProfit float64 `json:"old_tp,omitempty"`
	NewTakeProfit float64 `json:"new_tp,omitempty"`

	ClosePrice float64 `json:"close_price,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}
