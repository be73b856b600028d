// Package lifecycle drives tracked trades through their state machine:
// Open until a stop, target, manual close, or expiry fires, terminal
// afterwards. All mutations go through the store's compare-and-set so
// concurrent scans cannot double-close a trade.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	"github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
	applogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
)

// ErrStateConflict reports a lost compare-and-set race. The caller
// re-reads the trade and re-evaluates against the fresh state.
var ErrStateConflict = errors.New("lifecycle: trade state conflict")

// Policy tunes transition behavior. When both levels are breached
// inside one bar the stop wins unless TPFirst is set; intrabar order is
// unknowable from candles, so the pessimistic reading is the default.
type Policy struct {
	TPFirst    bool
	MaxHolding time.Duration
}

// Machine applies price observations and adjustments to open trades.
// Each successful transition persists exactly once and emits exactly
// one notification event.
type Machine struct {
	store   repository.OutcomeStore
	sink    repository.NotificationSink
	metrics repository.Metrics
	log     *applogger.Logger
	policy  Policy
}

func NewMachine(store repository.OutcomeStore, sink repository.NotificationSink, metrics repository.Metrics, log *applogger.Logger, policy Policy) *Machine {
	return &Machine{store: store, sink: sink, metrics: metrics, log: log, policy: policy}
}

// OnBar checks one completed bar against an open trade's levels and
// returns the trade's state afterwards. Terminal trades are a no-op
// with no event. The close price of a level exit is the breached level
// itself, not the bar extreme.
func (m *Machine) OnBar(ctx context.Context, t *models.Trade, bar models.Candle) (models.TradeState, error) {
	if t.State.Terminal() {
		return t.State, nil
	}

	slHit, tpHit := m.levelBreaches(t, bar)

	if ex := m.pickExit(t, slHit, tpHit); ex != nil {
		return m.close(ctx, t, bar, ex.state, ex.price, ex.reason)
	}

	if m.policy.MaxHolding > 0 && bar.OpenTime.Sub(t.OpenTime) > m.policy.MaxHolding {
		reason := fmt.Sprintf("holding time exceeded %s", m.policy.MaxHolding)
		return m.close(ctx, t, bar, models.StateExpired, bar.Close, reason)
	}

	return t.State, m.recordExcursions(ctx, t, bar)
}

type exit struct {
	state  models.TradeState
	price  float64
	reason string
}

func (m *Machine) levelBreaches(t *models.Trade, bar models.Candle) (slHit, tpHit bool) {
	if t.Direction == models.Buy {
		return bar.Low <= t.StopLoss, bar.High >= t.TakeProfit
	}
	return bar.High >= t.StopLoss, bar.Low <= t.TakeProfit
}

func (m *Machine) pickExit(t *models.Trade, slHit, tpHit bool) *exit {
	var sl, tp *exit
	if slHit {
		sl = &exit{state: models.StateClosedBySl, price: t.StopLoss, reason: "stop loss hit"}
	}
	if tpHit {
		tp = &exit{state: models.StateClosedByTp, price: t.TakeProfit, reason: "take profit hit"}
	}
	if m.policy.TPFirst && tp != nil {
		return tp
	}
	if sl != nil {
		return sl
	}
	return tp
}

// CloseManual closes an open trade at the given price. Used by the
// close-early adjustment and the manual close endpoint.
func (m *Machine) CloseManual(ctx context.Context, t *models.Trade, price float64, now time.Time, reason string) (models.TradeState, error) {
	if t.State.Terminal() {
		return t.State, nil
	}
	bar := models.Candle{OpenTime: now, Open: price, High: price, Low: price, Close: price}
	return m.close(ctx, t, bar, models.StateClosedManual, price, reason)
}

// ApplyAdjustment carries a risk recommendation into the store. Stop
// and target moves keep the trade open; a close-early recommendation
// delegates to CloseManual.
func (m *Machine) ApplyAdjustment(ctx context.Context, t *models.Trade, adj *models.Adjustment, price float64, now time.Time) error {
	if adj == nil || t.State.Terminal() {
		return nil
	}
	if adj.Kind == models.AdjustCloseEarly {
		_, err := m.CloseManual(ctx, t, price, now, adj.Reason)
		return err
	}

	update := models.TradeUpdate{
		State:       models.StateOpen,
		StopLoss:    adj.NewStopLoss,
		TakeProfit:  adj.NewTakeProfit,
		CloseReason: "",
	}
	ok, err := m.store.CompareAndSetTrade(ctx, t.ID, models.StateOpen, update)
	if err != nil {
		return fmt.Errorf("apply adjustment %s: %w", t.ID, err)
	}
	if !ok {
		return ErrStateConflict
	}

	ev := m.baseEvent(t, models.EventAdjustmentApplied, now)
	ev.Reason = adj.Reason
	ev.OldStopLoss = t.StopLoss
	ev.OldTakeProfit = t.TakeProfit
	if adj.NewStopLoss != nil {
		t.StopLoss = *adj.NewStopLoss
		ev.NewStopLoss = *adj.NewStopLoss
	}
	if adj.NewTakeProfit != nil {
		t.TakeProfit = *adj.NewTakeProfit
		ev.NewTakeProfit = *adj.NewTakeProfit
	}
	m.emit(ctx, ev)
	return nil
}

func (m *Machine) close(ctx context.Context, t *models.Trade, bar models.Candle, state models.TradeState, price float64, reason string) (models.TradeState, error) {
	closeTime := bar.OpenTime
	mae, mfe := excursions(t, bar)

	update := models.TradeUpdate{
		State:        state,
		CloseTime:    &closeTime,
		ClosePrice:   &price,
		CloseReason:  reason,
		MaxAdverse:   &mae,
		MaxFavorable: &mfe,
	}
	ok, err := m.store.CompareAndSetTrade(ctx, t.ID, models.StateOpen, update)
	if err != nil {
		return t.State, fmt.Errorf("close trade %s: %w", t.ID, err)
	}
	if !ok {
		// Someone else transitioned first; their event already went out.
		stored, err := m.store.GetTrade(ctx, t.ID)
		if err != nil {
			return t.State, fmt.Errorf("close trade %s: reread after conflict: %w", t.ID, err)
		}
		if stored != nil && stored.State.Terminal() {
			*t = *stored
			return t.State, nil
		}
		return t.State, ErrStateConflict
	}

	t.State = state
	t.CloseTime = &closeTime
	t.ClosePrice = price
	t.CloseReason = reason
	t.MaxAdverse = mae
	t.MaxFavorable = mfe

	if m.metrics != nil {
		m.metrics.RecordTransition(t.Signal.Symbol, string(state))
	}
	if m.log != nil {
		m.log.Info("trade closed",
			applogger.String("trade_id", t.ID),
			applogger.String("symbol", t.Signal.Symbol),
			applogger.String("state", string(state)),
			applogger.Any("close_price", price),
		)
	}

	ev := m.baseEvent(t, eventForState(state), closeTime)
	ev.ClosePrice = price
	ev.Reason = reason
	m.emit(ctx, ev)
	return state, nil
}

// recordExcursions persists improved MAE/MFE extremes without touching
// the state. A lost race here is harmless and ignored.
func (m *Machine) recordExcursions(ctx context.Context, t *models.Trade, bar models.Candle) error {
	mae, mfe := excursions(t, bar)
	if mae <= t.MaxAdverse && mfe <= t.MaxFavorable {
		return nil
	}
	update := models.TradeUpdate{
		State:        models.StateOpen,
		MaxAdverse:   &mae,
		MaxFavorable: &mfe,
	}
	ok, err := m.store.CompareAndSetTrade(ctx, t.ID, models.StateOpen, update)
	if err != nil {
		return fmt.Errorf("record excursions %s: %w", t.ID, err)
	}
	if ok {
		t.MaxAdverse = mae
		t.MaxFavorable = mfe
	}
	return nil
}

// excursions folds one bar into the trade's running adverse and
// favorable extremes, both as positive distances from entry.
func excursions(t *models.Trade, bar models.Candle) (mae, mfe float64) {
	mae, mfe = t.MaxAdverse, t.MaxFavorable
	var adverse, favorable float64
	if t.Direction == models.Buy {
		adverse = t.EntryPrice - bar.Low
		favorable = bar.High - t.EntryPrice
	} else {
		adverse = bar.High - t.EntryPrice
		favorable = t.EntryPrice - bar.Low
	}
	if adverse > mae {
		mae = adverse
	}
	if favorable > mfe {
		mfe = favorable
	}
	return mae, mfe
}

func eventForState(state models.TradeState) models.EventKind {
	switch state {
	case models.StateClosedBySl:
		return models.EventClosedBySl
	case models.StateClosedByTp:
		return models.EventClosedByTp
	case models.StateExpired:
		return models.EventTradeExpired
	default:
		return models.EventClosedManual
	}
}

func (m *Machine) baseEvent(t *models.Trade, kind models.EventKind, at time.Time) models.NotificationEvent {
	return models.NotificationEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Symbol:     t.Signal.Symbol,
		TradeID:    t.ID,
		Direction:  t.Direction,
		Time:       at,
		EntryPrice: t.EntryPrice,
		StopLoss:   t.StopLoss,
		TakeProfit: t.TakeProfit,
		Size:       t.Size,
	}
}

func (m *Machine) emit(ctx context.Context, ev models.NotificationEvent) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Emit(ctx, ev); err != nil {
		if m.metrics != nil {
			m.metrics.RecordError("notification_emit")
		}
		if m.log != nil {
			m.log.Error("emit notification", applogger.String("kind", string(ev.Kind)), applogger.Error(err))
		}
	}
}
