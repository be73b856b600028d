package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
)

// memStore is a compare-and-set faithful in-memory store.
type memStore struct {
	trades map[string]*models.Trade
}

func newMemStore() *memStore {
	return &memStore{trades: make(map[string]*models.Trade)}
}

func (s *memStore) Init(ctx context.Context) error                           { return nil }
func (s *memStore) SaveSignal(ctx context.Context, sig *models.Signal) error { return nil }
func (s *memStore) RecentSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	return nil, nil
}

func (s *memStore) CreateTrade(ctx context.Context, t *models.Trade) error {
	cp := *t
	s.trades[t.ID] = &cp
	return nil
}

func (s *memStore) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	t, ok := s.trades[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) OpenTrades(ctx context.Context, symbol string) ([]*models.Trade, error) {
	return nil, nil
}

func (s *memStore) TradesByState(ctx context.Context, state models.TradeState, limit int) ([]*models.Trade, error) {
	return nil, nil
}

func (s *memStore) CompareAndSetTrade(ctx context.Context, id string, expected models.TradeState, update models.TradeUpdate) (bool, error) {
	t, ok := s.trades[id]
	if !ok || t.State != expected {
		return false, nil
	}
	t.State = update.State
	if update.CloseTime != nil {
		t.CloseTime = update.CloseTime
	}
	if update.ClosePrice != nil {
		t.ClosePrice = *update.ClosePrice
	}
	if update.CloseReason != "" {
		t.CloseReason = update.CloseReason
	}
	if update.StopLoss != nil {
		t.StopLoss = *update.StopLoss
	}
	if update.TakeProfit != nil {
		t.TakeProfit = *update.TakeProfit
	}
	if update.MaxAdverse != nil {
		t.MaxAdverse = *update.MaxAdverse
	}
	if update.MaxFavorable != nil {
		t.MaxFavorable = *update.MaxFavorable
	}
	return true, nil
}

func (s *memStore) QueryClosedOutcomes(ctx context.Context, symbol string, dir models.Direction, limit int) ([]models.ClosedOutcome, error) {
	return nil, nil
}
func (s *memStore) Health(ctx context.Context) error { return nil }
func (s *memStore) Close() error                     { return nil }

type captureSink struct {
	events []models.NotificationEvent
}

func (c *captureSink) Emit(ctx context.Context, ev models.NotificationEvent) error {
	c.events = append(c.events, ev)
	return nil
}
func (c *captureSink) Close() error { return nil }

func openTrade(dir models.Direction) *models.Trade {
	entry, sl, tp := 1000.0, 950.0, 1100.0
	if dir == models.Sell {
		sl, tp = 1050.0, 900.0
	}
	return &models.Trade{
		ID:          "trade-1",
		Signal:      models.Signal{ID: "sig-1", Symbol: "GOLD", Direction: dir},
		Direction:   dir,
		EntryPrice:  entry,
		InitialStop: sl,
		StopLoss:    sl,
		TakeProfit:  tp,
		Size:        1,
		State:       models.StateOpen,
		OpenTime:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func barAt(t *models.Trade, offset time.Duration, o, h, l, c float64) models.Candle {
	return models.Candle{OpenTime: t.OpenTime.Add(offset), Open: o, High: h, Low: l, Close: c, Volume: 1}
}

func newTestMachine(store *memStore, sink *captureSink, policy Policy) *Machine {
	return NewMachine(store, sink, nil, nil, policy)
}

func TestOnBarStopLossClosesAtLevel(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{}
	m := newTestMachine(store, sink, Policy{})

	trade := openTrade(models.Buy)
	store.CreateTrade(context.Background(), trade)

	bar := barAt(trade, time.Hour, 960, 965, 940, 945)
	state, err := m.OnBar(context.Background(), trade, bar)
	if err != nil {
		t.Fatalf("on bar: %v", err)
	}
	if state != models.StateClosedBySl {
		t.Fatalf("state = %s, want ClosedBySl", state)
	}
	// Exit fills at the breached level, not the bar extreme.
	if trade.ClosePrice != 950 {
		t.Fatalf("close price = %v, want 950", trade.ClosePrice)
	}
	if len(sink.events) != 1 || sink.events[0].Kind != models.EventClosedBySl {
		t.Fatalf("events = %+v, want one ClosedBySl", sink.events)
	}
	stored, _ := store.GetTrade(context.Background(), trade.ID)
	if stored.State != models.StateClosedBySl {
		t.Fatalf("stored state = %s, want ClosedBySl", stored.State)
	}
}

func TestOnBarStopBeatsTargetSameBar(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{}
	m := newTestMachine(store, sink, Policy{})

	trade := openTrade(models.Sell)
	store.CreateTrade(context.Background(), trade)

	// One bar sweeps through both the stop at 1050 and the target at 900.
	bar := barAt(trade, time.Hour, 1000, 1060, 890, 950)
	state, err := m.OnBar(context.Background(), trade, bar)
	if err != nil {
		t.Fatalf("on bar: %v", err)
	}
	if state != models.StateClosedBySl {
		t.Fatalf("state = %s, want ClosedBySl", state)
	}
	if trade.ClosePrice != 1050 {
		t.Fatalf("close price = %v, want stop level 1050", trade.ClosePrice)
	}
}

func TestOnBarTPFirstPolicy(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{}
	m := newTestMachine(store, sink, Policy{TPFirst: true})

	trade := openTrade(models.Sell)
	store.CreateTrade(context.Background(), trade)

	bar := barAt(trade, time.Hour, 1000, 1060, 890, 950)
	state, err := m.OnBar(context.Background(), trade, bar)
	if err != nil {
		t.Fatalf("on bar: %v", err)
	}
	if state != models.StateClosedByTp {
		t.Fatalf("state = %s, want ClosedByTp under TPFirst", state)
	}
	if trade.ClosePrice != 900 {
		t.Fatalf("close price = %v, want target level 900", trade.ClosePrice)
	}
}

func TestOnBarTerminalIsNoOp(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{}
	m := newTestMachine(store, sink, Policy{})

	trade := openTrade(models.Buy)
	trade.State = models.StateClosedByTp
	store.CreateTrade(context.Background(), trade)

	bar := barAt(trade, time.Hour, 960, 965, 940, 945)
	state, err := m.OnBar(context.Background(), trade, bar)
	if err != nil {
		t.Fatalf("on bar: %v", err)
	}
	if state != models.StateClosedByTp {
		t.Fatalf("state = %s, want unchanged ClosedByTp", state)
	}
	if len(sink.events) != 0 {
		t.Fatalf("events = %+v, want none for terminal trade", sink.events)
	}
}

func TestOnBarLostRaceEmitsNoSecondEvent(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{}
	m := newTestMachine(store, sink, Policy{})

	trade := openTrade(models.Buy)
	store.CreateTrade(context.Background(), trade)

	bar := barAt(trade, time.Hour, 960, 965, 940, 945)
	if _, err := m.OnBar(context.Background(), trade, bar); err != nil {
		t.Fatalf("first on bar: %v", err)
	}

	// A second worker still holds the trade as open.
	stale := openTrade(models.Buy)
	state, err := m.OnBar(context.Background(), stale, bar)
	if err != nil {
		t.Fatalf("second on bar: %v", err)
	}
	if state != models.StateClosedBySl {
		t.Fatalf("state = %s, want stored ClosedBySl after conflict", state)
	}
	if len(sink.events) != 1 {
		t.Fatalf("events = %d, want exactly one per transition", len(sink.events))
	}
}

func TestOnBarExpiresAfterMaxHolding(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{}
	m := newTestMachine(store, sink, Policy{MaxHolding: 48 * time.Hour})

	trade := openTrade(models.Buy)
	store.CreateTrade(context.Background(), trade)

	bar := barAt(trade, 72*time.Hour, 1005, 1010, 1000, 1002)
	state, err := m.OnBar(context.Background(), trade, bar)
	if err != nil {
		t.Fatalf("on bar: %v", err)
	}
	if state != models.StateExpired {
		t.Fatalf("state = %s, want Expired", state)
	}
	if trade.ClosePrice != 1002 {
		t.Fatalf("close price = %v, want bar close 1002", trade.ClosePrice)
	}
	if len(sink.events) != 1 || sink.events[0].Kind != models.EventTradeExpired {
		t.Fatalf("events = %+v, want one TradeExpired", sink.events)
	}
}

func TestOnBarRecordsExcursions(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{}
	m := newTestMachine(store, sink, Policy{})

	trade := openTrade(models.Buy)
	store.CreateTrade(context.Background(), trade)

	bar := barAt(trade, time.Hour, 1000, 1030, 980, 1020)
	state, err := m.OnBar(context.Background(), trade, bar)
	if err != nil {
		t.Fatalf("on bar: %v", err)
	}
	if state != models.StateOpen {
		t.Fatalf("state = %s, want still Open", state)
	}
	if trade.MaxAdverse != 20 || trade.MaxFavorable != 30 {
		t.Fatalf("excursions = %v/%v, want 20/30", trade.MaxAdverse, trade.MaxFavorable)
	}
	if len(sink.events) != 0 {
		t.Fatalf("events = %+v, want none without a transition", sink.events)
	}
	stored, _ := store.GetTrade(context.Background(), trade.ID)
	if stored.MaxAdverse != 20 || stored.MaxFavorable != 30 {
		t.Fatalf("stored excursions = %v/%v, want 20/30", stored.MaxAdverse, stored.MaxFavorable)
	}
}

func TestApplyAdjustmentMovesStopAndEmits(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{}
	m := newTestMachine(store, sink, Policy{})

	trade := openTrade(models.Buy)
	store.CreateTrade(context.Background(), trade)

	newStop := trade.EntryPrice
	adj := &models.Adjustment{
		Kind:        models.AdjustBreakEven,
		NewStopLoss: &newStop,
		Reason:      "move stop to break-even at 1.2R",
	}
	now := trade.OpenTime.Add(2 * time.Hour)
	if err := m.ApplyAdjustment(context.Background(), trade, adj, 1055, now); err != nil {
		t.Fatalf("apply adjustment: %v", err)
	}
	if trade.StopLoss != 1000 {
		t.Fatalf("stop = %v, want 1000", trade.StopLoss)
	}
	if len(sink.events) != 1 {
		t.Fatalf("events = %d, want one", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Kind != models.EventAdjustmentApplied || ev.OldStopLoss != 950 || ev.NewStopLoss != 1000 {
		t.Fatalf("event = %+v, want adjustment with old 950 new 1000", ev)
	}
	stored, _ := store.GetTrade(context.Background(), trade.ID)
	if stored.State != models.StateOpen || stored.StopLoss != 1000 {
		t.Fatalf("stored = %s/%v, want Open with stop 1000", stored.State, stored.StopLoss)
	}
}

func TestApplyAdjustmentCloseEarly(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{}
	m := newTestMachine(store, sink, Policy{})

	trade := openTrade(models.Buy)
	store.CreateTrade(context.Background(), trade)

	adj := &models.Adjustment{Kind: models.AdjustCloseEarly, Reason: "held beyond median winner holding"}
	now := trade.OpenTime.Add(90 * time.Hour)
	if err := m.ApplyAdjustment(context.Background(), trade, adj, 1003, now); err != nil {
		t.Fatalf("apply adjustment: %v", err)
	}
	if trade.State != models.StateClosedManual {
		t.Fatalf("state = %s, want ClosedManual", trade.State)
	}
	if trade.ClosePrice != 1003 {
		t.Fatalf("close price = %v, want 1003", trade.ClosePrice)
	}
	if len(sink.events) != 1 || sink.events[0].Kind != models.EventClosedManual {
		t.Fatalf("events = %+v, want one ClosedManual", sink.events)
	}
}
