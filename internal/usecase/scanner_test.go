package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	domrepo "github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
	"github.com/predeshen/yfinance-trading-signal/internal/lifecycle"
	"github.com/predeshen/yfinance-trading-signal/internal/risk"
	applogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
)

// fakeProvider serves one synthetic series for every timeframe.
type fakeProvider struct {
	price    float64
	priceErr error
}

func (f *fakeProvider) GetSeries(ctx context.Context, symbol string, tf domrepo.Timeframe, lookback time.Duration) (*models.CandleSeries, error) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, 20)
	for i := range candles {
		candles[i] = models.Candle{
			OpenTime: t0.Add(time.Duration(i) * tf.Duration()),
			Open:     1000, High: 1005, Low: 995, Close: 1000,
			Volume: 1,
		}
	}
	return models.NewCandleSeries(symbol, string(tf), candles)
}

func (f *fakeProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	return f.price, nil
}

// memStore mirrors compare-and-set semantics in memory.
type memStore struct {
	trades  map[string]*models.Trade
	signals []models.Signal
}

func newMemStore() *memStore { return &memStore{trades: make(map[string]*models.Trade)} }

func (s *memStore) Init(ctx context.Context) error { return nil }
func (s *memStore) SaveSignal(ctx context.Context, sig *models.Signal) error {
	s.signals = append(s.signals, *sig)
	return nil
}
func (s *memStore) RecentSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	return s.signals, nil
}
func (s *memStore) CreateTrade(ctx context.Context, t *models.Trade) error {
	cp := *t
	s.trades[t.ID] = &cp
	return nil
}
func (s *memStore) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	if t, ok := s.trades[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}
func (s *memStore) OpenTrades(ctx context.Context, symbol string) ([]*models.Trade, error) {
	var out []*models.Trade
	for _, t := range s.trades {
		if t.State == models.StateOpen && (symbol == "" || t.Signal.Symbol == symbol) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
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

type nopMetrics struct {
	heartbeats int
}

func (m *nopMetrics) RecordSignal(symbol, direction string)    {}
func (m *nopMetrics) RecordTransition(symbol, state string)    {}
func (m *nopMetrics) RecordError(kind string)                  {}
func (m *nopMetrics) RecordLastPrice(symbol string, p float64) {}
func (m *nopMetrics) RecordLatency(op string, s float64)       {}
func (m *nopMetrics) RecordHeartbeat()                         { m.heartbeats++ }
func (m *nopMetrics) RecordOpenTrades(symbol string, n int)    {}

// stubStrategy emits one fixed signal, then goes quiet. It records the
// lastH4 timestamp each evaluation receives.
type stubStrategy struct {
	signal *models.Signal
	fired  bool
	seenH4 []time.Time
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) EvaluateNewSignal(ctx context.Context, mtf *models.MultiTimeframeContext, lastH4 time.Time) (*models.Signal, error) {
	s.seenH4 = append(s.seenH4, lastH4)
	if s.fired || s.signal == nil {
		return nil, nil
	}
	s.fired = true
	return s.signal, nil
}

func (s *stubStrategy) EvaluateOpenTrade(ctx context.Context, trade *models.Trade, mtf *models.MultiTimeframeContext) (*models.TradeAnalytics, error) {
	return &models.TradeAnalytics{
		Trade:        trade,
		CurrentPrice: mtf.CurrentPrice,
		UnrealizedR:  trade.UnrealizedR(mtf.CurrentPrice),
		Holding:      mtf.Now.Sub(trade.OpenTime),
	}, nil
}

type stubEstimator struct {
	plan models.RiskPlan
	err  error
}

func (e *stubEstimator) EstimateForNewSignal(ctx context.Context, sc risk.SignalContext) (models.RiskPlan, error) {
	return e.plan, e.err
}

func (e *stubEstimator) EvaluateAdjustment(ctx context.Context, an *models.TradeAnalytics) (*models.Adjustment, error) {
	return nil, nil
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testScanner(t *testing.T, store *memStore, sink *captureSink, strat *stubStrategy, est *stubEstimator, metrics *nopMetrics) *Scanner {
	t.Helper()
	log := testLogger(t)
	machine := lifecycle.NewMachine(store, sink, metrics, log, lifecycle.Policy{})
	builder := NewContextBuilder(&fakeProvider{price: 1000})
	cfg := ScannerConfig{
		Symbols: []SymbolMapping{{Name: "GOLD", Provider: "GC=F"}},
		MinBars: 10,
	}
	return NewScanner(cfg, builder, strat, est, machine, store, sink, nil, metrics, log)
}

func TestScanSymbolCreatesTradeOnSignal(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{}
	strat := &stubStrategy{signal: &models.Signal{
		ID:         "sig-1",
		Symbol:     "GOLD",
		Direction:  models.Buy,
		Time:       time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		EntryPrice: 1000,
	}}
	est := &stubEstimator{plan: models.RiskPlan{StopLoss: 950, TakeProfit: 1100, RiskAmount: 100, Size: 2}}
	s := testScanner(t, store, sink, strat, est, &nopMetrics{})

	if err := s.ScanSymbol(context.Background(), SymbolMapping{Name: "GOLD", Provider: "GC=F"}); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(store.signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(store.signals))
	}
	if store.signals[0].EstimatedRR != 2.0 {
		t.Fatalf("rr = %v, want 2.0", store.signals[0].EstimatedRR)
	}
	if len(store.trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(store.trades))
	}
	for _, trade := range store.trades {
		if trade.State != models.StateOpen || trade.StopLoss != 950 {
			t.Fatalf("trade = %+v, want open with stop 950", trade)
		}
	}
	if len(sink.events) != 1 || sink.events[0].Kind != models.EventSignalAccepted {
		t.Fatalf("events = %+v, want one SignalAccepted", sink.events)
	}
}

func TestScanSymbolRejectsInvalidRiskPlan(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{}
	strat := &stubStrategy{signal: &models.Signal{
		ID: "sig-1", Symbol: "GOLD", Direction: models.Buy, EntryPrice: 1000,
	}}
	est := &stubEstimator{err: risk.ErrInvalidRiskPlan}
	s := testScanner(t, store, sink, strat, est, &nopMetrics{})

	if err := s.ScanSymbol(context.Background(), SymbolMapping{Name: "GOLD", Provider: "GC=F"}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(store.trades) != 0 {
		t.Fatalf("trades = %d, want none for rejected plan", len(store.trades))
	}
	if len(sink.events) != 0 {
		t.Fatalf("events = %+v, want none", sink.events)
	}
}

func TestScanSymbolClosesBreachedOpenTrade(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{}
	s := testScanner(t, store, sink, &stubStrategy{}, &stubEstimator{}, &nopMetrics{})

	// The fake provider's bars range 995 to 1005, so a stop at 996 is
	// breached by the last M1 bar.
	trade := &models.Trade{
		ID:          "trade-1",
		Signal:      models.Signal{ID: "sig-1", Symbol: "GOLD", Direction: models.Buy},
		Direction:   models.Buy,
		EntryPrice:  1001,
		InitialStop: 996,
		StopLoss:    996,
		TakeProfit:  1050,
		Size:        1,
		State:       models.StateOpen,
		OpenTime:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	store.CreateTrade(context.Background(), trade)

	if err := s.ScanSymbol(context.Background(), SymbolMapping{Name: "GOLD", Provider: "GC=F"}); err != nil {
		t.Fatalf("scan: %v", err)
	}

	stored, _ := store.GetTrade(context.Background(), "trade-1")
	if stored.State != models.StateClosedBySl {
		t.Fatalf("state = %s, want ClosedBySl", stored.State)
	}
	if stored.ClosePrice != 996 {
		t.Fatalf("close price = %v, want stop level 996", stored.ClosePrice)
	}
	if len(sink.events) != 1 || sink.events[0].Kind != models.EventClosedBySl {
		t.Fatalf("events = %+v, want one ClosedBySl", sink.events)
	}
}

func TestScanSymbolConsumesH4BarWithoutSignal(t *testing.T) {
	store := newMemStore()
	strat := &stubStrategy{} // never fires
	s := testScanner(t, store, &captureSink{}, strat, &stubEstimator{}, &nopMetrics{})

	sym := SymbolMapping{Name: "GOLD", Provider: "GC=F"}
	for i := 0; i < 2; i++ {
		if err := s.ScanSymbol(context.Background(), sym); err != nil {
			t.Fatalf("scan %d: %v", i, err)
		}
	}

	if len(strat.seenH4) != 2 {
		t.Fatalf("evaluations = %d, want 2", len(strat.seenH4))
	}
	if !strat.seenH4[0].IsZero() {
		t.Fatalf("first lastH4 = %v, want zero", strat.seenH4[0])
	}
	// The fake provider's newest H4 bar opens 19 bars after t0. A quiet
	// evaluation still marks it seen, so the second scan carries it.
	head := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(19 * 4 * time.Hour)
	if !strat.seenH4[1].Equal(head) {
		t.Fatalf("second lastH4 = %v, want %v", strat.seenH4[1], head)
	}
}

func TestBuildFallsBackToLastM1Close(t *testing.T) {
	b := NewContextBuilder(&fakeProvider{priceErr: errors.New("quote endpoint down")})

	mtf, err := b.Build(context.Background(), "GOLD", "GC=F", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if mtf.CurrentPrice != 1000 {
		t.Fatalf("price = %v, want last M1 close 1000", mtf.CurrentPrice)
	}
}

func TestScanCycleRecordsHeartbeat(t *testing.T) {
	store := newMemStore()
	metrics := &nopMetrics{}
	s := testScanner(t, store, &captureSink{}, &stubStrategy{}, &stubEstimator{}, metrics)

	s.ScanCycle(context.Background())
	if metrics.heartbeats != 1 {
		t.Fatalf("heartbeats = %d, want 1", metrics.heartbeats)
	}
}
