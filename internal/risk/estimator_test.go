package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
)

// stubStore serves canned closed-trade history; all other store
// operations are unused by the estimator.
type stubStore struct {
	outcomes []models.ClosedOutcome
	err      error
}

func (s *stubStore) Init(ctx context.Context) error                          { return nil }
func (s *stubStore) SaveSignal(ctx context.Context, sig *models.Signal) error { return nil }
func (s *stubStore) RecentSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	return nil, nil
}
func (s *stubStore) CreateTrade(ctx context.Context, t *models.Trade) error { return nil }
func (s *stubStore) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	return nil, nil
}
func (s *stubStore) OpenTrades(ctx context.Context, symbol string) ([]*models.Trade, error) {
	return nil, nil
}
func (s *stubStore) TradesByState(ctx context.Context, state models.TradeState, limit int) ([]*models.Trade, error) {
	return nil, nil
}
func (s *stubStore) CompareAndSetTrade(ctx context.Context, id string, expected models.TradeState, update models.TradeUpdate) (bool, error) {
	return false, nil
}
func (s *stubStore) QueryClosedOutcomes(ctx context.Context, symbol string, dir models.Direction, limit int) ([]models.ClosedOutcome, error) {
	return s.outcomes, s.err
}
func (s *stubStore) Health(ctx context.Context) error { return nil }
func (s *stubStore) Close() error                     { return nil }

// steadySeries builds candles with a constant true range of 10 so the
// Wilder ATR is exactly 10.
func steadySeries(t *testing.T, n int) *models.CandleSeries {
	t.Helper()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = models.Candle{
			OpenTime: t0.Add(time.Duration(i) * 4 * time.Hour),
			Open:     1000, High: 1005, Low: 995, Close: 1000,
			Volume: 1,
		}
	}
	s, err := models.NewCandleSeries("GOLD", "240m", candles)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	return s
}

func testEstimatorConfig() Config {
	return Config{
		ATRPeriod:    3,
		StopATRMult:  1.0,
		FallbackRR:   2.0,
		MinSamples:   10,
		Equity:       10000,
		RiskFraction: 0.01,
		PointValue:   1.0,
	}
}

func buySignal() *models.Signal {
	return &models.Signal{
		ID:         "sig-1",
		Symbol:     "GOLD",
		Direction:  models.Buy,
		Time:       time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		EntryPrice: 1000,
	}
}

func TestEstimateSizingFromRiskFraction(t *testing.T) {
	est := NewDynamicEstimator(testEstimatorConfig(), &stubStore{}, nil)

	series := steadySeries(t, 6)
	sc := SignalContext{
		Signal: buySignal(),
		H4:     series,
		H1:     series,
		Swings: []models.SwingPoint{
			{Index: 2, Price: 960, Kind: models.SwingLow},
		},
	}

	plan, err := est.EstimateForNewSignal(context.Background(), sc)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	// Swing low 960 minus one ATR of 10 puts the stop 50 under entry.
	if plan.StopLoss != 950 {
		t.Fatalf("stop = %v, want 950", plan.StopLoss)
	}
	if plan.RiskAmount != 100 {
		t.Fatalf("risk amount = %v, want 100", plan.RiskAmount)
	}
	if plan.Size != 2.0 {
		t.Fatalf("size = %v, want 2.0", plan.Size)
	}
	// Thin history falls back to 2R.
	if plan.TakeProfit != 1100 {
		t.Fatalf("target = %v, want 1100", plan.TakeProfit)
	}
}

func TestEstimateTargetFromMedianMFE(t *testing.T) {
	outcomes := make([]models.ClosedOutcome, 12)
	for i := range outcomes {
		outcomes[i] = models.ClosedOutcome{MFE: 80, MAE: 20, RMult: 1}
	}
	est := NewDynamicEstimator(testEstimatorConfig(), &stubStore{outcomes: outcomes}, nil)

	series := steadySeries(t, 6)
	sc := SignalContext{
		Signal: buySignal(),
		H4:     series,
		H1:     series,
		Swings: []models.SwingPoint{{Index: 2, Price: 960, Kind: models.SwingLow}},
	}

	plan, err := est.EstimateForNewSignal(context.Background(), sc)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if plan.TakeProfit != 1080 {
		t.Fatalf("target = %v, want median MFE target 1080", plan.TakeProfit)
	}
}

func TestEstimateSellMirrorsStopSide(t *testing.T) {
	est := NewDynamicEstimator(testEstimatorConfig(), &stubStore{}, nil)

	series := steadySeries(t, 6)
	sig := buySignal()
	sig.Direction = models.Sell
	sc := SignalContext{
		Signal: sig,
		H4:     series,
		H1:     series,
		Swings: []models.SwingPoint{{Index: 2, Price: 1040, Kind: models.SwingHigh}},
	}

	plan, err := est.EstimateForNewSignal(context.Background(), sc)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if plan.StopLoss != 1050 {
		t.Fatalf("stop = %v, want 1050", plan.StopLoss)
	}
	if plan.TakeProfit != 900 {
		t.Fatalf("target = %v, want 900", plan.TakeProfit)
	}
}

func TestEstimateInvalidWithoutATR(t *testing.T) {
	est := NewDynamicEstimator(testEstimatorConfig(), &stubStore{}, nil)

	series := steadySeries(t, 2) // too short for a seeded ATR
	sc := SignalContext{Signal: buySignal(), H4: series, H1: series}

	if _, err := est.EstimateForNewSignal(context.Background(), sc); !errors.Is(err, ErrInvalidRiskPlan) {
		t.Fatalf("err = %v, want ErrInvalidRiskPlan", err)
	}
}

func TestEstimateStoreErrorFallsBackToFixedRR(t *testing.T) {
	est := NewDynamicEstimator(testEstimatorConfig(), &stubStore{err: errors.New("unavailable")}, nil)

	series := steadySeries(t, 6)
	sc := SignalContext{
		Signal: buySignal(),
		H4:     series,
		H1:     series,
		Swings: []models.SwingPoint{{Index: 2, Price: 960, Kind: models.SwingLow}},
	}

	plan, err := est.EstimateForNewSignal(context.Background(), sc)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if plan.TakeProfit != 1100 {
		t.Fatalf("target = %v, want fallback 1100", plan.TakeProfit)
	}
}

func openBuyTrade() *models.Trade {
	return &models.Trade{
		ID:          "trade-1",
		Signal:      *buySignal(),
		Direction:   models.Buy,
		EntryPrice:  100,
		InitialStop: 96,
		StopLoss:    96,
		TakeProfit:  110,
		Size:        1,
		State:       models.StateOpen,
		OpenTime:    time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestAdjustBreakEvenAtOneR(t *testing.T) {
	est := NewDynamicEstimator(testEstimatorConfig(), &stubStore{}, nil)

	an := &models.TradeAnalytics{
		Trade:        openBuyTrade(),
		CurrentPrice: 104.8,
		UnrealizedR:  1.2,
		ATRH4:        2,
	}
	adj, err := est.EvaluateAdjustment(context.Background(), an)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if adj == nil || adj.Kind != models.AdjustBreakEven {
		t.Fatalf("adjustment = %+v, want break-even", adj)
	}
	if adj.NewStopLoss == nil || *adj.NewStopLoss != 100 {
		t.Fatalf("new stop = %v, want entry 100", adj.NewStopLoss)
	}
}

func TestAdjustTrailAfterBreakEven(t *testing.T) {
	est := NewDynamicEstimator(testEstimatorConfig(), &stubStore{}, nil)

	trade := openBuyTrade()
	trade.StopLoss = trade.EntryPrice // break-even already applied
	an := &models.TradeAnalytics{
		Trade:        trade,
		CurrentPrice: 110,
		UnrealizedR:  2.5,
		ATRH4:        2,
	}
	adj, err := est.EvaluateAdjustment(context.Background(), an)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if adj == nil || adj.Kind != models.AdjustTrail {
		t.Fatalf("adjustment = %+v, want trail", adj)
	}
	if adj.NewStopLoss == nil || *adj.NewStopLoss != 108 {
		t.Fatalf("new stop = %v, want 108", adj.NewStopLoss)
	}
}

func TestAdjustTrailMeasuresRAgainstInitialRisk(t *testing.T) {
	est := NewDynamicEstimator(testEstimatorConfig(), &stubStore{}, nil)

	trade := openBuyTrade()
	trade.StopLoss = trade.EntryPrice // stop already moved to break-even

	// 10 points of profit over 4 points of initial risk is 2.5R even
	// though the current stop sits at entry.
	r := trade.UnrealizedR(110)
	if r != 2.5 {
		t.Fatalf("unrealized R = %v, want 2.5", r)
	}

	an := &models.TradeAnalytics{
		Trade:        trade,
		CurrentPrice: 110,
		UnrealizedR:  r,
		ATRH4:        2,
	}
	adj, err := est.EvaluateAdjustment(context.Background(), an)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if adj == nil || adj.Kind != models.AdjustTrail {
		t.Fatalf("adjustment = %+v, want trail at 2.5R", adj)
	}
}

func TestAdjustTrailNeverLoosensStop(t *testing.T) {
	est := NewDynamicEstimator(testEstimatorConfig(), &stubStore{}, nil)

	trade := openBuyTrade()
	trade.StopLoss = 109 // already tighter than the trailed level
	an := &models.TradeAnalytics{
		Trade:        trade,
		CurrentPrice: 110,
		UnrealizedR:  2.5,
		ATRH4:        2,
	}
	adj, err := est.EvaluateAdjustment(context.Background(), an)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if adj != nil {
		t.Fatalf("adjustment = %+v, want none", adj)
	}
}

func TestAdjustCloseStaleTrade(t *testing.T) {
	outcomes := []models.ClosedOutcome{
		{RMult: 1.5, Holding: 2 * time.Hour},
		{RMult: 0.8, Holding: 2 * time.Hour},
		{RMult: -1, Holding: 6 * time.Hour},
	}
	est := NewDynamicEstimator(testEstimatorConfig(), &stubStore{outcomes: outcomes}, nil)

	an := &models.TradeAnalytics{
		Trade:              openBuyTrade(),
		CurrentPrice:       100.5,
		UnrealizedR:        0.1,
		Holding:            5 * time.Hour, // winners median 2h, limit 4h
		FavorableStructure: false,
	}
	adj, err := est.EvaluateAdjustment(context.Background(), an)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if adj == nil || adj.Kind != models.AdjustCloseEarly {
		t.Fatalf("adjustment = %+v, want close-early", adj)
	}
}

func TestAdjustStaleSkippedWithFavorableStructure(t *testing.T) {
	outcomes := []models.ClosedOutcome{{RMult: 1, Holding: time.Hour}}
	est := NewDynamicEstimator(testEstimatorConfig(), &stubStore{outcomes: outcomes}, nil)

	an := &models.TradeAnalytics{
		Trade:              openBuyTrade(),
		CurrentPrice:       100.5,
		UnrealizedR:        0.1,
		Holding:            10 * time.Hour,
		FavorableStructure: true,
	}
	adj, err := est.EvaluateAdjustment(context.Background(), an)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if adj != nil {
		t.Fatalf("adjustment = %+v, want none while structure holds", adj)
	}
}

func TestComputeStatsMedians(t *testing.T) {
	outcomes := []models.ClosedOutcome{
		{MAE: 10, MFE: 30, RMult: 1, Holding: time.Hour},
		{MAE: 20, MFE: 50, RMult: 2, Holding: 3 * time.Hour},
		{MAE: 30, MFE: 100, RMult: -1, Holding: 8 * time.Hour},
	}
	stats := ComputeStats("GOLD", models.Buy, outcomes)
	if stats.Count != 3 {
		t.Fatalf("count = %d, want 3", stats.Count)
	}
	if stats.MedianMAE != 20 || stats.MedianMFE != 50 {
		t.Fatalf("medians = %v/%v, want 20/50", stats.MedianMAE, stats.MedianMFE)
	}
	if stats.MedianWinHolding != 3*time.Hour {
		t.Fatalf("median win holding = %v, want 3h", stats.MedianWinHolding)
	}
}
