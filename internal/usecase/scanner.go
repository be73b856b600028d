// Package usecase wires the detectors, strategy, risk estimator and
// lifecycle machine into the per-symbol scan cycle.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/predeshen/yfinance-trading-signal/internal/analysis"
	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	domrepo "github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
	"github.com/predeshen/yfinance-trading-signal/internal/lifecycle"
	"github.com/predeshen/yfinance-trading-signal/internal/risk"
	"github.com/predeshen/yfinance-trading-signal/internal/strategy"
	pkgcache "github.com/predeshen/yfinance-trading-signal/pkg/cache"
	applogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
)

// SymbolMapping pairs a display alias with the provider ticker.
type SymbolMapping struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// ScannerConfig tunes the scan cycle.
type ScannerConfig struct {
	Symbols     []SymbolMapping
	MinBars     int
	SwingWindow int
	LockTTL     time.Duration
}

// Scanner runs one evaluation per symbol per cycle: open trades first,
// then at most one new signal. A redis lock per symbol keeps concurrent
// workers from double-scanning.
type Scanner struct {
	cfg       ScannerConfig
	builder   *ContextBuilder
	strategy  strategy.Strategy
	estimator risk.Estimator
	machine   *lifecycle.Machine
	store     domrepo.OutcomeStore
	sink      domrepo.NotificationSink
	locks     pkgcache.Service
	metrics   domrepo.Metrics
	log       *applogger.Logger

	mu     sync.Mutex
	lastH4 map[string]time.Time
}

func NewScanner(
	cfg ScannerConfig,
	builder *ContextBuilder,
	strat strategy.Strategy,
	estimator risk.Estimator,
	machine *lifecycle.Machine,
	store domrepo.OutcomeStore,
	sink domrepo.NotificationSink,
	locks pkgcache.Service,
	metrics domrepo.Metrics,
	log *applogger.Logger,
) *Scanner {
	if cfg.MinBars <= 0 {
		cfg.MinBars = 50
	}
	if cfg.SwingWindow <= 0 {
		cfg.SwingWindow = analysis.DefaultSwingWindow
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Scanner{
		cfg:       cfg,
		builder:   builder,
		strategy:  strat,
		estimator: estimator,
		machine:   machine,
		store:     store,
		sink:      sink,
		locks:     locks,
		metrics:   metrics,
		log:       log,
		lastH4:    make(map[string]time.Time),
	}
}

// Symbols returns the configured symbol mappings.
func (s *Scanner) Symbols() []SymbolMapping { return s.cfg.Symbols }

// ScanCycle scans every configured symbol once and records a heartbeat.
func (s *Scanner) ScanCycle(ctx context.Context) {
	start := time.Now()
	for _, sym := range s.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		if err := s.ScanSymbol(ctx, sym); err != nil {
			s.metrics.RecordError("scan_symbol")
			s.log.Error("scan symbol failed",
				applogger.String("symbol", sym.Name), applogger.Error(err))
		}
	}
	s.metrics.RecordHeartbeat()
	s.metrics.RecordLatency("scan_cycle", time.Since(start).Seconds())
}

// ScanSymbol evaluates one symbol: open-trade maintenance first so an
// exit on the current bar is never preempted by a new entry.
func (s *Scanner) ScanSymbol(ctx context.Context, sym SymbolMapping) error {
	lockKey := "scan:" + sym.Name
	if s.locks != nil {
		ok, err := s.locks.TryLock(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("scan lock unavailable, proceeding unlocked",
				applogger.String("symbol", sym.Name), applogger.Error(err))
		} else if !ok {
			return nil // another worker holds it
		} else {
			defer func() { _ = s.locks.Unlock(context.Background(), lockKey) }()
		}
	}

	start := time.Now()
	mtf, err := s.builder.Build(ctx, sym.Name, sym.Provider, time.Now().UTC())
	if err != nil {
		return err
	}
	s.metrics.RecordLatency("build_context", time.Since(start).Seconds())
	s.metrics.RecordLastPrice(sym.Name, mtf.CurrentPrice)

	if err := s.maintainOpenTrades(ctx, sym.Name, mtf); err != nil {
		return err
	}
	return s.evaluateNewSignal(ctx, sym, mtf)
}

func (s *Scanner) maintainOpenTrades(ctx context.Context, symbol string, mtf *models.MultiTimeframeContext) error {
	trades, err := s.store.OpenTrades(ctx, symbol)
	if err != nil {
		return fmt.Errorf("open trades %s: %w", symbol, err)
	}
	s.metrics.RecordOpenTrades(symbol, len(trades))
	if len(trades) == 0 {
		return nil
	}
	bar, ok := mtf.M1.Last()
	if !ok {
		return fmt.Errorf("open trades %s: no M1 bars", symbol)
	}

	for _, trade := range trades {
		state, err := s.machine.OnBar(ctx, trade, bar)
		if err != nil {
			if errors.Is(err, lifecycle.ErrStateConflict) {
				continue // next cycle re-reads
			}
			return fmt.Errorf("on bar %s: %w", trade.ID, err)
		}
		if state.Terminal() {
			continue
		}

		an, err := s.strategy.EvaluateOpenTrade(ctx, trade, mtf)
		if err != nil {
			s.log.Warn("open trade evaluation failed",
				applogger.String("trade_id", trade.ID), applogger.Error(err))
			continue
		}
		adj, err := s.estimator.EvaluateAdjustment(ctx, an)
		if err != nil {
			s.log.Warn("adjustment evaluation failed",
				applogger.String("trade_id", trade.ID), applogger.Error(err))
			continue
		}
		if adj == nil {
			continue
		}
		if err := s.machine.ApplyAdjustment(ctx, trade, adj, mtf.CurrentPrice, mtf.Now); err != nil {
			if errors.Is(err, lifecycle.ErrStateConflict) {
				continue
			}
			return fmt.Errorf("apply adjustment %s: %w", trade.ID, err)
		}
		s.log.Info("adjustment applied",
			applogger.String("trade_id", trade.ID),
			applogger.String("kind", string(adj.Kind)),
			applogger.String("reason", adj.Reason),
		)
	}
	return nil
}

func (s *Scanner) evaluateNewSignal(ctx context.Context, sym SymbolMapping, mtf *models.MultiTimeframeContext) error {
	head, ok := mtf.H4.Last()
	if !ok {
		return fmt.Errorf("evaluate %s: no H4 bars", sym.Name)
	}

	// One evaluation per H4 bar regardless of the signal's fate: the
	// bar counts as seen even when no signal comes out of it.
	s.mu.Lock()
	last := s.lastH4[sym.Name]
	s.lastH4[sym.Name] = head.OpenTime
	s.mu.Unlock()

	sig, err := s.strategy.EvaluateNewSignal(ctx, mtf, last)
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", sym.Name, err)
	}
	if sig == nil {
		return nil
	}

	swings := analysis.FindSwings(mtf.H4.Candles(), s.cfg.SwingWindow)
	plan, err := s.estimator.EstimateForNewSignal(ctx, risk.SignalContext{
		Signal: sig,
		H4:     mtf.H4,
		H1:     mtf.H1,
		Swings: swings,
	})
	if err != nil {
		if errors.Is(err, risk.ErrInvalidRiskPlan) {
			s.metrics.RecordError("invalid_risk_plan")
			s.log.Warn("signal rejected by risk",
				applogger.String("symbol", sym.Name), applogger.Error(err))
			return nil
		}
		return fmt.Errorf("estimate risk %s: %w", sym.Name, err)
	}

	stopDist := sig.EntryPrice - plan.StopLoss
	if stopDist < 0 {
		stopDist = -stopDist
	}
	tpDist := plan.TakeProfit - sig.EntryPrice
	if tpDist < 0 {
		tpDist = -tpDist
	}
	if stopDist > 0 {
		sig.EstimatedRR = tpDist / stopDist
	}

	if err := s.store.SaveSignal(ctx, sig); err != nil {
		return fmt.Errorf("save signal %s: %w", sym.Name, err)
	}

	trade, err := models.NewTrade(uuid.NewString(), *sig, plan, mtf.Now)
	if err != nil {
		s.metrics.RecordError("trade_create")
		return fmt.Errorf("new trade %s: %w", sym.Name, err)
	}
	if err := s.store.CreateTrade(ctx, trade); err != nil {
		return fmt.Errorf("create trade %s: %w", sym.Name, err)
	}

	s.metrics.RecordSignal(sig.Symbol, string(sig.Direction))
	s.log.Info("signal accepted",
		applogger.String("symbol", sig.Symbol),
		applogger.String("direction", string(sig.Direction)),
		applogger.Float64("entry", sig.EntryPrice),
		applogger.Float64("stop", plan.StopLoss),
		applogger.Float64("target", plan.TakeProfit),
		applogger.Float64("size", plan.Size),
		applogger.String("notes", sig.Notes),
	)

	if s.sink != nil {
		ev := models.NotificationEvent{
			ID:         uuid.NewString(),
			Kind:       models.EventSignalAccepted,
			Symbol:     sig.Symbol,
			TradeID:    trade.ID,
			Direction:  sig.Direction,
			Time:       sig.Time,
			EntryPrice: sig.EntryPrice,
			StopLoss:   plan.StopLoss,
			TakeProfit: plan.TakeProfit,
			Size:       plan.Size,
			RR:         sig.EstimatedRR,
			Notes:      sig.Notes,
		}
		if err := s.sink.Emit(ctx, ev); err != nil {
			s.metrics.RecordError("notification_emit")
			s.log.Error("emit signal event", applogger.Error(err))
		}
	}
	return nil
}
