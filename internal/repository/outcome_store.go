package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	domrepo "github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
	pkgch "github.com/predeshen/yfinance-trading-signal/pkg/clickhouse"
	applogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
)

// Schema statements for the signal and trade tables. Trade rows are
// versioned; ReplacingMergeTree keeps the newest version per id and
// reads use FINAL.
var SchemaStatements = []string{
	`CREATE DATABASE IF NOT EXISTS scanner`,
	`CREATE TABLE IF NOT EXISTS scanner.signals (
        id String,
        symbol String,
        provider_symbol String,
        direction String,
        time DateTime64(3, 'UTC'),
        entry_price Float64,
        strategy String,
        notes String,
        rr Float64
    ) ENGINE=MergeTree ORDER BY (symbol, time)`,
	`CREATE TABLE IF NOT EXISTS scanner.trades (
        id String,
        signal_id String,
        symbol String,
        provider_symbol String,
        direction String,
        entry_price Float64,
        initial_stop Float64,
        stop_loss Float64,
        take_profit Float64,
        size Float64,
        state String,
        open_time DateTime64(3, 'UTC'),
        close_time DateTime64(3, 'UTC'),
        close_price Float64,
        close_reason String,
        max_adverse Float64,
        max_favorable Float64,
        strategy String,
        notes String,
        version UInt64
    ) ENGINE=ReplacingMergeTree(version) ORDER BY id`,
}

// CHOutcomeStore implements OutcomeStore backed by ClickHouse.
// ClickHouse has no transactional update, so the authoritative state of
// every non-terminal trade is held in memory under a mutex and each
// mutation appends a new row version. A single scanner instance owns
// the trades; the compare-and-set guards against concurrent workers
// inside that instance.
type CHOutcomeStore struct {
	db *sql.DB
	l  *applogger.Logger

	mu     sync.Mutex
	trades map[string]*models.Trade
}

func NewCHOutcomeStore(ch *pkgch.Client) *CHOutcomeStore {
	return &CHOutcomeStore{db: ch.DB(), trades: make(map[string]*models.Trade)}
}

// SetLogger injects a structured logger.
func (s *CHOutcomeStore) SetLogger(l *applogger.Logger) { s.l = l }

// Init creates the schema and warms the in-memory map with every open
// trade so state survives restarts.
func (s *CHOutcomeStore) Init(ctx context.Context) error {
	for _, stmt := range SchemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	open, err := s.loadTradesByState(ctx, models.StateOpen, 0)
	if err != nil {
		return fmt.Errorf("load open trades: %w", err)
	}
	s.mu.Lock()
	for _, t := range open {
		s.trades[t.ID] = t
	}
	s.mu.Unlock()

	if s.l != nil {
		s.l.Info("outcome store initialized", applogger.Int("open_trades", len(open)))
	}
	return nil
}

func (s *CHOutcomeStore) SaveSignal(ctx context.Context, sig *models.Signal) error {
	const q = `INSERT INTO scanner.signals
        (id, symbol, provider_symbol, direction, time, entry_price, strategy, notes, rr)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		sig.ID, sig.Symbol, sig.ProviderSymbol, string(sig.Direction),
		sig.Time, sig.EntryPrice, sig.StrategyName, sig.Notes, sig.EstimatedRR,
	)
	if err != nil {
		return fmt.Errorf("save signal: %w", err)
	}
	return nil
}

func (s *CHOutcomeStore) RecentSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	const q = `SELECT id, symbol, provider_symbol, direction, time, entry_price, strategy, notes, rr
        FROM scanner.signals ORDER BY time DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("recent signals: %w", err)
	}
	defer rows.Close()

	out := make([]models.Signal, 0, limit)
	for rows.Next() {
		var sig models.Signal
		var dir string
		if err := rows.Scan(&sig.ID, &sig.Symbol, &sig.ProviderSymbol, &dir, &sig.Time,
			&sig.EntryPrice, &sig.StrategyName, &sig.Notes, &sig.EstimatedRR); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Direction = models.Direction(dir)
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *CHOutcomeStore) CreateTrade(ctx context.Context, t *models.Trade) error {
	s.mu.Lock()
	if _, exists := s.trades[t.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("create trade: id %s already exists", t.ID)
	}
	cp := *t
	s.trades[t.ID] = &cp
	s.mu.Unlock()

	if err := s.insertTradeRow(ctx, t, 1); err != nil {
		s.mu.Lock()
		delete(s.trades, t.ID)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *CHOutcomeStore) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	s.mu.Lock()
	if t, ok := s.trades[id]; ok {
		cp := *t
		s.mu.Unlock()
		return &cp, nil
	}
	s.mu.Unlock()

	trades, err := s.queryTrades(ctx, `WHERE id = ?`, 1, id)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, nil
	}
	return trades[0], nil
}

func (s *CHOutcomeStore) OpenTrades(ctx context.Context, symbol string) ([]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Trade
	for _, t := range s.trades {
		if t.State != models.StateOpen {
			continue
		}
		if symbol != "" && t.Signal.Symbol != symbol {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *CHOutcomeStore) TradesByState(ctx context.Context, state models.TradeState, limit int) ([]*models.Trade, error) {
	return s.loadTradesByState(ctx, state, limit)
}

// CompareAndSetTrade applies the update only when the current state
// still equals expected. Returns false on a lost race with no error.
func (s *CHOutcomeStore) CompareAndSetTrade(ctx context.Context, id string, expected models.TradeState, update models.TradeUpdate) (bool, error) {
	s.mu.Lock()
	cur, ok := s.trades[id]
	if !ok || cur.State != expected {
		s.mu.Unlock()
		return false, nil
	}

	next := *cur
	next.State = update.State
	if update.CloseTime != nil {
		next.CloseTime = update.CloseTime
	}
	if update.ClosePrice != nil {
		next.ClosePrice = *update.ClosePrice
	}
	if update.CloseReason != "" {
		next.CloseReason = update.CloseReason
	}
	if update.StopLoss != nil {
		next.StopLoss = *update.StopLoss
	}
	if update.TakeProfit != nil {
		next.TakeProfit = *update.TakeProfit
	}
	if update.MaxAdverse != nil {
		next.MaxAdverse = *update.MaxAdverse
	}
	if update.MaxFavorable != nil {
		next.MaxFavorable = *update.MaxFavorable
	}
	s.trades[id] = &next
	if next.State.Terminal() {
		// Terminal trades live in ClickHouse only.
		delete(s.trades, id)
	}
	s.mu.Unlock()

	version := uint64(time.Now().UnixNano())
	if err := s.insertTradeRow(ctx, &next, version); err != nil {
		// Restore the pre-update state so memory and ClickHouse agree.
		s.mu.Lock()
		s.trades[id] = cur
		s.mu.Unlock()
		return false, err
	}
	return true, nil
}

// QueryClosedOutcomes serves the estimator's MAE/MFE history for one
// symbol and direction, most recent first.
func (s *CHOutcomeStore) QueryClosedOutcomes(ctx context.Context, symbol string, dir models.Direction, limit int) ([]models.ClosedOutcome, error) {
	const q = `SELECT entry_price, initial_stop, close_price, max_adverse, max_favorable,
            direction, open_time, close_time
        FROM scanner.trades FINAL
        WHERE symbol = ? AND direction = ? AND state IN ('ClosedByTp', 'ClosedBySl', 'ClosedManual')
        ORDER BY close_time DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, symbol, string(dir), limit)
	if err != nil {
		return nil, fmt.Errorf("query closed outcomes: %w", err)
	}
	defer rows.Close()

	var out []models.ClosedOutcome
	for rows.Next() {
		var entry, initialStop, closePrice, mae, mfe float64
		var direction string
		var openTime, closeTime time.Time
		if err := rows.Scan(&entry, &initialStop, &closePrice, &mae, &mfe, &direction, &openTime, &closeTime); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}

		// R multiples are measured against the risk taken at entry,
		// not wherever the stop ended up.
		riskDist := entry - initialStop
		if riskDist < 0 {
			riskDist = -riskDist
		}
		pnl := closePrice - entry
		if models.Direction(direction) == models.Sell {
			pnl = -pnl
		}
		var rMult float64
		if riskDist > 0 {
			rMult = pnl / riskDist
		}
		out = append(out, models.ClosedOutcome{
			MAE:      mae,
			MFE:      mfe,
			RMult:    rMult,
			Holding:  closeTime.Sub(openTime),
			ClosedAt: closeTime,
		})
	}
	return out, rows.Err()
}

func (s *CHOutcomeStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHOutcomeStore) Close() error {
	return nil // connection pool managed by pkg
}

func (s *CHOutcomeStore) insertTradeRow(ctx context.Context, t *models.Trade, version uint64) error {
	const q = `INSERT INTO scanner.trades
        (id, signal_id, symbol, provider_symbol, direction, entry_price, initial_stop, stop_loss, take_profit,
        size, state, open_time, close_time, close_price, close_reason,
        max_adverse, max_favorable, strategy, notes, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	closeTime := time.Time{}
	if t.CloseTime != nil {
		closeTime = *t.CloseTime
	}
	_, err := s.db.ExecContext(ctx, q,
		t.ID, t.Signal.ID, t.Signal.Symbol, t.Signal.ProviderSymbol, string(t.Direction),
		t.EntryPrice, t.InitialStop, t.StopLoss, t.TakeProfit,
		t.Size, string(t.State), t.OpenTime, closeTime, t.ClosePrice, t.CloseReason,
		t.MaxAdverse, t.MaxFavorable, t.Signal.StrategyName, t.Signal.Notes, version,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse insert trade error",
				applogger.String("trade_id", t.ID),
				applogger.String("state", string(t.State)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (s *CHOutcomeStore) loadTradesByState(ctx context.Context, state models.TradeState, limit int) ([]*models.Trade, error) {
	where := `WHERE state = ?`
	args := []interface{}{string(state)}
	return s.queryTrades(ctx, where, limit, args...)
}

func (s *CHOutcomeStore) queryTrades(ctx context.Context, where string, limit int, args ...interface{}) ([]*models.Trade, error) {
	q := fmt.Sprintf(`SELECT id, signal_id, symbol, provider_symbol, direction,
            entry_price, initial_stop, stop_loss, take_profit, size, state,
            open_time, close_time, close_price, close_reason,
            max_adverse, max_favorable, strategy, notes
        FROM scanner.trades FINAL %s ORDER BY open_time DESC`, where)
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []*models.Trade
	for rows.Next() {
		var t models.Trade
		var dir, state string
		var closeTime time.Time
		if err := rows.Scan(&t.ID, &t.Signal.ID, &t.Signal.Symbol, &t.Signal.ProviderSymbol, &dir,
			&t.EntryPrice, &t.InitialStop, &t.StopLoss, &t.TakeProfit, &t.Size, &state,
			&t.OpenTime, &closeTime, &t.ClosePrice, &t.CloseReason,
			&t.MaxAdverse, &t.MaxFavorable, &t.Signal.StrategyName, &t.Signal.Notes); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if t.InitialStop == 0 {
			// Rows written before initial_stop existed.
			t.InitialStop = t.StopLoss
		}
		t.Direction = models.Direction(dir)
		t.Signal.Direction = t.Direction
		t.Signal.EntryPrice = t.EntryPrice
		t.State = models.TradeState(state)
		if !closeTime.IsZero() {
			ct := closeTime
			t.CloseTime = &ct
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

var _ domrepo.OutcomeStore = (*CHOutcomeStore)(nil)
