package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
)

// chStub is a database/sql driver standing in for ClickHouse. It
// accepts every statement and can be told to fail inserts.
type chStub struct {
	failInserts bool
}

func (d *chStub) Open(string) (driver.Conn, error) { return &chStubConn{d: d}, nil }

type chStubConnector struct{ d *chStub }

func (c chStubConnector) Connect(context.Context) (driver.Conn, error) {
	return &chStubConn{d: c.d}, nil
}
func (c chStubConnector) Driver() driver.Driver { return c.d }

type chStubConn struct{ d *chStub }

func (c *chStubConn) Prepare(query string) (driver.Stmt, error) {
	return &chStubStmt{d: c.d, query: query}, nil
}
func (c *chStubConn) Close() error              { return nil }
func (c *chStubConn) Begin() (driver.Tx, error) { return nil, errors.New("transactions not supported") }

type chStubStmt struct {
	d     *chStub
	query string
}

func (s *chStubStmt) Close() error  { return nil }
func (s *chStubStmt) NumInput() int { return -1 }

func (s *chStubStmt) Exec(args []driver.Value) (driver.Result, error) {
	if s.d.failInserts && strings.HasPrefix(strings.TrimSpace(s.query), "INSERT") {
		return nil, errors.New("clickhouse: connection refused")
	}
	return driver.RowsAffected(1), nil
}

func (s *chStubStmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, errors.New("queries not supported")
}

func newStubStore(stub *chStub) *CHOutcomeStore {
	return &CHOutcomeStore{
		db:     sql.OpenDB(chStubConnector{d: stub}),
		trades: make(map[string]*models.Trade),
	}
}

func storedBuyTrade() *models.Trade {
	return &models.Trade{
		ID:          "trade-1",
		Signal:      models.Signal{ID: "sig-1", Symbol: "GOLD", Direction: models.Buy},
		Direction:   models.Buy,
		EntryPrice:  1000,
		InitialStop: 950,
		StopLoss:    950,
		TakeProfit:  1100,
		Size:        1,
		State:       models.StateOpen,
		OpenTime:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCompareAndSetTradeKeepsStateOnInsertFailure(t *testing.T) {
	stub := &chStub{}
	s := newStubStore(stub)
	trade := storedBuyTrade()
	if err := s.CreateTrade(context.Background(), trade); err != nil {
		t.Fatalf("create: %v", err)
	}

	stub.failInserts = true
	price := 950.0
	now := time.Now().UTC()
	ok, err := s.CompareAndSetTrade(context.Background(), trade.ID, models.StateOpen, models.TradeUpdate{
		State:       models.StateClosedBySl,
		ClosePrice:  &price,
		CloseTime:   &now,
		CloseReason: "stop breached",
	})
	if ok || err == nil {
		t.Fatalf("cas = (%v, %v), want failed insert surfaced", ok, err)
	}

	// The failed write must not leave a phantom close in memory.
	cur, err := s.GetTrade(context.Background(), trade.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cur == nil || cur.State != models.StateOpen {
		t.Fatalf("trade = %+v, want still open", cur)
	}
	if cur.ClosePrice != 0 || cur.CloseTime != nil {
		t.Fatalf("trade = %+v, want no close fields set", cur)
	}
}

func TestCompareAndSetTradeLostRace(t *testing.T) {
	s := newStubStore(&chStub{})
	trade := storedBuyTrade()
	if err := s.CreateTrade(context.Background(), trade); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := s.CompareAndSetTrade(context.Background(), trade.ID, models.StateExpired, models.TradeUpdate{
		State: models.StateClosedManual,
	})
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if ok {
		t.Fatal("cas succeeded against a stale expected state")
	}
}
