package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	domrepo "github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
)

// PriceTracker keeps the freshest streamed price per provider symbol.
// The scanner's candle data stays authoritative; the tracker only
// feeds the price gauge and the status endpoint between fetches.
type PriceTracker struct {
	metrics domrepo.Metrics

	mu     sync.RWMutex
	alias  map[string]string // provider ticker -> display name
	latest map[string]*models.Tick
}

func NewPriceTracker(symbols []SymbolMapping, metrics domrepo.Metrics) *PriceTracker {
	alias := make(map[string]string, len(symbols))
	for _, s := range symbols {
		alias[s.Provider] = s.Name
	}
	return &PriceTracker{
		metrics: metrics,
		alias:   alias,
		latest:  make(map[string]*models.Tick),
	}
}

// Process records one tick. Unknown symbols are rejected so a feed
// misconfiguration is visible instead of silently tracked.
func (p *PriceTracker) Process(ctx context.Context, t *models.Tick) error {
	p.mu.Lock()
	name, ok := p.alias[t.Symbol]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("price tracker: unknown symbol %q", t.Symbol)
	}
	prev := p.latest[name]
	if prev == nil || t.Timestamp >= prev.Timestamp {
		p.latest[name] = t
	}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordLastPrice(name, t.Price)
	}
	return nil
}

// Latest returns the freshest tick for a display name, or nil.
func (p *PriceTracker) Latest(name string) *models.Tick {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest[name]
}

// Snapshot returns the latest tick per display name.
func (p *PriceTracker) Snapshot() map[string]models.Tick {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]models.Tick, len(p.latest))
	for name, t := range p.latest {
		out[name] = *t
	}
	return out
}
