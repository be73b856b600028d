package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	domrepo "github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
	pkgcache "github.com/predeshen/yfinance-trading-signal/pkg/cache"
	applogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
)

// CachingCandleProvider decorates a CandleProvider with a TTL cache so
// one scan cycle does not refetch a timeframe the previous cycle just
// pulled. Keys are per symbol and timeframe; the TTL defaults to one
// bar length of the timeframe.
type CachingCandleProvider struct {
	next    domrepo.CandleProvider
	cache   pkgcache.Service
	ttls    map[domrepo.Timeframe]time.Duration
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewCachingCandleProvider(next domrepo.CandleProvider, cache pkgcache.Service, ttls map[domrepo.Timeframe]time.Duration, metrics domrepo.Metrics, log *applogger.Logger) *CachingCandleProvider {
	return &CachingCandleProvider{next: next, cache: cache, ttls: ttls, metrics: metrics, log: log}
}

type cachedSeries struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Candles   []models.Candle `json:"candles"`
}

func (p *CachingCandleProvider) GetSeries(ctx context.Context, symbol string, tf domrepo.Timeframe, lookback time.Duration) (*models.CandleSeries, error) {
	key := fmt.Sprintf("candles:%s:%s", symbol, tf)

	var cached cachedSeries
	err := p.cache.Get(ctx, key, &cached)
	if err == nil && len(cached.Candles) > 0 {
		series, serr := models.NewCandleSeries(cached.Symbol, cached.Timeframe, cached.Candles)
		if serr == nil {
			return series, nil
		}
		// Corrupt entry, fall through to a refetch.
		if p.log != nil {
			p.log.Warn("dropping corrupt candle cache entry",
				applogger.String("key", key), applogger.Error(serr))
		}
	} else if err != nil && !errors.Is(err, pkgcache.ErrCacheMiss) {
		if p.metrics != nil {
			p.metrics.RecordError("candle_cache_read")
		}
		if p.log != nil {
			p.log.Warn("candle cache read failed", applogger.String("key", key), applogger.Error(err))
		}
	}

	series, err := p.next.GetSeries(ctx, symbol, tf, lookback)
	if err != nil {
		return nil, err
	}

	entry := cachedSeries{Symbol: series.Symbol, Timeframe: series.Timeframe, Candles: series.Candles()}
	if err := p.cache.Set(ctx, key, entry, p.ttl(tf)); err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("candle_cache_write")
		}
		if p.log != nil {
			p.log.Warn("candle cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return series, nil
}

func (p *CachingCandleProvider) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := p.next.LatestPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if p.metrics != nil {
		p.metrics.RecordLastPrice(symbol, price)
	}
	return price, nil
}

func (p *CachingCandleProvider) ttl(tf domrepo.Timeframe) time.Duration {
	if d, ok := p.ttls[tf]; ok && d > 0 {
		return d
	}
	d := tf.Duration()
	if d < 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

var _ domrepo.CandleProvider = (*CachingCandleProvider)(nil)
