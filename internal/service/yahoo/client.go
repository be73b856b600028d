// Package yahoo fetches candle series from the Yahoo Finance chart
// endpoint.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
	domrepo "github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
	"github.com/predeshen/yfinance-trading-signal/internal/service/ratelimit"
	pkghttp "github.com/predeshen/yfinance-trading-signal/pkg/http"
	applogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
)

const (
	defaultBaseURL   = "https://query1.finance.yahoo.com"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"
	rateLimitKey     = "yahoo_chart"
)

// ErrDataUnavailable marks responses that arrived intact but carried no
// usable quotes for the requested symbol or interval.
var ErrDataUnavailable = errors.New("yahoo: data unavailable")

// Config tunes the chart client.
type Config struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerMinute int
	Burst             int
}

// Client implements CandleProvider against the chart API. The 240m
// interval is not served upstream and is resampled from hourly bars.
type Client struct {
	cfg     Config
	http    *pkghttp.Client
	limiter *ratelimit.Limiter
	log     *applogger.Logger
}

func NewClient(cfg Config, log *applogger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Client{
		cfg:     cfg,
		http:    pkghttp.NewClient(pkghttp.WithTimeout(cfg.Timeout)),
		limiter: ratelimit.New(),
		log:     log,
	}
}

// chartResponse mirrors the subset of the chart payload we read.
// Quote arrays carry nulls for halted periods, hence the pointers.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				Symbol             string  `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c *Client) GetSeries(ctx context.Context, symbol string, tf domrepo.Timeframe, lookback time.Duration) (*models.CandleSeries, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("yahoo: unsupported timeframe %q", tf)
	}
	if max := tf.MaxLookback(); lookback > max || lookback <= 0 {
		lookback = max
	}

	fetchTF := tf
	if tf == domrepo.TFH4 {
		fetchTF = domrepo.TFH1
	}

	resp, err := c.fetchChart(ctx, symbol, string(fetchTF), rangeParam(lookback))
	if err != nil {
		return nil, err
	}

	candles, err := decodeCandles(resp)
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s/%s: %w", symbol, tf, err)
	}
	if tf == domrepo.TFH4 {
		candles = resampleTo4H(candles)
	}

	series, err := models.NewCandleSeries(symbol, string(tf), candles)
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s/%s: %w", symbol, tf, err)
	}
	if c.log != nil {
		c.log.Debug("yahoo series fetched",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("bars", series.Len()),
		)
	}
	return series, nil
}

func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	resp, err := c.fetchChart(ctx, symbol, "1m", "1d")
	if err != nil {
		return 0, err
	}
	if len(resp.Chart.Result) == 0 {
		return 0, fmt.Errorf("yahoo price %s: %w", symbol, ErrDataUnavailable)
	}
	price := resp.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return 0, fmt.Errorf("yahoo price %s: no market price: %w", symbol, ErrDataUnavailable)
	}
	return price, nil
}

func (c *Client) fetchChart(ctx context.Context, symbol, interval, rng string) (*chartResponse, error) {
	if !c.limiter.Allow(rateLimitKey, float64(c.cfg.Burst), float64(c.cfg.RequestsPerMinute)/60.0) {
		return nil, fmt.Errorf("yahoo chart %s: rate limited", symbol)
	}

	var out chartResponse
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    fmt.Sprintf("%s/v8/finance/chart/%s", c.cfg.BaseURL, symbol),
		Headers: map[string]string{
			"User-Agent": c.cfg.UserAgent,
		},
		QueryParams: map[string][]string{
			"interval":       {interval},
			"range":          {rng},
			"includePrePost": {"false"},
			"events":         {"div,splits"},
		},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	if out.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart %s: %s: %s", symbol, out.Chart.Error.Code, out.Chart.Error.Description)
	}
	return &out, nil
}

func decodeCandles(resp *chartResponse) ([]models.Candle, error) {
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("empty result: %w", ErrDataUnavailable)
	}
	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no quote data: %w", ErrDataUnavailable)
	}
	quote := result.Indicators.Quote[0]

	candles := make([]models.Candle, 0, len(result.Timestamp))
	var lastTS int64
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			break
		}
		// Skip null bars and the occasional duplicate trailing timestamp.
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue
		}
		if ts <= lastTS {
			continue
		}
		lastTS = ts

		var vol float64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			vol = *quote.Volume[i]
		}
		candles = append(candles, models.Candle{
			OpenTime: time.Unix(ts, 0).UTC(),
			Open:     *quote.Open[i],
			High:     *quote.High[i],
			Low:      *quote.Low[i],
			Close:    *quote.Close[i],
			Volume:   vol,
		})
	}
	return candles, nil
}

// resampleTo4H folds hourly bars into 4-hour buckets aligned to
// midnight UTC.
func resampleTo4H(hourly []models.Candle) []models.Candle {
	if len(hourly) == 0 {
		return nil
	}
	buckets := make(map[int64]*models.Candle)
	for _, c := range hourly {
		key := c.OpenTime.Truncate(4 * time.Hour).Unix()
		b, ok := buckets[key]
		if !ok {
			cp := c
			cp.OpenTime = time.Unix(key, 0).UTC()
			buckets[key] = &cp
			continue
		}
		if c.High > b.High {
			b.High = c.High
		}
		if c.Low < b.Low {
			b.Low = c.Low
		}
		b.Close = c.Close
		b.Volume += c.Volume
	}

	out := make([]models.Candle, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}

func rangeParam(lookback time.Duration) string {
	days := int(lookback.Hours() / 24)
	if days < 1 {
		days = 1
	}
	return fmt.Sprintf("%dd", days)
}

var _ domrepo.CandleProvider = (*Client)(nil)
