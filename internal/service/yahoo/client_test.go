package yahoo

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/models"
)

func TestDecodeCandlesSkipsNullBars(t *testing.T) {
	payload := `{"chart":{"result":[{"meta":{"regularMarketPrice":101.5,"symbol":"GC=F"},
        "timestamp":[1700000000,1700000060,1700000120],
        "indicators":{"quote":[{
            "open":[100,null,101],
            "high":[100.5,null,101.5],
            "low":[99.5,null,100.5],
            "close":[100.2,null,101.2],
            "volume":[10,null,12]}]}}],"error":null}}`

	var resp chartResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	candles, err := decodeCandles(&resp)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2 with null bar skipped", len(candles))
	}
	if candles[0].Open != 100 || candles[1].Close != 101.2 {
		t.Fatalf("candles = %+v, want first open 100 and last close 101.2", candles)
	}
}

func TestDecodeCandlesEmptyResult(t *testing.T) {
	var resp chartResponse
	_, err := decodeCandles(&resp)
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
}

func TestResampleTo4H(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var hourly []models.Candle
	for i := 0; i < 8; i++ {
		hourly = append(hourly, models.Candle{
			OpenTime: t0.Add(time.Duration(i) * time.Hour),
			Open:     100 + float64(i),
			High:     101 + float64(i),
			Low:      99 + float64(i),
			Close:    100.5 + float64(i),
			Volume:   10,
		})
	}

	out := resampleTo4H(hourly)
	if len(out) != 2 {
		t.Fatalf("buckets = %d, want 2", len(out))
	}
	first := out[0]
	if !first.OpenTime.Equal(t0) {
		t.Fatalf("first bucket time = %v, want %v", first.OpenTime, t0)
	}
	// Open from hour 0, close from hour 3, extremes across the bucket.
	if first.Open != 100 || first.Close != 103.5 || first.High != 104 || first.Low != 99 {
		t.Fatalf("first bucket = %+v, want o=100 h=104 l=99 c=103.5", first)
	}
	if first.Volume != 40 {
		t.Fatalf("first bucket volume = %v, want 40", first.Volume)
	}
	if !out[1].OpenTime.Equal(t0.Add(4 * time.Hour)) {
		t.Fatalf("second bucket time = %v, want %v", out[1].OpenTime, t0.Add(4*time.Hour))
	}
}
