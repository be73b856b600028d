package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsTotal     *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	openTrades       *prometheus.GaugeVec
	latency          *prometheus.HistogramVec
	heartbeats       prometheus.Counter
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_signals_total",
				Help: "Total number of signals generated",
			},
			[]string{"symbol", "direction"},
		),
		transitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_trade_transitions_total",
				Help: "Total number of trade state transitions",
			},
			[]string{"symbol", "state"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scanner_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		openTrades: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scanner_open_trades",
				Help: "Currently open trades per symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scanner_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		heartbeats: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scanner_heartbeats_total",
				Help: "Total number of heartbeat cycles completed",
			},
		),
	}
}

// RecordSignal records a generated signal.
func (r *Recorder) RecordSignal(symbol, direction string) {
	r.signalsTotal.WithLabelValues(symbol, direction).Inc()
}

// RecordTransition records a trade state transition.
func (r *Recorder) RecordTransition(symbol, state string) {
	r.transitionsTotal.WithLabelValues(symbol, state).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordHeartbeat counts one completed scan cycle.
func (r *Recorder) RecordHeartbeat() {
	r.heartbeats.Inc()
}

// RecordOpenTrades sets the open-trade gauge for a symbol.
func (r *Recorder) RecordOpenTrades(symbol string, n int) {
	r.openTrades.WithLabelValues(symbol).Set(float64(n))
}
