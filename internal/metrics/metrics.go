// Package metrics exposes Prometheus metrics for batch runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Fetch results.
const (
	FetchOK     = "ok"
	FetchFailed = "failed"
	FetchStale  = "stale"
)

// Metrics holds all Prometheus metrics for the signal engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchesTotal   *prometheus.CounterVec // labels: provider, result
	FetchDur       *prometheus.HistogramVec
	CacheHits      prometheus.Counter
	StageErrors    *prometheus.CounterVec // labels: stage, kind
	SignalsTotal   *prometheus.CounterVec // labels: trend
	BelowThreshold prometheus.Gauge
	BatchDur       prometheus.Histogram
	BatchSymbols   prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the metrics and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockwatch_fetches_total",
			Help: "Series fetches by provider and result",
		}, []string{"provider", "result"}),
		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockwatch_fetch_duration_seconds",
			Help:    "Series fetch latency including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockwatch_cache_hits_total",
			Help: "Refreshes served from the same-day cache",
		}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockwatch_stage_errors_total",
			Help: "Per-symbol pipeline errors by stage and kind",
		}, []string{"stage", "kind"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockwatch_signals_total",
			Help: "Trend signals emitted",
		}, []string{"trend"}),
		BelowThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stockwatch_below_threshold_symbols",
			Help: "Positions whose latest close is under the sale line, as of the last batch",
		}),
		BatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stockwatch_batch_duration_seconds",
			Help:    "Wall time of one watchlist batch",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		BatchSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stockwatch_batch_symbols",
			Help: "Symbols processed in the last batch",
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.FetchesTotal,
		m.FetchDur,
		m.CacheHits,
		m.StageErrors,
		m.SignalsTotal,
		m.BelowThreshold,
		m.BatchDur,
		m.BatchSymbols,
	)
	return m
}

// ObserveFetch records one fetch outcome.
func (m *Metrics) ObserveFetch(provider, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(provider, result).Inc()
	m.FetchDur.WithLabelValues(provider).Observe(d.Seconds())
}

// CacheHit counts a refresh answered from cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// StageError counts a per-symbol error.
func (m *Metrics) StageError(stage, kind string) {
	if m == nil {
		return
	}
	m.StageErrors.WithLabelValues(stage, kind).Inc()
}

// Signal counts a trend signal.
func (m *Metrics) Signal(trend string) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(trend).Inc()
}

// ObserveBatch records a finished batch.
func (m *Metrics) ObserveBatch(d time.Duration, symbols, below int) {
	if m == nil {
		return
	}
	m.BatchDur.Observe(d.Seconds())
	m.BatchSymbols.Set(float64(symbols))
	m.BelowThreshold.Set(float64(below))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
