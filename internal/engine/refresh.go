// Package engine runs the per-symbol pipeline: refresh the cached series,
// compute indicators, classify the trend and derive the sale line.
package engine

import (
	"context"
	"time"

	"StockWatch/internal/calculator"
	"StockWatch/internal/collector"
	"StockWatch/internal/errors"
	"StockWatch/internal/metrics"
	"StockWatch/internal/model"
	"StockWatch/internal/store"

	"go.uber.org/zap"
)

// DefaultHistoryDays is how far back a refresh fetches.
const DefaultHistoryDays = 400

// NeedsRefresh reports whether a series pulled at lastPull must be fetched
// again at now: true iff the calendar dates differ in now's location.
// A zero lastPull always needs a refresh.
func NeedsRefresh(lastPull, now time.Time) bool {
	if lastPull.IsZero() {
		return true
	}
	return !model.SameDate(lastPull, now, now.Location())
}

// RefreshResult is the series a symbol is evaluated on, plus the snapshot
// its trend is compared against.
type RefreshResult struct {
	Series   model.PriceSeries
	Baseline model.IndicatorSnapshot
	Record   model.PullRecord
	Fetched  bool
	Stale    bool  // fetch failed and the cached series is served
	FetchErr error // set when Stale
}

// Refresher decides between the cached series and a fresh fetch.
type Refresher struct {
	Store       store.Store
	Fetcher     collector.SeriesFetcher
	Windows     []int
	HistoryDays int
	Timeout     time.Duration
	Metrics     *metrics.Metrics
	log         *zap.Logger
}

// NewRefresher returns a Refresher with the default history depth.
func NewRefresher(st store.Store, f collector.SeriesFetcher, windows []int, log *zap.Logger) *Refresher {
	return &Refresher{
		Store:       st,
		Fetcher:     f,
		Windows:     windows,
		HistoryDays: DefaultHistoryDays,
		log:         log,
	}
}

// Refresh returns the series for symbol as of now, fetching at most once per
// calendar day. A successful fetch is saved together with the snapshot of the
// series it replaces, so the next run compares against it.
func (r *Refresher) Refresh(ctx context.Context, symbol string, now time.Time) (*RefreshResult, error) {
	cached, rec, err := r.Store.Load(ctx, symbol)
	hasCache := err == nil
	if err != nil && !errors.HasKind(err, errors.KindNotFound) {
		return nil, err
	}

	if hasCache && !NeedsRefresh(rec.LastPullDate, now) {
		r.Metrics.CacheHit()
		r.log.Debug("serving same-day cache", zap.String("symbol", symbol),
			zap.Time("last_pull", rec.LastPullDate))
		return &RefreshResult{Series: cached, Baseline: rec.Snapshot, Record: rec}, nil
	}

	baseline := model.ZeroSnapshot(r.Windows)
	if hasCache && !cached.Empty() {
		if baseline, err = calculator.LatestSnapshot(cached, r.Windows); err != nil {
			return nil, errors.WithSymbol(errors.Wrap(errors.KindInvalidConfig, "snapshot cached series", err), symbol)
		}
	}

	fetched, err := r.fetch(ctx, symbol, now)
	if err != nil {
		if ctx.Err() != nil || !hasCache {
			return nil, err
		}
		r.Metrics.ObserveFetch(r.Fetcher.Name(), metrics.FetchStale, 0)
		r.log.Warn("fetch failed, serving cached series", zap.String("symbol", symbol),
			zap.Time("last_pull", rec.LastPullDate), zap.Error(err))
		return &RefreshResult{Series: cached, Baseline: rec.Snapshot, Record: rec, Stale: true, FetchErr: err}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.Store.Save(ctx, symbol, fetched, baseline, now); err != nil {
		if errors.Is(err, errors.ErrNonMonotonic) {
			r.log.Error("evaluation clock is behind the stored pull date", zap.String("symbol", symbol),
				zap.Time("last_pull", rec.LastPullDate), zap.Time("now", now))
		}
		return nil, err
	}
	r.log.Info("series refreshed", zap.String("symbol", symbol),
		zap.Int("points", fetched.Len()), zap.String("provider", r.Fetcher.Name()))

	return &RefreshResult{
		Series:   fetched,
		Baseline: baseline,
		Record:   model.PullRecord{Symbol: symbol, LastPullDate: now, Snapshot: baseline},
		Fetched:  true,
	}, nil
}

func (r *Refresher) fetch(ctx context.Context, symbol string, now time.Time) (model.PriceSeries, error) {
	days := r.HistoryDays
	if days <= 0 {
		days = DefaultHistoryDays
	}
	fctx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	began := time.Now()
	series, err := r.Fetcher.Fetch(fctx, symbol, now.AddDate(0, 0, -days), now)
	if err == nil {
		switch {
		case series.Empty():
			err = errors.WithSymbol(errors.Wrap(errors.KindFetch, r.Fetcher.Name(), collector.ErrNoData), symbol)
		case series.Validate() != nil:
			err = errors.WithSymbol(errors.Wrap(errors.KindFetch, "invalid series from "+r.Fetcher.Name(), series.Validate()), symbol)
		}
	}
	if err != nil {
		if !errors.HasKind(err, errors.KindFetch) {
			err = errors.WithSymbol(errors.Wrap(errors.KindFetch, r.Fetcher.Name(), err), symbol)
		}
		r.Metrics.ObserveFetch(r.Fetcher.Name(), metrics.FetchFailed, time.Since(began))
		return model.PriceSeries{}, err
	}
	r.Metrics.ObserveFetch(r.Fetcher.Name(), metrics.FetchOK, time.Since(began))
	series.Symbol = symbol
	return series, nil
}
