package collector

import (
	"context"
	"time"

	"StockWatch/internal/errors"
	"StockWatch/internal/model"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryingFetcher retries transient failures of the wrapped fetcher with
// exponential backoff. Permanent failures (see IsPermanent) return at once.
type RetryingFetcher struct {
	Fetcher         SeriesFetcher
	MaxRetries      int
	InitialInterval time.Duration
	Timeout         time.Duration // per attempt; zero means no extra deadline
	log             *zap.Logger
}

// NewRetryingFetcher wraps f.
func NewRetryingFetcher(f SeriesFetcher, maxRetries int, timeout time.Duration, log *zap.Logger) *RetryingFetcher {
	return &RetryingFetcher{
		Fetcher:         f,
		MaxRetries:      maxRetries,
		InitialInterval: time.Second,
		Timeout:         timeout,
		log:             log,
	}
}

func (r *RetryingFetcher) Name() string { return r.Fetcher.Name() }

// Fetch implements SeriesFetcher.
func (r *RetryingFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	var series model.PriceSeries
	op := func() error {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		}
		defer cancel()

		s, err := r.Fetcher.Fetch(attemptCtx, symbol, start, end)
		if err != nil {
			if IsPermanent(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		series = s
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.InitialInterval
	exp.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(max(r.MaxRetries, 0))), ctx)

	attempt := 0
	notify := func(err error, wait time.Duration) {
		attempt++
		r.log.Warn("fetch failed, retrying",
			zap.String("symbol", symbol),
			zap.String("provider", r.Name()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		// Cancellation surfaces the bare context error.
		if !errors.HasKind(err, errors.KindFetch) {
			return model.PriceSeries{}, fetchErr(r.Name(), symbol, err)
		}
		return model.PriceSeries{}, err
	}
	return series, nil
}
