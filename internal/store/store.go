// Package store persists each symbol's cached price series together with its
// pull record. It is the only place in the engine that writes durable state.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"StockWatch/internal/errors"
	"StockWatch/internal/model"

	"go.uber.org/zap"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
	BackendRedis  = "redis"
)

// Store is a per-symbol cache of (series, last pull date, snapshot).
type Store interface {
	// Load returns the cached series and pull record. A symbol that was never
	// saved yields an error of kind KindNotFound.
	Load(ctx context.Context, symbol string) (model.PriceSeries, model.PullRecord, error)
	// Save replaces the cached triple for symbol in one atomic write.
	// A pullDate earlier than the stored one is rejected with KindNonMonotonic.
	Save(ctx context.Context, symbol string, series model.PriceSeries, snapshot model.IndicatorSnapshot, pullDate time.Time) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend       string
	SQLitePath    string
	JSONDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open returns the backend named by opts.Backend.
func Open(ctx context.Context, opts Options, log *zap.Logger) (Store, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		return NewSQLiteStore(opts.SQLitePath, log)
	case BackendJSON:
		return NewJSONStore(opts.JSONDir, log)
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, log)
	default:
		return nil, errors.Newf(errors.KindInvalidConfig, "unknown store backend %q", opts.Backend)
	}
}

func notFound(symbol string) error {
	return errors.WithSymbol(errors.New(errors.KindNotFound, "no cached series"), symbol)
}

func isNotFound(err error) bool { return errors.HasKind(err, errors.KindNotFound) }

func storageErr(symbol string, cause error, format string, args ...any) error {
	return errors.WithSymbol(errors.Wrap(errors.KindStorage, fmt.Sprintf(format, args...), cause), symbol)
}

func checkMonotonic(symbol string, stored, pullDate time.Time) error {
	if !stored.IsZero() && pullDate.Before(stored) {
		return errors.WithSymbol(errors.Newf(errors.KindNonMonotonic,
			"pull date %s is before stored %s", pullDate.Format(time.RFC3339), stored.Format(time.RFC3339)), symbol)
	}
	return nil
}

func checkSeries(symbol string, series model.PriceSeries) error {
	if series.Symbol != "" && series.Symbol != symbol {
		return errors.WithSymbol(errors.Newf(errors.KindStorage, "series belongs to %q", series.Symbol), symbol)
	}
	if err := series.Validate(); err != nil {
		return storageErr(symbol, err, "invalid series")
	}
	return nil
}

// symbolLocks serializes writers per symbol. Different symbols never contend.
type symbolLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *symbolLocks) lock(symbol string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[symbol]
	if !ok {
		m = &sync.Mutex{}
		l.locks[symbol] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
