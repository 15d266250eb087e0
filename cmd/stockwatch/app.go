package main

import (
	"context"
	"fmt"
	"time"

	"StockWatch/internal/collector"
	"StockWatch/internal/config"
	"StockWatch/internal/engine"
	"StockWatch/internal/logger"
	"StockWatch/internal/metrics"
	"StockWatch/internal/notifier"
	"StockWatch/internal/recorder"
	"StockWatch/internal/store"
	"StockWatch/internal/strategy"

	"go.uber.org/zap"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	loc     *time.Location
	store   store.Store
	history recorder.Recorder
	metrics *metrics.Metrics
	windows []int
	batch   *engine.Batch
}

func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Options{
		Backend:       cfg.Store.Backend,
		SQLitePath:    cfg.Store.SQLitePath,
		JSONDir:       cfg.Store.JSONDir,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	fetcher, err := newFetcher(cfg, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	classifier, err := strategy.NewTrendClassifier(strategy.TrendConfig{
		Mode:        strategy.Mode(cfg.Trend.Mode),
		Windows:     cfg.Indicators.Windows,
		ShortWindow: cfg.Trend.ShortWindow,
		LongWindow:  cfg.Trend.LongWindow,
		Points:      cfg.Trend.Points,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	stopLoss, err := strategy.NewStopLossCalculator(cfg.LossPct(), cfg.TrailPct())
	if err != nil {
		st.Close()
		return nil, err
	}

	var history recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.History.SQLitePath != "" {
		h, err := recorder.NewSQLiteRecorder(cfg.History.SQLitePath, log)
		if err != nil {
			log.Warn("init history recorder failed, using noop", zap.Error(err))
		} else {
			history = h
		}
	}

	m := metrics.New()
	windows := engine.TrackedWindows(cfg.Indicators.Windows, classifier)
	ref := engine.NewRefresher(st, fetcher, windows, log)
	ref.HistoryDays = cfg.DataSource.HistoryDays
	ref.Timeout = cfg.DataSource.FetchDeadline
	ref.Metrics = m

	pipeline := engine.NewPipeline(ref, cfg.Indicators.Windows, classifier, stopLoss, m, log)
	batch := engine.NewBatch(pipeline, cfg.Engine.Workers, log)
	batch.Clock = func() time.Time { return time.Now().In(loc) }

	log.Info("stockwatch configured",
		zap.String("provider", fetcher.Name()),
		zap.String("store", cfg.Store.Backend),
		zap.Ints("windows", windows),
		zap.String("trend_mode", cfg.Trend.Mode),
		zap.String("timezone", loc.String()))

	return &app{cfg: cfg, log: log, loc: loc, store: st, history: history, metrics: m, windows: windows, batch: batch}, nil
}

func newFetcher(cfg *config.Config, log *zap.Logger) (collector.SeriesFetcher, error) {
	ds := cfg.DataSource
	var f collector.SeriesFetcher
	switch ds.Provider {
	case "yahoo":
		f = collector.NewYahooFetcher(cfg.Proxy, ds.Timeout)
	case "vstrader":
		f = collector.NewVsTraderFetcher(ds.VsTraderURL, ds.VsTraderAPIKey, cfg.Proxy, ds.Timeout)
	case "polygon":
		pf, err := collector.NewPolygonFetcher(ds.PolygonAPIKey)
		if err != nil {
			return nil, err
		}
		f = pf
	case "mock":
		return &collector.MockFetcher{}, nil
	default:
		return nil, fmt.Errorf("unknown data provider %q", ds.Provider)
	}
	return collector.NewRetryingFetcher(f, ds.MaxRetries, ds.Timeout, log), nil
}

func (a *app) notifier() *notifier.TelegramNotifier {
	if !a.cfg.NotifyEnabled() {
		return nil
	}
	return notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Proxy, a.log)
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store", zap.Error(err))
	}
	if err := a.history.Close(); err != nil {
		a.log.Warn("close history", zap.Error(err))
	}
	_ = a.log.Sync()
}
