package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"StockWatch/internal/calculator"
	"StockWatch/internal/errors"
	"StockWatch/internal/model"
	"StockWatch/internal/notifier"
	"StockWatch/internal/scheduler"
	"StockWatch/internal/watchlist"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func runAction(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := watchlist.Load(a.cfg.Watchlist)
	if err != nil {
		return err
	}

	if cmd.Bool("progress") {
		bar := progressbar.NewOptions(len(entries),
			progressbar.OptionSetDescription("Evaluating watchlist"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish())
		a.batch.OnResult = func(model.SymbolResult) { _ = bar.Add(1) }
		defer bar.Finish()
	}

	report := a.batch.Run(ctx, entries)
	renderReport(os.Stdout, report, a.windows, a.loc)
	if err := a.history.RecordBatch(ctx, report); err != nil {
		a.log.Error("record batch", zap.Error(err))
	}

	if cmd.Bool("notify") {
		if tn := a.notifier(); tn != nil {
			if err := tn.SendWithRetry(ctx, notifier.FormatReport(report, a.loc), 3); err != nil {
				a.log.Error("send report", zap.Error(err))
			}
		} else {
			a.log.Warn("--notify given but telegram is not configured")
		}
	}

	if len(report.Results) > 0 && report.Failed() == len(report.Results) {
		return cli.Exit("every symbol failed", 1)
	}
	return nil
}

func daemonAction(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	defer a.Close()

	tn := a.notifier()
	var sender scheduler.Sender
	if tn != nil {
		sender = tn
	} else {
		a.log.Warn("telegram not configured, reports are only logged")
	}

	sched := scheduler.NewScheduler(ctx, a.batch, func() ([]model.WatchEntry, error) {
		return watchlist.Load(a.cfg.Watchlist)
	}, sender, a.loc, a.log)
	sched.History = a.history
	if err := sched.Register(a.cfg.Schedule.DailyCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if a.cfg.MetricsAddr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, a.cfg.MetricsAddr, a.log); err != nil {
				a.log.Error("metrics server", zap.Error(err))
			}
		}()
	}
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		a.log.Info("telegram polling started")
	}
	if cmd.Bool("run-on-start") {
		a.log.Info("run-on-start enabled, evaluating now")
		go sched.RunNow()
	}

	a.log.Info("stockwatch is running", zap.Time("next_run", sched.Next()))
	<-ctx.Done()
	a.log.Info("shutdown signal received, stopping")
	return nil
}

func inspectAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	defer a.Close()

	symbol := normalizeSymbol(cmd.String("symbol"))
	series, rec, err := a.store.Load(ctx, symbol)
	if errors.HasKind(err, errors.KindNotFound) {
		fmt.Printf("%s: no cached series\n", symbol)
		return nil
	}
	if err != nil {
		return err
	}

	set, err := calculator.Compute(series, a.windows)
	if err != nil {
		return err
	}
	renderInspect(os.Stdout, series, rec, set.Snapshot(), a.windows, a.loc)

	hist, err := a.history.History(ctx, symbol, int(cmd.Int("history")))
	if err != nil {
		return err
	}
	renderHistory(os.Stdout, hist)
	return nil
}

// normalizeSymbol matches the watchlist's ticker spelling.
func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
