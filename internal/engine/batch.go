package engine

import (
	"context"
	"time"

	"StockWatch/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent symbols when unset.
const DefaultWorkers = 4

// Batch runs the pipeline over a whole watchlist.
type Batch struct {
	Pipeline *Pipeline
	Workers  int
	// OnResult, if set, is called once per finished symbol from worker goroutines.
	OnResult func(model.SymbolResult)
	// Clock returns the evaluation instant; defaults to time.Now.
	Clock func() time.Time
	log   *zap.Logger
}

// NewBatch returns a Batch with the given worker limit.
func NewBatch(p *Pipeline, workers int, log *zap.Logger) *Batch {
	return &Batch{Pipeline: p, Workers: workers, log: log}
}

func (b *Batch) now() time.Time {
	if b.Clock != nil {
		return b.Clock()
	}
	return time.Now()
}

// Run evaluates entries in parallel. Results keep watchlist order; a
// symbol's failure never stops the others.
func (b *Batch) Run(ctx context.Context, entries []model.WatchEntry) *model.BatchReport {
	report := &model.BatchReport{
		RunID:     uuid.New().String(),
		StartedAt: b.now(),
		Results:   make([]model.SymbolResult, len(entries)),
	}
	log := b.log.With(zap.String("run_id", report.RunID))
	log.Info("batch started", zap.Int("symbols", len(entries)))

	workers := b.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, entry := range entries {
		g.Go(func() error {
			res := b.Pipeline.Process(ctx, entry, report.StartedAt)
			report.Results[i] = res
			if b.OnResult != nil {
				b.OnResult(res)
			}
			return nil
		})
	}
	g.Wait()

	report.FinishedAt = b.now()
	below := 0
	for _, r := range report.Results {
		if r.BelowThreshold {
			below++
		}
	}
	b.Pipeline.Metrics.ObserveBatch(report.FinishedAt.Sub(report.StartedAt), len(entries), below)
	log.Info("batch finished",
		zap.Int("failed", report.Failed()),
		zap.Int("below_threshold", below),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report
}
