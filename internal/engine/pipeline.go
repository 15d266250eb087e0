package engine

import (
	"context"
	"sort"
	"time"

	"StockWatch/internal/calculator"
	"StockWatch/internal/errors"
	"StockWatch/internal/metrics"
	"StockWatch/internal/model"
	"StockWatch/internal/strategy"

	"go.uber.org/zap"
)

// Pipeline evaluates one watchlist entry.
type Pipeline struct {
	Refresher  *Refresher
	Windows    []int
	Classifier *strategy.TrendClassifier
	StopLoss   *strategy.StopLossCalculator
	Metrics    *metrics.Metrics
	log        *zap.Logger
}

// NewPipeline wires the stages together.
func NewPipeline(r *Refresher, windows []int, c *strategy.TrendClassifier, sl *strategy.StopLossCalculator, m *metrics.Metrics, log *zap.Logger) *Pipeline {
	return &Pipeline{Refresher: r, Windows: windows, Classifier: c, StopLoss: sl, Metrics: m, log: log}
}

// TrackedWindows is the union of the report windows and those the
// classifier reads, ascending.
func TrackedWindows(windows []int, c *strategy.TrendClassifier) []int {
	seen := map[int]bool{}
	var out []int
	add := func(ws []int) {
		for _, w := range ws {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	add(windows)
	if c != nil {
		add(c.RequiredWindows())
	}
	sort.Ints(out)
	return out
}

// Process runs refresh, indicators, trend and stop-loss for entry. Failures
// are recorded on the result; a failed stop-loss or an undecidable trend
// does not discard the rest.
func (p *Pipeline) Process(ctx context.Context, entry model.WatchEntry, now time.Time) model.SymbolResult {
	res := model.SymbolResult{Symbol: entry.Symbol, Trend: model.Neutral}
	log := p.log.With(zap.String("symbol", entry.Symbol))

	if err := ctx.Err(); err != nil {
		return p.fail(res, model.StageRefresh, err)
	}

	ref, err := p.Refresher.Refresh(ctx, entry.Symbol, now)
	if err != nil {
		log.Warn("refresh failed", zap.Error(err))
		return p.fail(res, model.StageRefresh, err)
	}
	res.Fetched = ref.Fetched
	res.Stale = ref.Stale
	res.FetchErr = ref.FetchErr
	res.Baseline = ref.Baseline
	res.Points = ref.Series.Len()
	if last, ok := ref.Series.Latest(); ok {
		res.LastDate = last.Date
		res.LatestClose = last.Close
	}

	set, err := calculator.Compute(ref.Series, TrackedWindows(p.Windows, p.Classifier))
	if err != nil {
		return p.fail(res, model.StageIndicators, err)
	}
	res.Current = set.Snapshot()

	trend, err := p.Classifier.Classify(set, ref.Baseline)
	res.Trend = trend
	if err != nil {
		res.TrendErr = errors.WithStage(errors.WithSymbol(err, entry.Symbol), model.StageClassify)
		p.Metrics.StageError(model.StageClassify, errors.KindOf(err).String())
		log.Debug("trend undecided", zap.Error(err))
	}
	p.Metrics.Signal(string(trend))

	if entry.Position != nil {
		line, err := p.StopLoss.Compute(ref.Series, entry.Position.DatePurchased, entry.Position.CostPerShare, now)
		if err != nil {
			res.SaleErr = errors.WithStage(errors.WithSymbol(err, entry.Symbol), model.StageStopLoss)
			p.Metrics.StageError(model.StageStopLoss, errors.KindOf(err).String())
			if errors.Is(err, errors.ErrOutOfRange) {
				log.Warn("purchase date is after the evaluation date", zap.Time("purchased", entry.Position.DatePurchased), zap.Error(err))
			} else {
				log.Warn("sale line unavailable", zap.Error(err))
			}
		} else {
			res.SaleLine = &line
			res.BelowThreshold = strategy.BelowThreshold(res.LatestClose, line)
		}
	}
	return res
}

func (p *Pipeline) fail(res model.SymbolResult, stage string, err error) model.SymbolResult {
	res.Err = errors.WithStage(errors.WithSymbol(err, res.Symbol), stage)
	p.Metrics.StageError(stage, errors.KindOf(err).String())
	return res
}
