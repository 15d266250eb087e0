package strategy

import (
	"fmt"

	"StockWatch/internal/calculator"
	"StockWatch/internal/errors"
	"StockWatch/internal/model"
)

// Mode selects how the trend signal is derived.
type Mode string

const (
	ModeSnapshot    Mode = "snapshot"
	ModeConvergence Mode = "convergence"
)

// DefaultConvergencePoints is the number of trailing convergence values inspected.
const DefaultConvergencePoints = 4

// TrendConfig configures a TrendClassifier.
type TrendConfig struct {
	Mode        Mode
	Windows     []int // tracked windows for snapshot mode
	ShortWindow int
	LongWindow  int
	Points      int
}

// TrendClassifier turns indicator values into a TrendSignal.
type TrendClassifier struct {
	cfg TrendConfig
}

// NewTrendClassifier validates cfg and returns a classifier.
func NewTrendClassifier(cfg TrendConfig) (*TrendClassifier, error) {
	switch cfg.Mode {
	case ModeSnapshot:
		if len(cfg.Windows) == 0 {
			return nil, errors.New(errors.KindInvalidConfig, "snapshot mode needs at least one window")
		}
	case ModeConvergence:
		if cfg.ShortWindow <= 0 || cfg.LongWindow <= 0 || cfg.ShortWindow == cfg.LongWindow {
			return nil, errors.Newf(errors.KindInvalidConfig, "convergence needs two distinct positive windows, got %d/%d", cfg.ShortWindow, cfg.LongWindow)
		}
		if cfg.Points == 0 {
			cfg.Points = DefaultConvergencePoints
		}
		if cfg.Points < 2 {
			return nil, errors.Newf(errors.KindInvalidConfig, "convergence needs at least 2 points, got %d", cfg.Points)
		}
	default:
		return nil, errors.Newf(errors.KindInvalidConfig, "unknown trend mode %q", cfg.Mode)
	}
	return &TrendClassifier{cfg: cfg}, nil
}

// RequiredWindows lists the windows Classify reads from an IndicatorSet.
func (c *TrendClassifier) RequiredWindows() []int {
	if c.cfg.Mode == ModeConvergence {
		return []int{c.cfg.ShortWindow, c.cfg.LongWindow}
	}
	return append([]int(nil), c.cfg.Windows...)
}

// Mode returns the configured mode.
func (c *TrendClassifier) Mode() Mode { return c.cfg.Mode }

// Classify applies the configured mode. The returned error is non-nil only for
// InsufficientHistory, in which case the signal is Neutral.
func (c *TrendClassifier) Classify(set model.IndicatorSet, baseline model.IndicatorSnapshot) (model.TrendSignal, error) {
	if c.cfg.Mode == ModeConvergence {
		conv, err := calculator.Convergence(set, c.cfg.ShortWindow, c.cfg.LongWindow)
		if err != nil {
			return model.Neutral, errors.Wrap(errors.KindInsufficientHistory, "convergence series", err)
		}
		vals, ok := calculator.LastDefined(conv, c.cfg.Points)
		if !ok {
			return model.Neutral, errors.Newf(errors.KindInsufficientHistory, "need %d convergence points", c.cfg.Points)
		}
		return ClassifyConvergence(vals, c.cfg.Points)
	}
	current := make(map[int]float64, len(c.cfg.Windows))
	for _, w := range c.cfg.Windows {
		v := set.Latest(w)
		if v.IsNone() {
			return model.Neutral, errors.Newf(errors.KindInsufficientHistory, "%d-day mean not yet defined", w)
		}
		current[w] = v.Unwrap()
	}
	return ClassifySnapshot(current, baseline, c.cfg.Windows)
}

// ClassifySnapshot returns Bullish if every window is strictly above its baseline,
// Bearish if every window is strictly below, Neutral otherwise.
// A window missing on either side yields Neutral with InsufficientHistory.
func ClassifySnapshot(current map[int]float64, baseline model.IndicatorSnapshot, windows []int) (model.TrendSignal, error) {
	if len(windows) == 0 {
		return model.Neutral, errors.New(errors.KindInsufficientHistory, "no tracked windows")
	}
	allUp, allDown := true, true
	for _, w := range windows {
		cur, ok := current[w]
		if !ok {
			return model.Neutral, errors.Newf(errors.KindInsufficientHistory, "no current %d-day value", w)
		}
		prev, ok := baseline.Value(w)
		if !ok {
			return model.Neutral, errors.Newf(errors.KindInsufficientHistory, "no baseline %d-day value", w)
		}
		// NaN compares false both ways, so it lands in Neutral.
		if !(cur > prev) {
			allUp = false
		}
		if !(cur < prev) {
			allDown = false
		}
	}
	switch {
	case allUp:
		return model.Bullish, nil
	case allDown:
		return model.Bearish, nil
	default:
		return model.Neutral, nil
	}
}

// ClassifyConvergence inspects the last k convergence values, oldest first.
// Non-decreasing only is Bullish, non-increasing only is Bearish; constant or
// non-monotonic sequences are Neutral.
func ClassifyConvergence(vals []float64, k int) (model.TrendSignal, error) {
	if k < 2 {
		return model.Neutral, fmt.Errorf("k must be at least 2, got %d", k)
	}
	if len(vals) < k {
		return model.Neutral, errors.Newf(errors.KindInsufficientHistory, "need %d convergence points, have %d", k, len(vals))
	}
	vals = vals[len(vals)-k:]
	nonDecreasing, nonIncreasing := true, true
	for i := 1; i < len(vals); i++ {
		if !(vals[i] >= vals[i-1]) {
			nonDecreasing = false
		}
		if !(vals[i] <= vals[i-1]) {
			nonIncreasing = false
		}
	}
	switch {
	case nonDecreasing && !nonIncreasing:
		return model.Bullish, nil
	case nonIncreasing && !nonDecreasing:
		return model.Bearish, nil
	default:
		return model.Neutral, nil
	}
}
