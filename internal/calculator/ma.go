package calculator

import (
	"errors"
	"fmt"
	"math"

	"StockWatch/internal/model"

	"github.com/moznion/go-optional"
)

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// RollingMean returns the SMA ending at every point of the series.
// The first window-1 values are None. Every value is summed over its own
// window through CalculateSMA, so the cost is O(n*window).
func RollingMean(series model.PriceSeries, window int) ([]model.IndicatorPoint, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", window)
	}
	closes := series.Closes()
	out := make([]model.IndicatorPoint, len(closes))
	for i, p := range series.Points {
		out[i] = model.IndicatorPoint{Date: p.Date, Value: optional.None[float64]()}
		if i+1 < window {
			continue
		}
		v, err := CalculateSMA(closes[:i+1], window)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i].Value = optional.Some(v)
	}
	return out, nil
}

// Compute builds an IndicatorSet with one independent rolling mean per window.
func Compute(series model.PriceSeries, windows []int) (model.IndicatorSet, error) {
	set := make(model.IndicatorSet, len(windows))
	for _, w := range windows {
		if _, dup := set[w]; dup {
			continue
		}
		pts, err := RollingMean(series, w)
		if err != nil {
			return nil, fmt.Errorf("rolling mean %d: %w", w, err)
		}
		set[w] = pts
	}
	return set, nil
}

// LatestSnapshot is the snapshot of the last defined value per window for series.
// An empty series yields an empty snapshot.
func LatestSnapshot(series model.PriceSeries, windows []int) (model.IndicatorSnapshot, error) {
	set, err := Compute(series, windows)
	if err != nil {
		return nil, err
	}
	return set.Snapshot(), nil
}

// Convergence returns |SMA(short) - SMA(long)| aligned by date.
// A point is None wherever either side is None.
func Convergence(set model.IndicatorSet, short, long int) ([]model.IndicatorPoint, error) {
	s, ok := set[short]
	if !ok {
		return nil, fmt.Errorf("window %d not computed", short)
	}
	l, ok := set[long]
	if !ok {
		return nil, fmt.Errorf("window %d not computed", long)
	}
	if len(s) != len(l) {
		return nil, fmt.Errorf("windows %d and %d are not aligned (%d vs %d points)", short, long, len(s), len(l))
	}
	out := make([]model.IndicatorPoint, len(s))
	for i := range s {
		out[i] = model.IndicatorPoint{Date: s[i].Date, Value: optional.None[float64]()}
		if s[i].Value.IsNone() || l[i].Value.IsNone() {
			continue
		}
		out[i].Value = optional.Some(math.Abs(s[i].Value.Unwrap() - l[i].Value.Unwrap()))
	}
	return out, nil
}

// LastDefined returns the trailing n defined values of pts, oldest first.
// ok is false when fewer than n are defined.
func LastDefined(pts []model.IndicatorPoint, n int) (vals []float64, ok bool) {
	vals = make([]float64, 0, n)
	for i := len(pts) - 1; i >= 0 && len(vals) < n; i-- {
		if pts[i].Value.IsSome() {
			vals = append(vals, pts[i].Value.Unwrap())
		}
	}
	if len(vals) < n {
		return nil, false
	}
	for i, j := 0, len(vals)-1; i < j; i, j = i+1, j-1 {
		vals[i], vals[j] = vals[j], vals[i]
	}
	return vals, true
}
