package strategy

import (
	"math"
	"testing"
	"time"

	"StockWatch/internal/calculator"
	"StockWatch/internal/errors"
	"StockWatch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var windows = []int{20, 50, 200}

func TestClassifySnapshot(t *testing.T) {
	base := model.IndicatorSnapshot{20: 10, 50: 20, 200: 30}
	tests := []struct {
		name    string
		current map[int]float64
		want    model.TrendSignal
	}{
		{"all rising", map[int]float64{20: 11, 50: 21, 200: 31}, model.Bullish},
		{"all falling", map[int]float64{20: 9, 50: 19, 200: 29}, model.Bearish},
		{"one up one down", map[int]float64{20: 11, 50: 19, 200: 31}, model.Neutral},
		{"one flat", map[int]float64{20: 11, 50: 20, 200: 31}, model.Neutral},
		{"all flat", map[int]float64{20: 10, 50: 20, 200: 30}, model.Neutral},
		{"nan current", map[int]float64{20: math.NaN(), 50: 21, 200: 31}, model.Neutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifySnapshot(tt.current, base, windows)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifySnapshot_AgainstZeroBaseline(t *testing.T) {
	got, err := ClassifySnapshot(map[int]float64{20: 1, 50: 1, 200: 1}, model.ZeroSnapshot(windows), windows)
	require.NoError(t, err)
	assert.Equal(t, model.Bullish, got)
}

func TestClassifySnapshot_MissingBaselineIsInsufficient(t *testing.T) {
	got, err := ClassifySnapshot(map[int]float64{20: 11, 50: 21, 200: 31}, model.IndicatorSnapshot{20: 10, 50: 20}, windows)
	assert.Equal(t, model.Neutral, got)
	assert.True(t, errors.HasKind(err, errors.KindInsufficientHistory))
}

func TestClassifyConvergence(t *testing.T) {
	tests := []struct {
		name string
		vals []float64
		want model.TrendSignal
	}{
		{"widening", []float64{2, 3, 5, 8}, model.Bullish},
		{"widening with plateau", []float64{2, 3, 3, 8}, model.Bullish},
		{"narrowing", []float64{8, 5, 3, 2}, model.Bearish},
		{"constant", []float64{8, 8, 8, 8}, model.Neutral},
		{"zigzag", []float64{2, 5, 3, 8}, model.Neutral},
		{"only last k count", []float64{100, 2, 3, 5, 8}, model.Bullish},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifyConvergence(tt.vals, 4)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyConvergence_TooFewPoints(t *testing.T) {
	got, err := ClassifyConvergence([]float64{2, 3, 5}, 4)
	assert.Equal(t, model.Neutral, got)
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindInsufficientHistory))
}

func TestNewTrendClassifier_Validation(t *testing.T) {
	_, err := NewTrendClassifier(TrendConfig{Mode: "majority"})
	assert.True(t, errors.HasKind(err, errors.KindInvalidConfig))

	_, err = NewTrendClassifier(TrendConfig{Mode: ModeSnapshot})
	assert.Error(t, err)

	_, err = NewTrendClassifier(TrendConfig{Mode: ModeConvergence, ShortWindow: 20, LongWindow: 20})
	assert.Error(t, err)

	c, err := NewTrendClassifier(TrendConfig{Mode: ModeConvergence, ShortWindow: 20, LongWindow: 50})
	require.NoError(t, err)
	assert.Equal(t, DefaultConvergencePoints, c.cfg.Points)
}

func linearSeries(n int, from, to float64) model.PriceSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := model.PriceSeries{Symbol: "ABC"}
	for i := 0; i < n; i++ {
		c := from + (to-from)*float64(i)/float64(n-1)
		s.Points = append(s.Points, model.PricePoint{Date: start.AddDate(0, 0, i), Close: c})
	}
	return s
}

func TestTrendClassifier_SnapshotMode(t *testing.T) {
	c, err := NewTrendClassifier(TrendConfig{Mode: ModeSnapshot, Windows: windows})
	require.NoError(t, err)

	s := linearSeries(250, 50, 100)
	set, err := calculator.Compute(s, windows)
	require.NoError(t, err)

	prev := model.PriceSeries{Symbol: s.Symbol, Points: s.Points[:249]}
	baseline, err := calculator.LatestSnapshot(prev, windows)
	require.NoError(t, err)

	got, err := c.Classify(set, baseline)
	require.NoError(t, err)
	assert.Equal(t, model.Bullish, got)
}

func TestTrendClassifier_SnapshotModeShortHistory(t *testing.T) {
	c, err := NewTrendClassifier(TrendConfig{Mode: ModeSnapshot, Windows: windows})
	require.NoError(t, err)

	set, err := calculator.Compute(linearSeries(60, 50, 60), windows)
	require.NoError(t, err)

	got, err := c.Classify(set, model.ZeroSnapshot(windows))
	assert.Equal(t, model.Neutral, got)
	assert.True(t, errors.HasKind(err, errors.KindInsufficientHistory))
}

func TestTrendClassifier_ConvergenceMode(t *testing.T) {
	c, err := NewTrendClassifier(TrendConfig{Mode: ModeConvergence, ShortWindow: 5, LongWindow: 20, Points: 4})
	require.NoError(t, err)

	// Accelerating series: the short mean pulls away from the long one.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := model.PriceSeries{Symbol: "ABC"}
	for i := 0; i < 40; i++ {
		s.Points = append(s.Points, model.PricePoint{Date: start.AddDate(0, 0, i), Close: 10 + float64(i*i)/10})
	}
	set, err := calculator.Compute(s, []int{5, 20})
	require.NoError(t, err)

	got, err := c.Classify(set, nil)
	require.NoError(t, err)
	assert.Equal(t, model.Bullish, got)

	short, err := calculator.Compute(linearSeries(21, 1, 2), []int{5, 20})
	require.NoError(t, err)
	got, err = c.Classify(short, nil)
	assert.Equal(t, model.Neutral, got)
	assert.True(t, errors.HasKind(err, errors.KindInsufficientHistory))
}
