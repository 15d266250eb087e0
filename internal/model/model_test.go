package model

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestDateOf_IgnoresZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	late := time.Date(2024, 3, 1, 23, 30, 0, 0, ny)
	assert.Equal(t, d(2024, 3, 1), DateOf(late))
	assert.True(t, DateOf(late).Equal(DateOf(d(2024, 3, 1))))
}

func TestSameDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 03:00 UTC on the 2nd is still the 1st in New York.
	a := time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC)
	b := time.Date(2024, 3, 1, 9, 0, 0, 0, ny)
	assert.True(t, SameDate(a, b, ny))
	assert.False(t, SameDate(a, b, time.UTC))
}

func TestPriceSeries_Validate(t *testing.T) {
	ok := PriceSeries{Points: []PricePoint{{d(2024, 1, 1), 10}, {d(2024, 1, 2), 11}}}
	assert.NoError(t, ok.Validate())
	assert.NoError(t, PriceSeries{}.Validate())

	dup := PriceSeries{Points: []PricePoint{{d(2024, 1, 1), 10}, {d(2024, 1, 1).Add(time.Hour), 11}}}
	assert.Error(t, dup.Validate())

	desc := PriceSeries{Points: []PricePoint{{d(2024, 1, 2), 10}, {d(2024, 1, 1), 11}}}
	assert.Error(t, desc.Validate())

	zero := PriceSeries{Points: []PricePoint{{d(2024, 1, 1), 0}}}
	assert.Error(t, zero.Validate())
}

func TestPriceSeries_Between(t *testing.T) {
	s := PriceSeries{Points: []PricePoint{
		{d(2024, 1, 1), 1}, {d(2024, 1, 2), 2}, {d(2024, 1, 3), 3}, {d(2024, 1, 4), 4},
	}}
	got := s.Between(d(2024, 1, 2), time.Date(2024, 1, 3, 23, 0, 0, 0, time.UTC))
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Close)
	assert.Equal(t, 3.0, got[1].Close)

	assert.Empty(t, s.Between(d(2024, 2, 1), d(2024, 2, 5)))
}

func TestPriceSeries_Accessors(t *testing.T) {
	var empty PriceSeries
	_, ok := empty.Latest()
	assert.False(t, ok)
	_, ok = empty.First()
	assert.False(t, ok)

	s := PriceSeries{Points: []PricePoint{{d(2024, 1, 1), 1}, {d(2024, 1, 2), 2}}}
	last, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 2.0, last.Close)
	assert.Equal(t, []float64{1, 2}, s.Closes())
}

func TestIndicatorSet_Snapshot(t *testing.T) {
	set := IndicatorSet{
		20: {{Date: d(2024, 1, 1), Value: optional.Some(1.5)}},
		50: {{Date: d(2024, 1, 1), Value: optional.None[float64]()}},
	}
	assert.Equal(t, []int{20, 50}, set.Windows())
	assert.Equal(t, IndicatorSnapshot{20: 1.5}, set.Snapshot())
	assert.True(t, set.Latest(200).IsNone())
}

func TestIndicatorSnapshot_CloneIsIndependent(t *testing.T) {
	s := ZeroSnapshot([]int{20, 50})
	cp := s.Clone()
	cp[20] = 5
	v, _ := s.Value(20)
	assert.Equal(t, 0.0, v)
}

func TestBatchReport_Failed(t *testing.T) {
	r := &BatchReport{Results: []SymbolResult{{Symbol: "A"}, {Symbol: "B", Err: assert.AnError}}}
	assert.Equal(t, 1, r.Failed())
}
