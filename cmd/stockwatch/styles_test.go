package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"StockWatch/internal/errors"
	"StockWatch/internal/model"
	"StockWatch/internal/recorder"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRenderReport(t *testing.T) {
	now := time.Date(2024, 9, 10, 18, 0, 0, 0, time.UTC)
	report := &model.BatchReport{
		RunID:     "run-7",
		StartedAt: now,
		Results: []model.SymbolResult{
			{
				Symbol: "ABC", LastDate: now, LatestClose: 101.5, Trend: model.Bullish,
				Current:        map[int]float64{20: 99.25},
				SaleLine:       &model.SaleLine{Price: decimal.RequireFromString("103.1")},
				BelowThreshold: true,
				Stale:          true,
			},
			{Symbol: "BAD", Err: errors.New(errors.KindFetch, "provider down")},
		},
	}

	var buf bytes.Buffer
	renderReport(&buf, report, []int{20, 50}, time.UTC)
	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")

	assert.Len(t, lines, 5)
	assert.Contains(t, lines[1], "SMA20")
	assert.Contains(t, lines[1], "SMA50")
	assert.Contains(t, lines[2], "99.25")
	assert.Contains(t, lines[2], "n/a")
	assert.Contains(t, lines[2], "103.10")
	assert.Contains(t, lines[2], "BELOW SALE LINE")
	assert.Contains(t, lines[2], "stale")
	assert.Contains(t, lines[3], "provider down")
	assert.Contains(t, lines[4], "2 symbols, 1 failed, run run-7")
}

func TestRenderInspect(t *testing.T) {
	d := time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC)
	series := model.PriceSeries{Symbol: "ABC", Points: []model.PricePoint{{Date: d.AddDate(0, 0, -1), Close: 10}, {Date: d, Close: 12}}}
	rec := model.PullRecord{Symbol: "ABC", LastPullDate: d, Snapshot: model.IndicatorSnapshot{2: 10.5}}

	var buf bytes.Buffer
	renderInspect(&buf, series, rec, model.IndicatorSnapshot{2: 11}, []int{2, 5}, time.UTC)
	out := buf.String()

	assert.Contains(t, out, "points:     2")
	assert.Contains(t, out, "2024-09-09 .. 2024-09-10")
	assert.Contains(t, out, "11.00")
	assert.Contains(t, out, "10.50")
	assert.Contains(t, out, "SMA5")
}

func TestRenderHistory(t *testing.T) {
	var buf bytes.Buffer
	renderHistory(&buf, nil)
	assert.Empty(t, buf.String())

	renderHistory(&buf, []recorder.SignalRecord{
		{Date: "2024-09-11", Close: 95, Trend: "BEARISH", BelowThreshold: true},
		{ErrorStage: "refresh", ErrorKind: "fetch"},
	})
	out := buf.String()
	assert.Contains(t, out, "2024-09-11")
	assert.Contains(t, out, "BELOW SALE LINE")
	assert.Contains(t, out, "refresh: fetch")
}
