package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrendSignal is the categorical trend used for coloring.
type TrendSignal string

const (
	Bullish TrendSignal = "BULLISH"
	Bearish TrendSignal = "BEARISH"
	Neutral TrendSignal = "NEUTRAL"
)

// SaleLine is the derived stop-loss threshold for a position.
type SaleLine struct {
	Price        decimal.Decimal
	MaxClose     decimal.Decimal
	LosingPrice  decimal.Decimal
	WinningPrice decimal.Decimal
	Trailing     bool // true when the 3%-below-peak branch is active
}

// Stage names used in results and errors.
const (
	StageRefresh    = "refresh"
	StageIndicators = "indicators"
	StageClassify   = "classify"
	StageStopLoss   = "stoploss"
)

// SymbolResult is the per-symbol pipeline output.
type SymbolResult struct {
	Symbol      string
	Points      int
	LastDate    time.Time
	LatestClose float64
	Current     map[int]float64 // latest defined value per window
	Baseline    IndicatorSnapshot
	Fetched     bool
	Stale       bool // fetch failed, cached series served
	FetchErr    error

	Trend    TrendSignal
	TrendErr error // set when Trend is Neutral for lack of history

	SaleLine       *SaleLine
	SaleErr        error
	BelowThreshold bool

	Err error // fatal for this symbol; other fields may be empty
}

// OK reports whether the symbol produced a result at all.
func (r SymbolResult) OK() bool { return r.Err == nil }

// BatchReport collects one run over the watchlist.
type BatchReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []SymbolResult
}

// Failed counts symbols without a result.
func (b *BatchReport) Failed() int {
	n := 0
	for _, r := range b.Results {
		if !r.OK() {
			n++
		}
	}
	return n
}
