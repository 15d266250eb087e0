// Package recorder keeps a history of batch runs and the signals they produced.
package recorder

import (
	"context"

	"StockWatch/internal/model"
)

// SignalRecord is one symbol's outcome in one run.
type SignalRecord struct {
	RunID          string
	Symbol         string
	Date           string // last bar date, empty on failure
	Close          float64
	Trend          string
	SaleLine       string // decimal text, empty when none
	BelowThreshold bool
	Stale          bool
	ErrorStage     string
	ErrorKind      string
}

// Recorder persists batch history for later analysis.
type Recorder interface {
	RecordBatch(ctx context.Context, report *model.BatchReport) error
	History(ctx context.Context, symbol string, limit int) ([]SignalRecord, error)
	Close() error
}
