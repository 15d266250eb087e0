package recorder

import (
	"context"

	"StockWatch/internal/model"
)

// NoopRecorder is used when no history database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordBatch(context.Context, *model.BatchReport) error { return nil }
func (n *NoopRecorder) History(context.Context, string, int) ([]SignalRecord, error) {
	return nil, nil
}
func (n *NoopRecorder) Close() error { return nil }
