package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"StockWatch/internal/model"

	"go.uber.org/zap"
)

// cacheFile is the on-disk layout of one symbol.
type cacheFile struct {
	Symbol       string                  `json:"symbol"`
	LastPullDate time.Time               `json:"last_pull_date"`
	Snapshot     model.IndicatorSnapshot `json:"snapshot"`
	Points       []model.PricePoint      `json:"points"`
}

// JSONStore keeps one JSON file per symbol in dir.
type JSONStore struct {
	dir   string
	locks symbolLocks
	log   *zap.Logger
}

// NewJSONStore creates dir if needed.
func NewJSONStore(dir string, log *zap.Logger) (*JSONStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("json store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	log.Info("json store opened", zap.String("dir", dir))
	return &JSONStore{dir: dir, log: log}, nil
}

func (s *JSONStore) path(symbol string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(strings.ToUpper(symbol))
	return filepath.Join(s.dir, safe+".json")
}

// Load implements Store.
func (s *JSONStore) Load(ctx context.Context, symbol string) (model.PriceSeries, model.PullRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.PriceSeries{}, model.PullRecord{}, err
	}
	data, err := os.ReadFile(s.path(symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return model.PriceSeries{}, model.PullRecord{}, notFound(symbol)
		}
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "read cache file")
	}
	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "decode cache file")
	}
	series := model.PriceSeries{Symbol: symbol, Points: f.Points}
	rec := model.PullRecord{Symbol: symbol, LastPullDate: f.LastPullDate, Snapshot: f.Snapshot}
	return series, rec, nil
}

// Save implements Store. The file is replaced by rename, so a reader sees
// either the old or the new triple.
func (s *JSONStore) Save(ctx context.Context, symbol string, series model.PriceSeries, snapshot model.IndicatorSnapshot, pullDate time.Time) error {
	if err := checkSeries(symbol, series); err != nil {
		return err
	}

	unlock := s.locks.lock(symbol)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	_, prev, err := s.Load(ctx, symbol)
	switch {
	case err == nil:
		if err := checkMonotonic(symbol, prev.LastPullDate, pullDate); err != nil {
			return err
		}
	case !isNotFound(err):
		return err
	}

	points := make([]model.PricePoint, len(series.Points))
	for i, p := range series.Points {
		points[i] = model.PricePoint{Date: model.DateOf(p.Date), Close: p.Close}
	}
	data, err := json.MarshalIndent(cacheFile{
		Symbol:       symbol,
		LastPullDate: pullDate.UTC(),
		Snapshot:     snapshotOrEmpty(snapshot),
		Points:       points,
	}, "", "  ")
	if err != nil {
		return storageErr(symbol, err, "encode cache file")
	}

	if err := writeFileAtomic(s.path(symbol), data); err != nil {
		return storageErr(symbol, err, "write cache file")
	}
	s.log.Debug("series saved", zap.String("symbol", symbol), zap.Int("points", series.Len()))
	return nil
}

// Close is a no-op.
func (s *JSONStore) Close() error { return nil }

func writeFileAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		return err
	}
	committed = true
	return nil
}
