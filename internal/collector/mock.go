package collector

import (
	"context"
	"math"
	"sync"
	"time"

	"StockWatch/internal/model"
)

// MockFetcher returns deterministic synthetic data for development.
// Fixed series, when set for a symbol, are served instead.
type MockFetcher struct {
	Price float64
	Fixed map[string]model.PriceSeries

	mu    sync.Mutex
	calls int
}

func (m *MockFetcher) Name() string { return "mock" }

// Calls returns how many times Fetch was invoked.
func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Fetch implements SeriesFetcher. Weekends are skipped.
func (m *MockFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return model.PriceSeries{}, fetchErr(m.Name(), symbol, err)
	}
	if s, ok := m.Fixed[symbol]; ok {
		return normalize(symbol, append([]model.PricePoint(nil), s.Points...), start, end), nil
	}

	base := m.Price
	if base <= 0 {
		base = 100
	}
	var points []model.PricePoint
	lo, hi := model.DateOf(start), model.DateOf(end)
	for d, i := lo, 0; !d.After(hi); d, i = d.AddDate(0, 0, 1), i+1 {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		p := base * (1 + 0.0005*float64(i) + 0.02*math.Sin(float64(i)/9))
		points = append(points, model.PricePoint{Date: d, Close: math.Round(p*100) / 100})
	}
	if len(points) == 0 {
		return model.PriceSeries{}, fetchErr(m.Name(), symbol, ErrNoData)
	}
	return model.PriceSeries{Symbol: symbol, Points: points}, nil
}
