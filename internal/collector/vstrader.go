package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"StockWatch/internal/model"
)

// VsTraderFetcher implements SeriesFetcher using the vstrader REST API.
type VsTraderFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewVsTraderFetcher creates a new fetcher with optional proxy support.
func NewVsTraderFetcher(baseURL, apiKey, proxyURL string, timeout time.Duration) *VsTraderFetcher {
	return &VsTraderFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL, timeout),
	}
}

func (f *VsTraderFetcher) Name() string { return "vstrader" }

// vsBar is the expected JSON shape from the vstrader API.
type vsBar struct {
	Timestamp int64   `json:"timestamp"`
	Close     float64 `json:"close"`
}

// Fetch implements SeriesFetcher.
func (f *VsTraderFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("from", model.DateOf(start).Format(model.DateLayout))
	q.Set("to", model.DateOf(end).Format(model.DateLayout))
	endpoint := fmt.Sprintf("%s/api/v1/bars/daily?%s", f.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.PriceSeries{}, fetchErr(f.Name(), symbol, err)
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return model.PriceSeries{}, fetchErr(f.Name(), symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return model.PriceSeries{}, fetchErr(f.Name(), symbol, &StatusError{Code: resp.StatusCode, Body: string(body)})
	}

	var bars []vsBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return model.PriceSeries{}, fetchErr(f.Name(), symbol, fmt.Errorf("decode bars: %w", err))
	}
	points := make([]model.PricePoint, len(bars))
	for i, b := range bars {
		points[i] = model.PricePoint{Date: time.Unix(b.Timestamp, 0).UTC(), Close: b.Close}
	}
	series := normalize(symbol, points, start, end)
	if series.Empty() {
		return model.PriceSeries{}, fetchErr(f.Name(), symbol, ErrNoData)
	}
	return series, nil
}
