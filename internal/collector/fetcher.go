// Package collector fetches daily close series from market data providers.
package collector

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"StockWatch/internal/errors"
	"StockWatch/internal/model"
)

// SeriesFetcher retrieves daily closes for symbol over [start, end], inclusive
// by calendar date. Every failure is an error of kind KindFetch.
type SeriesFetcher interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error)
	Name() string
}

// ErrNoData marks a response without any bars. Retrying does not help.
var ErrNoData = stderrors.New("no data returned")

// StatusError is a non-200 HTTP response from a provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d, body: %s", e.Code, e.Body)
}

// IsPermanent reports whether a fetch failure will repeat on retry:
// empty results and 4xx responses other than 429.
func IsPermanent(err error) bool {
	if stderrors.Is(err, ErrNoData) {
		return true
	}
	var se *StatusError
	if stderrors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return false
}

func fetchErr(provider, symbol string, cause error) error {
	return errors.WithSymbol(errors.Wrap(errors.KindFetch, provider, cause), symbol)
}

func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// normalize sorts points, collapses them to calendar dates, keeps the last
// close seen for a date and drops anything outside [start, end].
func normalize(symbol string, points []model.PricePoint, start, end time.Time) model.PriceSeries {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	lo, hi := model.DateOf(start), model.DateOf(end)
	series := model.PriceSeries{Symbol: symbol}
	for _, p := range points {
		d := model.DateOf(p.Date)
		if d.Before(lo) || d.After(hi) || p.Close <= 0 {
			continue
		}
		if n := len(series.Points); n > 0 && series.Points[n-1].Date.Equal(d) {
			series.Points[n-1].Close = p.Close
			continue
		}
		series.Points = append(series.Points, model.PricePoint{Date: d, Close: p.Close})
	}
	return series
}
