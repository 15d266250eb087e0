package collector

import (
	"context"
	"fmt"
	"time"

	"StockWatch/internal/model"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
)

// aggsFunc lists daily aggregates for ticker over [from, to].
type aggsFunc func(ctx context.Context, ticker string, from, to time.Time) ([]models.Agg, error)

// PolygonFetcher implements SeriesFetcher using Polygon daily aggregates.
type PolygonFetcher struct {
	list aggsFunc
	loc  *time.Location // exchange zone, used to read bar dates
}

// NewPolygonFetcher creates a fetcher backed by the Polygon REST client.
func NewPolygonFetcher(apiKey string) (*PolygonFetcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("polygon api key is empty")
	}
	client := polygon.New(apiKey)
	list := func(ctx context.Context, ticker string, from, to time.Time) ([]models.Agg, error) {
		params := models.ListAggsParams{
			Ticker:     ticker,
			Multiplier: 1,
			Timespan:   models.Day,
			From:       models.Millis(from),
			To:         models.Millis(to),
		}.WithLimit(50000)

		var aggs []models.Agg
		iter := client.ListAggs(ctx, params)
		for iter.Next() {
			aggs = append(aggs, iter.Item())
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		return aggs, nil
	}
	return newPolygonFetcher(list), nil
}

func newPolygonFetcher(list aggsFunc) *PolygonFetcher {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &PolygonFetcher{list: list, loc: loc}
}

func (f *PolygonFetcher) Name() string { return "polygon" }

// Fetch implements SeriesFetcher.
func (f *PolygonFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	from := model.DateOf(start)
	to := model.DateOf(end).AddDate(0, 0, 1).Add(-time.Millisecond)
	aggs, err := f.list(ctx, symbol, from, to)
	if err != nil {
		return model.PriceSeries{}, fetchErr(f.Name(), symbol, err)
	}

	points := make([]model.PricePoint, 0, len(aggs))
	for _, agg := range aggs {
		// Bars are stamped at the start of the trading day in exchange time.
		y, m, d := time.Time(agg.Timestamp).In(f.loc).Date()
		points = append(points, model.PricePoint{
			Date:  time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
			Close: agg.Close,
		})
	}
	series := normalize(symbol, points, start, end)
	if series.Empty() {
		return model.PriceSeries{}, fetchErr(f.Name(), symbol, ErrNoData)
	}
	return series, nil
}
