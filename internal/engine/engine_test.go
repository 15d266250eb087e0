package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"StockWatch/internal/calculator"
	"StockWatch/internal/errors"
	"StockWatch/internal/metrics"
	"StockWatch/internal/model"
	"StockWatch/internal/store"
	"StockWatch/internal/strategy"
	"StockWatch/mocks"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

var testWindows = []int{20, 50, 200}

// ramp returns n daily closes rising linearly from `from` to `to`, ending on last.
func ramp(symbol string, n int, from, to float64, last time.Time) model.PriceSeries {
	s := model.PriceSeries{Symbol: symbol}
	first := model.DateOf(last).AddDate(0, 0, -(n - 1))
	for i := 0; i < n; i++ {
		c := from + (to-from)*float64(i)/float64(n-1)
		s.Points = append(s.Points, model.PricePoint{Date: first.AddDate(0, 0, i), Close: c})
	}
	return s
}

func TestNeedsRefresh(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 17, 30, 0, 0, ny)
	tests := []struct {
		name     string
		lastPull time.Time
		want     bool
	}{
		{"never pulled", time.Time{}, true},
		{"earlier same day", time.Date(2024, 3, 1, 9, 0, 0, 0, ny), false},
		{"same day given in utc", time.Date(2024, 3, 2, 1, 0, 0, 0, time.UTC), false},
		{"yesterday", time.Date(2024, 2, 29, 17, 30, 0, 0, ny), true},
		{"next day in utc only", time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsRefresh(tt.lastPull, now))
		})
	}
}

type RefreshTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	fetcher *mocks.MockSeriesFetcher
	store   *mocks.MockStore
	ref     *Refresher
	now     time.Time
}

func TestRefreshSuite(t *testing.T) {
	suite.Run(t, new(RefreshTestSuite))
}

func (suite *RefreshTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.fetcher = mocks.NewMockSeriesFetcher(suite.ctrl)
	suite.fetcher.EXPECT().Name().Return("mock").AnyTimes()
	suite.store = mocks.NewMockStore(suite.ctrl)
	suite.ref = NewRefresher(suite.store, suite.fetcher, testWindows, zap.NewNop())
	suite.now = time.Date(2024, 9, 10, 18, 0, 0, 0, time.UTC)
}

func (suite *RefreshTestSuite) notFound() error {
	return errors.New(errors.KindNotFound, "no cached series")
}

func (suite *RefreshTestSuite) TestFirstPullSavesZeroSnapshot() {
	fetched := ramp("ABC", 250, 50, 100, suite.now)

	suite.store.EXPECT().Load(gomock.Any(), "ABC").Return(model.PriceSeries{}, model.PullRecord{}, suite.notFound())
	suite.fetcher.EXPECT().Fetch(gomock.Any(), "ABC", suite.now.AddDate(0, 0, -DefaultHistoryDays), suite.now).Return(fetched, nil)
	suite.store.EXPECT().Save(gomock.Any(), "ABC", fetched, model.ZeroSnapshot(testWindows), suite.now).Return(nil)

	res, err := suite.ref.Refresh(context.Background(), "ABC", suite.now)
	suite.Require().NoError(err)
	suite.True(res.Fetched)
	suite.False(res.Stale)
	suite.Equal(fetched, res.Series)
	suite.Equal(model.ZeroSnapshot(testWindows), res.Baseline)
}

func (suite *RefreshTestSuite) TestSameDayServesCacheWithoutFetch() {
	cached := ramp("ABC", 250, 50, 100, suite.now)
	rec := model.PullRecord{Symbol: "ABC", LastPullDate: suite.now.Add(-3 * time.Hour), Snapshot: model.IndicatorSnapshot{20: 1, 50: 2, 200: 3}}
	suite.store.EXPECT().Load(gomock.Any(), "ABC").Return(cached, rec, nil)
	// no Fetch, no Save

	res, err := suite.ref.Refresh(context.Background(), "ABC", suite.now)
	suite.Require().NoError(err)
	suite.False(res.Fetched)
	suite.Equal(cached, res.Series)
	suite.Equal(rec.Snapshot, res.Baseline)
}

func (suite *RefreshTestSuite) TestNextDaySavesSnapshotOfCachedSeries() {
	yesterday := suite.now.AddDate(0, 0, -1)
	cached := ramp("ABC", 250, 50, 100, yesterday)
	fetched := ramp("ABC", 251, 50, 100.2, suite.now)
	want, err := calculator.LatestSnapshot(cached, testWindows)
	suite.Require().NoError(err)

	suite.store.EXPECT().Load(gomock.Any(), "ABC").Return(cached, model.PullRecord{Symbol: "ABC", LastPullDate: yesterday}, nil)
	suite.fetcher.EXPECT().Fetch(gomock.Any(), "ABC", gomock.Any(), suite.now).Return(fetched, nil)
	suite.store.EXPECT().Save(gomock.Any(), "ABC", fetched, want, suite.now).Return(nil)

	res, err := suite.ref.Refresh(context.Background(), "ABC", suite.now)
	suite.Require().NoError(err)
	suite.Equal(want, res.Baseline)
	suite.True(res.Record.LastPullDate.Equal(suite.now))
}

func (suite *RefreshTestSuite) TestFetchFailureWithCacheIsStale() {
	yesterday := suite.now.AddDate(0, 0, -1)
	cached := ramp("ABC", 30, 10, 20, yesterday)
	rec := model.PullRecord{Symbol: "ABC", LastPullDate: yesterday, Snapshot: model.IndicatorSnapshot{20: 5}}
	fetchErr := errors.New(errors.KindFetch, "provider down")

	suite.store.EXPECT().Load(gomock.Any(), "ABC").Return(cached, rec, nil)
	suite.fetcher.EXPECT().Fetch(gomock.Any(), "ABC", gomock.Any(), gomock.Any()).Return(model.PriceSeries{}, fetchErr)

	res, err := suite.ref.Refresh(context.Background(), "ABC", suite.now)
	suite.Require().NoError(err)
	suite.True(res.Stale)
	suite.False(res.Fetched)
	suite.Equal(cached, res.Series)
	suite.Equal(rec.Snapshot, res.Baseline)
	suite.True(errors.HasKind(res.FetchErr, errors.KindFetch))
}

func (suite *RefreshTestSuite) TestFetchFailureWithoutCachePropagates() {
	suite.store.EXPECT().Load(gomock.Any(), "ABC").Return(model.PriceSeries{}, model.PullRecord{}, suite.notFound())
	suite.fetcher.EXPECT().Fetch(gomock.Any(), "ABC", gomock.Any(), gomock.Any()).Return(model.PriceSeries{}, fmt.Errorf("dial tcp: refused"))

	_, err := suite.ref.Refresh(context.Background(), "ABC", suite.now)
	suite.Require().Error(err)
	suite.True(errors.HasKind(err, errors.KindFetch))
}

func (suite *RefreshTestSuite) TestInvalidFetchedSeriesIsFetchError() {
	bad := ramp("ABC", 3, 1, 2, suite.now)
	bad.Points[2].Date = bad.Points[0].Date

	suite.store.EXPECT().Load(gomock.Any(), "ABC").Return(model.PriceSeries{}, model.PullRecord{}, suite.notFound())
	suite.fetcher.EXPECT().Fetch(gomock.Any(), "ABC", gomock.Any(), gomock.Any()).Return(bad, nil)

	_, err := suite.ref.Refresh(context.Background(), "ABC", suite.now)
	suite.True(errors.HasKind(err, errors.KindFetch))
}

func (suite *RefreshTestSuite) TestCancelledContextWritesNothing() {
	ctx, cancel := context.WithCancel(context.Background())
	suite.store.EXPECT().Load(gomock.Any(), "ABC").Return(model.PriceSeries{}, model.PullRecord{}, suite.notFound())
	suite.fetcher.EXPECT().Fetch(gomock.Any(), "ABC", gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, time.Time, time.Time) (model.PriceSeries, error) {
			cancel()
			return ramp("ABC", 5, 1, 2, suite.now), nil
		})

	_, err := suite.ref.Refresh(ctx, "ABC", suite.now)
	suite.ErrorIs(err, context.Canceled)
}

func (suite *RefreshTestSuite) TestStorageErrorOnLoadPropagates() {
	suite.store.EXPECT().Load(gomock.Any(), "ABC").Return(model.PriceSeries{}, model.PullRecord{}, errors.New(errors.KindStorage, "disk"))
	_, err := suite.ref.Refresh(context.Background(), "ABC", suite.now)
	suite.True(errors.HasKind(err, errors.KindStorage))
}

func (suite *RefreshTestSuite) TestClockBehindStoredPullDateFailsSave() {
	cached := ramp("ABC", 250, 50, 100, suite.now)
	rec := model.PullRecord{Symbol: "ABC", LastPullDate: suite.now.AddDate(0, 0, 2)}
	fetched := ramp("ABC", 250, 50, 101, suite.now)

	suite.store.EXPECT().Load(gomock.Any(), "ABC").Return(cached, rec, nil)
	suite.fetcher.EXPECT().Fetch(gomock.Any(), "ABC", gomock.Any(), gomock.Any()).Return(fetched, nil)
	suite.store.EXPECT().Save(gomock.Any(), "ABC", fetched, gomock.Any(), suite.now).
		Return(errors.New(errors.KindNonMonotonic, "pull date goes backwards"))

	_, err := suite.ref.Refresh(context.Background(), "ABC", suite.now)
	suite.True(errors.Is(err, errors.ErrNonMonotonic))
}

func (suite *RefreshTestSuite) TestTimeoutBoundsTheFetch() {
	suite.ref.Timeout = 20 * time.Millisecond
	suite.store.EXPECT().Load(gomock.Any(), "ABC").Return(model.PriceSeries{}, model.PullRecord{}, suite.notFound())
	suite.fetcher.EXPECT().Fetch(gomock.Any(), "ABC", gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _, _ time.Time) (model.PriceSeries, error) {
			<-ctx.Done()
			return model.PriceSeries{}, ctx.Err()
		})

	began := time.Now()
	_, err := suite.ref.Refresh(context.Background(), "ABC", suite.now)
	suite.Require().Error(err)
	suite.True(errors.HasKind(err, errors.KindFetch))
	suite.Less(time.Since(began), 5*time.Second)
}

// newSQLitePipeline wires a real sqlite store behind the pipeline.
func newSQLitePipeline(t *testing.T, f *mocks.MockSeriesFetcher, m *metrics.Metrics) (*Pipeline, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	classifier, err := strategy.NewTrendClassifier(strategy.TrendConfig{Mode: strategy.ModeSnapshot, Windows: testWindows})
	require.NoError(t, err)
	stopLoss, err := strategy.NewStopLossCalculator(decimal.Zero, decimal.Zero)
	require.NoError(t, err)

	ref := NewRefresher(st, f, TrackedWindows(testWindows, classifier), zap.NewNop())
	ref.Metrics = m
	return NewPipeline(ref, testWindows, classifier, stopLoss, m, zap.NewNop()), st
}

func TestPipeline_SameDayRunsFetchOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := mocks.NewMockSeriesFetcher(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	m := metrics.New()
	p, _ := newSQLitePipeline(t, f, m)

	now := time.Date(2024, 9, 10, 18, 0, 0, 0, time.UTC)
	f.EXPECT().Fetch(gomock.Any(), "ABC", gomock.Any(), gomock.Any()).Return(ramp("ABC", 250, 50, 100, now), nil).Times(1)

	entry := model.WatchEntry{Symbol: "ABC"}
	first := p.Process(context.Background(), entry, now)
	second := p.Process(context.Background(), entry, now.Add(2*time.Hour))

	require.True(t, first.OK(), "%v", first.Err)
	require.True(t, second.OK(), "%v", second.Err)
	assert.True(t, first.Fetched)
	assert.False(t, second.Fetched)
	assert.Equal(t, first.Points, second.Points)
	assert.Equal(t, first.Current, second.Current)
	assert.Equal(t, first.Trend, second.Trend)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
}

func TestPipeline_EndToEndBullishNextDay(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := mocks.NewMockSeriesFetcher(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	p, st := newSQLitePipeline(t, f, nil)

	day1 := time.Date(2024, 9, 10, 18, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	gomock.InOrder(
		f.EXPECT().Fetch(gomock.Any(), "ABC", gomock.Any(), day1).Return(ramp("ABC", 250, 50, 100, day1), nil),
		f.EXPECT().Fetch(gomock.Any(), "ABC", gomock.Any(), day2).Return(ramp("ABC", 251, 50, 100.2, day2), nil),
	)

	entry := model.WatchEntry{Symbol: "ABC", Position: &model.Position{
		Symbol: "ABC", DatePurchased: day1.AddDate(0, 0, -100), CostPerShare: decimal.NewFromInt(60),
	}}

	r1 := p.Process(context.Background(), entry, day1)
	require.True(t, r1.OK(), "%v", r1.Err)
	for _, w := range testWindows {
		assert.Contains(t, r1.Current, w)
	}

	_, rec, err := st.Load(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Equal(t, model.ZeroSnapshot(testWindows), rec.Snapshot)

	r2 := p.Process(context.Background(), entry, day2)
	require.True(t, r2.OK(), "%v", r2.Err)
	assert.Equal(t, model.Bullish, r2.Trend)
	assert.NoError(t, r2.TrendErr)
	for _, w := range testWindows {
		assert.Greater(t, r2.Current[w], r2.Baseline[w], "window %d", w)
	}
	assert.InDelta(t, r1.Current[20], r2.Baseline[20], 1e-9)

	require.NotNil(t, r2.SaleLine)
	assert.True(t, r2.SaleLine.Trailing)
	assert.False(t, r2.BelowThreshold)
}

func TestPipeline_StopLossFailureKeepsTrend(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := mocks.NewMockSeriesFetcher(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	p, _ := newSQLitePipeline(t, f, nil)

	now := time.Date(2024, 9, 10, 18, 0, 0, 0, time.UTC)
	f.EXPECT().Fetch(gomock.Any(), "ABC", gomock.Any(), gomock.Any()).Return(ramp("ABC", 250, 50, 100, now.AddDate(0, 0, -5)), nil)

	entry := model.WatchEntry{Symbol: "ABC", Position: &model.Position{
		Symbol: "ABC", DatePurchased: now.AddDate(0, 0, -1), CostPerShare: decimal.NewFromInt(90),
	}}
	res := p.Process(context.Background(), entry, now)
	require.True(t, res.OK())
	assert.Equal(t, model.Bullish, res.Trend)
	assert.Nil(t, res.SaleLine)
	assert.True(t, errors.HasKind(res.SaleErr, errors.KindEmptyWindow))

	var e *errors.Error
	require.True(t, errors.As(res.SaleErr, &e))
	assert.Equal(t, model.StageStopLoss, e.Stage)
}

func TestPipeline_FuturePurchaseIsOutOfRange(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := mocks.NewMockSeriesFetcher(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	p, _ := newSQLitePipeline(t, f, nil)

	now := time.Date(2024, 9, 10, 18, 0, 0, 0, time.UTC)
	f.EXPECT().Fetch(gomock.Any(), "ABC", gomock.Any(), gomock.Any()).Return(ramp("ABC", 250, 50, 100, now), nil)

	entry := model.WatchEntry{Symbol: "ABC", Position: &model.Position{
		Symbol: "ABC", DatePurchased: now.AddDate(0, 0, 3), CostPerShare: decimal.NewFromInt(90),
	}}
	res := p.Process(context.Background(), entry, now)
	require.True(t, res.OK())
	assert.Nil(t, res.SaleLine)
	assert.True(t, errors.Is(res.SaleErr, errors.ErrOutOfRange), "%v", res.SaleErr)
}

func TestPipeline_ShortHistoryIsNeutral(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := mocks.NewMockSeriesFetcher(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	p, _ := newSQLitePipeline(t, f, nil)

	now := time.Date(2024, 9, 10, 18, 0, 0, 0, time.UTC)
	f.EXPECT().Fetch(gomock.Any(), "NEW", gomock.Any(), gomock.Any()).Return(ramp("NEW", 60, 10, 12, now), nil)

	res := p.Process(context.Background(), model.WatchEntry{Symbol: "NEW"}, now)
	require.True(t, res.OK())
	assert.Equal(t, model.Neutral, res.Trend)
	assert.True(t, errors.HasKind(res.TrendErr, errors.KindInsufficientHistory))
	assert.Contains(t, res.Current, 50)
	assert.NotContains(t, res.Current, 200)
}

func TestBatch_IsolatesFailuresAndKeepsOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := mocks.NewMockSeriesFetcher(ctrl)
	f.EXPECT().Name().Return("mock").AnyTimes()
	m := metrics.New()
	p, _ := newSQLitePipeline(t, f, m)

	now := time.Date(2024, 9, 10, 18, 0, 0, 0, time.UTC)
	f.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, symbol string, _, end time.Time) (model.PriceSeries, error) {
			if symbol == "BAD" {
				return model.PriceSeries{}, errors.New(errors.KindFetch, "unknown symbol")
			}
			return ramp(symbol, 250, 50, 100, end), nil
		}).Times(4)

	entries := []model.WatchEntry{{Symbol: "AAA"}, {Symbol: "BAD"}, {Symbol: "CCC"}, {Symbol: "DDD"}}
	var seen atomic.Int32
	b := NewBatch(p, 2, zap.NewNop())
	b.Clock = func() time.Time { return now }
	b.OnResult = func(model.SymbolResult) { seen.Add(1) }

	report := b.Run(context.Background(), entries)
	require.Len(t, report.Results, 4)
	for i, e := range entries {
		assert.Equal(t, e.Symbol, report.Results[i].Symbol)
	}
	assert.Equal(t, 1, report.Failed())
	assert.True(t, errors.HasKind(report.Results[1].Err, errors.KindFetch))
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, int32(4), seen.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues(model.StageRefresh, "fetch")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.BatchSymbols))
}
