package strategy

import (
	"time"

	"StockWatch/internal/calculator"
	"StockWatch/internal/errors"
	"StockWatch/internal/model"

	"github.com/shopspring/decimal"
)

// Default stop percentages.
var (
	DefaultLossPct  = decimal.RequireFromString("0.07")
	DefaultTrailPct = decimal.RequireFromString("0.03")
)

// StopLossCalculator derives the sale-price line for a position.
type StopLossCalculator struct {
	LossPct  decimal.Decimal // below cost, used until the trailing stop clears cost
	TrailPct decimal.Decimal // below the holding-window high
}

// NewStopLossCalculator returns a calculator; zero percentages fall back to the defaults.
func NewStopLossCalculator(lossPct, trailPct decimal.Decimal) (*StopLossCalculator, error) {
	if lossPct.IsZero() {
		lossPct = DefaultLossPct
	}
	if trailPct.IsZero() {
		trailPct = DefaultTrailPct
	}
	one := decimal.NewFromInt(1)
	if lossPct.IsNegative() || lossPct.GreaterThanOrEqual(one) {
		return nil, errors.Newf(errors.KindInvalidConfig, "loss_pct must be in (0,1), got %s", lossPct)
	}
	if trailPct.IsNegative() || trailPct.GreaterThanOrEqual(one) {
		return nil, errors.Newf(errors.KindInvalidConfig, "trail_pct must be in (0,1), got %s", trailPct)
	}
	return &StopLossCalculator{LossPct: lossPct, TrailPct: trailPct}, nil
}

// Compute returns the sale line for a position bought on purchased at cost.
//
// The holding window runs from max(series start, purchased) through now. A
// purchase after now is OutOfRange; a window without closes (a purchase after
// the last bar, or an empty series) is EmptyWindow.
func (c *StopLossCalculator) Compute(series model.PriceSeries, purchased time.Time, cost decimal.Decimal, now time.Time) (model.SaleLine, error) {
	buy := model.DateOf(purchased)
	if buy.After(model.DateOf(now)) {
		return model.SaleLine{}, errors.Newf(errors.KindOutOfRange,
			"purchased %s after evaluation date %s", buy.Format(model.DateLayout), model.DateOf(now).Format(model.DateLayout))
	}
	first, ok := series.First()
	if !ok {
		return model.SaleLine{}, errors.New(errors.KindEmptyWindow, "empty series")
	}

	start := model.DateOf(first.Date)
	if buy.After(start) {
		start = buy
	}
	window := series.Between(start, now)
	high, err := calculator.MaxClose(window)
	if err != nil {
		return model.SaleLine{}, errors.Wrapf(errors.KindEmptyWindow, err,
			"no closes between %s and %s", start.Format(model.DateLayout), model.DateOf(now).Format(model.DateLayout))
	}

	one := decimal.NewFromInt(1)
	maxClose := decimal.NewFromFloat(high)
	line := model.SaleLine{
		MaxClose:     maxClose,
		LosingPrice:  cost.Mul(one.Sub(c.LossPct)),
		WinningPrice: maxClose.Mul(one.Sub(c.TrailPct)),
	}
	if line.WinningPrice.GreaterThanOrEqual(cost) {
		line.Price = line.WinningPrice
		line.Trailing = true
	} else {
		line.Price = line.LosingPrice
	}
	return line, nil
}

// BelowThreshold reports whether the latest close sits under the sale line.
func BelowThreshold(latestClose float64, line model.SaleLine) bool {
	return decimal.NewFromFloat(latestClose).LessThan(line.Price)
}
