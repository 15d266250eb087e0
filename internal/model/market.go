package model

import (
	"fmt"
	"time"
)

// PricePoint is a single daily close.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries holds one symbol's daily closes in ascending date order.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// Len returns the number of points.
func (s PriceSeries) Len() int { return len(s.Points) }

// Empty reports whether the series has no points.
func (s PriceSeries) Empty() bool { return len(s.Points) == 0 }

// Closes returns the close prices in order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Points))
	for i, p := range s.Points {
		closes[i] = p.Close
	}
	return closes
}

// First returns the earliest point. ok is false for an empty series.
func (s PriceSeries) First() (p PricePoint, ok bool) {
	if len(s.Points) == 0 {
		return PricePoint{}, false
	}
	return s.Points[0], true
}

// Latest returns the most recent point. ok is false for an empty series.
func (s PriceSeries) Latest() (p PricePoint, ok bool) {
	if len(s.Points) == 0 {
		return PricePoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Between returns the points whose calendar date lies in [from, to], inclusive.
func (s PriceSeries) Between(from, to time.Time) []PricePoint {
	lo, hi := DateOf(from), DateOf(to)
	var out []PricePoint
	for _, p := range s.Points {
		d := DateOf(p.Date)
		if d.Before(lo) || d.After(hi) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Validate checks ascending, date-unique order and positive closes.
func (s PriceSeries) Validate() error {
	for i, p := range s.Points {
		if p.Close <= 0 {
			return fmt.Errorf("point %d (%s): non-positive close %v", i, p.Date.Format(DateLayout), p.Close)
		}
		if i == 0 {
			continue
		}
		prev := DateOf(s.Points[i-1].Date)
		if !DateOf(p.Date).After(prev) {
			return fmt.Errorf("point %d (%s): not after %s", i, p.Date.Format(DateLayout), prev.Format(DateLayout))
		}
	}
	return nil
}

// DateLayout is the calendar date format used in storage and reports.
const DateLayout = "2006-01-02"

// DateOf returns t's calendar date, read in t's own location, as midnight UTC.
// Comparing DateOf values compares calendar dates regardless of zone.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether a and b fall on the same calendar date in loc.
func SameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
