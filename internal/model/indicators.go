package model

import (
	"sort"
	"time"

	"github.com/moznion/go-optional"
)

// IndicatorPoint is one rolling value aligned to a price date.
// Value is None until the window has enough points.
type IndicatorPoint struct {
	Date  time.Time
	Value optional.Option[float64]
}

// IndicatorSet maps a window length to its full recomputed history.
type IndicatorSet map[int][]IndicatorPoint

// Windows returns the tracked window lengths in ascending order.
func (s IndicatorSet) Windows() []int {
	ws := make([]int, 0, len(s))
	for w := range s {
		ws = append(ws, w)
	}
	sort.Ints(ws)
	return ws
}

// Latest returns the value at the last date for window.
func (s IndicatorSet) Latest(window int) optional.Option[float64] {
	pts := s[window]
	if len(pts) == 0 {
		return optional.None[float64]()
	}
	return pts[len(pts)-1].Value
}

// Snapshot captures the latest defined value of every window.
// Windows whose latest value is undefined are left out.
func (s IndicatorSet) Snapshot() IndicatorSnapshot {
	snap := IndicatorSnapshot{}
	for w := range s {
		if v := s.Latest(w); v.IsSome() {
			snap[w] = v.Unwrap()
		}
	}
	return snap
}

// IndicatorSnapshot is the last value of each tracked window as of a refresh.
type IndicatorSnapshot map[int]float64

// ZeroSnapshot is the baseline used when a symbol has no cache yet.
func ZeroSnapshot(windows []int) IndicatorSnapshot {
	snap := make(IndicatorSnapshot, len(windows))
	for _, w := range windows {
		snap[w] = 0
	}
	return snap
}

// Value returns the stored value for window.
func (s IndicatorSnapshot) Value(window int) (float64, bool) {
	v, ok := s[window]
	return v, ok
}

// Clone returns an independent copy.
func (s IndicatorSnapshot) Clone() IndicatorSnapshot {
	if s == nil {
		return nil
	}
	cp := make(IndicatorSnapshot, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}

// PullRecord is the metadata kept next to a cached series.
type PullRecord struct {
	Symbol       string            `json:"symbol"`
	LastPullDate time.Time         `json:"last_pull_date"`
	Snapshot     IndicatorSnapshot `json:"snapshot"`
}
