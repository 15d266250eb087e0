package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a held lot read from the watchlist.
type Position struct {
	Symbol        string
	DatePurchased time.Time
	CostPerShare  decimal.Decimal
}

// WatchEntry is one watchlist row. Position is nil for watch-only symbols.
type WatchEntry struct {
	Symbol   string
	Position *Position
}
