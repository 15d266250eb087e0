// Package watchlist reads the symbols to evaluate and their optional
// purchase data from a CSV file.
//
// The header must name a Symbol column; Date Purchased and Cost Per Share are
// optional. Matching is case-insensitive and column order is free:
//
//	Symbol,Date Purchased,Cost Per Share
//	AAPL,2024-03-15,172.50
//	MSFT,,
package watchlist

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"StockWatch/internal/errors"
	"StockWatch/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	colSymbol    = "symbol"
	colPurchased = "date purchased"
	colCost      = "cost per share"
)

// dateLayouts are the accepted purchase date formats.
var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006"}

// row is one parsed line before conversion.
type row struct {
	Symbol    string `validate:"required,max=16,printascii,excludes= "`
	Purchased string `validate:"required_with=Cost"`
	Cost      string `validate:"required_with=Purchased"`
}

var validate = validator.New()

// Load reads the watchlist at path.
func Load(path string) ([]model.WatchEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.KindInvalidConfig, err, "open watchlist %s", path)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a watchlist from r. Every row must be valid and symbols must
// be unique; the first problem aborts with KindInvalidConfig.
func Parse(r io.Reader) ([]model.WatchEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(errors.KindInvalidConfig, "watchlist is empty")
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindInvalidConfig, "read watchlist header", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[name] = i
	}
	if _, ok := cols[colSymbol]; !ok {
		return nil, errors.New(errors.KindInvalidConfig, "watchlist header has no Symbol column")
	}

	var entries []model.WatchEntry
	seen := map[string]int{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(errors.KindInvalidConfig, err, "watchlist line %d", line)
		}
		if blank(rec) {
			continue
		}

		rw := row{
			Symbol:    strings.ToUpper(field(rec, cols, colSymbol)),
			Purchased: field(rec, cols, colPurchased),
			Cost:      field(rec, cols, colCost),
		}
		if err := validate.Struct(rw); err != nil {
			return nil, errors.Wrapf(errors.KindInvalidConfig, err, "watchlist line %d", line)
		}
		if prev, dup := seen[rw.Symbol]; dup {
			return nil, errors.Newf(errors.KindInvalidConfig, "watchlist line %d: duplicate symbol %s (first on line %d)", line, rw.Symbol, prev)
		}
		seen[rw.Symbol] = line

		entry := model.WatchEntry{Symbol: rw.Symbol}
		if rw.Purchased != "" {
			pos, err := toPosition(rw)
			if err != nil {
				return nil, errors.Wrapf(errors.KindInvalidConfig, err, "watchlist line %d", line)
			}
			entry.Position = pos
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, errors.New(errors.KindInvalidConfig, "watchlist has no symbols")
	}
	return entries, nil
}

func toPosition(rw row) (*model.Position, error) {
	var (
		purchased time.Time
		err       error
	)
	for _, layout := range dateLayouts {
		if purchased, err = time.Parse(layout, rw.Purchased); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("date purchased %q: want YYYY-MM-DD or MM/DD/YYYY", rw.Purchased)
	}
	cost, err := decimal.NewFromString(strings.TrimPrefix(rw.Cost, "$"))
	if err != nil {
		return nil, fmt.Errorf("cost per share %q: %w", rw.Cost, err)
	}
	if !cost.IsPositive() {
		return nil, fmt.Errorf("cost per share must be positive, got %s", cost)
	}
	return &model.Position{Symbol: rw.Symbol, DatePurchased: purchased, CostPerShare: cost}, nil
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
