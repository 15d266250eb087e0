package calculator

import (
	"errors"
	"math"

	"StockWatch/internal/model"
)

// MaxClose scans the points and returns the highest close.
func MaxClose(points []model.PricePoint) (float64, error) {
	if len(points) == 0 {
		return 0, errors.New("no points provided")
	}
	high := math.Inf(-1)
	for _, p := range points {
		if p.Close > high {
			high = p.Close
		}
	}
	return high, nil
}
