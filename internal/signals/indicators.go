// Package signals provides technical indicator calculations
package signals

import (
	"math"

	"github.com/bobmcallan/signum/internal/models"
)

// Closes extracts the close column from a bar series
func Closes(bars []models.PriceHistory) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// RollingSMA computes a rolling mean over values with the given window.
// Positions backed by fewer than minPeriods samples are NaN. Values are
// assumed to be in ascending date order.
func RollingSMA(values []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}

		count := i + 1
		if count > window {
			count = window
		}
		if count < minPeriods {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(count)
	}
	return out
}

// SMA returns the mean of the last period values, or NaN when fewer
// values are available
func SMA(values []float64, period int) float64 {
	if len(values) < period || period <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// MeanRecent returns the mean of the most recent min(period, len) values.
// Used for the 90-day reference average, which tolerates short history
// once a minimum sample size is met.
func MeanRecent(values []float64, period int) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	if period > len(values) {
		period = len(values)
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// Round rounds a value to the given number of decimal places
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}
