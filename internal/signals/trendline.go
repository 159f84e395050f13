// Package signals provides technical indicator calculations
package signals

import (
	"github.com/bobmcallan/signum/internal/models"
)

// SwingHighWindow is the number of bars on each side a local high must
// dominate to qualify as a swing high
const SwingHighWindow = 5

// SwingHighIndexes returns the indexes of swing highs in an ascending
// bar series. A bar qualifies when its high strictly exceeds the highs
// of every bar within window positions on both sides; equal highs
// disqualify. Bars too close to either edge cannot qualify.
func SwingHighIndexes(bars []models.PriceHistory, window int) []int {
	var swings []int
	for i := window; i < len(bars)-window; i++ {
		isSwing := true
		for j := i - window; j <= i+window; j++ {
			if j == i {
				continue
			}
			if bars[j].High >= bars[i].High {
				isSwing = false
				break
			}
		}
		if isSwing {
			swings = append(swings, i)
		}
	}
	return swings
}

// LongestLowerHighChain selects the longest run of swing highs forming
// strictly lower highs. From each candidate start the chain greedily
// absorbs every later swing high below the last absorbed one; the
// longest chain wins, with earlier starts winning ties. Chains shorter
// than three points carry no trend information and return nil.
func LongestLowerHighChain(bars []models.PriceHistory, swings []int) []int {
	var best []int
	for start := 0; start < len(swings); start++ {
		chain := []int{swings[start]}
		for k := start + 1; k < len(swings); k++ {
			if bars[swings[k]].High < bars[chain[len(chain)-1]].High {
				chain = append(chain, swings[k])
			}
		}
		if len(chain) > len(best) {
			best = chain
		}
	}
	if len(best) < 3 {
		return nil
	}
	return best
}

// FitLine performs an ordinary least squares fit over the given points
// and returns the slope and intercept of y = slope*x + intercept.
// Fewer than two points, or degenerate x values, yield a flat line
// through the mean.
func FitLine(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	if len(xs) < 2 || len(xs) != len(ys) {
		if len(ys) == 1 {
			return 0, ys[0]
		}
		return 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}

	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// FitTrendline fits a line through the highs of the given chain
// positions. X coordinates are the bar indexes so the line can be
// evaluated at any position in the same series.
func FitTrendline(bars []models.PriceHistory, chain []int) (slope, intercept float64) {
	xs := make([]float64, len(chain))
	ys := make([]float64, len(chain))
	for i, idx := range chain {
		xs[i] = float64(idx)
		ys[i] = bars[idx].High
	}
	return FitLine(xs, ys)
}

// TrendlineAt evaluates a fitted line at bar index x
func TrendlineAt(slope, intercept float64, x int) float64 {
	return slope*float64(x) + intercept
}
