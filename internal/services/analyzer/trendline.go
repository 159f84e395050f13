package analyzer

import (
	"math"

	"github.com/bobmcallan/signum/internal/models"
	"github.com/bobmcallan/signum/internal/signals"
)

const (
	// approachingWindow is how many recent bars are scanned for
	// near-breakout setups
	approachingWindow = 5

	// approachingMaxDistancePct is the widest gap to the trendline, in
	// percent of close, that still counts as approaching
	approachingMaxDistancePct = 3.0

	// pullbackWindow is how many recent bars are scanned for pullbacks
	// after a confirmed breakout
	pullbackWindow = 10

	// pullbackMaxDistancePct bounds how far from the broken trendline a
	// bar may sit and still count as a pullback
	pullbackMaxDistancePct = 3.0
)

// TrendlineStrategy detects descending-trendline setups: confirmed
// breakouts, approaching breakouts, and post-breakout pullbacks.
type TrendlineStrategy struct {
	swingWindow int
}

// NewTrendlineStrategy creates the trendline strategy with the default
// swing detection window
func NewTrendlineStrategy() *TrendlineStrategy {
	return &TrendlineStrategy{swingWindow: signals.SwingHighWindow}
}

func (t *TrendlineStrategy) Name() string { return "descending_trendline" }

func (t *TrendlineStrategy) Family() Family { return FamilyTrendline }

func (t *TrendlineStrategy) MinRows() int { return MinTrendlineRows }

func (t *TrendlineStrategy) Analyze(bars []models.PriceHistory, currentPrice float64) []Emission {
	if len(bars) < t.MinRows() {
		return nil
	}

	swings := signals.SwingHighIndexes(bars, t.swingWindow)
	chain := signals.LongestLowerHighChain(bars, swings)
	if chain == nil {
		return nil
	}

	slope, intercept := signals.FitTrendline(bars, chain)
	if slope >= 0 {
		return nil
	}

	lastChainIdx := chain[len(chain)-1]
	closes := signals.Closes(bars)

	var emissions []Emission
	breakoutIdx := -1

	// Every close crossing from at-or-below the line to above it is a
	// confirmed breakout; the pullback scan anchors on the first one.
	for i := lastChainIdx + 1; i < len(bars); i++ {
		prevTL := signals.TrendlineAt(slope, intercept, i-1)
		tl := signals.TrendlineAt(slope, intercept, i)
		if closes[i-1] <= prevTL && closes[i] > tl {
			details := t.baseDetails(models.StrategyTrendlineBreakout, slope, intercept, closes, i)
			emissions = append(emissions, Emission{
				StrategyName: models.StrategyTrendlineBreakout,
				SignalType:   models.SignalTypeBuy,
				Date:         bars[i].Date,
				Price:        closes[i],
				Details:      details,
			})
			if breakoutIdx < 0 {
				breakoutIdx = i
			}
		}
	}

	emissions = append(emissions, t.approachingEmissions(bars, closes, slope, intercept, lastChainIdx)...)

	if breakoutIdx >= 0 {
		emissions = append(emissions, t.pullbackEmissions(bars, closes, slope, intercept, breakoutIdx)...)
	}
	return emissions
}

// approachingEmissions scans the most recent bars for bullish closes
// sitting just under the trendline
func (t *TrendlineStrategy) approachingEmissions(bars []models.PriceHistory, closes []float64, slope, intercept float64, lastChainIdx int) []Emission {
	start := len(bars) - approachingWindow
	if start <= lastChainIdx {
		start = lastChainIdx + 1
	}

	var emissions []Emission
	for i := start; i < len(bars); i++ {
		tl := signals.TrendlineAt(slope, intercept, i)
		if closes[i] >= tl {
			continue
		}
		distancePct := (tl - closes[i]) / closes[i] * 100
		if distancePct <= 0 || distancePct > approachingMaxDistancePct {
			continue
		}
		if closes[i] <= bars[i].Open {
			continue
		}

		details := t.baseDetails(models.StrategyApproachingBreakout, slope, intercept, closes, i)
		details.DistanceToTrendline = models.Float64Ptr(signals.Round(distancePct, 2))
		// Confirmation state deliberately unset; a later analysis pass
		// resolves it against the bars that follow.
		details.BreakoutConfirmed = nil
		details.BreakoutDate = nil

		emissions = append(emissions, Emission{
			StrategyName: models.StrategyApproachingBreakout,
			SignalType:   models.SignalTypeApproaching,
			Date:         bars[i].Date,
			Price:        closes[i],
			Details:      details,
		})
	}
	return emissions
}

// pullbackEmissions scans recent bars after a breakout for price
// returning to within tolerance of the broken line
func (t *TrendlineStrategy) pullbackEmissions(bars []models.PriceHistory, closes []float64, slope, intercept float64, breakoutIdx int) []Emission {
	start := len(bars) - pullbackWindow
	if start <= breakoutIdx {
		start = breakoutIdx + 1
	}

	var emissions []Emission
	for i := start; i < len(bars); i++ {
		tl := signals.TrendlineAt(slope, intercept, i)
		if tl <= 0 {
			continue
		}
		distancePct := math.Abs(closes[i]-tl) / tl * 100
		if distancePct > pullbackMaxDistancePct {
			continue
		}

		details := t.baseDetails(models.StrategyPullbackBuy, slope, intercept, closes, i)
		details.PullbackDistance = models.Float64Ptr(signals.Round(distancePct, 2))

		emissions = append(emissions, Emission{
			StrategyName: models.StrategyPullbackBuy,
			SignalType:   models.SignalTypePullback,
			Date:         bars[i].Date,
			Price:        closes[i],
			Details:      details,
		})
	}
	return emissions
}

// baseDetails assembles the payload fields shared by the whole family:
// the fitted line and the 90-bar reference average at the signal bar.
func (t *TrendlineStrategy) baseDetails(strategy string, slope, intercept float64, closes []float64, idx int) models.SignalDetails {
	details := models.SignalDetails{
		Strategy:           strategy,
		TrendlineSlope:     models.Float64Ptr(signals.Round(slope, 4)),
		TrendlineIntercept: models.Float64Ptr(signals.Round(intercept, 4)),
	}

	if idx+1 >= MinTrendlineRows {
		sma := signals.MeanRecent(closes[:idx+1], 90)
		details.SMA90 = models.Float64Ptr(signals.Round(sma, 2))
		if sma > 0 {
			details.SMA90Ratio = models.Float64Ptr(signals.Round(closes[idx]/sma*100, 1))
		}
	}
	return details
}

// Compile-time check
var _ Strategy = (*TrendlineStrategy)(nil)
