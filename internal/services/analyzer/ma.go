package analyzer

import (
	"math"

	"github.com/bobmcallan/signum/internal/models"
	"github.com/bobmcallan/signum/internal/signals"
)

// Moving-average periods
const (
	maShort = 20
	maMid   = 50
	maLong  = 200
)

const (
	// crossWindow is how many recent bars are scanned for MA50/MA200 crosses
	crossWindow = 10

	// maEventWindow is how many recent bars are scanned for bounces,
	// breakouts, and alignment changes
	maEventWindow = 5

	// bounceMaxDistance is the relative gap within which a wick is
	// considered touching a moving average
	bounceMaxDistance = 0.02
)

// MovingAverageStrategy detects events against the 20/50/200-day SMAs:
// golden and death crosses, support and resistance bounces, breakouts
// through an average, and alignment changes.
type MovingAverageStrategy struct{}

// NewMovingAverageStrategy creates the moving-average strategy
func NewMovingAverageStrategy() *MovingAverageStrategy {
	return &MovingAverageStrategy{}
}

func (m *MovingAverageStrategy) Name() string { return "moving_average" }

func (m *MovingAverageStrategy) Family() Family { return FamilyMovingAverage }

func (m *MovingAverageStrategy) MinRows() int { return MinMARows }

func (m *MovingAverageStrategy) Analyze(bars []models.PriceHistory, currentPrice float64) []Emission {
	if len(bars) < m.MinRows() {
		return nil
	}

	closes := signals.Closes(bars)
	ma20 := signals.RollingSMA(closes, maShort, maShort)
	ma50 := signals.RollingSMA(closes, maMid, maMid)
	ma200 := signals.RollingSMA(closes, maLong, maLong)

	var emissions []Emission
	emissions = append(emissions, m.crossEmissions(bars, ma50, ma200)...)
	emissions = append(emissions, m.bounceEmissions(bars, closes, ma20, ma50, ma200)...)
	emissions = append(emissions, m.breakoutEmissions(bars, closes, ma20, ma50, ma200)...)
	emissions = append(emissions, m.alignmentEmissions(bars, ma20, ma50, ma200)...)
	return emissions
}

// crossEmissions finds MA50/MA200 crossings in the recent window
func (m *MovingAverageStrategy) crossEmissions(bars []models.PriceHistory, ma50, ma200 []float64) []Emission {
	var emissions []Emission
	start := len(bars) - crossWindow
	if start < 1 {
		start = 1
	}

	for i := start; i < len(bars); i++ {
		if !validMA(ma50[i-1], ma200[i-1], ma50[i], ma200[i]) {
			continue
		}

		goldenCross := ma50[i-1] < ma200[i-1] && ma50[i] > ma200[i]
		deathCross := ma50[i-1] > ma200[i-1] && ma50[i] < ma200[i]
		if !goldenCross && !deathCross {
			continue
		}

		strategy := models.StrategyGoldenCross
		signalType := models.SignalTypeBuy
		crossType := "golden"
		if deathCross {
			strategy = models.StrategyDeathCross
			signalType = models.SignalTypeSell
			crossType = "death"
		}

		emissions = append(emissions, Emission{
			StrategyName: strategy,
			SignalType:   signalType,
			Date:         bars[i].Date,
			Price:        bars[i].Close,
			Details: models.SignalDetails{
				Strategy:  strategy,
				MA50:      models.Float64Ptr(signals.Round(ma50[i], 2)),
				MA200:     models.Float64Ptr(signals.Round(ma200[i], 2)),
				CrossType: crossType,
			},
		})
	}
	return emissions
}

// bounceEmissions finds bars whose wick touches an average while the
// candle closes on the respecting side with matching color
func (m *MovingAverageStrategy) bounceEmissions(bars []models.PriceHistory, closes []float64, ma20, ma50, ma200 []float64) []Emission {
	var emissions []Emission
	start := len(bars) - maEventWindow
	if start < 0 {
		start = 0
	}

	series := []struct {
		period int
		values []float64
	}{
		{maShort, ma20},
		{maMid, ma50},
		{maLong, ma200},
	}

	for i := start; i < len(bars); i++ {
		for _, ma := range series {
			v := ma.values[i]
			if math.IsNaN(v) || v <= 0 {
				continue
			}

			supportTouch := math.Abs(bars[i].Low-v)/v <= bounceMaxDistance
			if supportTouch && closes[i] > v && closes[i] > bars[i].Open {
				emissions = append(emissions, Emission{
					StrategyName: models.StrategyMASupport,
					SignalType:   models.SignalTypeBuy,
					Date:         bars[i].Date,
					Price:        closes[i],
					Details: models.SignalDetails{
						Strategy:    models.StrategyMASupport,
						MAPeriod:    ma.period,
						MAValue:     models.Float64Ptr(signals.Round(v, 2)),
						DistancePct: models.Float64Ptr(signals.Round(math.Abs(bars[i].Low-v)/v*100, 2)),
						BounceType:  "support",
					},
				})
				continue
			}

			resistanceTouch := math.Abs(bars[i].High-v)/v <= bounceMaxDistance
			if resistanceTouch && closes[i] < v && closes[i] < bars[i].Open {
				emissions = append(emissions, Emission{
					StrategyName: models.StrategyMAResistance,
					SignalType:   models.SignalTypeSell,
					Date:         bars[i].Date,
					Price:        closes[i],
					Details: models.SignalDetails{
						Strategy:    models.StrategyMAResistance,
						MAPeriod:    ma.period,
						MAValue:     models.Float64Ptr(signals.Round(v, 2)),
						DistancePct: models.Float64Ptr(signals.Round(math.Abs(bars[i].High-v)/v*100, 2)),
						BounceType:  "resistance",
					},
				})
			}
		}
	}
	return emissions
}

// breakoutEmissions finds closes crossing an average between two
// consecutive bars
func (m *MovingAverageStrategy) breakoutEmissions(bars []models.PriceHistory, closes []float64, ma20, ma50, ma200 []float64) []Emission {
	var emissions []Emission
	start := len(bars) - maEventWindow
	if start < 1 {
		start = 1
	}

	series := []struct {
		period int
		values []float64
	}{
		{maShort, ma20},
		{maMid, ma50},
		{maLong, ma200},
	}

	for i := start; i < len(bars); i++ {
		for _, ma := range series {
			prev, cur := ma.values[i-1], ma.values[i]
			if math.IsNaN(prev) || math.IsNaN(cur) {
				continue
			}

			up := closes[i-1] < prev && closes[i] > cur
			down := closes[i-1] > prev && closes[i] < cur
			if !up && !down {
				continue
			}

			strategy := models.StrategyMABreakoutUp
			signalType := models.SignalTypeBuy
			direction := "up"
			if down {
				strategy = models.StrategyMABreakdown
				signalType = models.SignalTypeSell
				direction = "down"
			}

			emissions = append(emissions, Emission{
				StrategyName: strategy,
				SignalType:   signalType,
				Date:         bars[i].Date,
				Price:        closes[i],
				Details: models.SignalDetails{
					Strategy:          strategy,
					MAPeriod:          ma.period,
					MAValue:           models.Float64Ptr(signals.Round(cur, 2)),
					BreakoutDirection: direction,
				},
			})
		}
	}
	return emissions
}

// alignmentEmissions finds bars where the full MA ordering becomes
// bullish or bearish having not been so on the previous bar
func (m *MovingAverageStrategy) alignmentEmissions(bars []models.PriceHistory, ma20, ma50, ma200 []float64) []Emission {
	var emissions []Emission
	start := len(bars) - maEventWindow
	if start < 1 {
		start = 1
	}

	bullish := func(i int) bool {
		return validMA(ma20[i], ma50[i], ma200[i]) && ma20[i] > ma50[i] && ma50[i] > ma200[i]
	}
	bearish := func(i int) bool {
		return validMA(ma20[i], ma50[i], ma200[i]) && ma20[i] < ma50[i] && ma50[i] < ma200[i]
	}

	for i := start; i < len(bars); i++ {
		var strategy, signalType, alignment string
		switch {
		case bullish(i) && !bullish(i-1):
			strategy = models.StrategyMAAlignBull
			signalType = models.SignalTypeBuy
			alignment = "bullish"
		case bearish(i) && !bearish(i-1):
			strategy = models.StrategyMAAlignBear
			signalType = models.SignalTypeSell
			alignment = "bearish"
		default:
			continue
		}

		emissions = append(emissions, Emission{
			StrategyName: strategy,
			SignalType:   signalType,
			Date:         bars[i].Date,
			Price:        bars[i].Close,
			Details: models.SignalDetails{
				Strategy:  strategy,
				MA20:      models.Float64Ptr(signals.Round(ma20[i], 2)),
				MA50:      models.Float64Ptr(signals.Round(ma50[i], 2)),
				MA200:     models.Float64Ptr(signals.Round(ma200[i], 2)),
				Alignment: alignment,
			},
		})
	}
	return emissions
}

func validMA(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Compile-time check
var _ Strategy = (*MovingAverageStrategy)(nil)
