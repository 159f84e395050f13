package analyzer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/signum/internal/models"
	"github.com/bobmcallan/signum/internal/signals"
)

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func constSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestMA_GoldenCross(t *testing.T) {
	bars := flatBars(250)
	ma50 := constSeries(250, 9)
	ma200 := constSeries(250, 10)
	ma50[249] = 11 // crosses above on the final bar

	m := NewMovingAverageStrategy()
	emissions := m.crossEmissions(bars, ma50, ma200)
	require.Len(t, emissions, 1)

	e := emissions[0]
	assert.Equal(t, models.StrategyGoldenCross, e.StrategyName)
	assert.Equal(t, models.SignalTypeBuy, e.SignalType)
	assert.True(t, e.Date.Equal(bars[249].Date))
	assert.Equal(t, "golden", e.Details.CrossType)
	require.NotNil(t, e.Details.MA50)
	assert.InDelta(t, 11.0, *e.Details.MA50, 0.001)
	require.NotNil(t, e.Details.MA200)
	assert.InDelta(t, 10.0, *e.Details.MA200, 0.001)
}

func TestMA_DeathCross(t *testing.T) {
	bars := flatBars(250)
	ma50 := constSeries(250, 11)
	ma200 := constSeries(250, 10)
	ma50[249] = 9

	m := NewMovingAverageStrategy()
	emissions := m.crossEmissions(bars, ma50, ma200)
	require.Len(t, emissions, 1)
	assert.Equal(t, models.StrategyDeathCross, emissions[0].StrategyName)
	assert.Equal(t, models.SignalTypeSell, emissions[0].SignalType)
	assert.Equal(t, "death", emissions[0].Details.CrossType)
}

func TestMA_CrossIgnoresWarmupNaN(t *testing.T) {
	bars := flatBars(250)
	ma50 := constSeries(250, 9)
	ma200 := constSeries(250, 10)
	ma50[249] = 11
	ma50[248] = math.NaN() // the crossing pair is incomplete

	m := NewMovingAverageStrategy()
	assert.Empty(t, m.crossEmissions(bars, ma50, ma200))
}

func TestMA_SupportBounce(t *testing.T) {
	bars := flatBars(250)
	bars[249].Open = 79.6
	bars[249].Close = 80.2 // green candle closing above the average

	ma20 := nanSeries(250)
	ma20[249] = 79.5 // low of 79 is within 2% of the average

	m := NewMovingAverageStrategy()
	emissions := m.bounceEmissions(bars, signals.Closes(bars), ma20, nanSeries(250), nanSeries(250))
	require.Len(t, emissions, 1)

	e := emissions[0]
	assert.Equal(t, models.StrategyMASupport, e.StrategyName)
	assert.Equal(t, models.SignalTypeBuy, e.SignalType)
	assert.Equal(t, maShort, e.Details.MAPeriod)
	assert.Equal(t, "support", e.Details.BounceType)
}

func TestMA_ResistanceBounce(t *testing.T) {
	bars := flatBars(250) // default candle is red: open 80.5, close 80

	ma50 := nanSeries(250)
	ma50[249] = 81.5 // high of 81 is within 2% of the average

	m := NewMovingAverageStrategy()
	emissions := m.bounceEmissions(bars, signals.Closes(bars), nanSeries(250), ma50, nanSeries(250))
	require.Len(t, emissions, 1)

	e := emissions[0]
	assert.Equal(t, models.StrategyMAResistance, e.StrategyName)
	assert.Equal(t, models.SignalTypeSell, e.SignalType)
	assert.Equal(t, maMid, e.Details.MAPeriod)
	assert.Equal(t, "resistance", e.Details.BounceType)
}

func TestMA_BreakoutUpThroughAverage(t *testing.T) {
	bars := flatBars(250)
	bars[249].Close = 90
	bars[249].High = 91

	m := NewMovingAverageStrategy()
	emissions := m.breakoutEmissions(bars, signals.Closes(bars), constSeries(250, 85), nanSeries(250), nanSeries(250))
	require.Len(t, emissions, 1)

	e := emissions[0]
	assert.Equal(t, models.StrategyMABreakoutUp, e.StrategyName)
	assert.Equal(t, models.SignalTypeBuy, e.SignalType)
	assert.True(t, e.Date.Equal(bars[249].Date))
	assert.Equal(t, "up", e.Details.BreakoutDirection)
}

func TestMA_BreakdownThroughAverage(t *testing.T) {
	bars := flatBars(250)
	bars[249].Close = 70
	bars[249].Low = 69

	m := NewMovingAverageStrategy()
	emissions := m.breakoutEmissions(bars, signals.Closes(bars), constSeries(250, 75), nanSeries(250), nanSeries(250))
	require.Len(t, emissions, 1)
	assert.Equal(t, models.StrategyMABreakdown, emissions[0].StrategyName)
	assert.Equal(t, "down", emissions[0].Details.BreakoutDirection)
}

func TestMA_NewlyBullishAlignment(t *testing.T) {
	bars := flatBars(250)
	ma20 := constSeries(250, 95) // equal to ma50: neither aligned
	ma50 := constSeries(250, 95)
	ma200 := constSeries(250, 90)
	ma20[249] = 100 // ordering becomes 100 > 95 > 90

	m := NewMovingAverageStrategy()
	emissions := m.alignmentEmissions(bars, ma20, ma50, ma200)
	require.Len(t, emissions, 1)

	e := emissions[0]
	assert.Equal(t, models.StrategyMAAlignBull, e.StrategyName)
	assert.Equal(t, models.SignalTypeBuy, e.SignalType)
	assert.Equal(t, "bullish", e.Details.Alignment)
	assert.True(t, e.Date.Equal(bars[249].Date))
}

func TestMA_NewlyBearishAlignment(t *testing.T) {
	bars := flatBars(250)
	ma20 := constSeries(250, 95)
	ma50 := constSeries(250, 95)
	ma200 := constSeries(250, 100)
	ma20[249] = 90 // ordering becomes 90 < 95 < 100

	m := NewMovingAverageStrategy()
	emissions := m.alignmentEmissions(bars, ma20, ma50, ma200)
	require.Len(t, emissions, 1)
	assert.Equal(t, models.StrategyMAAlignBear, emissions[0].StrategyName)
	assert.Equal(t, "bearish", emissions[0].Details.Alignment)
}

func TestMA_QuietSeriesEmitsNothing(t *testing.T) {
	m := NewMovingAverageStrategy()
	assert.Empty(t, m.Analyze(flatBars(250), 80))
}

func TestMA_TooFewBars(t *testing.T) {
	m := NewMovingAverageStrategy()
	assert.Nil(t, m.Analyze(flatBars(199), 80))
}
