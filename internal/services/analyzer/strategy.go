package analyzer

import (
	"time"

	"github.com/bobmcallan/signum/internal/models"
)

// Family groups strategies that are analyzed and rewritten together
type Family string

// Strategy families
const (
	FamilyTrendline     Family = "trendline"
	FamilyMovingAverage Family = "moving_average"
)

// StrategyNames returns the signal strategy names a family owns
func (f Family) StrategyNames() []string {
	if f == FamilyMovingAverage {
		return models.MAStrategies
	}
	return models.TrendlineStrategies
}

// TaskType returns the task type under which a family runs
func (f Family) TaskType() models.TaskType {
	if f == FamilyMovingAverage {
		return models.TaskTypeMASignalAnalysis
	}
	return models.TaskTypeSignalAnalysis
}

// Emission is one signal produced by a strategy before persistence
type Emission struct {
	StrategyName string
	SignalType   string
	Date         time.Time
	Price        float64
	Details      models.SignalDetails
}

// Strategy analyzes one stock's bar series and emits signals.
// Implementations are pure: they read the series and the live price
// and never touch storage.
type Strategy interface {
	// Name identifies the strategy implementation
	Name() string

	// Family returns the signal family this strategy writes under
	Family() Family

	// MinRows is the smallest usable series length
	MinRows() int

	// Analyze inspects an ascending bar series and returns emissions
	Analyze(bars []models.PriceHistory, currentPrice float64) []Emission
}
