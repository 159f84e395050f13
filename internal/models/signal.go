// Package models defines data structures for Signum
package models

import (
	"encoding/json"
	"time"
)

// Signal types
const (
	SignalTypeBuy         = "buy"
	SignalTypeSell        = "sell"
	SignalTypePullback    = "pullback"
	SignalTypeApproaching = "approaching"
	SignalTypeHold        = "hold"
)

// Trendline strategy names
const (
	StrategyTrendlineBreakout   = "descending_trendline_breakout"
	StrategyApproachingBreakout = "approaching_breakout"
	StrategyPullbackBuy         = "pullback_buy"
)

// Moving-average strategy names
const (
	StrategyGoldenCross  = "golden_cross"
	StrategyDeathCross   = "death_cross"
	StrategyMASupport    = "ma_support"
	StrategyMAResistance = "ma_resistance"
	StrategyMABreakoutUp = "ma_breakout_up"
	StrategyMABreakdown  = "ma_breakout_down"
	StrategyMAAlignBull  = "ma_alignment_bullish"
	StrategyMAAlignBear  = "ma_alignment_bearish"
)

// TrendlineStrategies lists the strategy names owned by the trendline analyzer
var TrendlineStrategies = []string{
	StrategyTrendlineBreakout,
	StrategyApproachingBreakout,
	StrategyPullbackBuy,
}

// MAStrategies lists the strategy names owned by the moving-average analyzer
var MAStrategies = []string{
	StrategyGoldenCross,
	StrategyDeathCross,
	StrategyMASupport,
	StrategyMAResistance,
	StrategyMABreakoutUp,
	StrategyMABreakdown,
	StrategyMAAlignBull,
	StrategyMAAlignBear,
}

// Signal represents a detected trading signal.
// Signals are unique per (stock, date, strategy); re-analysis updates the
// live price fields on existing rows rather than duplicating them.
type Signal struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	StockID       uint      `gorm:"uniqueIndex:idx_signal_unique;index;not null" json:"stock_id"`
	SignalDate    time.Time `gorm:"uniqueIndex:idx_signal_unique;type:date;not null" json:"signal_date"`
	StrategyName  string    `gorm:"uniqueIndex:idx_signal_unique;size:50;not null" json:"strategy_name"`
	SignalType    string    `gorm:"size:20;not null" json:"signal_type"` // buy, sell, pullback, approaching, hold
	SignalPrice   float64   `json:"signal_price"`
	CurrentPrice  float64   `json:"current_price"`
	ReturnPercent float64   `json:"return_percent"`
	Details       string    `gorm:"type:text" json:"details"` // strategy-specific context as JSON
	IsActive      bool      `gorm:"default:true" json:"is_active"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Stock Stock `gorm:"foreignKey:StockID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Signal
func (Signal) TableName() string {
	return "stock_signals"
}

// SignalDetails carries strategy-specific context serialized into
// Signal.Details. Only the fields relevant to the producing strategy
// are populated.
type SignalDetails struct {
	Strategy            string   `json:"strategy,omitempty"`
	TrendlineSlope      *float64 `json:"trendline_slope,omitempty"`
	TrendlineIntercept  *float64 `json:"trendline_intercept,omitempty"`
	SMA90               *float64 `json:"sma_90,omitempty"`
	SMA90Ratio          *float64 `json:"sma_90_ratio,omitempty"`
	DistanceToTrendline *float64 `json:"distance_to_trendline,omitempty"`
	PullbackDistance    *float64 `json:"pullback_distance,omitempty"`
	BreakoutConfirmed   *bool    `json:"breakout_confirmed,omitempty"` // nil until the confirmation pass resolves it
	BreakoutDate        *string  `json:"breakout_date,omitempty"`
	CheckedAt           *string  `json:"checked_at,omitempty"`
	MA20                *float64 `json:"ma_20,omitempty"`
	MA50                *float64 `json:"ma_50,omitempty"`
	MA200               *float64 `json:"ma_200,omitempty"`
	CrossType           string   `json:"cross_type,omitempty"`
	MAPeriod            int      `json:"ma_period,omitempty"`
	MAValue             *float64 `json:"ma_value,omitempty"`
	DistancePct         *float64 `json:"distance_pct,omitempty"`
	BounceType          string   `json:"bounce_type,omitempty"`
	BreakoutDirection   string   `json:"breakout_direction,omitempty"`
	Alignment           string   `json:"alignment,omitempty"`
}

// DecodeDetails parses the Details JSON payload.
// An empty payload decodes to a zero-valued SignalDetails.
func (s *Signal) DecodeDetails() (SignalDetails, error) {
	var details SignalDetails
	if s.Details == "" {
		return details, nil
	}
	err := json.Unmarshal([]byte(s.Details), &details)
	return details, err
}

// EncodeDetails serializes the given details into the Details column
func (s *Signal) EncodeDetails(details SignalDetails) error {
	data, err := json.Marshal(details)
	if err != nil {
		return err
	}
	s.Details = string(data)
	return nil
}

// Float64Ptr returns a pointer to v, for optional detail fields
func Float64Ptr(v float64) *float64 {
	return &v
}

// BoolPtr returns a pointer to v, for optional detail fields
func BoolPtr(v bool) *bool {
	return &v
}

// StringPtr returns a pointer to v, for optional detail fields
func StringPtr(v string) *string {
	return &v
}
