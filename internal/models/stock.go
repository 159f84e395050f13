// Package models defines data structures for Signum
package models

import (
	"time"
)

// Market codes for supported regions
const (
	MarketKR = "KR"
	MarketUS = "US"
)

// Stock represents a tracked equity instrument.
// One row per symbol; price history and signals hang off StockID.
type Stock struct {
	ID                  uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol              string     `gorm:"size:20;uniqueIndex;not null" json:"symbol"`
	Name                string     `gorm:"size:200" json:"name"`
	Market              string     `gorm:"size:4;index;not null" json:"market"` // KR, US
	Exchange            string     `gorm:"size:20" json:"exchange"`             // KOSPI, KOSDAQ, NASDAQ, NYSE, AMEX
	Sector              string     `gorm:"size:100" json:"sector"`
	MarketCap           float64    `json:"market_cap"`
	MarketCapRank       int        `json:"market_cap_rank"`
	CurrentPrice        float64    `json:"current_price"`
	PreviousClose       float64    `json:"previous_close"`
	ChangePercent       float64    `json:"change_percent"`
	MA90Price           *float64   `json:"ma90_price,omitempty"`         // mean of recent closes, set once 60+ bars exist
	HistoryRecordsCount int        `gorm:"default:0" json:"history_records_count"`
	HistoryUpdatedAt    *time.Time `json:"history_updated_at,omitempty"` // last successful history collection
	SignalAnalyzedAt    *time.Time `json:"signal_analyzed_at,omitempty"` // last signal analysis pass
	IsActive            bool       `gorm:"default:true" json:"is_active"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Stock
func (Stock) TableName() string {
	return "stocks"
}

// StockTag labels a stock for targeted collection runs.
// Tags are written by external tooling; Signum only reads them.
type StockTag struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	StockID   uint      `gorm:"index;not null" json:"stock_id"`
	Tag       string    `gorm:"size:50;index;not null" json:"tag"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Stock Stock `gorm:"foreignKey:StockID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for StockTag
func (StockTag) TableName() string {
	return "stock_tags"
}

// ValidMarket reports whether the market code is supported
func ValidMarket(market string) bool {
	switch market {
	case MarketKR, MarketUS:
		return true
	}
	return false
}
