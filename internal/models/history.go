// Package models defines data structures for Signum
package models

import (
	"time"
)

// PriceHistory represents a single daily OHLCV bar for a stock.
// Bars are unique per (stock, date) and stored with the exchange-local
// trading date truncated to midnight UTC.
type PriceHistory struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	StockID   uint      `gorm:"uniqueIndex:idx_stock_date;index;not null" json:"stock_id"`
	Date      time.Time `gorm:"uniqueIndex:idx_stock_date;type:date;not null" json:"date"`
	Open      float64   `gorm:"not null" json:"open"`
	High      float64   `gorm:"not null" json:"high"`
	Low       float64   `gorm:"not null" json:"low"`
	Close     float64   `gorm:"not null" json:"close"`
	Volume    int64     `gorm:"not null" json:"volume"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Stock Stock `gorm:"foreignKey:StockID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for PriceHistory
func (PriceHistory) TableName() string {
	return "stock_price_history"
}

// DateOnly truncates a timestamp to midnight UTC, matching how trading
// dates are stored and compared throughout the system.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DailyBar is one day of OHLCV data as returned by a broker API,
// before it is attached to a stock and persisted.
type DailyBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Quote holds a live price snapshot from a broker API
type Quote struct {
	Symbol        string    `json:"symbol"`
	Current       float64   `json:"current"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePct     float64   `json:"change_pct"`
	Timestamp     time.Time `json:"timestamp"`
}
