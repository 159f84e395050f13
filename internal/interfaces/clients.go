// Package interfaces defines service contracts for Signum
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/signum/internal/models"
)

// BrokerClient provides access to a broker market-data API
type BrokerClient interface {
	// GetDailyOHLCV retrieves daily price bars for a symbol. Market
	// selects the regional endpoint; exchange narrows US requests to a
	// venue. Bars are returned in ascending date order.
	GetDailyOHLCV(ctx context.Context, symbol, market, exchange string, opts ...OHLCVOption) ([]models.DailyBar, error)

	// GetQuote retrieves the current price snapshot for a symbol
	GetQuote(ctx context.Context, symbol, market, exchange string) (*models.Quote, error)
}

// OHLCVOption configures OHLCV data requests
type OHLCVOption func(*OHLCVParams)

// OHLCVParams holds OHLCV query parameters
type OHLCVParams struct {
	From   time.Time
	To     time.Time
	Period string // D=daily, W=weekly, M=monthly
}

// WithDateRange sets the date range for an OHLCV query
func WithDateRange(from, to time.Time) OHLCVOption {
	return func(p *OHLCVParams) {
		p.From = from
		p.To = to
	}
}

// WithPeriod sets the bar period for an OHLCV query
func WithPeriod(period string) OHLCVOption {
	return func(p *OHLCVParams) {
		p.Period = period
	}
}
