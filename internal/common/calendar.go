// Package common provides shared utilities for Signum
package common

import (
	"time"

	"github.com/bobmcallan/signum/internal/models"
)

// usCloseHour is the exchange-local hour after which a US daily bar is
// considered final. Daily data published before this is still the prior
// session's bar.
const usCloseHour = 17

var (
	seoulTZ   = mustLoadLocation("Asia/Seoul")
	newYorkTZ = mustLoadLocation("America/New_York")
)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("common: load timezone " + name + ": " + err.Error())
	}
	return loc
}

// MarketLocation returns the exchange-local timezone for a market code.
// Unknown markets default to Seoul.
func MarketLocation(market string) *time.Location {
	if market == models.MarketUS {
		return newYorkTZ
	}
	return seoulTZ
}

// LastTradingDay returns the most recent calendar date, as midnight UTC,
// for which the given market should have a completed daily bar at the
// given instant. Weekends roll back to Friday; US dates additionally
// roll back one day before the local market close is final.
func LastTradingDay(market string, now time.Time) time.Time {
	loc := MarketLocation(market)
	local := now.In(loc)

	d := models.DateOnly(local)
	if market == models.MarketUS && local.Hour() < usCloseHour {
		d = d.AddDate(0, 0, -1)
	}

	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
