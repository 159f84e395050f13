package analyzer

import (
	"context"
	"time"

	"github.com/bobmcallan/signum/internal/models"
	"github.com/bobmcallan/signum/internal/signals"
)

const (
	// confirmLookbackDays bounds which approaching signals are revisited
	confirmLookbackDays = 10

	// confirmForwardBars is how far past the signal bar a breakout may
	// land and still confirm the approach
	confirmForwardBars = 3
)

// confirmApproaching resolves recent approaching-breakout signals
// against the bars that have arrived since they were written. It runs
// before the stock's signals are rewritten so the record of near-misses
// versus hits survives re-analysis.
func (s *Service) confirmApproaching(ctx context.Context, stock *models.Stock, bars []models.PriceHistory, now time.Time) error {
	since := now.AddDate(0, 0, -confirmLookbackDays)
	pending, err := s.storage.Signals().ListRecentByStrategy(ctx, stock.ID, models.StrategyApproachingBreakout, since)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	dateIndex := make(map[time.Time]int, len(bars))
	for i, bar := range bars {
		dateIndex[models.DateOnly(bar.Date)] = i
	}

	for i := range pending {
		signal := &pending[i]
		details, err := signal.DecodeDetails()
		if err != nil {
			s.logger.Warn().Uint("signal_id", signal.ID).Err(err).Msg("Undecodable approaching signal details")
			continue
		}
		if details.BreakoutConfirmed != nil {
			continue
		}
		if details.TrendlineSlope == nil || details.TrendlineIntercept == nil {
			continue
		}

		idx, ok := dateIndex[models.DateOnly(signal.SignalDate)]
		if !ok {
			continue
		}

		end := idx + confirmForwardBars
		if end > len(bars)-1 {
			end = len(bars) - 1
		}
		if end <= idx {
			// No forward bars yet; leave unresolved for the next pass.
			continue
		}

		confirmed := false
		for j := idx + 1; j <= end; j++ {
			tl := signals.TrendlineAt(*details.TrendlineSlope, *details.TrendlineIntercept, j)
			if bars[j].High > tl {
				confirmed = true
				details.BreakoutDate = models.StringPtr(bars[j].Date.Format("2006-01-02"))
				break
			}
		}

		details.BreakoutConfirmed = models.BoolPtr(confirmed)
		details.CheckedAt = models.StringPtr(now.UTC().Format(time.RFC3339))

		if err := signal.EncodeDetails(details); err != nil {
			return err
		}
		if err := s.storage.Signals().UpdateSignal(ctx, signal); err != nil {
			return err
		}

		s.logger.Debug().
			Str("symbol", stock.Symbol).
			Str("signal_date", signal.SignalDate.Format("2006-01-02")).
			Bool("confirmed", confirmed).
			Msg("Approaching signal resolved")
	}
	return nil
}
