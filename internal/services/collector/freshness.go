package collector

import (
	"context"
	"time"

	"github.com/bobmcallan/signum/internal/common"
	"github.com/bobmcallan/signum/internal/models"
)

// MinHistoryRecords is the row count below which stored history is too
// thin to trust; such stocks always take the full-refetch path.
const MinHistoryRecords = 60

// CollectMode is the freshness decision for one stock
type CollectMode string

// Collect modes
const (
	ModeSkip        CollectMode = "skip"
	ModeIncremental CollectMode = "incremental"
	ModeFull        CollectMode = "full"
)

// CollectPlan describes how one stock's history should be collected
type CollectPlan struct {
	Mode     CollectMode
	LastDate *time.Time // latest stored bar date, set for skip and incremental
}

// plan decides between skipping, incrementally extending, or fully
// refetching a stock's history based on what is already stored.
func (s *Service) plan(ctx context.Context, stock *models.Stock, now time.Time) (CollectPlan, error) {
	if stock.HistoryRecordsCount < MinHistoryRecords {
		return CollectPlan{Mode: ModeFull}, nil
	}

	lastDate, err := s.storage.PriceHistory().LatestBarDate(ctx, stock.ID)
	if err != nil {
		return CollectPlan{}, err
	}
	if lastDate == nil {
		// Count says there should be rows; trust the table over the
		// denormalized counter and refetch.
		return CollectPlan{Mode: ModeFull}, nil
	}

	lastTrading := common.LastTradingDay(stock.Market, now)
	if !lastDate.Before(lastTrading) {
		return CollectPlan{Mode: ModeSkip, LastDate: lastDate}, nil
	}
	return CollectPlan{Mode: ModeIncremental, LastDate: lastDate}, nil
}
