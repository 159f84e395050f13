package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bobmcallan/signum/internal/common"
	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/models"
)

// PriceHistoryStore implements interfaces.PriceHistoryStore
type PriceHistoryStore struct {
	db     *gorm.DB
	logger *common.Logger
}

// NewPriceHistoryStore creates a new price history store
func NewPriceHistoryStore(db *gorm.DB, logger *common.Logger) *PriceHistoryStore {
	return &PriceHistoryStore{db: db, logger: logger}
}

func (s *PriceHistoryStore) CountBars(ctx context.Context, stockID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.PriceHistory{}).
		Where("stock_id = ?", stockID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count bars for stock %d: %w", stockID, err)
	}
	return count, nil
}

func (s *PriceHistoryStore) LatestBarDate(ctx context.Context, stockID uint) (*time.Time, error) {
	var bar models.PriceHistory
	err := s.db.WithContext(ctx).
		Where("stock_id = ?", stockID).
		Order("date DESC").
		Limit(1).
		Take(&bar).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest bar date for stock %d: %w", stockID, err)
	}
	date := models.DateOnly(bar.Date)
	return &date, nil
}

func (s *PriceHistoryStore) ListBars(ctx context.Context, stockID uint, limit int) ([]models.PriceHistory, error) {
	query := s.db.WithContext(ctx).
		Where("stock_id = ?", stockID).
		Order("date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var bars []models.PriceHistory
	if err := query.Find(&bars).Error; err != nil {
		return nil, fmt.Errorf("failed to list bars for stock %d: %w", stockID, err)
	}

	// Query runs newest-first so LIMIT takes the most recent window;
	// callers work in ascending date order.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

func (s *PriceHistoryStore) UpsertBars(ctx context.Context, stockID uint, bars []models.PriceHistory) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	rows := make([]models.PriceHistory, len(bars))
	for i, bar := range bars {
		bar.StockID = stockID
		bar.Date = models.DateOnly(bar.Date)
		bar.ID = 0
		rows[i] = bar
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stock_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
		}).
		Create(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %d bars for stock %d: %w", len(rows), stockID, err)
	}
	return len(rows), nil
}

// Compile-time check
var _ interfaces.PriceHistoryStore = (*PriceHistoryStore)(nil)
