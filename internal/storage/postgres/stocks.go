package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bobmcallan/signum/internal/common"
	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/models"
)

// rankOrder sorts ranked stocks first, unranked (rank 0) last
const rankOrder = "NULLIF(market_cap_rank, 0) ASC NULLS LAST, symbol ASC"

// StockStore implements interfaces.StockStore
type StockStore struct {
	db     *gorm.DB
	logger *common.Logger
}

// NewStockStore creates a new stock store
func NewStockStore(db *gorm.DB, logger *common.Logger) *StockStore {
	return &StockStore{db: db, logger: logger}
}

func (s *StockStore) GetStock(ctx context.Context, id uint) (*models.Stock, error) {
	var stock models.Stock
	err := s.db.WithContext(ctx).First(&stock, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock %d: %w", id, err)
	}
	return &stock, nil
}

func (s *StockStore) GetStockBySymbol(ctx context.Context, symbol string) (*models.Stock, error) {
	var stock models.Stock
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).First(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock %s: %w", symbol, err)
	}
	return &stock, nil
}

func (s *StockStore) ListActiveStocks(ctx context.Context) ([]*models.Stock, error) {
	var stocks []*models.Stock
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order(rankOrder).
		Find(&stocks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active stocks: %w", err)
	}
	return stocks, nil
}

func (s *StockStore) ListTaggedStocks(ctx context.Context) ([]*models.Stock, error) {
	var stocks []*models.Stock
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("id IN (?)", s.db.Model(&models.StockTag{}).Distinct("stock_id")).
		Order(rankOrder).
		Find(&stocks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tagged stocks: %w", err)
	}
	return stocks, nil
}

func (s *StockStore) ListTopStocks(ctx context.Context, limit int) ([]*models.Stock, error) {
	var stocks []*models.Stock
	// Largest caps first; rank only breaks ties so a registry without
	// ranks populated still yields a universe.
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("market_cap DESC NULLS LAST").
		Order(rankOrder).
		Limit(limit).
		Find(&stocks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list top stocks: %w", err)
	}
	return stocks, nil
}

func (s *StockStore) ListStocksByIDs(ctx context.Context, ids []uint) ([]*models.Stock, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var stocks []*models.Stock
	err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("is_active = ?", true).
		Order(rankOrder).
		Find(&stocks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stocks by ids: %w", err)
	}
	return stocks, nil
}

func (s *StockStore) UpdateStock(ctx context.Context, stock *models.Stock) error {
	if err := s.db.WithContext(ctx).Save(stock).Error; err != nil {
		return fmt.Errorf("failed to update stock %s: %w", stock.Symbol, err)
	}
	return nil
}

func (s *StockStore) SetSignalAnalyzedAt(ctx context.Context, stockID uint, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.Stock{}).
		Where("id = ?", stockID).
		Update("signal_analyzed_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to stamp signal_analyzed_at for stock %d: %w", stockID, err)
	}
	return nil
}

// Compile-time check
var _ interfaces.StockStore = (*StockStore)(nil)
