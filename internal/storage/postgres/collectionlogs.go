package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/bobmcallan/signum/internal/common"
	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/models"
)

// CollectionLogStore implements interfaces.CollectionLogStore
type CollectionLogStore struct {
	db     *gorm.DB
	logger *common.Logger
}

// NewCollectionLogStore creates a new collection log store
func NewCollectionLogStore(db *gorm.DB, logger *common.Logger) *CollectionLogStore {
	return &CollectionLogStore{db: db, logger: logger}
}

func (s *CollectionLogStore) CreateLog(ctx context.Context, log *models.CollectionLog) error {
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create collection log for stock %s: %w", log.Symbol, err)
	}
	return nil
}

func (s *CollectionLogStore) UpdateLog(ctx context.Context, log *models.CollectionLog) error {
	if err := s.db.WithContext(ctx).Save(log).Error; err != nil {
		return fmt.Errorf("failed to update collection log %d: %w", log.ID, err)
	}
	return nil
}

func (s *CollectionLogStore) ListFailedStockIDs(ctx context.Context, taskID string) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.CollectionLog{}).
		Where("task_id = ? AND status = ?", taskID, models.CollectionStatusFailed).
		Distinct("stock_id").
		Pluck("stock_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list failed stock ids for task %s: %w", taskID, err)
	}
	return ids, nil
}

func (s *CollectionLogStore) DeleteByTaskIDs(ctx context.Context, taskIDs []string) (int64, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Where("task_id IN ?", taskIDs).
		Delete(&models.CollectionLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete collection logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Compile-time check
var _ interfaces.CollectionLogStore = (*CollectionLogStore)(nil)
