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

// SignalStore implements interfaces.SignalStore
type SignalStore struct {
	db     *gorm.DB
	logger *common.Logger
}

// NewSignalStore creates a new signal store
func NewSignalStore(db *gorm.DB, logger *common.Logger) *SignalStore {
	return &SignalStore{db: db, logger: logger}
}

func (s *SignalStore) GetSignal(ctx context.Context, stockID uint, signalDate time.Time, strategy string) (*models.Signal, error) {
	var signal models.Signal
	err := s.db.WithContext(ctx).
		Where("stock_id = ? AND signal_date = ? AND strategy_name = ?",
			stockID, models.DateOnly(signalDate), strategy).
		First(&signal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal for stock %d: %w", stockID, err)
	}
	return &signal, nil
}

func (s *SignalStore) ListStockSignals(ctx context.Context, stockID uint, strategies []string) ([]models.Signal, error) {
	query := s.db.WithContext(ctx).Where("stock_id = ?", stockID)
	if len(strategies) > 0 {
		query = query.Where("strategy_name IN ?", strategies)
	}

	var signals []models.Signal
	if err := query.Order("signal_date ASC").Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("failed to list signals for stock %d: %w", stockID, err)
	}
	return signals, nil
}

func (s *SignalStore) ListRecentByStrategy(ctx context.Context, stockID uint, strategy string, since time.Time) ([]models.Signal, error) {
	var signals []models.Signal
	err := s.db.WithContext(ctx).
		Where("stock_id = ? AND strategy_name = ? AND signal_date >= ?",
			stockID, strategy, models.DateOnly(since)).
		Order("signal_date ASC").
		Find(&signals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent %s signals for stock %d: %w", strategy, stockID, err)
	}
	return signals, nil
}

func (s *SignalStore) CreateSignal(ctx context.Context, signal *models.Signal) error {
	signal.SignalDate = models.DateOnly(signal.SignalDate)
	if err := s.db.WithContext(ctx).Create(signal).Error; err != nil {
		return fmt.Errorf("failed to create %s signal for stock %d: %w", signal.StrategyName, signal.StockID, err)
	}
	return nil
}

func (s *SignalStore) UpdateSignal(ctx context.Context, signal *models.Signal) error {
	if err := s.db.WithContext(ctx).Save(signal).Error; err != nil {
		return fmt.Errorf("failed to update signal %d: %w", signal.ID, err)
	}
	return nil
}

func (s *SignalStore) DeleteStrategySignals(ctx context.Context, stockID uint, strategies []string, keepResolved bool) (int64, error) {
	if len(strategies) == 0 {
		return 0, nil
	}

	if !keepResolved {
		result := s.db.WithContext(ctx).
			Where("stock_id = ? AND strategy_name IN ?", stockID, strategies).
			Delete(&models.Signal{})
		if result.Error != nil {
			return 0, fmt.Errorf("failed to delete signals for stock %d: %w", stockID, result.Error)
		}
		return result.RowsAffected, nil
	}

	// Resolved approaching rows are history the user can audit; decide
	// row by row since the verdict lives inside the details payload.
	signals, err := s.ListStockSignals(ctx, stockID, strategies)
	if err != nil {
		return 0, err
	}

	var ids []uint
	for _, sig := range signals {
		if sig.StrategyName == models.StrategyApproachingBreakout {
			details, err := sig.DecodeDetails()
			if err != nil {
				s.logger.Warn().Uint("signal_id", sig.ID).Err(err).Msg("Undecodable signal details; deleting row")
			} else if details.BreakoutConfirmed != nil {
				continue
			}
		}
		ids = append(ids, sig.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Signal{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete signals for stock %d: %w", stockID, result.Error)
	}
	return result.RowsAffected, nil
}

// Compile-time check
var _ interfaces.SignalStore = (*SignalStore)(nil)
