// Package postgres implements Signum's storage layer on PostgreSQL
// through GORM. A single database holds the stock universe, price
// history, signals, task records, and the broker token cache.
package postgres

import (
	"context"
	"fmt"

	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bobmcallan/signum/internal/common"
	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/models"
)

// Manager implements interfaces.StorageManager on PostgreSQL
type Manager struct {
	db     *gorm.DB
	logger *common.Logger

	stocks         *StockStore
	history        *PriceHistoryStore
	signals        *SignalStore
	tasks          *TaskStore
	collectionLogs *CollectionLogStore
	tokens         *TokenStore
}

// NewManager connects to PostgreSQL, runs migrations, and wires up the
// individual stores.
func NewManager(logger *common.Logger, cfg *common.Config) (*Manager, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url: %w", common.ErrConfigMissing)
	}

	db, err := gorm.Open(pgdriver.Open(cfg.Database.URL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.GetConnMaxLifetime())

	if err := db.AutoMigrate(
		&models.Stock{},
		&models.StockTag{},
		&models.PriceHistory{},
		&models.Signal{},
		&models.Task{},
		&models.CollectionLog{},
		&models.TokenCache{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().
		Int("max_open_conns", cfg.Database.MaxOpenConns).
		Int("max_idle_conns", cfg.Database.MaxIdleConns).
		Msg("PostgreSQL storage initialized")

	return &Manager{
		db:             db,
		logger:         logger,
		stocks:         NewStockStore(db, logger),
		history:        NewPriceHistoryStore(db, logger),
		signals:        NewSignalStore(db, logger),
		tasks:          NewTaskStore(db, logger),
		collectionLogs: NewCollectionLogStore(db, logger),
		tokens:         NewTokenStore(db, logger),
	}, nil
}

// DB returns the underlying GORM handle for advanced operations
func (m *Manager) DB() *gorm.DB {
	return m.db
}

func (m *Manager) Stocks() interfaces.StockStore {
	return m.stocks
}

func (m *Manager) PriceHistory() interfaces.PriceHistoryStore {
	return m.history
}

func (m *Manager) Signals() interfaces.SignalStore {
	return m.signals
}

func (m *Manager) Tasks() interfaces.TaskStore {
	return m.tasks
}

func (m *Manager) CollectionLogs() interfaces.CollectionLogStore {
	return m.collectionLogs
}

func (m *Manager) Tokens() interfaces.TokenStore {
	return m.tokens
}

func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access connection pool: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access connection pool: %w", err)
	}
	return sqlDB.Close()
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
