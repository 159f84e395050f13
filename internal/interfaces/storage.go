// Package interfaces defines service contracts for Signum
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/signum/internal/models"
)

// StockStore manages the stock universe
type StockStore interface {
	// GetStock retrieves a stock by primary key, or nil if absent
	GetStock(ctx context.Context, id uint) (*models.Stock, error)

	// GetStockBySymbol retrieves a stock by symbol, or nil if absent
	GetStockBySymbol(ctx context.Context, symbol string) (*models.Stock, error)

	// ListActiveStocks returns all active stocks ordered by market cap rank
	ListActiveStocks(ctx context.Context) ([]*models.Stock, error)

	// ListTaggedStocks returns active stocks that carry at least one tag
	ListTaggedStocks(ctx context.Context) ([]*models.Stock, error)

	// ListTopStocks returns the top active stocks by market cap rank
	ListTopStocks(ctx context.Context, limit int) ([]*models.Stock, error)

	// ListStocksByIDs returns the active stocks matching the given IDs
	ListStocksByIDs(ctx context.Context, ids []uint) ([]*models.Stock, error)

	// UpdateStock persists all mutable fields of the stock
	UpdateStock(ctx context.Context, stock *models.Stock) error

	// SetSignalAnalyzedAt stamps the analysis watermark without touching
	// other columns, so it cannot race a concurrent collection update
	SetSignalAnalyzedAt(ctx context.Context, stockID uint, at time.Time) error
}

// PriceHistoryStore manages daily OHLCV bars
type PriceHistoryStore interface {
	// CountBars returns the number of stored bars for a stock
	CountBars(ctx context.Context, stockID uint) (int64, error)

	// LatestBarDate returns the most recent stored bar date, or nil when
	// the stock has no history
	LatestBarDate(ctx context.Context, stockID uint) (*time.Time, error)

	// ListBars returns up to limit most-recent bars in ascending date
	// order. A limit of 0 returns the full history.
	ListBars(ctx context.Context, stockID uint, limit int) ([]models.PriceHistory, error)

	// UpsertBars writes bars keyed by (stock, date), updating rows that
	// already exist. Returns the number of bars written.
	UpsertBars(ctx context.Context, stockID uint, bars []models.PriceHistory) (int, error)
}

// SignalStore manages detected trading signals
type SignalStore interface {
	// GetSignal retrieves a signal by its natural key, or nil if absent
	GetSignal(ctx context.Context, stockID uint, signalDate time.Time, strategy string) (*models.Signal, error)

	// ListStockSignals returns a stock's signals for the given strategies
	ListStockSignals(ctx context.Context, stockID uint, strategies []string) ([]models.Signal, error)

	// ListRecentByStrategy returns a stock's signals for one strategy
	// dated on or after since, ascending by date
	ListRecentByStrategy(ctx context.Context, stockID uint, strategy string, since time.Time) ([]models.Signal, error)

	// CreateSignal inserts a new signal row
	CreateSignal(ctx context.Context, signal *models.Signal) error

	// UpdateSignal persists changes to an existing signal row
	UpdateSignal(ctx context.Context, signal *models.Signal) error

	// DeleteStrategySignals removes a stock's signals for the given
	// strategies. When keepResolved is true, approaching-breakout rows
	// whose confirmation verdict has been recorded are retained as
	// history. Returns the number of rows deleted.
	DeleteStrategySignals(ctx context.Context, stockID uint, strategies []string, keepResolved bool) (int64, error)
}

// TaskStore manages background task records
type TaskStore interface {
	// CreateTask inserts a new task row
	CreateTask(ctx context.Context, task *models.Task) error

	// GetTask retrieves a task by its public ID, or nil if absent
	GetTask(ctx context.Context, taskID string) (*models.Task, error)

	// UpdateTask persists the task's current state and counters
	UpdateTask(ctx context.Context, task *models.Task) error

	// ListRunning returns tasks currently in the running state
	ListRunning(ctx context.Context) ([]*models.Task, error)

	// ListRunningBefore returns running tasks started before the cutoff.
	// Used at startup to fail orphans from a previous process.
	ListRunningBefore(ctx context.Context, cutoff time.Time) ([]*models.Task, error)

	// PurgeBefore deletes terminal tasks completed before the cutoff and
	// returns the IDs of the removed tasks
	PurgeBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// CollectionLogStore manages per-stock collection outcomes
type CollectionLogStore interface {
	// CreateLog inserts a new collection log row
	CreateLog(ctx context.Context, log *models.CollectionLog) error

	// UpdateLog persists changes to an existing log row
	UpdateLog(ctx context.Context, log *models.CollectionLog) error

	// ListFailedStockIDs returns the distinct stock IDs that failed
	// within the given task
	ListFailedStockIDs(ctx context.Context, taskID string) ([]uint, error)

	// DeleteByTaskIDs removes logs belonging to the given tasks
	DeleteByTaskIDs(ctx context.Context, taskIDs []string) (int64, error)
}

// TokenStore persists broker access tokens
type TokenStore interface {
	// GetToken retrieves a cached token, or nil if absent
	GetToken(ctx context.Context, provider, cacheKey string) (*models.TokenCache, error)

	// SaveToken inserts or replaces the token for (provider, cacheKey)
	SaveToken(ctx context.Context, token *models.TokenCache) error
}

// StorageManager manages all storage components
type StorageManager interface {
	Stocks() StockStore
	PriceHistory() PriceHistoryStore
	Signals() SignalStore
	Tasks() TaskStore
	CollectionLogs() CollectionLogStore
	Tokens() TokenStore

	// Ping verifies the underlying connection is alive
	Ping(ctx context.Context) error

	// Close releases the underlying connection
	Close() error
}

// ProgressBroadcaster publishes task progress snapshots to interested
// consumers. The Redis-backed implementation fans out across processes;
// the in-process fallback serves single-binary deployments and tests.
type ProgressBroadcaster interface {
	// Publish emits a progress event. Delivery is best effort; a failed
	// publish never fails the task that produced it.
	Publish(ctx context.Context, event models.TaskProgressEvent) error

	// Subscribe returns a channel of progress events and a cancel
	// function that releases the subscription
	Subscribe(ctx context.Context) (<-chan models.TaskProgressEvent, func(), error)

	// Close releases broadcaster resources
	Close() error
}
