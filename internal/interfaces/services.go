// Package interfaces defines service contracts for Signum
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/signum/internal/models"
)

// Universe selection modes for collection and analysis
const (
	UniverseAll    = "all"
	UniverseTagged = "tagged"
	UniverseTop    = "top"
)

// TaskParams holds the launch parameters for a task. One shape serves
// every task type; fields that do not apply are left at their zero
// value. The struct round-trips through Task.Params as JSON so a task
// can be restarted with the parameters it originally ran with.
type TaskParams struct {
	Universe  string `json:"universe,omitempty"`  // all, tagged, top
	Limit     int    `json:"limit,omitempty"`     // cap on universe size, 0 = no cap
	Days      int    `json:"days,omitempty"`      // history window in calendar days
	Workers   int    `json:"workers,omitempty"`   // collection concurrency
	Market    string `json:"market,omitempty"`    // optional market filter for analysis
	ForceFull bool   `json:"force_full,omitempty"`
	StockIDs  []uint `json:"stock_ids,omitempty"` // explicit stock set, used by retries
}

// CollectorService gathers price history from the broker
type CollectorService interface {
	// Collect runs a history collection pass for the task, updating the
	// task row with progress as it goes. Returns only infrastructure
	// errors; per-stock failures are recorded in collection logs.
	Collect(ctx context.Context, taskID string, params TaskParams) error
}

// AnalyzerService detects trading signals from stored history
type AnalyzerService interface {
	// AnalyzeTrendlines runs the descending-trendline strategy family
	AnalyzeTrendlines(ctx context.Context, taskID string, params TaskParams) error

	// AnalyzeMovingAverages runs the moving-average strategy family
	AnalyzeMovingAverages(ctx context.Context, taskID string, params TaskParams) error
}

// TaskService manages the lifecycle of background tasks
type TaskService interface {
	// Launch creates a task row and starts its work in the background
	Launch(ctx context.Context, taskType models.TaskType, params TaskParams) (*models.Task, error)

	// Get returns the current state of a task
	Get(ctx context.Context, taskID string) (*models.Task, error)

	// ListRunning returns all tasks currently running
	ListRunning(ctx context.Context) ([]*models.Task, error)

	// Cancel requests cancellation of a running task
	Cancel(ctx context.Context, taskID string) error

	// Restart launches a new task of the same type with default params
	Restart(ctx context.Context, taskID string) (*models.Task, error)

	// RetryFailed launches a collection task covering only the stocks
	// that failed in the given task. A positive days overrides the
	// default collection window.
	RetryFailed(ctx context.Context, taskID string, days int) (*models.Task, error)

	// SweepStale fails running tasks that outlived the execution limit,
	// typically orphans of a previous process. Returns how many were
	// swept.
	SweepStale(ctx context.Context) (int, error)

	// PurgeOldTasks deletes terminal tasks older than the retention
	// window along with their collection logs
	PurgeOldTasks(ctx context.Context, retention time.Duration) (int64, error)
}
