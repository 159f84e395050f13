// Package taskrunner owns the lifecycle of background tasks: launching
// drivers on panic-recovered goroutines, cancelling them cooperatively,
// restarting and retrying finished runs, and sweeping orphans left by
// a previous process.
package taskrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/signum/internal/common"
	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/models"
)

// TaskTimeLimit is the soft wall-clock budget for one task. Drivers run
// under a context with this deadline; tasks that outlive it fail with a
// distinguished message.
const TaskTimeLimit = 59 * time.Minute

// Runner implements interfaces.TaskService
type Runner struct {
	storage   interfaces.StorageManager
	collector interfaces.CollectorService
	analyzer  interfaces.AnalyzerService
	logger    *common.Logger
	config    *common.Config

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup

	watcherCancel context.CancelFunc
}

// NewRunner creates a new task runner
func NewRunner(
	storage interfaces.StorageManager,
	collector interfaces.CollectorService,
	analyzer interfaces.AnalyzerService,
	logger *common.Logger,
	config *common.Config,
) *Runner {
	return &Runner{
		storage:   storage,
		collector: collector,
		analyzer:  analyzer,
		logger:    logger,
		config:    config,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// safeGo launches a goroutine with panic recovery and logging
func (r *Runner) safeGo(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", rec)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in task goroutine")
			}
		}()
		fn()
	}()
}

// Launch creates a task row and starts its driver in the background
func (r *Runner) Launch(ctx context.Context, taskType models.TaskType, params interfaces.TaskParams) (*models.Task, error) {
	if !models.ValidTaskType(taskType) {
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task params: %w", err)
	}

	task := &models.Task{
		TaskID:    uuid.NewString(),
		TaskType:  taskType,
		Status:    models.TaskStatusRunning,
		Params:    string(encoded),
		StartedAt: time.Now().UTC(),
	}
	if err := r.storage.Tasks().CreateTask(ctx, task); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(context.Background(), TaskTimeLimit)
	r.mu.Lock()
	r.cancels[task.TaskID] = cancel
	r.mu.Unlock()

	r.logger.Info().
		Str("task_id", task.TaskID).
		Str("task_type", string(taskType)).
		Msg("Task launched")

	r.safeGo("task-"+task.TaskID, func() {
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.cancels, task.TaskID)
			r.mu.Unlock()
		}()

		if err := r.dispatch(runCtx, task.TaskID, taskType, params); err != nil {
			r.logger.Warn().
				Str("task_id", task.TaskID).
				Str("task_type", string(taskType)).
				Err(err).
				Msg("Task driver returned error")
			r.failIfStillRunning(task.TaskID, err)
		}
	})
	return task, nil
}

// dispatch routes a task to its driver
func (r *Runner) dispatch(ctx context.Context, taskID string, taskType models.TaskType, params interfaces.TaskParams) error {
	switch taskType {
	case models.TaskTypeHistoryCollection:
		return r.collector.Collect(ctx, taskID, params)
	case models.TaskTypeSignalAnalysis:
		return r.analyzer.AnalyzeTrendlines(ctx, taskID, params)
	case models.TaskTypeMASignalAnalysis:
		return r.analyzer.AnalyzeMovingAverages(ctx, taskID, params)
	default:
		return fmt.Errorf("unknown task type %q", taskType)
	}
}

// failIfStillRunning is the safety net for drivers that error out
// before reaching their own finalization.
func (r *Runner) failIfStillRunning(taskID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	task, err := r.storage.Tasks().GetTask(ctx, taskID)
	if err != nil || task == nil || task.Status != models.TaskStatusRunning {
		return
	}

	completed := time.Now().UTC()
	task.Status = models.TaskStatusFailed
	task.ErrorMessage = cause.Error()
	task.CompletedAt = &completed
	if err := r.storage.Tasks().UpdateTask(ctx, task); err != nil {
		r.logger.Error().Str("task_id", taskID).Err(err).Msg("Failed to fail task after driver error")
	}
}

// Get returns the current state of a task
func (r *Runner) Get(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := r.storage.Tasks().GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%s: %w", taskID, common.ErrTaskNotFound)
	}
	return task, nil
}

// ListRunning returns all currently running tasks
func (r *Runner) ListRunning(ctx context.Context) ([]*models.Task, error) {
	return r.storage.Tasks().ListRunning(ctx)
}

// Cancel requests cooperative cancellation of a running task. The task
// row flips first so workers in any process observe it on their next
// poll; the in-process context cancel makes the local driver prompt.
func (r *Runner) Cancel(ctx context.Context, taskID string) error {
	task, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != models.TaskStatusRunning {
		return fmt.Errorf("task %s is %s, not running", taskID, task.Status)
	}

	task.Status = models.TaskStatusCancelled
	task.Message = "cancellation requested"
	if err := r.storage.Tasks().UpdateTask(ctx, task); err != nil {
		return err
	}

	r.mu.Lock()
	cancel, ok := r.cancels[taskID]
	r.mu.Unlock()
	if ok {
		cancel()
	}

	r.logger.Info().Str("task_id", taskID).Msg("Task cancelled")
	return nil
}

// Restart launches a new task of the same type with that type's
// default parameters
func (r *Runner) Restart(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := r.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return r.Launch(ctx, task.TaskType, r.defaultParams(task.TaskType))
}

// RetryFailed launches a collection restricted to the stocks that
// failed within the given task
func (r *Runner) RetryFailed(ctx context.Context, taskID string, days int) (*models.Task, error) {
	task, err := r.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.TaskType != models.TaskTypeHistoryCollection {
		return nil, fmt.Errorf("task %s is %s; only collection tasks have retryable failures", taskID, task.TaskType)
	}

	stockIDs, err := r.storage.CollectionLogs().ListFailedStockIDs(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(stockIDs) == 0 {
		return nil, fmt.Errorf("task %s has no failed stocks to retry", taskID)
	}

	params := r.defaultParams(models.TaskTypeHistoryCollection)
	params.StockIDs = stockIDs
	if days > 0 {
		params.Days = days
	}

	r.logger.Info().
		Str("source_task", taskID).
		Int("stocks", len(stockIDs)).
		Msg("Retrying failed collection subset")
	return r.Launch(ctx, models.TaskTypeHistoryCollection, params)
}

// SweepStale fails running tasks that outlived the execution limit.
// Run at startup so a crash mid-job does not leave rows running forever.
func (r *Runner) SweepStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-TaskTimeLimit)
	stale, err := r.storage.Tasks().ListRunningBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, task := range stale {
		completed := time.Now().UTC()
		task.Status = models.TaskStatusFailed
		task.ErrorMessage = common.TaskTimeLimitMessage
		task.CompletedAt = &completed
		if err := r.storage.Tasks().UpdateTask(ctx, task); err != nil {
			r.logger.Warn().Str("task_id", task.TaskID).Err(err).Msg("Failed to sweep stale task")
			continue
		}
		swept++
	}

	if swept > 0 {
		r.logger.Info().Int("count", swept).Msg("Swept stale running tasks")
	}
	return swept, nil
}

// PurgeOldTasks deletes terminal tasks older than the retention window
// along with their collection logs
func (r *Runner) PurgeOldTasks(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	taskIDs, err := r.storage.Tasks().PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(taskIDs) == 0 {
		return 0, nil
	}

	logs, err := r.storage.CollectionLogs().DeleteByTaskIDs(ctx, taskIDs)
	if err != nil {
		return int64(len(taskIDs)), err
	}

	r.logger.Info().
		Int("tasks", len(taskIDs)).
		Int64("logs", logs).
		Msg("Purged old tasks")
	return int64(len(taskIDs)), nil
}

// defaultParams builds the launch parameters used by Restart and the
// auto-collection watcher for each task type.
func (r *Runner) defaultParams(taskType models.TaskType) interfaces.TaskParams {
	switch taskType {
	case models.TaskTypeHistoryCollection:
		return interfaces.TaskParams{
			Universe: r.config.Collection.Mode,
			Limit:    r.config.Collection.Limit,
			Days:     r.config.Collection.Days,
			Workers:  r.config.Collection.Workers,
		}
	default:
		return interfaces.TaskParams{Universe: interfaces.UniverseAll}
	}
}

// Stop cancels the watcher and all running drivers, then waits for
// their goroutines to drain.
func (r *Runner) Stop() {
	if r.watcherCancel != nil {
		r.watcherCancel()
		r.watcherCancel = nil
	}

	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info().Msg("Task runner stopped")
}

// Compile-time check
var _ interfaces.TaskService = (*Runner)(nil)
