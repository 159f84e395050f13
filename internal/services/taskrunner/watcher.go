package taskrunner

import (
	"context"
	"time"

	"github.com/bobmcallan/signum/internal/models"
)

// taskRetention is how long terminal tasks and their collection logs
// are kept before the watcher purges them
const taskRetention = 7 * 24 * time.Hour

// StartWatcher launches the auto-collection loop: on each interval, if
// no task is running, a collection pass is launched, followed on the
// next idle tick by an analysis pass over whatever that collection
// changed. No-op when auto-collection is disabled.
func (r *Runner) StartWatcher() {
	if !r.config.Collection.AutoCollect {
		r.logger.Debug().Msg("Auto collection disabled; watcher not started")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.watcherCancel = cancel

	r.safeGo("watcher", func() { r.watchLoop(ctx) })

	r.logger.Info().
		Str("interval", r.config.Collection.GetInterval().String()).
		Str("mode", r.config.Collection.Mode).
		Msg("Auto-collection watcher started")
}

func (r *Runner) watchLoop(ctx context.Context) {
	interval := r.config.Collection.GetInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collection and analysis alternate so each analysis pass sees the
	// collection that preceded it.
	next := models.TaskTypeHistoryCollection

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next = r.tick(ctx, next)
		}
	}
}

// tick launches the next pass when the system is idle and returns the
// task type to launch on the following idle tick.
func (r *Runner) tick(ctx context.Context, next models.TaskType) models.TaskType {
	running, err := r.storage.Tasks().ListRunning(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Watcher: failed to list running tasks")
		return next
	}
	if len(running) > 0 {
		r.logger.Debug().Int("running", len(running)).Msg("Watcher: tasks still running, skipping tick")
		return next
	}

	task, err := r.Launch(ctx, next, r.defaultParams(next))
	if err != nil {
		r.logger.Warn().Str("task_type", string(next)).Err(err).Msg("Watcher: failed to launch task")
		return next
	}

	r.logger.Info().
		Str("task_id", task.TaskID).
		Str("task_type", string(next)).
		Msg("Watcher: launched scheduled task")

	if _, err := r.PurgeOldTasks(ctx, taskRetention); err != nil {
		r.logger.Warn().Err(err).Msg("Watcher: failed to purge old tasks")
	}

	if next == models.TaskTypeHistoryCollection {
		return models.TaskTypeSignalAnalysis
	}
	return models.TaskTypeHistoryCollection
}
