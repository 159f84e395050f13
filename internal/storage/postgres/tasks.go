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

// TaskStore implements interfaces.TaskStore
type TaskStore struct {
	db     *gorm.DB
	logger *common.Logger
}

// NewTaskStore creates a new task store
func NewTaskStore(db *gorm.DB, logger *common.Logger) *TaskStore {
	return &TaskStore{db: db, logger: logger}
}

func (s *TaskStore) CreateTask(ctx context.Context, task *models.Task) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task %s: %w", task.TaskID, err)
	}
	return nil
}

func (s *TaskStore) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}
	return &task, nil
}

func (s *TaskStore) UpdateTask(ctx context.Context, task *models.Task) error {
	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.TaskID, err)
	}
	return nil
}

func (s *TaskStore) ListRunning(ctx context.Context) ([]*models.Task, error) {
	var tasks []*models.Task
	err := s.db.WithContext(ctx).
		Where("status = ?", models.TaskStatusRunning).
		Order("started_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list running tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskStore) ListRunningBefore(ctx context.Context, cutoff time.Time) ([]*models.Task, error) {
	var tasks []*models.Task
	err := s.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", models.TaskStatusRunning, cutoff).
		Order("started_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale running tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskStore) PurgeBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	terminal := []models.TaskStatus{
		models.TaskStatusCompleted,
		models.TaskStatusFailed,
		models.TaskStatusCancelled,
	}

	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("status IN ? AND completed_at < ?", terminal, cutoff).
		Pluck("task_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find purgeable tasks: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err = s.db.WithContext(ctx).
		Where("task_id IN ?", ids).
		Delete(&models.Task{}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to purge %d tasks: %w", len(ids), err)
	}
	return ids, nil
}

// Compile-time check
var _ interfaces.TaskStore = (*TaskStore)(nil)
