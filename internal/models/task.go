// Package models defines data structures for Signum
package models

import (
	"time"
)

// TaskType identifies the kind of background work a task performs
type TaskType string

// Task types
const (
	TaskTypeHistoryCollection TaskType = "history_collection"
	TaskTypeSignalAnalysis    TaskType = "signal_analysis"
	TaskTypeMASignalAnalysis  TaskType = "ma_signal_analysis"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Task statuses
const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// ValidTaskType reports whether the task type is known
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskTypeHistoryCollection, TaskTypeSignalAnalysis, TaskTypeMASignalAnalysis:
		return true
	}
	return false
}

// Terminal reports whether a status is an end state
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Task represents one background run of collection or analysis.
// Progress counters are updated in place while the run is live so that
// pollers and the progress channel see a consistent view.
type Task struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID         string     `gorm:"size:36;uniqueIndex;not null" json:"task_id"`
	TaskType       TaskType   `gorm:"size:50;index;not null" json:"task_type"`
	Status         TaskStatus `gorm:"size:20;index;not null" json:"status"`
	TotalItems     int        `gorm:"default:0" json:"total_items"`
	ProcessedItems int        `gorm:"default:0" json:"processed_items"`
	SuccessItems   int        `gorm:"default:0" json:"success_items"`
	FailedItems    int        `gorm:"default:0" json:"failed_items"`
	SkippedItems   int        `gorm:"default:0" json:"skipped_items"`
	CurrentStock   string     `gorm:"size:200" json:"current_stock"` // name of the stock being processed
	Message        string     `gorm:"type:text" json:"message"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message"`
	Params         string     `gorm:"type:text" json:"params"` // launch parameters as JSON
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Task
func (Task) TableName() string {
	return "tasks"
}

// Collection log statuses
const (
	CollectionStatusRunning = "running"
	CollectionStatusSuccess = "success"
	CollectionStatusFailed  = "failed"
)

// CollectionLog records the outcome of collecting one stock within a task.
// Failed rows drive targeted retries without rerunning the whole universe.
type CollectionLog struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID       string     `gorm:"size:36;index;not null" json:"task_id"`
	StockID      uint       `gorm:"index;not null" json:"stock_id"`
	Symbol       string     `gorm:"size:20" json:"symbol"`
	Name         string     `gorm:"size:200" json:"name"`
	Status       string     `gorm:"size:20;index;not null" json:"status"` // running, success, failed
	RecordsSaved int        `gorm:"default:0" json:"records_saved"`
	ErrorMessage string     `gorm:"type:text" json:"error_message"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Stock Stock `gorm:"foreignKey:StockID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for CollectionLog
func (CollectionLog) TableName() string {
	return "collection_logs"
}

// TaskProgressEvent is the progress snapshot published to subscribers
// while a task runs and once more when it reaches a terminal state.
type TaskProgressEvent struct {
	TaskID         string     `json:"task_id"`
	TaskType       TaskType   `json:"task_type"`
	Status         TaskStatus `json:"status"`
	TotalItems     int        `json:"total_items"`
	ProcessedItems int        `json:"processed_items"`
	SuccessItems   int        `json:"success_items"`
	FailedItems    int        `json:"failed_items"`
	SkippedItems   int        `json:"skipped_items"`
	CurrentStock   string     `json:"current_stock,omitempty"`
	Message        string     `json:"message,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

// ProgressEvent builds a progress snapshot from the task's current state
func (t *Task) ProgressEvent() TaskProgressEvent {
	return TaskProgressEvent{
		TaskID:         t.TaskID,
		TaskType:       t.TaskType,
		Status:         t.Status,
		TotalItems:     t.TotalItems,
		ProcessedItems: t.ProcessedItems,
		SuccessItems:   t.SuccessItems,
		FailedItems:    t.FailedItems,
		SkippedItems:   t.SkippedItems,
		CurrentStock:   t.CurrentStock,
		Message:        t.Message,
		Timestamp:      time.Now().UTC(),
	}
}
