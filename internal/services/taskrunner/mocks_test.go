package taskrunner

// In-memory task and log stores plus a scriptable driver standing in
// for the collection and analysis services.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/models"
)

type memStorage struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
	logs  []*models.CollectionLog
}

func newMemStorage() *memStorage {
	return &memStorage{tasks: make(map[string]*models.Task)}
}

func (m *memStorage) addTask(task *models.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[cp.TaskID] = &cp
}

func (m *memStorage) addLog(log *models.CollectionLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *log
	cp.ID = uint(len(m.logs) + 1)
	m.logs = append(m.logs, &cp)
}

func (m *memStorage) taskByID(taskID string) *models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[taskID]; ok {
		cp := *task
		return &cp
	}
	return nil
}

func (m *memStorage) logCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

// StorageManager

func (m *memStorage) Stocks() interfaces.StockStore                 { return nil }
func (m *memStorage) PriceHistory() interfaces.PriceHistoryStore    { return nil }
func (m *memStorage) Signals() interfaces.SignalStore               { return nil }
func (m *memStorage) Tasks() interfaces.TaskStore                   { return (*memTasks)(m) }
func (m *memStorage) CollectionLogs() interfaces.CollectionLogStore { return (*memLogs)(m) }
func (m *memStorage) Tokens() interfaces.TokenStore                 { return nil }
func (m *memStorage) Ping(context.Context) error                    { return nil }
func (m *memStorage) Close() error                                  { return nil }

var _ interfaces.StorageManager = (*memStorage)(nil)

type memTasks memStorage

func (m *memTasks) CreateTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[cp.TaskID] = &cp
	return nil
}

func (m *memTasks) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[taskID]; ok {
		cp := *task
		return &cp, nil
	}
	return nil, nil
}

func (m *memTasks) UpdateTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[cp.TaskID] = &cp
	return nil
}

func (m *memTasks) ListRunning(context.Context) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Task
	for _, task := range m.tasks {
		if task.Status == models.TaskStatusRunning {
			cp := *task
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTasks) ListRunningBefore(_ context.Context, cutoff time.Time) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Task
	for _, task := range m.tasks {
		if task.Status == models.TaskStatusRunning && task.StartedAt.Before(cutoff) {
			cp := *task
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTasks) PurgeBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, task := range m.tasks {
		if task.Status.Terminal() && task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			ids = append(ids, id)
			delete(m.tasks, id)
		}
	}
	return ids, nil
}

type memLogs memStorage

func (m *memLogs) CreateLog(_ context.Context, log *models.CollectionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *log
	cp.ID = uint(len(m.logs) + 1)
	m.logs = append(m.logs, &cp)
	log.ID = cp.ID
	return nil
}

func (m *memLogs) UpdateLog(_ context.Context, log *models.CollectionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.logs {
		if existing.ID == log.ID {
			cp := *log
			m.logs[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("log %d not found", log.ID)
}

func (m *memLogs) ListFailedStockIDs(_ context.Context, taskID string) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uint]bool)
	var ids []uint
	for _, log := range m.logs {
		if log.TaskID == taskID && log.Status == models.CollectionStatusFailed && !seen[log.StockID] {
			seen[log.StockID] = true
			ids = append(ids, log.StockID)
		}
	}
	return ids, nil
}

func (m *memLogs) DeleteByTaskIDs(_ context.Context, taskIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		drop[id] = true
	}
	var kept []*models.CollectionLog
	var removed int64
	for _, log := range m.logs {
		if drop[log.TaskID] {
			removed++
			continue
		}
		kept = append(kept, log)
	}
	m.logs = kept
	return removed, nil
}

// driverCall records one dispatch into the fake driver
type driverCall struct {
	method string
	taskID string
	params interfaces.TaskParams
}

// fakeDriver serves as both the collector and the analyzer. It records
// calls and can block until cancelled, fail, or finalize its task row
// the way real drivers do.
type fakeDriver struct {
	mu    sync.Mutex
	calls []driverCall

	store    *memStorage
	started  chan string
	block    bool
	err      error
	complete bool
}

func newFakeDriver(store *memStorage) *fakeDriver {
	return &fakeDriver{
		store:    store,
		started:  make(chan string, 8),
		complete: true,
	}
}

func (f *fakeDriver) run(ctx context.Context, method, taskID string, params interfaces.TaskParams) error {
	f.mu.Lock()
	f.calls = append(f.calls, driverCall{method: method, taskID: taskID, params: params})
	f.mu.Unlock()
	f.started <- taskID

	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	if f.complete {
		task, _ := f.store.Tasks().GetTask(ctx, taskID)
		if task != nil {
			done := time.Now().UTC()
			task.Status = models.TaskStatusCompleted
			task.CompletedAt = &done
			_ = f.store.Tasks().UpdateTask(ctx, task)
		}
	}
	return nil
}

func (f *fakeDriver) Collect(ctx context.Context, taskID string, params interfaces.TaskParams) error {
	return f.run(ctx, "collect", taskID, params)
}

func (f *fakeDriver) AnalyzeTrendlines(ctx context.Context, taskID string, params interfaces.TaskParams) error {
	return f.run(ctx, "trendlines", taskID, params)
}

func (f *fakeDriver) AnalyzeMovingAverages(ctx context.Context, taskID string, params interfaces.TaskParams) error {
	return f.run(ctx, "moving_averages", taskID, params)
}

func (f *fakeDriver) callList() []driverCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]driverCall, len(f.calls))
	copy(out, f.calls)
	return out
}

var (
	_ interfaces.CollectorService = (*fakeDriver)(nil)
	_ interfaces.AnalyzerService  = (*fakeDriver)(nil)
)
