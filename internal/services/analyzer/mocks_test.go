package analyzer

// Hand-rolled in-memory fakes for driving analysis passes in tests
// without a database.

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/models"
)

type memStorage struct {
	mu sync.Mutex

	stocks  map[uint]*models.Stock
	tagged  map[uint]bool
	bars    map[uint][]models.PriceHistory
	signals []*models.Signal
	tasks   map[string]*models.Task
	nextID  uint
}

func newMemStorage() *memStorage {
	return &memStorage{
		stocks: make(map[uint]*models.Stock),
		tagged: make(map[uint]bool),
		bars:   make(map[uint][]models.PriceHistory),
		tasks:  make(map[string]*models.Task),
	}
}

func (m *memStorage) addStock(stock *models.Stock) *models.Stock {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *stock
	m.stocks[cp.ID] = &cp
	return &cp
}

func (m *memStorage) addBars(stockID uint, bars ...models.PriceHistory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bar := range bars {
		bar.StockID = stockID
		bar.Date = models.DateOnly(bar.Date)
		m.bars[stockID] = append(m.bars[stockID], bar)
	}
	sort.Slice(m.bars[stockID], func(i, j int) bool {
		return m.bars[stockID][i].Date.Before(m.bars[stockID][j].Date)
	})
}

func (m *memStorage) addTask(task *models.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[cp.TaskID] = &cp
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

func (m *memStorage) addSignal(signal *models.Signal) *models.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *signal
	m.nextID++
	cp.ID = m.nextID
	cp.SignalDate = models.DateOnly(cp.SignalDate)
	m.signals = append(m.signals, &cp)
	return &cp
}

func (m *memStorage) signalsFor(stockID uint) []models.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Signal
	for _, signal := range m.signals {
		if signal.StockID == stockID {
			out = append(out, *signal)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StorageManager

func (m *memStorage) Stocks() interfaces.StockStore                 { return (*memStocks)(m) }
func (m *memStorage) PriceHistory() interfaces.PriceHistoryStore    { return (*memBars)(m) }
func (m *memStorage) Signals() interfaces.SignalStore               { return (*memSignals)(m) }
func (m *memStorage) Tasks() interfaces.TaskStore                   { return (*memTasks)(m) }
func (m *memStorage) CollectionLogs() interfaces.CollectionLogStore { return nil }
func (m *memStorage) Tokens() interfaces.TokenStore                 { return nil }
func (m *memStorage) Ping(context.Context) error                    { return nil }
func (m *memStorage) Close() error                                  { return nil }

var _ interfaces.StorageManager = (*memStorage)(nil)

type memStocks memStorage

func (m *memStocks) GetStock(_ context.Context, id uint) (*models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stock, ok := m.stocks[id]; ok {
		cp := *stock
		return &cp, nil
	}
	return nil, nil
}

func (m *memStocks) GetStockBySymbol(_ context.Context, symbol string) (*models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stock := range m.stocks {
		if stock.Symbol == symbol {
			cp := *stock
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStocks) listLocked(filter func(*models.Stock) bool) []*models.Stock {
	var out []*models.Stock
	for _, stock := range m.stocks {
		if stock.IsActive && filter(stock) {
			cp := *stock
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStocks) ListActiveStocks(context.Context) ([]*models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(func(*models.Stock) bool { return true }), nil
}

func (m *memStocks) ListTaggedStocks(context.Context) ([]*models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(func(s *models.Stock) bool { return m.tagged[s.ID] }), nil
}

func (m *memStocks) ListTopStocks(_ context.Context, limit int) ([]*models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	top := m.listLocked(func(s *models.Stock) bool { return s.IsActive })
	sort.Slice(top, func(i, j int) bool {
		if top[i].MarketCap != top[j].MarketCap {
			return top[i].MarketCap > top[j].MarketCap
		}
		return top[i].Symbol < top[j].Symbol
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

func (m *memStocks) ListStocksByIDs(_ context.Context, ids []uint) ([]*models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uint]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return m.listLocked(func(s *models.Stock) bool { return want[s.ID] }), nil
}

func (m *memStocks) UpdateStock(_ context.Context, stock *models.Stock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *stock
	m.stocks[cp.ID] = &cp
	return nil
}

func (m *memStocks) SetSignalAnalyzedAt(_ context.Context, stockID uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stock, ok := m.stocks[stockID]; ok {
		stamp := at
		stock.SignalAnalyzedAt = &stamp
	}
	return nil
}

type memBars memStorage

func (m *memBars) CountBars(_ context.Context, stockID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.bars[stockID])), nil
}

func (m *memBars) LatestBarDate(_ context.Context, stockID uint) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bars := m.bars[stockID]
	if len(bars) == 0 {
		return nil, nil
	}
	date := bars[len(bars)-1].Date
	return &date, nil
}

func (m *memBars) ListBars(_ context.Context, stockID uint, limit int) ([]models.PriceHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bars := m.bars[stockID]
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]models.PriceHistory, len(bars))
	copy(out, bars)
	return out, nil
}

func (m *memBars) UpsertBars(_ context.Context, stockID uint, bars []models.PriceHistory) (int, error) {
	return 0, fmt.Errorf("not used by analysis")
}

type memSignals memStorage

func (m *memSignals) GetSignal(_ context.Context, stockID uint, signalDate time.Time, strategy string) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	date := models.DateOnly(signalDate)
	for _, signal := range m.signals {
		if signal.StockID == stockID && signal.SignalDate.Equal(date) && signal.StrategyName == strategy {
			cp := *signal
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSignals) ListStockSignals(_ context.Context, stockID uint, strategies []string) ([]models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(strategies))
	for _, s := range strategies {
		want[s] = true
	}
	var out []models.Signal
	for _, signal := range m.signals {
		if signal.StockID == stockID && want[signal.StrategyName] {
			out = append(out, *signal)
		}
	}
	return out, nil
}

func (m *memSignals) ListRecentByStrategy(_ context.Context, stockID uint, strategy string, since time.Time) ([]models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Signal
	for _, signal := range m.signals {
		if signal.StockID == stockID && signal.StrategyName == strategy && !signal.SignalDate.Before(models.DateOnly(since)) {
			out = append(out, *signal)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignalDate.Before(out[j].SignalDate) })
	return out, nil
}

func (m *memSignals) CreateSignal(_ context.Context, signal *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *signal
	m.nextID++
	cp.ID = m.nextID
	cp.SignalDate = models.DateOnly(cp.SignalDate)
	m.signals = append(m.signals, &cp)
	signal.ID = cp.ID
	return nil
}

func (m *memSignals) UpdateSignal(_ context.Context, signal *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.signals {
		if existing.ID == signal.ID {
			cp := *signal
			m.signals[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("signal %d not found", signal.ID)
}

func (m *memSignals) DeleteStrategySignals(_ context.Context, stockID uint, strategies []string, keepResolved bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(strategies))
	for _, s := range strategies {
		want[s] = true
	}

	var kept []*models.Signal
	var deleted int64
	for _, signal := range m.signals {
		if signal.StockID != stockID || !want[signal.StrategyName] {
			kept = append(kept, signal)
			continue
		}
		if keepResolved && signal.StrategyName == models.StrategyApproachingBreakout {
			details, err := signal.DecodeDetails()
			if err == nil && details.BreakoutConfirmed != nil {
				kept = append(kept, signal)
				continue
			}
		}
		deleted++
	}
	m.signals = kept
	return deleted, nil
}

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
