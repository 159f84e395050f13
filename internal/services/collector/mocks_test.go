package collector

// Hand-rolled in-memory fakes for driving the collection engine in
// tests without a database or broker.

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

	stocks map[uint]*models.Stock
	tagged map[uint]bool
	bars   map[uint][]models.PriceHistory
	tasks  map[string]*models.Task
	logs   []*models.CollectionLog
	tokens map[string]*models.TokenCache
}

func newMemStorage() *memStorage {
	return &memStorage{
		stocks: make(map[uint]*models.Stock),
		tagged: make(map[uint]bool),
		bars:   make(map[uint][]models.PriceHistory),
		tasks:  make(map[string]*models.Task),
		tokens: make(map[string]*models.TokenCache),
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
	m.sortBarsLocked(stockID)
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

func (m *memStorage) logsForTask(taskID string) []*models.CollectionLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CollectionLog
	for _, log := range m.logs {
		if log.TaskID == taskID {
			cp := *log
			out = append(out, &cp)
		}
	}
	return out
}

func (m *memStorage) sortBarsLocked(stockID uint) {
	bars := m.bars[stockID]
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}

// StorageManager

func (m *memStorage) Stocks() interfaces.StockStore                 { return (*memStocks)(m) }
func (m *memStorage) PriceHistory() interfaces.PriceHistoryStore    { return (*memBars)(m) }
func (m *memStorage) Signals() interfaces.SignalStore               { return nil }
func (m *memStorage) Tasks() interfaces.TaskStore                   { return (*memTasks)(m) }
func (m *memStorage) CollectionLogs() interfaces.CollectionLogStore { return (*memLogs)(m) }
func (m *memStorage) Tokens() interfaces.TokenStore                 { return (*memTokens)(m) }
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
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := make(map[time.Time]int)
	for i, bar := range m.bars[stockID] {
		existing[bar.Date] = i
	}
	for _, bar := range bars {
		bar.StockID = stockID
		bar.Date = models.DateOnly(bar.Date)
		if i, ok := existing[bar.Date]; ok {
			m.bars[stockID][i] = bar
		} else {
			m.bars[stockID] = append(m.bars[stockID], bar)
		}
	}
	(*memStorage)(m).sortBarsLocked(stockID)
	return len(bars), nil
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

type memTokens memStorage

func (m *memTokens) GetToken(_ context.Context, provider, cacheKey string) (*models.TokenCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token, ok := m.tokens[provider+":"+cacheKey]; ok {
		cp := *token
		return &cp, nil
	}
	return nil, nil
}

func (m *memTokens) SaveToken(_ context.Context, token *models.TokenCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.Provider+":"+token.CacheKey] = &cp
	return nil
}

// mockBroker captures OHLCV requests and serves canned bars
type mockBroker struct {
	mu       sync.Mutex
	barsFor  map[string][]models.DailyBar
	errFor   map[string]error
	quoteFor map[string]*models.Quote
	requests []brokerRequest
}

type brokerRequest struct {
	symbol string
	from   time.Time
	to     time.Time
}

func newMockBroker() *mockBroker {
	return &mockBroker{
		barsFor:  make(map[string][]models.DailyBar),
		errFor:   make(map[string]error),
		quoteFor: make(map[string]*models.Quote),
	}
}

func (b *mockBroker) GetDailyOHLCV(_ context.Context, symbol, _, _ string, opts ...interfaces.OHLCVOption) ([]models.DailyBar, error) {
	params := interfaces.OHLCVParams{}
	for _, opt := range opts {
		opt(&params)
	}

	b.mu.Lock()
	b.requests = append(b.requests, brokerRequest{symbol: symbol, from: params.From, to: params.To})
	bars := b.barsFor[symbol]
	err := b.errFor[symbol]
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}

	var out []models.DailyBar
	for _, bar := range bars {
		if bar.Date.Before(params.From) || bar.Date.After(params.To) {
			continue
		}
		out = append(out, bar)
	}
	return out, nil
}

func (b *mockBroker) GetQuote(_ context.Context, symbol, _, _ string) (*models.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if quote, ok := b.quoteFor[symbol]; ok {
		cp := *quote
		return &cp, nil
	}
	return nil, fmt.Errorf("quote unavailable for %s", symbol)
}

func (b *mockBroker) requestsFor(symbol string) []brokerRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []brokerRequest
	for _, req := range b.requests {
		if req.symbol == symbol {
			out = append(out, req)
		}
	}
	return out
}

var _ interfaces.BrokerClient = (*mockBroker)(nil)
