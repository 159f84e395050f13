// Package collector implements history collection: a bounded-parallel
// driver that decides per-stock freshness, fetches OHLCV bars from the
// broker, validates and upserts them, and refreshes derived stock
// fields, recording per-stock outcomes for targeted retries.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/signum/internal/common"
	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/models"
	"github.com/bobmcallan/signum/internal/signals"
)

const (
	// MaxWorkers caps collection concurrency regardless of request
	MaxWorkers = 20

	// DefaultWorkers when the request does not specify a worker count
	DefaultWorkers = 5

	// DefaultDays is the calendar window for full refetches
	DefaultDays = 100

	// progressEvery is how many completed units pass between task-row
	// progress writes and cancellation polls
	progressEvery = 10

	// ma90Window is the close-price window for the cached reference SMA
	ma90Window = 90
)

// Service implements interfaces.CollectorService
type Service struct {
	storage  interfaces.StorageManager
	broker   interfaces.BrokerClient
	progress interfaces.ProgressBroadcaster
	logger   *common.Logger
	config   *common.Config

	now func() time.Time
}

// NewService creates a new collection service
func NewService(
	storage interfaces.StorageManager,
	broker interfaces.BrokerClient,
	progress interfaces.ProgressBroadcaster,
	logger *common.Logger,
	config *common.Config,
) *Service {
	return &Service{
		storage:  storage,
		broker:   broker,
		progress: progress,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// counters aggregates shared per-unit outcomes. Workers take the mutex
// briefly at the end of each unit; the same critical section owns the
// periodic task-row refresh so there is exactly one progress writer.
type counters struct {
	mu          sync.Mutex
	processed   int
	success     int
	failed      int
	skipped     int
	incremental int
	full        int
	records     int
	cancelled   bool
}

func (c *counters) summary() string {
	return fmt.Sprintf("processed %d: %d success (%d skipped, %d incremental, %d full), %d failed, %d records saved",
		c.processed, c.success, c.skipped, c.incremental, c.full, c.failed, c.records)
}

// Collect runs one history collection pass under the given task
func (s *Service) Collect(ctx context.Context, taskID string, params interfaces.TaskParams) error {
	task, err := s.storage.Tasks().GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %s not found", taskID)
	}

	if err := s.config.Clients.KIS.Validate(); err != nil {
		s.finalize(ctx, task, models.TaskStatusFailed, "", err.Error())
		return err
	}

	stocks, err := s.resolveUniverse(ctx, params)
	if err != nil {
		s.finalize(ctx, task, models.TaskStatusFailed, "", err.Error())
		return err
	}

	days := params.Days
	if days <= 0 {
		days = s.config.Collection.Days
	}
	workers := clampWorkers(params.Workers)

	task.TotalItems = len(stocks)
	task.Message = fmt.Sprintf("collecting %d stocks (%d workers, %d days)", len(stocks), workers, days)
	if err := s.storage.Tasks().UpdateTask(ctx, task); err != nil {
		return err
	}
	s.publishProgress(ctx, task)

	s.logger.Info().
		Str("task_id", taskID).
		Int("stocks", len(stocks)).
		Int("workers", workers).
		Int("days", days).
		Msg("History collection started")

	c := &counters{}
	units := make(chan *models.Stock)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for stock := range units {
				// Drain rather than return on cancellation so the feeder
				// never blocks on a channel with no readers left.
				if s.observeCancellation(ctx, task, c) {
					continue
				}
				s.runUnit(ctx, task, stock, days, c)
			}
		}()
	}

feed:
	for _, stock := range stocks {
		select {
		case <-ctx.Done():
			break feed
		case units <- stock:
		}
	}
	close(units)
	wg.Wait()

	return s.finalizeRun(ctx, task, c)
}

// runUnit collects one stock, recovering any failure into the counters
// and the stock's collection log row.
func (s *Service) runUnit(ctx context.Context, task *models.Task, stock *models.Stock, days int, c *counters) {
	mode, saved, err := s.collectStock(ctx, task.TaskID, stock, days)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed++
	switch {
	case err != nil:
		c.failed++
	case mode == ModeSkip:
		c.success++
		c.skipped++
	case mode == ModeIncremental:
		c.success++
		c.incremental++
		c.records += saved
	default:
		c.success++
		c.full++
		c.records += saved
	}

	if err != nil {
		s.logger.Warn().
			Str("task_id", task.TaskID).
			Str("symbol", stock.Symbol).
			Err(err).
			Msg("Stock collection failed")
	} else {
		s.logger.Debug().
			Str("task_id", task.TaskID).
			Str("symbol", stock.Symbol).
			Str("mode", string(mode)).
			Int("saved", saved).
			Msg("Stock collected")
	}

	if c.processed%progressEvery == 0 {
		s.refreshProgress(ctx, task, stock.Name, c)
	}
}

// observeCancellation reports whether the task has been cancelled.
// The task row is polled at most once per progress interval; context
// cancellation is observed immediately.
func (s *Service) observeCancellation(ctx context.Context, task *models.Task, c *counters) bool {
	if ctx.Err() != nil {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return true
	}
	if c.processed%progressEvery != 0 {
		return false
	}

	current, err := s.storage.Tasks().GetTask(ctx, task.TaskID)
	if err != nil {
		s.logger.Warn().Str("task_id", task.TaskID).Err(err).Msg("Cancellation poll failed")
		return false
	}
	if current != nil && current.Status == models.TaskStatusCancelled {
		c.cancelled = true
		return true
	}
	return false
}

// refreshProgress writes the task row's progress fields and mirrors
// them to the broadcaster. Caller holds the counter mutex.
func (s *Service) refreshProgress(ctx context.Context, task *models.Task, stockName string, c *counters) {
	task.ProcessedItems = c.processed
	task.SuccessItems = c.success
	task.FailedItems = c.failed
	task.SkippedItems = c.skipped
	task.CurrentStock = stockName
	task.Message = c.summary()

	if err := s.storage.Tasks().UpdateTask(ctx, task); err != nil {
		s.logger.Warn().Str("task_id", task.TaskID).Err(err).Msg("Failed to update task progress")
		return
	}
	s.publishProgress(ctx, task)
}

// collectStock runs the freshness protocol for one stock and returns
// the chosen mode and the number of bars written.
func (s *Service) collectStock(ctx context.Context, taskID string, stock *models.Stock, days int) (CollectMode, int, error) {
	now := s.now()

	plan, err := s.plan(ctx, stock, now)
	if err != nil {
		s.recordFailure(ctx, taskID, stock, now, err)
		return "", 0, err
	}
	if plan.Mode == ModeSkip {
		// Nothing to do; skips do not earn a collection log row.
		return ModeSkip, 0, nil
	}

	log := &models.CollectionLog{
		TaskID:    taskID,
		StockID:   stock.ID,
		Symbol:    stock.Symbol,
		Name:      stock.Name,
		Status:    models.CollectionStatusRunning,
		StartedAt: now,
	}
	if err := s.storage.CollectionLogs().CreateLog(ctx, log); err != nil {
		return plan.Mode, 0, err
	}

	saved, err := s.fetchAndStore(ctx, stock, plan, days, now)
	completed := s.now()
	log.CompletedAt = &completed
	if err != nil {
		log.Status = models.CollectionStatusFailed
		log.ErrorMessage = err.Error()
		if logErr := s.storage.CollectionLogs().UpdateLog(ctx, log); logErr != nil {
			s.logger.Warn().Str("symbol", stock.Symbol).Err(logErr).Msg("Failed to record collection failure")
		}
		return plan.Mode, 0, err
	}

	log.Status = models.CollectionStatusSuccess
	log.RecordsSaved = saved
	if err := s.storage.CollectionLogs().UpdateLog(ctx, log); err != nil {
		s.logger.Warn().Str("symbol", stock.Symbol).Err(err).Msg("Failed to record collection success")
	}
	return plan.Mode, saved, nil
}

// recordFailure writes a failed collection log row for errors that
// occur before the unit opens its own row
func (s *Service) recordFailure(ctx context.Context, taskID string, stock *models.Stock, startedAt time.Time, cause error) {
	completed := s.now()
	log := &models.CollectionLog{
		TaskID:       taskID,
		StockID:      stock.ID,
		Symbol:       stock.Symbol,
		Name:         stock.Name,
		Status:       models.CollectionStatusFailed,
		ErrorMessage: cause.Error(),
		StartedAt:    startedAt,
		CompletedAt:  &completed,
	}
	if err := s.storage.CollectionLogs().CreateLog(ctx, log); err != nil {
		s.logger.Warn().Str("symbol", stock.Symbol).Err(err).Msg("Failed to record collection failure")
	}
}

// fetchAndStore pulls the bar window from the broker, validates and
// upserts it, then refreshes the stock's derived fields.
func (s *Service) fetchAndStore(ctx context.Context, stock *models.Stock, plan CollectPlan, days int, now time.Time) (int, error) {
	today := models.DateOnly(now.In(common.MarketLocation(stock.Market)))

	var from time.Time
	if plan.Mode == ModeIncremental && plan.LastDate != nil {
		from = plan.LastDate.AddDate(0, 0, 1)
	} else {
		from = today.AddDate(0, 0, -days)
	}

	bars, err := s.broker.GetDailyOHLCV(ctx, stock.Symbol, stock.Market, stock.Exchange,
		interfaces.WithDateRange(from, today))
	if err != nil {
		return 0, err
	}

	rows := make([]models.PriceHistory, 0, len(bars))
	for _, bar := range bars {
		if err := validateBar(bar); err != nil {
			s.logger.Warn().
				Str("symbol", stock.Symbol).
				Str("date", bar.Date.Format("2006-01-02")).
				Err(err).
				Msg("Dropping invalid bar")
			continue
		}
		rows = append(rows, models.PriceHistory{
			StockID: stock.ID,
			Date:    models.DateOnly(bar.Date),
			Open:    bar.Open,
			High:    bar.High,
			Low:     bar.Low,
			Close:   bar.Close,
			Volume:  bar.Volume,
		})
	}

	saved, err := s.storage.PriceHistory().UpsertBars(ctx, stock.ID, rows)
	if err != nil {
		return 0, err
	}

	if err := s.refreshStock(ctx, stock, now); err != nil {
		return saved, err
	}
	return saved, nil
}

// refreshStock recomputes the stock's derived fields after a successful
// collection: the true row count, the 90-day reference average, a live
// quote when the broker offers one, and the history watermark.
func (s *Service) refreshStock(ctx context.Context, stock *models.Stock, now time.Time) error {
	count, err := s.storage.PriceHistory().CountBars(ctx, stock.ID)
	if err != nil {
		return err
	}
	stock.HistoryRecordsCount = int(count)

	if count >= MinHistoryRecords {
		recent, err := s.storage.PriceHistory().ListBars(ctx, stock.ID, ma90Window)
		if err != nil {
			return err
		}
		closes := signals.Closes(recent)
		ma := signals.MeanRecent(closes, ma90Window)
		stock.MA90Price = &ma
	}

	quote, err := s.broker.GetQuote(ctx, stock.Symbol, stock.Market, stock.Exchange)
	if err == nil && quote.Current > 0 {
		stock.CurrentPrice = quote.Current
		stock.PreviousClose = quote.PreviousClose
		stock.ChangePercent = quote.ChangePct
	} else {
		if err != nil {
			s.logger.Debug().Str("symbol", stock.Symbol).Err(err).Msg("Quote refresh failed; using latest close")
		}
		latest, listErr := s.storage.PriceHistory().ListBars(ctx, stock.ID, 1)
		if listErr == nil && len(latest) > 0 {
			stock.CurrentPrice = latest[0].Close
		}
	}

	updatedAt := now
	stock.HistoryUpdatedAt = &updatedAt
	return s.storage.Stocks().UpdateStock(ctx, stock)
}

// finalizeRun closes out the task according to how the run ended
func (s *Service) finalizeRun(ctx context.Context, task *models.Task, c *counters) error {
	c.mu.Lock()
	cancelled := c.cancelled
	summary := c.summary()
	task.ProcessedItems = c.processed
	task.SuccessItems = c.success
	task.FailedItems = c.failed
	task.SkippedItems = c.skipped
	c.mu.Unlock()

	switch {
	case cancelled || errors.Is(ctx.Err(), context.Canceled):
		s.finalize(ctx, task, models.TaskStatusCancelled, "collection cancelled: "+summary, "")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.finalize(ctx, task, models.TaskStatusFailed, summary, common.TaskTimeLimitMessage)
	default:
		s.finalize(ctx, task, models.TaskStatusCompleted, "collection complete: "+summary, "")
	}

	s.logger.Info().
		Str("task_id", task.TaskID).
		Str("status", string(task.Status)).
		Str("summary", summary).
		Msg("History collection finished")
	return nil
}

// finalize writes the task's terminal state. A background context is
// used so finalization survives driver cancellation.
func (s *Service) finalize(ctx context.Context, task *models.Task, status models.TaskStatus, message, errMessage string) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	completed := s.now()
	task.Status = status
	task.CompletedAt = &completed
	if message != "" {
		task.Message = message
	}
	if errMessage != "" {
		task.ErrorMessage = errMessage
	}

	if err := s.storage.Tasks().UpdateTask(ctx, task); err != nil {
		s.logger.Error().Str("task_id", task.TaskID).Err(err).Msg("Failed to finalize task")
		return
	}
	s.publishProgress(ctx, task)
}

func (s *Service) publishProgress(ctx context.Context, task *models.Task) {
	if s.progress == nil {
		return
	}
	if err := s.progress.Publish(ctx, task.ProgressEvent()); err != nil {
		s.logger.Debug().Str("task_id", task.TaskID).Err(err).Msg("Progress publish failed")
	}
}

// resolveUniverse materializes the stock set for this run. An explicit
// StockIDs set (the retry path) wins over the universe selector.
func (s *Service) resolveUniverse(ctx context.Context, params interfaces.TaskParams) ([]*models.Stock, error) {
	if len(params.StockIDs) > 0 {
		return s.storage.Stocks().ListStocksByIDs(ctx, params.StockIDs)
	}

	switch params.Universe {
	case interfaces.UniverseAll:
		return s.storage.Stocks().ListActiveStocks(ctx)
	case interfaces.UniverseTop:
		limit := params.Limit
		if limit <= 0 {
			limit = s.config.Collection.Limit
		}
		if limit <= 0 {
			return nil, fmt.Errorf("top universe requires a positive limit: %w", common.ErrConfigMissing)
		}
		return s.storage.Stocks().ListTopStocks(ctx, limit)
	case interfaces.UniverseTagged, "":
		return s.storage.Stocks().ListTaggedStocks(ctx)
	default:
		return nil, fmt.Errorf("unknown universe %q", params.Universe)
	}
}

// validateBar enforces the ingestion invariants on one broker bar
func validateBar(bar models.DailyBar) error {
	if bar.Open < 0 || bar.High < 0 || bar.Low < 0 || bar.Close < 0 || bar.Volume < 0 {
		return fmt.Errorf("negative value in bar")
	}
	if bar.Low > bar.Open || bar.Low > bar.Close {
		return fmt.Errorf("low %.4f above open/close", bar.Low)
	}
	if bar.High < bar.Open || bar.High < bar.Close {
		return fmt.Errorf("high %.4f below open/close", bar.High)
	}
	if bar.Low > 0 && (bar.High-bar.Low)/bar.Low >= 10 {
		return fmt.Errorf("intraday range ratio %.2f out of bounds", (bar.High-bar.Low)/bar.Low)
	}
	return nil
}

func clampWorkers(workers int) int {
	if workers <= 0 {
		return DefaultWorkers
	}
	if workers > MaxWorkers {
		return MaxWorkers
	}
	return workers
}

// Compile-time check
var _ interfaces.CollectorService = (*Service)(nil)
