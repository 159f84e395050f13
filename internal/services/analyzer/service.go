// Package analyzer runs signal strategies over stored price history.
// A pass selects a stock universe, filters it to stocks whose data has
// changed since their last analysis, and rewrites each stock's signal
// rows for the strategy family being run.
package analyzer

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
	// MinTrendlineRows is the smallest history usable by the trendline family
	MinTrendlineRows = 60

	// MinMARows is the smallest history usable by the MA family
	MinMARows = 200

	// DefaultTrendlineDays is the bar window loaded for trendline analysis
	DefaultTrendlineDays = 120

	// DefaultMADays is the bar window loaded for MA analysis
	DefaultMADays = 250

	// DefaultWorkers for analysis passes
	DefaultWorkers = 5

	// progressEvery is how many completed stocks pass between task-row
	// progress writes and cancellation polls
	progressEvery = 10
)

// Service implements interfaces.AnalyzerService
type Service struct {
	storage  interfaces.StorageManager
	progress interfaces.ProgressBroadcaster
	logger   *common.Logger

	trendline Strategy
	ma        Strategy

	now func() time.Time
}

// NewService creates a new signal analysis service
func NewService(
	storage interfaces.StorageManager,
	progress interfaces.ProgressBroadcaster,
	logger *common.Logger,
) *Service {
	return &Service{
		storage:   storage,
		progress:  progress,
		logger:    logger,
		trendline: NewTrendlineStrategy(),
		ma:        NewMovingAverageStrategy(),
		now:       time.Now,
	}
}

// AnalyzeTrendlines runs the descending-trendline strategy family
func (s *Service) AnalyzeTrendlines(ctx context.Context, taskID string, params interfaces.TaskParams) error {
	return s.run(ctx, taskID, params, s.trendline)
}

// AnalyzeMovingAverages runs the moving-average strategy family
func (s *Service) AnalyzeMovingAverages(ctx context.Context, taskID string, params interfaces.TaskParams) error {
	return s.run(ctx, taskID, params, s.ma)
}

// counters aggregates shared per-stock outcomes under one mutex, which
// also serializes the periodic task-row refresh.
type counters struct {
	mu        sync.Mutex
	processed int
	success   int
	failed    int
	signals   int
	cancelled bool
}

func (c *counters) summary() string {
	return fmt.Sprintf("analyzed %d stocks: %d success, %d failed, %d signals",
		c.processed, c.success, c.failed, c.signals)
}

func (s *Service) run(ctx context.Context, taskID string, params interfaces.TaskParams, strategy Strategy) error {
	task, err := s.storage.Tasks().GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %s not found", taskID)
	}

	stocks, err := s.resolveUniverse(ctx, params, strategy.MinRows())
	if err != nil {
		s.finalize(ctx, task, models.TaskStatusFailed, "", err.Error())
		return err
	}

	days := params.Days
	if days <= 0 {
		if strategy.Family() == FamilyMovingAverage {
			days = DefaultMADays
		} else {
			days = DefaultTrendlineDays
		}
	}
	workers := params.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	task.TotalItems = len(stocks)
	task.Message = fmt.Sprintf("analyzing %d stocks (%s family)", len(stocks), strategy.Family())
	if err := s.storage.Tasks().UpdateTask(ctx, task); err != nil {
		return err
	}
	s.publishProgress(ctx, task)

	s.logger.Info().
		Str("task_id", taskID).
		Str("family", string(strategy.Family())).
		Int("stocks", len(stocks)).
		Int("days", days).
		Msg("Signal analysis started")

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
				s.runUnit(ctx, task, stock, strategy, days, c)
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

	return s.finalizeRun(ctx, task, strategy, c)
}

func (s *Service) runUnit(ctx context.Context, task *models.Task, stock *models.Stock, strategy Strategy, days int, c *counters) {
	emitted, err := s.analyzeStock(ctx, stock, strategy, days)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed++
	if err != nil {
		c.failed++
		s.logger.Warn().
			Str("task_id", task.TaskID).
			Str("symbol", stock.Symbol).
			Err(err).
			Msg("Stock analysis failed")
	} else {
		c.success++
		c.signals += emitted
	}

	if c.processed%progressEvery == 0 {
		task.ProcessedItems = c.processed
		task.SuccessItems = c.success
		task.FailedItems = c.failed
		task.CurrentStock = stock.Name
		task.Message = c.summary()
		if err := s.storage.Tasks().UpdateTask(ctx, task); err != nil {
			s.logger.Warn().Str("task_id", task.TaskID).Err(err).Msg("Failed to update task progress")
			return
		}
		s.publishProgress(ctx, task)
	}
}

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

// analyzeStock rewrites one stock's signals for the strategy family and
// returns the number of emissions persisted.
func (s *Service) analyzeStock(ctx context.Context, stock *models.Stock, strategy Strategy, days int) (int, error) {
	now := s.now()
	bars, err := s.storage.PriceHistory().ListBars(ctx, stock.ID, days)
	if err != nil {
		return 0, err
	}
	if len(bars) < strategy.MinRows() {
		// Below the usable floor; stamp the watermark so the delta
		// filter does not reselect the stock every pass.
		return 0, s.storage.Stocks().SetSignalAnalyzedAt(ctx, stock.ID, now)
	}

	if strategy.Family() == FamilyTrendline {
		if err := s.confirmApproaching(ctx, stock, bars, now); err != nil {
			s.logger.Warn().Str("symbol", stock.Symbol).Err(err).Msg("Approaching confirmation pass failed")
		}
	}

	if _, err := s.storage.Signals().DeleteStrategySignals(ctx, stock.ID, strategy.Family().StrategyNames(), true); err != nil {
		return 0, err
	}

	currentPrice := stock.CurrentPrice
	if currentPrice <= 0 {
		currentPrice = bars[len(bars)-1].Close
	}

	emissions := strategy.Analyze(bars, currentPrice)
	written := 0
	for _, emission := range emissions {
		if err := s.writeEmission(ctx, stock, emission, currentPrice, now); err != nil {
			return written, err
		}
		written++
	}

	if err := s.storage.Stocks().SetSignalAnalyzedAt(ctx, stock.ID, now); err != nil {
		return written, err
	}
	return written, nil
}

// writeEmission persists one emission with update-or-insert semantics
// on the (stock, date, strategy) natural key. Existing rows are mostly
// retained approaching history; only their live price fields move.
func (s *Service) writeEmission(ctx context.Context, stock *models.Stock, emission Emission, currentPrice float64, now time.Time) error {
	existing, err := s.storage.Signals().GetSignal(ctx, stock.ID, emission.Date, emission.StrategyName)
	if err != nil {
		return err
	}

	returnPct := 0.0
	if emission.Price > 0 && currentPrice > 0 {
		returnPct = signals.Round((currentPrice-emission.Price)/emission.Price*100, 2)
	}

	if existing != nil {
		existing.CurrentPrice = currentPrice
		existing.ReturnPercent = returnPct
		return s.storage.Signals().UpdateSignal(ctx, existing)
	}

	signal := &models.Signal{
		StockID:       stock.ID,
		SignalDate:    models.DateOnly(emission.Date),
		StrategyName:  emission.StrategyName,
		SignalType:    emission.SignalType,
		SignalPrice:   emission.Price,
		CurrentPrice:  currentPrice,
		ReturnPercent: returnPct,
		IsActive:      true,
		AnalyzedAt:    now,
	}
	if err := signal.EncodeDetails(emission.Details); err != nil {
		return fmt.Errorf("failed to encode signal details: %w", err)
	}
	return s.storage.Signals().CreateSignal(ctx, signal)
}

func (s *Service) finalizeRun(ctx context.Context, task *models.Task, strategy Strategy, c *counters) error {
	c.mu.Lock()
	cancelled := c.cancelled
	summary := c.summary()
	task.ProcessedItems = c.processed
	task.SuccessItems = c.success
	task.FailedItems = c.failed
	c.mu.Unlock()

	switch {
	case cancelled || errors.Is(ctx.Err(), context.Canceled):
		s.finalize(ctx, task, models.TaskStatusCancelled, "analysis cancelled: "+summary, "")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.finalize(ctx, task, models.TaskStatusFailed, summary, common.TaskTimeLimitMessage)
	default:
		s.finalize(ctx, task, models.TaskStatusCompleted, "analysis complete: "+summary, "")
	}

	s.logger.Info().
		Str("task_id", task.TaskID).
		Str("family", string(strategy.Family())).
		Str("status", string(task.Status)).
		Str("summary", summary).
		Msg("Signal analysis finished")
	return nil
}

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

// resolveUniverse materializes the stock set for an analysis pass: the
// selected universe, narrowed to stocks with enough history, the
// optional market filter, and the delta filter unless a full scan was
// forced.
func (s *Service) resolveUniverse(ctx context.Context, params interfaces.TaskParams, minRows int) ([]*models.Stock, error) {
	var (
		stocks []*models.Stock
		err    error
	)
	switch params.Universe {
	case interfaces.UniverseAll, "":
		stocks, err = s.storage.Stocks().ListActiveStocks(ctx)
	case interfaces.UniverseTagged:
		stocks, err = s.storage.Stocks().ListTaggedStocks(ctx)
	case interfaces.UniverseTop:
		if params.Limit <= 0 {
			return nil, fmt.Errorf("top universe requires a positive limit: %w", common.ErrConfigMissing)
		}
		stocks, err = s.storage.Stocks().ListTopStocks(ctx, params.Limit)
	default:
		return nil, fmt.Errorf("unknown universe %q", params.Universe)
	}
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Stock, 0, len(stocks))
	for _, stock := range stocks {
		if stock.HistoryRecordsCount < minRows {
			continue
		}
		if params.Market != "" && stock.Market != params.Market {
			continue
		}
		if !params.ForceFull && !isStale(stock) {
			continue
		}
		filtered = append(filtered, stock)
	}

	if params.Limit > 0 && params.Universe != interfaces.UniverseTop && len(filtered) > params.Limit {
		filtered = filtered[:params.Limit]
	}
	return filtered, nil
}

// isStale is the delta filter: analyze only stocks whose history has
// moved past their last analysis watermark.
func isStale(stock *models.Stock) bool {
	if stock.SignalAnalyzedAt == nil {
		return true
	}
	return stock.HistoryUpdatedAt != nil && stock.HistoryUpdatedAt.After(*stock.SignalAnalyzedAt)
}

// Compile-time check
var _ interfaces.AnalyzerService = (*Service)(nil)
