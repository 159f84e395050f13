// Package app wires configuration, storage, clients, and services into
// one process-root composition shared by the worker binary and tests.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/signum/internal/clients/kis"
	"github.com/bobmcallan/signum/internal/common"
	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/services/analyzer"
	"github.com/bobmcallan/signum/internal/services/collector"
	"github.com/bobmcallan/signum/internal/services/taskrunner"
	"github.com/bobmcallan/signum/internal/storage/postgres"
	"github.com/bobmcallan/signum/internal/storage/rediscache"
)

// App holds all initialized services and clients
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	Broker      interfaces.BrokerClient
	Progress    interfaces.ProgressBroadcaster
	Collector   interfaces.CollectorService
	Analyzer    interfaces.AnalyzerService
	Tasks       interfaces.TaskService
	StartupTime time.Time

	runner *taskrunner.Runner
}

// getBinaryDir returns the directory containing the executable
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes the full service graph.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()
	binDir := getBinaryDir()

	// Config path: argument, SIGNUM_CONFIG, binary dir, then dev fallback
	if configPath == "" {
		configPath = os.Getenv("SIGNUM_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "signum.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/signum.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager, err := postgres.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var progress interfaces.ProgressBroadcaster
	if config.Redis.Enabled() {
		progress, err = rediscache.NewBroadcaster(logger, config.Redis.URL)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable; using in-process progress events")
			progress = rediscache.NewMemoryBroadcaster()
		}
	} else {
		progress = rediscache.NewMemoryBroadcaster()
	}

	broker := kis.NewClient(config.Clients.KIS.AppKey, config.Clients.KIS.AppSecret,
		kis.WithMock(config.Clients.KIS.IsMock),
		kis.WithLogger(logger),
		kis.WithRateLimit(config.Clients.KIS.RateLimit),
		kis.WithTimeout(config.Clients.KIS.GetTimeout()),
		kis.WithTokenStore(storageManager.Tokens()),
	)

	collectorService := collector.NewService(storageManager, broker, progress, logger, config)
	analyzerService := analyzer.NewService(storageManager, progress, logger)
	runner := taskrunner.NewRunner(storageManager, collectorService, analyzerService, logger, config)

	a := &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		Broker:      broker,
		Progress:    progress,
		Collector:   collectorService,
		Analyzer:    analyzerService,
		Tasks:       runner,
		StartupTime: startupStart,
		runner:      runner,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")
	return a, nil
}

// Start runs the startup sweep and launches the auto-collection
// watcher when enabled.
func (a *App) Start(ctx context.Context) error {
	if _, err := a.Tasks.SweepStale(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Startup sweep failed")
	}
	a.runner.StartWatcher()
	return nil
}

// Close releases all resources.
// Shutdown order: stop task drivers, close progress, close storage.
func (a *App) Close() {
	if a.runner != nil {
		a.runner.Stop()
		a.runner = nil
	}
	if a.Progress != nil {
		a.Progress.Close()
		a.Progress = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
