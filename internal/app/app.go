// Package app wires configuration, storage, services, the dispatcher,
// and the HTTP handlers into one composition root shared by the server
// and worker binaries.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/common"
	"github.com/ternarybob/reelscan/internal/dispatch"
	"github.com/ternarybob/reelscan/internal/handlers"
	"github.com/ternarybob/reelscan/internal/interfaces"
	"github.com/ternarybob/reelscan/internal/services/analyzer"
	"github.com/ternarybob/reelscan/internal/services/fetcher"
	"github.com/ternarybob/reelscan/internal/services/frames"
	"github.com/ternarybob/reelscan/internal/services/pipeline"
	"github.com/ternarybob/reelscan/internal/storage"
	"github.com/ternarybob/reelscan/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Processing services
	Fetcher  interfaces.MediaFetcher
	Frames   interfaces.FrameExtractor
	Analyzer interfaces.Analyzer
	Pipeline interfaces.Pipeline

	Dispatcher *dispatch.Dispatcher

	// HTTP handlers
	VideoHandler  *handlers.VideoHandler
	CacheHandler  *handlers.CacheHandler
	HealthHandler *handlers.HealthHandler
}

// New builds the full application from configuration.
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := storage.NewStorageManager(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	frameExtractor := frames.NewExtractor(&config.Frames, logger)
	mediaFetcher := fetcher.NewService(&config.Scraper, logger)

	llmAnalyzer, err := analyzer.NewAnalyzer(ctx, config, frameExtractor, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize analyzer: %w", err)
	}

	processPipeline := pipeline.NewService(
		mediaFetcher,
		frameExtractor,
		llmAnalyzer,
		storageManager.CacheStorage(),
		config.CacheTTL(),
		logger,
	)

	dispatcher := dispatch.NewDispatcher(
		storageManager.CacheStorage(),
		storageManager.JobStorage(),
		processPipeline,
		config.Dispatch.MaxDirect,
		config.DirectTimeout(),
		logger,
	)

	app := &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		Fetcher:        mediaFetcher,
		Frames:         frameExtractor,
		Analyzer:       llmAnalyzer,
		Pipeline:       processPipeline,
		Dispatcher:     dispatcher,
		VideoHandler:   handlers.NewVideoHandler(dispatcher, logger),
		CacheHandler:   handlers.NewCacheHandler(storageManager.CacheStorage(), config.Cache.SampleLimit, logger),
		HealthHandler:  handlers.NewHealthHandler(dispatcher, logger),
	}
	return app, nil
}

// WorkerOptions maps configuration to the worker pool settings.
func (a *App) WorkerOptions(workerID string) worker.Options {
	return worker.Options{
		WorkerID:        workerID,
		MaxConcurrency:  a.Config.Worker.Concurrency,
		PollInterval:    a.Config.PollInterval(),
		MaxBackoff:      a.Config.MaxBackoff(),
		ShutdownTimeout: a.Config.ShutdownTimeout(),
		CacheTTL:        a.Config.CacheTTL(),
		SweepInterval:   a.Config.SweepInterval(),
		GCRetention:     a.Config.GCRetention(),
		GCBatchSize:     a.Config.GC.BatchSize,
		ReapStaleAfter:  a.Config.ReapStaleAfter(),
	}
}

// NewWorkerPool creates a queue worker over the app's shared services.
func (a *App) NewWorkerPool(workerID string) *worker.Pool {
	return worker.NewPool(
		a.StorageManager.JobStorage(),
		a.StorageManager.CacheStorage(),
		a.Pipeline,
		a.WorkerOptions(workerID),
		a.Logger,
	)
}

// Cleanup releases application resources.
func (a *App) Cleanup() {
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
}
