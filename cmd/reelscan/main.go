package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/app"
	"github.com/ternarybob/reelscan/internal/common"
	"github.com/ternarybob/reelscan/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	serverPort  = flag.Int("port", 0, "Server port (overrides config)")
	serverHost  = flag.String("host", "", "Server host (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Reelscan version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("reelscan.toml"); err == nil {
			configFiles = append(configFiles, "reelscan.toml")
		} else if _, err := os.Stat("deployments/local/reelscan.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/reelscan.toml")
		}
	}

	// Startup order: config (defaults -> files -> env), CLI overrides,
	// logger, banner.
	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *serverPort, *serverHost)

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())
	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	logger.Info().
		Strs("config_files", configFiles).
		Int("port", config.Server.Port).
		Str("storage", config.Storage.Backend).
		Int("embedded_workers", config.Server.EmbeddedWorkers).
		Msg("Application configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Cleanup()

	// Embedded workers drain the queue from inside the server process.
	workerDone := make(chan struct{})
	if n := config.Server.EmbeddedWorkers; n > 0 {
		go func() {
			defer close(workerDone)
			runEmbeddedWorkers(ctx, application, n)
		}()
	} else {
		close(workerDone)
	}

	srv := server.New(application)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Fatal().Str("panic", fmt.Sprintf("%v", r)).Msg("Server goroutine panicked")
			}
		}()
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Interrupt signal received")

	// Stop workers first so in-flight jobs drain, then close the HTTP
	// listener.
	cancel()
	<-workerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().Msg("Server stopped")
}

// runEmbeddedWorkers runs n worker pools until ctx is cancelled.
func runEmbeddedWorkers(ctx context.Context, application *app.App, n int) {
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		workerID := fmt.Sprintf("%s-embedded-%d", common.WorkerID(), i)
		pool := application.NewWorkerPool(workerID)
		go func() {
			defer func() { done <- struct{}{} }()
			pool.Run(ctx)
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
}
