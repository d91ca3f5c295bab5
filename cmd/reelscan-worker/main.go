package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/app"
	"github.com/ternarybob/reelscan/internal/common"
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
	workerID    = flag.String("worker-id", "", "Worker identity (defaults to worker-<hostname>-<pid>)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Reelscan worker version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("reelscan.toml"); err == nil {
			configFiles = append(configFiles, "reelscan.toml")
		} else if _, err := os.Stat("deployments/local/reelscan.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/reelscan.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())
	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	id := *workerID
	if id == "" {
		id = common.WorkerID()
	}

	logger.Info().
		Strs("config_files", configFiles).
		Str("worker_id", id).
		Str("storage", config.Storage.Backend).
		Int("concurrency", config.Worker.Concurrency).
		Msg("Worker configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Cleanup()

	pool := application.NewWorkerPool(id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Interrupt signal received, draining worker")

	cancel()
	<-done

	logger.Info().Msg("Worker stopped")
}
