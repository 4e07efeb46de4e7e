package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fin-analyzer/internal/app"
	"fin-analyzer/internal/worker"
	"fin-analyzer/pkg/config"
	"fin-analyzer/pkg/logger"

	"go.uber.org/zap"
)

// process-pending runs every pending document once and exits.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	summary, err := worker.RunPending(ctx, a.Documents, a.Pipeline, cfg.Pipeline.Workers, cfg.Pipeline.BatchSize, logger.Component("batch"))
	if err != nil {
		appLogger.Error("Batch interrupted", zap.Error(err))
	}

	appLogger.Info("Batch finished",
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
	)
}
