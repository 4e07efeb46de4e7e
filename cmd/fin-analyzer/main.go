package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fin-analyzer/internal/api"
	"fin-analyzer/internal/api/handlers"
	"fin-analyzer/internal/app"
	"fin-analyzer/internal/service"
	"fin-analyzer/internal/worker"
	"fin-analyzer/pkg/auth"
	"fin-analyzer/pkg/blob"
	"fin-analyzer/pkg/config"
	"fin-analyzer/pkg/logger"

	"go.uber.org/zap"
)

// @title Fin Analyzer API
// @version 1.0
// @description Financial statement analysis: upload a statement, run extraction and analysis, read the structured result.

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting fin-analyzer service",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("blob_backend", cfg.Blob.Backend),
	)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	queue := worker.NewQueue(a.Pipeline, logger.Component("worker"),
		worker.WithWorkers(cfg.Pipeline.Workers),
		worker.WithQueueSize(cfg.Pipeline.QueueSize),
		worker.WithProcessTimeout(cfg.Pipeline.ExtractTimeout+cfg.Pipeline.AnalyzeTimeout+2*cfg.Pipeline.PersistTimeout),
	)

	docService := service.NewDocumentService(a.Documents, a.Analyses, a.ExecutionErrors, a.Blobs, a.Pipeline, queue, logger.Component("documents"))
	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration)

	h := api.Handlers{
		Document: handlers.NewDocumentHandler(docService, appLogger),
		Health:   handlers.NewHealthHandler(a.DB, appLogger),
	}
	if local, ok := a.Blobs.(*blob.LocalStore); ok {
		h.Blob = handlers.NewBlobHandler(local, appLogger)
	}

	// Setup router
	server := api.SetupRouter(h, jwtManager, cfg.Server, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := server.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}

	// documents still queued finish or fail before the pool closes
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ExtractTimeout+cfg.Pipeline.AnalyzeTimeout)
	defer cancel()
	if err := queue.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Processing queue did not drain", zap.Error(err))
	}
}
