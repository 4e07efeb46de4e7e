// Package app wires the shared components used by the server and the batch command.
package app

import (
	"context"
	"fmt"

	"fin-analyzer/internal/repository"
	"fin-analyzer/internal/service"
	"fin-analyzer/pkg/blob"
	"fin-analyzer/pkg/config"
	"fin-analyzer/pkg/llm"
	"fin-analyzer/pkg/logger"
	"fin-analyzer/pkg/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *pgxpool.Pool
	Blobs  blob.Store

	Documents       *repository.DocumentRepository
	Analyses        *repository.AnalysisRepository
	ExecutionErrors *repository.ExecutionErrorRepository
	Pipeline        *service.PipelineService

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: appLogger}

	db, err := postgres.NewPool(ctx, &cfg.Database, logger.Component("postgres"))
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, func() error { db.Close(); return nil })

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db, logger.Component("migrate")); err != nil {
			a.Close()
			return nil, err
		}
	}

	blobs, closeBlobs, err := NewBlobStore(ctx, &cfg.Blob)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Blobs = blobs
	a.closers = append(a.closers, closeBlobs)

	completer, err := NewCompleter(ctx, &cfg.LLM, logger.Component("llm"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, completer.Close)

	llmService, err := service.NewLLMService(completer, logger.Component("analysis"))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Documents = repository.NewDocumentRepository(db, logger.Component("documents"))
	a.Analyses = repository.NewAnalysisRepository(db, logger.Component("analyses"))
	a.ExecutionErrors = repository.NewExecutionErrorRepository(db, logger.Component("execution_errors"))

	extractor := service.NewExtractorService(blobs, logger.Component("extractor"))
	a.Pipeline = service.NewPipelineService(a.Documents, extractor, llmService, service.PipelineConfig{
		ExtractTimeout: cfg.Pipeline.ExtractTimeout,
		AnalyzeTimeout: cfg.Pipeline.AnalyzeTimeout,
		PersistTimeout: cfg.Pipeline.PersistTimeout,
	}, logger.Component("pipeline"))

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil
}

// NewCompleter builds the configured reasoning engine provider.
func NewCompleter(ctx context.Context, cfg *config.LLMConfig, logger *zap.Logger) (llm.Completer, error) {
	switch cfg.Provider {
	case config.LLMProviderGigaChat:
		return llm.NewGigaChat(ctx, llm.GigaChatConfig{
			APIKey:             cfg.APIKey,
			Scope:              cfg.Scope,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Model:              cfg.Model,
			Temperature:        cfg.Temperature,
			Timeout:            cfg.Timeout,
			SystemInstruction:  service.SystemInstruction,
		}, logger)
	case config.LLMProviderVertex:
		return llm.NewVertex(ctx, llm.VertexConfig{
			ProjectID:         cfg.ProjectID,
			Region:            cfg.Region,
			Model:             cfg.Model,
			Temperature:       cfg.Temperature,
			Timeout:           cfg.Timeout,
			SystemInstruction: service.SystemInstruction,
		}, logger)
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// NewBlobStore builds the configured blob backend and a function releasing it.
func NewBlobStore(ctx context.Context, cfg *config.BlobConfig) (blob.Store, func() error, error) {
	switch cfg.Backend {
	case config.BlobBackendLocal:
		store, err := blob.NewLocalStore(cfg.LocalDir, cfg.PublicURL, cfg.UploadURLTTL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case config.BlobBackendGCS:
		store, err := blob.NewGCSStore(ctx, cfg.GCSBucket, cfg.UploadURLTTL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
}
