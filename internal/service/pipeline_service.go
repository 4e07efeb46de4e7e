package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fin-analyzer/internal/models"
	"fin-analyzer/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentStore is the persistence the pipeline needs. Every status change is
// a compare-and-set that fails with repository.ErrStatusConflict.
type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.DocumentStatus) error
	CompleteWithResult(ctx context.Context, result *models.AnalysisResult) error
	FailWithError(ctx context.Context, from models.DocumentStatus, execErr *models.ExecutionError) error
}

type TextExtractor interface {
	Extract(ctx context.Context, blobRef string) (string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, text string) (*AnalysisOutput, error)
}

type PipelineConfig struct {
	ExtractTimeout time.Duration
	AnalyzeTimeout time.Duration
	// PersistTimeout bounds terminal writes, which run detached from the caller's cancellation.
	PersistTimeout time.Duration
}

// RunResult is the outcome of a run that reached a terminal status.
// Exactly one of Result and Failure is set.
type RunResult struct {
	Document *models.Document
	Result   *models.AnalysisResult
	Failure  *models.ExecutionError
}

// PipelineService drives a document through
// pending -> extracting -> analyzing -> completed | failed.
type PipelineService struct {
	store     DocumentStore
	extractor TextExtractor
	analyzer  Analyzer
	cfg       PipelineConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewPipelineService(store DocumentStore, extractor TextExtractor, analyzer Analyzer, cfg PipelineConfig, logger *zap.Logger) *PipelineService {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	return &PipelineService{
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Claim moves a pending document owned by ownerID into extracting. Of several
// concurrent claims exactly one succeeds; the others get ErrAlreadyProcessing
// and change nothing.
func (s *PipelineService) Claim(ctx context.Context, ownerID, documentID uuid.UUID) (*models.Document, error) {
	doc, err := s.store.GetByID(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newPipelineError(models.ErrorCodePersistenceFailed, "failed to load document", err)
	}
	if doc.OwnerID != ownerID {
		return nil, ErrNotAuthorized
	}
	if doc.Status != models.DocumentStatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrAlreadyProcessing, doc.Status)
	}

	err = s.store.TransitionStatus(ctx, doc.ID, models.DocumentStatusPending, models.DocumentStatusExtracting)
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil, ErrAlreadyProcessing
	}
	if err != nil {
		return nil, newPipelineError(models.ErrorCodePersistenceFailed, "failed to claim document", err)
	}

	doc.Status = models.DocumentStatusExtracting
	s.logTransition(doc.ID, models.DocumentStatusPending, models.DocumentStatusExtracting)
	return doc, nil
}

// Run claims and fully processes a document. Stage failures are recorded on
// the document and reported through RunResult.Failure, not as an error.
func (s *PipelineService) Run(ctx context.Context, ownerID, documentID uuid.UUID) (*RunResult, error) {
	doc, err := s.Claim(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	return s.Resume(ctx, doc)
}

// Resume continues a document previously returned by Claim.
func (s *PipelineService) Resume(ctx context.Context, doc *models.Document) (*RunResult, error) {
	if doc.Status != models.DocumentStatusExtracting {
		return nil, fmt.Errorf("cannot resume document %s in status %s", doc.ID, doc.Status)
	}
	log := s.logger.With(zap.String("document_id", doc.ID.String()))

	extractCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtractTimeout)
	text, err := s.extractor.Extract(extractCtx, doc.BlobRef)
	cancel()
	if err != nil {
		return s.fail(ctx, doc, models.StepExtraction, classifyExtractionError(err))
	}
	log.Info("Extraction finished", zap.Int("text_length", len(text)))

	err = s.store.TransitionStatus(ctx, doc.ID, models.DocumentStatusExtracting, models.DocumentStatusAnalyzing)
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil, fmt.Errorf("document %s left extracting unexpectedly: %w", doc.ID, err)
	}
	if err != nil {
		return s.fail(ctx, doc, models.StepExtraction,
			newPipelineError(models.ErrorCodePersistenceFailed, "failed to record extraction", err))
	}
	doc.Status = models.DocumentStatusAnalyzing
	s.logTransition(doc.ID, models.DocumentStatusExtracting, models.DocumentStatusAnalyzing)

	analyzeCtx, cancel := context.WithTimeout(ctx, s.cfg.AnalyzeTimeout)
	out, err := s.analyzer.Analyze(analyzeCtx, text)
	cancel()
	if err != nil {
		return s.fail(ctx, doc, models.StepAnalysis, classifyAnalysisError(err))
	}

	result := s.buildResult(doc, out)

	persistCtx, cancel := s.detached(ctx)
	err = s.store.CompleteWithResult(persistCtx, result)
	cancel()
	if err != nil {
		log.Error("Failed to persist analysis result", zap.Error(err))
		return s.fail(ctx, doc, models.StepAnalysis,
			newPipelineError(models.ErrorCodePersistenceFailed, "failed to store analysis result", err))
	}

	doc.Status = models.DocumentStatusCompleted
	s.logTransition(doc.ID, models.DocumentStatusAnalyzing, models.DocumentStatusCompleted)
	return &RunResult{Document: doc, Result: result}, nil
}

// Abandon fails a claimed document that could not be handed to a worker.
func (s *PipelineService) Abandon(ctx context.Context, doc *models.Document, cause error) (*RunResult, error) {
	return s.fail(ctx, doc, models.StepExtraction,
		newPipelineError(models.ErrorCodeExtractionFailed, "document could not be scheduled for extraction", cause))
}

// fail records the stage failure and moves the document to failed in one
// write. If that write fails too, the status is left unchanged and the
// error is returned.
func (s *PipelineService) fail(ctx context.Context, doc *models.Document, step models.Step, perr *PipelineError) (*RunResult, error) {
	from := doc.Status
	execErr := &models.ExecutionError{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		Step:       step,
		Code:       perr.Code,
		Message:    perr.Detail(),
		Timestamp:  s.now(),
	}

	writeCtx, cancel := s.detached(ctx)
	defer cancel()

	if err := s.store.FailWithError(writeCtx, from, execErr); err != nil {
		s.logger.Error("Failed to record pipeline failure",
			zap.String("document_id", doc.ID.String()),
			zap.String("step", string(step)),
			zap.String("code", string(perr.Code)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to record %s failure (%s): %w", step, perr.Code, err)
	}

	doc.Status = models.DocumentStatusFailed
	s.logger.Warn("Document processing failed",
		zap.String("document_id", doc.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(models.DocumentStatusFailed)),
		zap.String("step", string(step)),
		zap.String("code", string(perr.Code)),
		zap.String("message", execErr.Message),
	)
	return &RunResult{Document: doc, Failure: execErr}, nil
}

func (s *PipelineService) buildResult(doc *models.Document, out *AnalysisOutput) *models.AnalysisResult {
	record := out.Record
	return &models.AnalysisResult{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		Summary:    record.Summary,
		StructuredData: models.StructuredData{
			TotalAmount: record.TotalSpent,
			Category:    DominantCategory(record.Transactions),
			Items:       record.Transactions,
			Advice:      record.Advice,
		},
		Metadata: models.AnalysisMetadata{
			ModelID:     out.Model,
			TokenUsage:  out.TokenUsage,
			ProcessedAt: s.now(),
		},
	}
}

func (s *PipelineService) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
}

func (s *PipelineService) logTransition(id uuid.UUID, from, to models.DocumentStatus) {
	s.logger.Info("Document status changed",
		zap.String("document_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

func classifyExtractionError(err error) *PipelineError {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newPipelineError(models.ErrorCodeExtractionFailed, "extraction timed out", err)
	}
	return newPipelineError(models.ErrorCodeExtractionFailed, "extraction failed", err)
}

func classifyAnalysisError(err error) *PipelineError {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newPipelineError(models.ErrorCodeModelCallFailed, "reasoning engine timed out", err)
	}
	return newPipelineError(models.ErrorCodeModelCallFailed, "reasoning engine call failed", err)
}
