package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"fin-analyzer/internal/dto"
	"fin-analyzer/internal/models"
	"fin-analyzer/internal/repository"
	"fin-analyzer/pkg/blob"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	maxTitleLength   = 255
)

var allowedExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".csv": true,
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type AnalysisReader interface {
	GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*models.AnalysisResult, error)
}

type ExecutionErrorReader interface {
	ListByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*models.ExecutionError, error)
}

// Claimer starts runs. *PipelineService implements it.
type Claimer interface {
	Claim(ctx context.Context, ownerID, documentID uuid.UUID) (*models.Document, error)
	Abandon(ctx context.Context, doc *models.Document, cause error) (*RunResult, error)
}

// Dispatcher runs claimed documents in the background.
type Dispatcher interface {
	Enqueue(ctx context.Context, doc *models.Document) error
}

type DocumentService struct {
	docRepo      DocumentRepository
	analysisRepo AnalysisReader
	errorRepo    ExecutionErrorReader
	blobs        blob.Store
	pipeline     Claimer
	dispatcher   Dispatcher
	logger       *zap.Logger
}

func NewDocumentService(
	docRepo DocumentRepository,
	analysisRepo AnalysisReader,
	errorRepo ExecutionErrorReader,
	blobs blob.Store,
	pipeline Claimer,
	dispatcher Dispatcher,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		docRepo:      docRepo,
		analysisRepo: analysisRepo,
		errorRepo:    errorRepo,
		blobs:        blobs,
		pipeline:     pipeline,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// RequestUpload reserves a blob reference and tells the client where to send the file.
func (s *DocumentService) RequestUpload(ctx context.Context, ownerID uuid.UUID, req *dto.RequestUploadRequest) (*dto.UploadURLResponse, error) {
	if err := validateFileName(req.FileName); err != nil {
		return nil, err
	}

	upload, err := s.blobs.IssueUpload(ctx, ownerID, req.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to issue upload url: %w", err)
	}

	return &dto.UploadURLResponse{
		BlobRef:   upload.Ref,
		UploadURL: upload.URL,
		Method:    upload.Method,
		Headers:   upload.Headers,
		ExpiresAt: upload.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// CommitUpload creates a pending document for a blob the client has uploaded.
func (s *DocumentService) CommitUpload(ctx context.Context, ownerID uuid.UUID, req *dto.CreateDocumentRequest) (*dto.DocumentResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, validationError("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, validationError("title must be at most %d characters", maxTitleLength)
	}
	if req.BlobRef == "" {
		return nil, validationError("blobRef is required")
	}
	if !blob.ValidRef(req.BlobRef) {
		return nil, validationError("blobRef is malformed")
	}
	if !blob.OwnedBy(req.BlobRef, ownerID) {
		return nil, fmt.Errorf("%w: blobRef was issued to another user", ErrNotAuthorized)
	}

	exists, err := s.blobs.Exists(ctx, req.BlobRef)
	if err != nil {
		return nil, fmt.Errorf("failed to check blob: %w", err)
	}
	if !exists {
		return nil, newPipelineError(models.ErrorCodeBlobNotFound, "uploaded file not found", blob.ErrNotFound)
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		BlobRef:   req.BlobRef,
		Status:    models.DocumentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrBlobRefInUse) {
			return nil, validationError("blobRef is already attached to a document")
		}
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.Info("Document created",
		zap.String("document_id", doc.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.String("blob_ref", doc.BlobRef),
	)
	return toDocumentResponse(doc), nil
}

// Upload stores the file and creates the document in one call.
func (s *DocumentService) Upload(ctx context.Context, ownerID uuid.UUID, file io.Reader, fileName, title string) (*dto.DocumentResponse, error) {
	if err := validateFileName(fileName); err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	}

	ref := blob.NewRef(ownerID, fileName)
	if err := s.blobs.Put(ctx, ref, file); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	doc, err := s.CommitUpload(ctx, ownerID, &dto.CreateDocumentRequest{Title: title, BlobRef: ref})
	if err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
			s.logger.Warn("Failed to remove orphaned blob", zap.String("blob_ref", ref), zap.Error(delErr))
		}
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) (*dto.DocumentListResponse, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	docs, err := s.docRepo.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	resp := &dto.DocumentListResponse{
		Documents: make([]dto.DocumentResponse, len(docs)),
		Limit:     limit,
		Offset:    offset,
	}
	for i, doc := range docs {
		resp.Documents[i] = *toDocumentResponse(doc)
	}
	return resp, nil
}

// Get returns the document with its analysis and failure trail.
func (s *DocumentService) Get(ctx context.Context, ownerID, documentID uuid.UUID) (*dto.DocumentDetailResponse, error) {
	doc, err := s.ownedDocument(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}

	resp := &dto.DocumentDetailResponse{Document: *toDocumentResponse(doc)}

	if doc.Status == models.DocumentStatusCompleted {
		result, err := s.analysisRepo.GetByDocumentID(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load analysis: %w", err)
		}
		resp.Analysis = toAnalysisResponse(result)
	}

	execErrs, err := s.errorRepo.ListByDocumentID(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution errors: %w", err)
	}
	resp.Errors = make([]dto.ExecutionErrorResponse, len(execErrs))
	for i, e := range execErrs {
		resp.Errors[i] = dto.ExecutionErrorResponse{
			Step:      string(e.Step),
			Code:      string(e.Code),
			Message:   e.Message,
			Timestamp: e.Timestamp.Format(time.RFC3339),
		}
	}

	return resp, nil
}

// Process claims a pending document and schedules it. The returned document
// is already in extracting.
func (s *DocumentService) Process(ctx context.Context, ownerID, documentID uuid.UUID) (*dto.DocumentResponse, error) {
	doc, err := s.pipeline.Claim(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.Enqueue(ctx, doc); err != nil {
		s.logger.Error("Failed to schedule document", zap.String("document_id", doc.ID.String()), zap.Error(err))
		if _, abandonErr := s.pipeline.Abandon(ctx, doc, err); abandonErr != nil {
			return nil, abandonErr
		}
		return nil, newPipelineError(models.ErrorCodeExtractionFailed, "document could not be scheduled", err)
	}

	return toDocumentResponse(doc), nil
}

// Delete removes a document that is not being processed, along with its
// analysis, failure records and file.
func (s *DocumentService) Delete(ctx context.Context, ownerID, documentID uuid.UUID) error {
	doc, err := s.ownedDocument(ctx, ownerID, documentID)
	if err != nil {
		return err
	}
	if doc.Status.InFlight() {
		return ErrDocumentBusy
	}

	err = s.docRepo.Delete(ctx, doc.ID)
	switch {
	case errors.Is(err, repository.ErrStatusConflict):
		return ErrDocumentBusy
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err := s.blobs.Delete(ctx, doc.BlobRef); err != nil {
		s.logger.Warn("Failed to delete blob", zap.String("blob_ref", doc.BlobRef), zap.Error(err))
	}

	s.logger.Info("Document deleted", zap.String("document_id", doc.ID.String()))
	return nil
}

// Export renders a completed analysis as XLSX and returns it with a file name.
func (s *DocumentService) Export(ctx context.Context, ownerID, documentID uuid.UUID) ([]byte, string, error) {
	doc, err := s.ownedDocument(ctx, ownerID, documentID)
	if err != nil {
		return nil, "", err
	}
	if doc.Status != models.DocumentStatusCompleted {
		return nil, "", ErrNotCompleted
	}

	result, err := s.analysisRepo.GetByDocumentID(ctx, doc.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load analysis: %w", err)
	}

	data, err := BuildWorkbook(doc, result)
	if err != nil {
		return nil, "", err
	}
	return data, doc.ID.String() + ".xlsx", nil
}

func (s *DocumentService) ownedDocument(ctx context.Context, ownerID, documentID uuid.UUID) (*models.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc.OwnerID != ownerID {
		return nil, ErrNotAuthorized
	}
	return doc, nil
}

func validateFileName(fileName string) error {
	if strings.TrimSpace(fileName) == "" {
		return validationError("fileName is required")
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedExtensions[ext] {
		return validationError("unsupported file type %q, expected .pdf, .txt or .csv", ext)
	}
	return nil
}

func toDocumentResponse(doc *models.Document) *dto.DocumentResponse {
	return &dto.DocumentResponse{
		ID:        doc.ID.String(),
		Title:     doc.Title,
		BlobRef:   doc.BlobRef,
		Status:    string(doc.Status),
		CreatedAt: doc.CreatedAt.Format(time.RFC3339),
		UpdatedAt: doc.UpdatedAt.Format(time.RFC3339),
	}
}

func toAnalysisResponse(result *models.AnalysisResult) *dto.AnalysisResponse {
	data := result.StructuredData
	derived := ComputeDerived(data.Items, data.TotalAmount)

	items := make([]dto.TransactionResponse, len(data.Items))
	for i, item := range data.Items {
		items[i] = dto.TransactionResponse{
			Date:     item.Date,
			Merchant: item.Merchant,
			Amount:   item.Amount,
			Category: string(item.Category),
		}
	}

	return &dto.AnalysisResponse{
		ID:                result.ID.String(),
		Summary:           result.Summary,
		TotalAmount:       data.TotalAmount,
		Category:          string(data.Category),
		Items:             items,
		Advice:            data.Advice,
		Period:            derived.Period,
		DayCount:          derived.DayCount,
		AverageDailySpent: derived.AverageDailySpent,
		ModelID:           result.Metadata.ModelID,
		TokenUsage:        result.Metadata.TokenUsage,
		ProcessedAt:       result.Metadata.ProcessedAt.Format(time.RFC3339),
	}
}
