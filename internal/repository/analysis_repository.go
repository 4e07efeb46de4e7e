package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"fin-analyzer/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AnalysisRepository struct {
	db     DB
	logger *zap.Logger
}

func NewAnalysisRepository(db DB, logger *zap.Logger) *AnalysisRepository {
	return &AnalysisRepository{
		db:     db,
		logger: logger,
	}
}

// GetByDocumentID returns ErrNotFound until the document has completed.
func (r *AnalysisRepository) GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*models.AnalysisResult, error) {
	query := squirrel.Select("id", "document_id", "summary", "structured_data", "model_id", "token_usage", "processed_at").
		From("analysis_results").
		Where(squirrel.Eq{"document_id": documentID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var (
		result     models.AnalysisResult
		structured []byte
	)
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&result.ID, &result.DocumentID, &result.Summary, &structured,
		&result.Metadata.ModelID, &result.Metadata.TokenUsage, &result.Metadata.ProcessedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	if err := json.Unmarshal(structured, &result.StructuredData); err != nil {
		return nil, fmt.Errorf("failed to decode structured data: %w", err)
	}

	return &result, nil
}
