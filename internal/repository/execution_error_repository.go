package repository

import (
	"context"

	"fin-analyzer/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ExecutionErrorRepository struct {
	db     DB
	logger *zap.Logger
}

func NewExecutionErrorRepository(db DB, logger *zap.Logger) *ExecutionErrorRepository {
	return &ExecutionErrorRepository{
		db:     db,
		logger: logger,
	}
}

// ListByDocumentID returns the failure trail of a document, oldest first.
func (r *ExecutionErrorRepository) ListByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*models.ExecutionError, error) {
	query := squirrel.Select("id", "document_id", "step", "code", "message", "created_at").
		From("execution_errors").
		Where(squirrel.Eq{"document_id": documentID}).
		OrderBy("created_at ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	execErrors := make([]*models.ExecutionError, 0)
	for rows.Next() {
		var e models.ExecutionError
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Step, &e.Code, &e.Message, &e.Timestamp); err != nil {
			return nil, err
		}
		execErrors = append(execErrors, &e)
	}

	return execErrors, rows.Err()
}
