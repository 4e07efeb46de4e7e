package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fin-analyzer/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var documentColumns = []string{"id", "owner_id", "title", "blob_ref", "status", "created_at", "updated_at"}

type DocumentRepository struct {
	db     DB
	logger *zap.Logger
}

func NewDocumentRepository(db DB, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := squirrel.Insert("documents").
		Columns(documentColumns...).
		Values(doc.ID, doc.OwnerID, doc.Title, doc.BlobRef, doc.Status, doc.CreatedAt, doc.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == documentsBlobRefUnique {
		return ErrBlobRefInUse
	}
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := squirrel.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var doc models.Document
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&doc.ID, &doc.OwnerID, &doc.Title, &doc.BlobRef, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	return &doc, nil
}

// ListByOwner returns the owner's documents, newest first.
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Document, error) {
	query := squirrel.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar)

	return r.list(ctx, query)
}

// ListByStatus returns documents in the given status, oldest first.
func (r *DocumentRepository) ListByStatus(ctx context.Context, status models.DocumentStatus, limit int) ([]*models.Document, error) {
	query := squirrel.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"status": status}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	return r.list(ctx, query)
}

func (r *DocumentRepository) list(ctx context.Context, query squirrel.SelectBuilder) ([]*models.Document, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	documents := make([]*models.Document, 0)
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(
			&doc.ID, &doc.OwnerID, &doc.Title, &doc.BlobRef, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		documents = append(documents, &doc)
	}

	return documents, rows.Err()
}

// TransitionStatus moves a document from one status to another only if it is
// still in the expected status. A lost race yields ErrStatusConflict.
func (r *DocumentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.DocumentStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal status transition %s -> %s", from, to)
	}
	return casStatus(ctx, r.db, id, from, to)
}

// CompleteWithResult stores the analysis result and marks the document completed
// in one transaction. The document must currently be analyzing.
func (r *DocumentRepository) CompleteWithResult(ctx context.Context, result *models.AnalysisResult) error {
	structured, err := json.Marshal(result.StructuredData)
	if err != nil {
		return fmt.Errorf("failed to encode structured data: %w", err)
	}

	insert := squirrel.Insert("analysis_results").
		Columns("id", "document_id", "summary", "structured_data", "model_id", "token_usage", "processed_at").
		Values(result.ID, result.DocumentID, result.Summary, structured,
			result.Metadata.ModelID, result.Metadata.TokenUsage, result.Metadata.ProcessedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := insert.ToSql()
	if err != nil {
		return err
	}

	return inTx(ctx, r.db, r.logger, func(tx pgx.Tx) error {
		if err := casStatus(ctx, tx, result.DocumentID, models.DocumentStatusAnalyzing, models.DocumentStatusCompleted); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("failed to insert analysis result: %w", err)
		}
		return nil
	})
}

// FailWithError appends an execution error and marks the document failed in one
// transaction. The document must currently be in status from.
func (r *DocumentRepository) FailWithError(ctx context.Context, from models.DocumentStatus, execErr *models.ExecutionError) error {
	if !from.CanTransitionTo(models.DocumentStatusFailed) {
		return fmt.Errorf("illegal status transition %s -> %s", from, models.DocumentStatusFailed)
	}

	insert := squirrel.Insert("execution_errors").
		Columns("id", "document_id", "step", "code", "message", "created_at").
		Values(execErr.ID, execErr.DocumentID, execErr.Step, execErr.Code, execErr.Message, execErr.Timestamp).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := insert.ToSql()
	if err != nil {
		return err
	}

	return inTx(ctx, r.db, r.logger, func(tx pgx.Tx) error {
		if err := casStatus(ctx, tx, execErr.DocumentID, from, models.DocumentStatusFailed); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("failed to insert execution error: %w", err)
		}
		return nil
	})
}

// Delete removes a document with its analysis result and execution errors.
// Documents with a run in flight are left alone and yield ErrStatusConflict.
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return inTx(ctx, r.db, r.logger, func(tx pgx.Tx) error {
		for _, table := range []string{"analysis_results", "execution_errors"} {
			sql, args, err := squirrel.Delete(table).
				Where(squirrel.Eq{"document_id": id}).
				PlaceholderFormat(squirrel.Dollar).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, sql, args...); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
		}

		sql, args, err := squirrel.Delete("documents").
			Where(squirrel.Eq{"id": id}).
			Where(squirrel.NotEq{"status": []string{
				string(models.DocumentStatusExtracting),
				string(models.DocumentStatusAnalyzing),
			}}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStatusConflict
		}
		return nil
	})
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func casStatus(ctx context.Context, db execer, id uuid.UUID, from, to models.DocumentStatus) error {
	sql, args, err := squirrel.Update("documents").
		Set("status", to).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id, "status": from}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}
