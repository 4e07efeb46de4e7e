package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"fin-analyzer/internal/models"
	"fin-analyzer/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type PendingLister interface {
	ListByStatus(ctx context.Context, status models.DocumentStatus, limit int) ([]*models.Document, error)
}

type Runner interface {
	Run(ctx context.Context, ownerID, documentID uuid.UUID) (*service.RunResult, error)
}

type BatchSummary struct {
	Completed int
	Failed    int
	Skipped   int
	Errors    int
}

// RunPending processes up to limit pending documents, at most workers at a
// time. A document another process claims first is skipped. Run errors are
// counted and logged without stopping the batch.
func RunPending(ctx context.Context, lister PendingLister, runner Runner, workers, limit int, logger *zap.Logger) (BatchSummary, error) {
	docs, err := lister.ListByStatus(ctx, models.DocumentStatusPending, limit)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("failed to list pending documents: %w", err)
	}
	logger.Info("Processing pending documents", zap.Int("count", len(docs)), zap.Int("workers", workers))

	var completed, failed, skipped, errs atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, doc := range docs {
		g.Go(func() error {
			if gctx.Err() != nil {
				skipped.Add(1)
				return nil
			}

			res, err := runner.Run(gctx, doc.OwnerID, doc.ID)
			switch {
			case errors.Is(err, service.ErrAlreadyProcessing):
				skipped.Add(1)
			case err != nil:
				errs.Add(1)
				logger.Error("Run aborted", zap.String("document_id", doc.ID.String()), zap.Error(err))
			case res.Failure != nil:
				failed.Add(1)
			default:
				completed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := BatchSummary{
		Completed: int(completed.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
		Errors:    int(errs.Load()),
	}
	return summary, ctx.Err()
}
