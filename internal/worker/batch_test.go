package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fin-analyzer/internal/models"
	"fin-analyzer/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticLister struct {
	docs []*models.Document
	err  error
}

func (l staticLister) ListByStatus(_ context.Context, status models.DocumentStatus, limit int) ([]*models.Document, error) {
	if l.err != nil {
		return nil, l.err
	}
	if status != models.DocumentStatusPending {
		return nil, nil
	}
	if len(l.docs) > limit {
		return l.docs[:limit], nil
	}
	return l.docs, nil
}

type scriptedRunner struct {
	mu       sync.Mutex
	outcomes map[uuid.UUID]error
	failures map[uuid.UUID]bool
	active   atomic.Int32
	peak     atomic.Int32
}

func (r *scriptedRunner) Run(_ context.Context, ownerID, documentID uuid.UUID) (*service.RunResult, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	r.mu.Lock()
	err, fail := r.outcomes[documentID], r.failures[documentID]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if fail {
		return &service.RunResult{Failure: &models.ExecutionError{Code: models.ErrorCodeExtractionFailed}}, nil
	}
	return &service.RunResult{Result: &models.AnalysisResult{DocumentID: documentID}}, nil
}

func pendingDocs(n int) []*models.Document {
	docs := make([]*models.Document, n)
	for i := range docs {
		docs[i] = &models.Document{ID: uuid.New(), OwnerID: uuid.New(), Status: models.DocumentStatusPending}
	}
	return docs
}

func TestRunPendingSummarizes(t *testing.T) {
	docs := pendingDocs(6)
	runner := &scriptedRunner{
		outcomes: map[uuid.UUID]error{
			docs[0].ID: service.ErrAlreadyProcessing,
			docs[1].ID: errors.New("database is down"),
		},
		failures: map[uuid.UUID]bool{docs[2].ID: true},
	}

	summary, err := RunPending(context.Background(), staticLister{docs: docs}, runner, 2, 100, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, BatchSummary{Completed: 3, Failed: 1, Skipped: 1, Errors: 1}, summary)
	require.LessOrEqual(t, runner.peak.Load(), int32(2))
}

func TestRunPendingRespectsLimit(t *testing.T) {
	runner := &scriptedRunner{}

	summary, err := RunPending(context.Background(), staticLister{docs: pendingDocs(5)}, runner, 4, 3, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 3, summary.Completed)
}

func TestRunPendingListError(t *testing.T) {
	_, err := RunPending(context.Background(), staticLister{err: errors.New("boom")}, &scriptedRunner{}, 1, 10, zap.NewNop())
	require.ErrorContains(t, err, "failed to list pending documents")
}
