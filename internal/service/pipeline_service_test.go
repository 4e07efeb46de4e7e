package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fin-analyzer/internal/models"
	"fin-analyzer/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryStore mirrors the compare-and-set semantics of the Postgres repository.
type memoryStore struct {
	mu          sync.Mutex
	docs        map[uuid.UUID]models.Document
	results     map[uuid.UUID]*models.AnalysisResult
	failures    map[uuid.UUID][]*models.ExecutionError
	transitions int

	completeErr error
	failErr     error
	// claimGate, when set, blocks every pending->extracting transition until closed.
	claimGate chan struct{}
}

func newMemoryStore(docs ...models.Document) *memoryStore {
	s := &memoryStore{
		docs:     make(map[uuid.UUID]models.Document),
		results:  make(map[uuid.UUID]*models.AnalysisResult),
		failures: make(map[uuid.UUID][]*models.ExecutionError),
	}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (s *memoryStore) TransitionStatus(_ context.Context, id uuid.UUID, from, to models.DocumentStatus) error {
	if s.claimGate != nil && from == models.DocumentStatusPending {
		<-s.claimGate
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cas(id, from, to)
}

func (s *memoryStore) CompleteWithResult(_ context.Context, result *models.AnalysisResult) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cas(result.DocumentID, models.DocumentStatusAnalyzing, models.DocumentStatusCompleted); err != nil {
		return err
	}
	s.results[result.DocumentID] = result
	return nil
}

func (s *memoryStore) FailWithError(_ context.Context, from models.DocumentStatus, execErr *models.ExecutionError) error {
	if s.failErr != nil {
		return s.failErr
	}
	if !from.CanTransitionTo(models.DocumentStatusFailed) {
		return fmt.Errorf("illegal transition %s -> failed", from)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cas(execErr.DocumentID, from, models.DocumentStatusFailed); err != nil {
		return err
	}
	s.failures[execErr.DocumentID] = append(s.failures[execErr.DocumentID], execErr)
	return nil
}

func (s *memoryStore) cas(id uuid.UUID, from, to models.DocumentStatus) error {
	d, ok := s.docs[id]
	if !ok || d.Status != from {
		return repository.ErrStatusConflict
	}
	d.Status = to
	s.docs[id] = d
	s.transitions++
	return nil
}

func (s *memoryStore) status(id uuid.UUID) models.DocumentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[id].Status
}

type stubExtractor struct {
	text  string
	err   error
	calls atomic.Int32
	wait  bool
}

func (e *stubExtractor) Extract(ctx context.Context, _ string) (string, error) {
	e.calls.Add(1)
	if e.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return e.text, e.err
}

type stubAnalyzer struct {
	out  *AnalysisOutput
	err  error
	seen string
	wait bool
}

func (a *stubAnalyzer) Analyze(ctx context.Context, text string) (*AnalysisOutput, error) {
	a.seen = text
	if a.wait {
		<-ctx.Done()
		return nil, fmt.Errorf("gigachat: %w", ctx.Err())
	}
	return a.out, a.err
}

func pendingDocument(owner uuid.UUID) models.Document {
	return models.Document{
		ID:      uuid.New(),
		OwnerID: owner,
		Title:   "January statement",
		BlobRef: testBlobRef,
		Status:  models.DocumentStatusPending,
	}
}

const testBlobRef = "7d444840-9dc0-11d1-b245-5ffdce74fad2_0f8fad5b-d9cb-469f-a165-70867728950e.pdf"

func sampleOutput() *AnalysisOutput {
	return &AnalysisOutput{
		Record: &StructuredRecord{
			TotalSpent: 300,
			Transactions: []models.Transaction{
				{Date: "2025-01-10", Merchant: "Green Market", Amount: 120.5, Category: models.CategoryFood},
				{Date: "2025-01-05", Merchant: "Metro", Amount: 79.5, Category: models.CategoryTransport},
				{Date: "2025-01-12", Merchant: "Air Tickets", Amount: 100, Category: models.CategoryTravel},
			},
			Summary: "Mostly food.",
			Advice:  "Cook at home.",
		},
		Model:      "GigaChat-Pro",
		TokenUsage: 512,
	}
}

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ExtractTimeout: time.Second,
		AnalyzeTimeout: time.Second,
		PersistTimeout: time.Second,
	}
}

func TestPipelineRunCompletes(t *testing.T) {
	owner := uuid.New()
	doc := pendingDocument(owner)
	store := newMemoryStore(doc)
	analyzer := &stubAnalyzer{out: sampleOutput()}
	p := NewPipelineService(store, &stubExtractor{text: "GREEN MARKET 120.50"}, analyzer, testPipelineConfig(), zap.NewNop())

	res, err := p.Run(context.Background(), owner, doc.ID)
	require.NoError(t, err)
	require.Nil(t, res.Failure)
	require.Equal(t, models.DocumentStatusCompleted, res.Document.Status)
	require.Equal(t, models.DocumentStatusCompleted, store.status(doc.ID))
	require.Equal(t, "GREEN MARKET 120.50", analyzer.seen)

	stored := store.results[doc.ID]
	require.NotNil(t, stored)
	require.Equal(t, res.Result, stored)
	require.Equal(t, models.CategoryFood, stored.StructuredData.Category)
	require.Equal(t, 300.0, stored.StructuredData.TotalAmount)
	require.Len(t, stored.StructuredData.Items, 3)
	require.Equal(t, "GigaChat-Pro", stored.Metadata.ModelID)
	require.Equal(t, 512, stored.Metadata.TokenUsage)
	require.False(t, stored.Metadata.ProcessedAt.IsZero())
	require.Empty(t, store.failures[doc.ID])
	// pending->extracting->analyzing->completed
	require.Equal(t, 3, store.transitions)
}

func TestPipelineExtractionFailure(t *testing.T) {
	owner := uuid.New()
	doc := pendingDocument(owner)
	store := newMemoryStore(doc)
	analyzer := &stubAnalyzer{out: sampleOutput()}
	extractor := &stubExtractor{err: newPipelineError(models.ErrorCodeBlobNotFound, "statement file not found", nil)}
	p := NewPipelineService(store, extractor, analyzer, testPipelineConfig(), zap.NewNop())

	res, err := p.Run(context.Background(), owner, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	require.Equal(t, models.StepExtraction, res.Failure.Step)
	require.Equal(t, models.ErrorCodeBlobNotFound, res.Failure.Code)
	require.Equal(t, models.DocumentStatusFailed, store.status(doc.ID))
	require.Len(t, store.failures[doc.ID], 1)
	require.Empty(t, analyzer.seen)
	require.Nil(t, store.results[doc.ID])
}

func TestPipelineAnalysisFailureWritesNoResult(t *testing.T) {
	cases := map[string]struct {
		err  error
		code models.ErrorCode
	}{
		"malformed json": {newPipelineError(models.ErrorCodeModelMalformedJSON, "response is not valid JSON", nil), models.ErrorCodeModelMalformedJSON},
		"empty":          {newPipelineError(models.ErrorCodeModelEmptyResponse, "empty response", nil), models.ErrorCodeModelEmptyResponse},
		"plain error":    {errors.New("connection reset"), models.ErrorCodeModelCallFailed},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			owner := uuid.New()
			doc := pendingDocument(owner)
			store := newMemoryStore(doc)
			p := NewPipelineService(store, &stubExtractor{text: "text"}, &stubAnalyzer{err: tc.err}, testPipelineConfig(), zap.NewNop())

			res, err := p.Run(context.Background(), owner, doc.ID)
			require.NoError(t, err)
			require.Equal(t, models.StepAnalysis, res.Failure.Step)
			require.Equal(t, tc.code, res.Failure.Code)
			require.NotEmpty(t, res.Failure.Message)
			require.Equal(t, models.DocumentStatusFailed, store.status(doc.ID))
			require.Nil(t, store.results[doc.ID])
		})
	}
}

func TestPipelineAnalysisTimeout(t *testing.T) {
	owner := uuid.New()
	doc := pendingDocument(owner)
	store := newMemoryStore(doc)
	cfg := testPipelineConfig()
	cfg.AnalyzeTimeout = 20 * time.Millisecond
	p := NewPipelineService(store, &stubExtractor{text: "text"}, &stubAnalyzer{wait: true}, cfg, zap.NewNop())

	res, err := p.Run(context.Background(), owner, doc.ID)
	require.NoError(t, err)
	require.Equal(t, models.ErrorCodeModelCallFailed, res.Failure.Code)
	require.Contains(t, res.Failure.Message, "timed out")
	require.Equal(t, models.DocumentStatusFailed, store.status(doc.ID))
}

func TestPipelineExtractionTimeout(t *testing.T) {
	owner := uuid.New()
	doc := pendingDocument(owner)
	store := newMemoryStore(doc)
	cfg := testPipelineConfig()
	cfg.ExtractTimeout = 20 * time.Millisecond
	p := NewPipelineService(store, &stubExtractor{wait: true}, &stubAnalyzer{out: sampleOutput()}, cfg, zap.NewNop())

	res, err := p.Run(context.Background(), owner, doc.ID)
	require.NoError(t, err)
	require.Equal(t, models.StepExtraction, res.Failure.Step)
	require.Equal(t, models.ErrorCodeExtractionFailed, res.Failure.Code)
}

func TestPipelineFailureRecordedAfterCallerCancel(t *testing.T) {
	owner := uuid.New()
	doc := pendingDocument(owner)
	store := newMemoryStore(doc)
	p := NewPipelineService(store, &stubExtractor{wait: true}, &stubAnalyzer{}, testPipelineConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	claimed, err := p.Claim(ctx, owner, doc.ID)
	require.NoError(t, err)
	cancel()

	res, err := p.Resume(ctx, claimed)
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	require.Equal(t, models.DocumentStatusFailed, store.status(doc.ID))
}

func TestPipelinePersistenceFailure(t *testing.T) {
	owner := uuid.New()
	doc := pendingDocument(owner)
	store := newMemoryStore(doc)
	store.completeErr = errors.New("connection refused")
	p := NewPipelineService(store, &stubExtractor{text: "text"}, &stubAnalyzer{out: sampleOutput()}, testPipelineConfig(), zap.NewNop())

	res, err := p.Run(context.Background(), owner, doc.ID)
	require.NoError(t, err)
	require.Equal(t, models.ErrorCodePersistenceFailed, res.Failure.Code)
	require.Equal(t, models.StepAnalysis, res.Failure.Step)
	require.Equal(t, models.DocumentStatusFailed, store.status(doc.ID))
	require.Nil(t, store.results[doc.ID])
}

func TestPipelineFailureWriteFailsLeavesStatus(t *testing.T) {
	owner := uuid.New()
	doc := pendingDocument(owner)
	store := newMemoryStore(doc)
	store.completeErr = errors.New("connection refused")
	store.failErr = errors.New("connection refused")
	p := NewPipelineService(store, &stubExtractor{text: "text"}, &stubAnalyzer{out: sampleOutput()}, testPipelineConfig(), zap.NewNop())

	res, err := p.Run(context.Background(), owner, doc.ID)
	require.Error(t, err)
	require.Nil(t, res)
	require.Equal(t, models.DocumentStatusAnalyzing, store.status(doc.ID))
}

func TestPipelineClaimRejections(t *testing.T) {
	owner := uuid.New()
	completed := pendingDocument(owner)
	completed.Status = models.DocumentStatusCompleted
	pending := pendingDocument(owner)
	store := newMemoryStore(completed, pending)
	extractor := &stubExtractor{text: "text"}
	p := NewPipelineService(store, extractor, &stubAnalyzer{out: sampleOutput()}, testPipelineConfig(), zap.NewNop())

	_, err := p.Run(context.Background(), owner, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	_, err = p.Run(context.Background(), uuid.New(), pending.ID)
	require.ErrorIs(t, err, ErrNotAuthorized)
	require.Equal(t, models.DocumentStatusPending, store.status(pending.ID))

	_, err = p.Run(context.Background(), owner, completed.ID)
	require.ErrorIs(t, err, ErrAlreadyProcessing)
	require.Equal(t, models.DocumentStatusCompleted, store.status(completed.ID))

	require.Zero(t, extractor.calls.Load())
}

func TestPipelineConcurrentClaimsOneWinner(t *testing.T) {
	owner := uuid.New()
	doc := pendingDocument(owner)
	store := newMemoryStore(doc)
	store.claimGate = make(chan struct{})
	extractor := &stubExtractor{text: "text"}
	p := NewPipelineService(store, extractor, &stubAnalyzer{out: sampleOutput()}, testPipelineConfig(), zap.NewNop())

	const triggers = 8
	var (
		wg        sync.WaitGroup
		completed atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Run(context.Background(), owner, doc.ID)
			switch {
			case errors.Is(err, ErrAlreadyProcessing):
				rejected.Add(1)
			case err == nil && res.Result != nil:
				completed.Add(1)
			}
		}()
	}

	// every trigger has read the document as pending before any CAS runs
	time.Sleep(50 * time.Millisecond)
	close(store.claimGate)
	wg.Wait()

	require.EqualValues(t, 1, completed.Load())
	require.EqualValues(t, triggers-1, rejected.Load())
	require.EqualValues(t, 1, extractor.calls.Load())
	require.Equal(t, models.DocumentStatusCompleted, store.status(doc.ID))
	require.Empty(t, store.failures[doc.ID])
}

func TestPipelineAbandon(t *testing.T) {
	owner := uuid.New()
	doc := pendingDocument(owner)
	store := newMemoryStore(doc)
	p := NewPipelineService(store, &stubExtractor{}, &stubAnalyzer{}, testPipelineConfig(), zap.NewNop())

	claimed, err := p.Claim(context.Background(), owner, doc.ID)
	require.NoError(t, err)

	res, err := p.Abandon(context.Background(), claimed, errors.New("queue is full"))
	require.NoError(t, err)
	require.Equal(t, models.ErrorCodeExtractionFailed, res.Failure.Code)
	require.Contains(t, res.Failure.Message, "queue is full")
	require.Equal(t, models.DocumentStatusFailed, store.status(doc.ID))
}

func TestPipelineResumeRequiresClaim(t *testing.T) {
	doc := pendingDocument(uuid.New())
	p := NewPipelineService(newMemoryStore(doc), &stubExtractor{}, &stubAnalyzer{}, testPipelineConfig(), zap.NewNop())

	_, err := p.Resume(context.Background(), &doc)
	require.Error(t, err)
}
