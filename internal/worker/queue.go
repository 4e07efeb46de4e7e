package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"fin-analyzer/internal/models"
	"fin-analyzer/internal/service"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("processing queue is shutting down")

// Processor continues a claimed document to a terminal status.
type Processor interface {
	Resume(ctx context.Context, doc *models.Document) (*service.RunResult, error)
}

// Queue runs claimed documents on a fixed pool of workers.
type Queue struct {
	proc    Processor
	logger  *zap.Logger
	workers int
	timeout time.Duration

	ch   chan *models.Document
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan *models.Document, n)
		}
	}
}

// WithProcessTimeout bounds one full run, extraction through persistence.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(proc Processor, logger *zap.Logger, opts ...Option) *Queue {
	q := &Queue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan *models.Document, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.run(i + 1)
		}
	})
}

func (q *Queue) run(workerID int) {
	defer q.wg.Done()
	log := q.logger.With(zap.Int("worker_id", workerID))
	log.Debug("Worker started")

	for doc := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		res, err := q.proc.Resume(ctx, doc)
		cancel()

		switch {
		case err != nil:
			log.Error("Processing aborted", zap.String("document_id", doc.ID.String()), zap.Error(err))
		case res.Failure != nil:
			log.Info("Processing finished with failure",
				zap.String("document_id", doc.ID.String()),
				zap.String("code", string(res.Failure.Code)),
			)
		default:
			log.Info("Processing finished", zap.String("document_id", doc.ID.String()))
		}
	}

	log.Debug("Worker stopped")
}

// Enqueue hands a claimed document to the pool. When the buffer is full it
// blocks until a slot frees up or ctx is done.
func (q *Queue) Enqueue(ctx context.Context, doc *models.Document) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.ch <- doc:
		q.logger.Debug("Queued document for processing", zap.String("document_id", doc.ID.String()))
		return nil
	default:
	}

	q.logger.Warn("Queue full, applying backpressure", zap.String("document_id", doc.ID.String()))
	select {
	case q.ch <- doc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting documents and waits for queued ones to finish.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		q.logger.Warn("Queue shutdown interrupted", zap.Error(ctx.Err()))
		return ctx.Err()
	case <-done:
		q.logger.Info("Queue drained")
		return nil
	}
}
