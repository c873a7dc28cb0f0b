package importer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mfutil/mfutil-go/internal/monitoring"
)

// Job is one queued import
type Job struct {
	ID      string
	Request Request
	ctx     context.Context
	cancel  context.CancelFunc
}

// Result is the outcome of a job
type Result struct {
	JobID   string
	Summary *Summary
	Error   error
}

// JobHandler processes a job
type JobHandler func(ctx context.Context, job *Job) (*Summary, error)

// Worker runs import jobs one at a time on a dedicated goroutine. A drive
// serves one reader, so imports are never run concurrently.
type Worker struct {
	jobs    chan *Job
	results chan *Result
	active  sync.Map // map[string]*Job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	handler JobHandler
	logger  *zap.Logger
	mu      sync.RWMutex
	started bool
}

// NewWorker creates a worker for handler
func NewWorker(handler JobHandler, logger *zap.Logger) *Worker {
	return &Worker{
		jobs:    make(chan *Job, 16),
		results: make(chan *Result, 16),
		handler: handler,
		logger:  monitoring.OrNop(logger),
	}
}

// Start begins processing jobs
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("worker already started")
	}
	if w.handler == nil {
		return fmt.Errorf("job handler not set")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run()

	w.started = true
	return nil
}

func (w *Worker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("worker shutting down", zap.Error(w.ctx.Err()))
			return

		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			w.processJob(job)
		}
	}
}

func (w *Worker) processJob(job *Job) {
	w.active.Store(job.ID, job)
	defer w.active.Delete(job.ID)
	defer job.cancel()

	summary, err := w.handler(job.ctx, job)

	select {
	case w.results <- &Result{JobID: job.ID, Summary: summary, Error: err}:
	case <-w.ctx.Done():
	}
}

// Submit queues a job
func (w *Worker) Submit(job *Job) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.started {
		return fmt.Errorf("worker not started")
	}

	job.ctx, job.cancel = context.WithCancel(w.ctx)

	select {
	case w.jobs <- job:
		return nil
	case <-w.ctx.Done():
		job.cancel()
		return fmt.Errorf("worker is shutting down")
	}
}

// Results returns the results channel. It is closed by Stop.
func (w *Worker) Results() <-chan *Result {
	return w.results
}

// CancelJob cancels the context of a running job
func (w *Worker) CancelJob(jobID string) error {
	value, ok := w.active.Load(jobID)
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	value.(*Job).cancel()
	return nil
}

// IsJobActive reports whether a job is running
func (w *Worker) IsJobActive(jobID string) bool {
	_, ok := w.active.Load(jobID)
	return ok
}

// Stop cancels the running job, waits for the worker to exit and closes
// the results channel.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	w.cancel()
	close(w.jobs)
	w.wg.Wait()
	close(w.results)
}
