package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	ERR_POOL_CLOSED = errors.New("Pool is closed")
)

// Job is a submitted video job. Its result is available once Done is closed.
type Job struct {
	ID     uuid.UUID
	req    Request
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	result *Result
	err    error
}

func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel stops the job, it then completes with the context's error
func (j *Job) Cancel() { j.cancel() }

// Wait blocks until the job completes or ctx is done. A failed job has
// no result.
func (j *Job) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-j.done:
		return j.result, j.err
	}
}

// Pool runs video jobs on a fixed number of workers so that submitting
// never waits for a job to run
type Pool struct {
	vp      *VideoProcessor
	queue   chan *Job
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	// submitters blocked on a full queue, the queue is closed after them
	senders sync.WaitGroup
	logger  *slog.Logger
}

func NewPool(vp *VideoProcessor, workers, queue_length int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		vp:      vp,
		queue:   make(chan *Job, max(0, queue_length)),
		closing: make(chan struct{}),
		logger:  logger,
	}
	for n := range max(1, workers) {
		p.wg.Add(1)
		go p.worker(n)
	}
	return p
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()
	logger := p.logger.With("worker", n)
	for job := range p.queue {
		logger.Debug("Job picked up", "job", job.ID)
		job.result, job.err = p.vp.process(job.ctx, job.ID, job.req)
		job.cancel()
		close(job.done)
	}
}

// Submit queues the job, waiting for room in the queue until ctx is done
// or the pool is closed
func (p *Pool) Submit(ctx context.Context, req Request) (*Job, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ERR_POOL_CLOSED
	}
	p.senders.Add(1)
	p.mu.Unlock()
	defer p.senders.Done()

	job_ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:     uuid.New(),
		req:    req,
		ctx:    job_ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	select {
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	case <-p.closing:
		cancel()
		return nil, ERR_POOL_CLOSED
	case p.queue <- job:
		p.logger.Info("Job queued", "job", job.ID, "path", req.Path)
		return job, nil
	}
}

// Close stops accepting jobs and waits for the queued ones to finish
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.closing)
	p.mu.Unlock()
	p.senders.Wait()
	close(p.queue)
	p.wg.Wait()
}
