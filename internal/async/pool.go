// Package async runs request work on a fixed set of workers fed by a bounded queue.
package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/vlm-ocr/internal/common"
)

// Func is one unit of work. The context carries the caller's cancellation plus the
// pool's per-job deadline.
type Func func(ctx context.Context) error

type job struct {
	ctx    context.Context
	fn     Func
	done   chan error
	queued time.Time
}

// Pool is a fixed worker pool. Submissions beyond the queue depth are rejected
// with common.ErrQueueFull instead of blocking the caller.
type Pool struct {
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPool(logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		logger:  logger,
		workers: 2,
		timeout: 3 * time.Minute,
		ch:      make(chan job, 16),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

// Pending returns how many submitted jobs are waiting for a worker.
func (p *Pool) Pending() int { return len(p.ch) }

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("worker started", "worker_id", workerID)

				for j := range p.ch {
					j.done <- p.run(workerID, j)
				}

				p.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (p *Pool) run(workerID int, j job) (err error) {
	logger := common.LoggerFromContext(j.ctx, p.logger)
	if err := j.ctx.Err(); err != nil {
		logger.Info("skipping job, caller already gone", "worker_id", workerID, "error", err)
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "worker_id", workerID, "panic", r)
			err = common.InternalErrorf("job panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(j.ctx, p.timeout)
	defer cancel()

	logger.Debug("job started", "worker_id", workerID, "queued_ms", time.Since(j.queued).Milliseconds())
	return j.fn(ctx)
}

// Submit queues fn and waits for it to finish or for ctx to end, whichever comes first.
func (p *Pool) Submit(ctx context.Context, fn Func) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1), queued: time.Now()}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return common.ErrShuttingDown
	}
	select {
	case p.ch <- j:
		common.LoggerFromContext(ctx, p.logger).Debug("job queued", "pending", len(p.ch))
	default:
		p.mu.RUnlock()
		common.LoggerFromContext(ctx, p.logger).Warn("queue full, rejecting request", "depth", cap(p.ch))
		return fmt.Errorf("%w (depth %d)", common.ErrQueueFull, cap(p.ch))
	}
	p.mu.RUnlock()

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for queued jobs to drain or ctx to end.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
	case <-done:
		p.logger.Info("worker pool drained")
	}
}
