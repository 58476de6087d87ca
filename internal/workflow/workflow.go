// Package workflow runs generation jobs either on the caller's goroutine or on
// a bounded pool of background goroutines.
package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("workflow: runner closed")

// Job is one unit of background work.
type Job func(ctx context.Context) error

// Runner accepts jobs. Job failures are the job's own business: runners log
// them and never report them to the submitter.
type Runner interface {
	Submit(ctx context.Context, name string, job Job) error
}

// Inline runs each job to completion before Submit returns. Lambda uses it
// because the invocation is frozen once the handler returns.
type Inline struct {
	log *zap.Logger
}

func NewInline(log *zap.Logger) *Inline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Inline{log: log}
}

func (r *Inline) Submit(ctx context.Context, name string, job Job) error {
	start := time.Now()
	if err := job(ctx); err != nil {
		r.log.Warn("workflow job failed", zap.String("job", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil
	}
	r.log.Debug("workflow job done", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Async runs at most concurrency jobs at once. Each job gets a context that
// keeps the submitter's values but not its cancellation, bounded by timeout.
type Async struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	log     *zap.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewAsync(concurrency int, timeout time.Duration, log *zap.Logger) *Async {
	if concurrency <= 0 {
		concurrency = 4
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Async{
		sem:     semaphore.NewWeighted(int64(concurrency)),
		timeout: timeout,
		log:     log,
		base:    base,
		cancel:  cancel,
	}
}

// Submit blocks until a slot is free or ctx is done.
func (r *Async) Submit(ctx context.Context, name string, job Job) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.wg.Done()
		return err
	}

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	stop := context.AfterFunc(r.base, cancel)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		defer cancel()
		defer stop()

		start := time.Now()
		if err := job(jobCtx); err != nil {
			r.log.Warn("workflow job failed", zap.String("job", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			return
		}
		r.log.Debug("workflow job done", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
	}()
	return nil
}

// Close rejects new jobs and waits for running ones. If ctx ends first the
// running jobs are cancelled and ctx's error is returned.
func (r *Async) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
