package taskq

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrClosed = errors.New("task pool closed")

type PoolOptions struct {
	Workers int
	Buffer  int
	Retry   RetryPolicy
}

// Pool runs tasks on a fixed set of workers fed by a buffered channel.
type Pool struct {
	handle  Handler
	workers int
	tasks   chan Task
	pending sync.WaitGroup
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
}

func NewPool(h Handler, opts PoolOptions, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	return &Pool{
		handle:  opts.Retry.Wrap(h, logger),
		workers: opts.Workers,
		tasks:   make(chan Task, opts.Buffer),
		log:     logger,
	}
}

// Enqueue hands tasks to the workers, blocking while the buffer is full.
func (p *Pool) Enqueue(ctx context.Context, tasks ...Task) error {
	for _, t := range tasks {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return ErrClosed
		}
		p.pending.Add(1)
		p.mu.Unlock()

		select {
		case p.tasks <- t:
		case <-ctx.Done():
			p.pending.Done()
			return ctx.Err()
		}
	}
	return nil
}

// Run processes tasks until ctx is cancelled. Handler errors are logged by
// the retry policy and never stop the pool.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case t := <-p.tasks:
					_ = p.handle(ctx, t)
					p.pending.Done()
				}
			}
		})
	}
	p.log.Info("task pool started", "workers", p.workers)
	err := g.Wait()
	p.log.Info("task pool stopped")
	return err
}

// Drain waits until every enqueued task has been handled.
func (p *Pool) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further tasks. Tasks already queued are still handled while
// Run is active.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
