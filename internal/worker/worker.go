package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrStopped is returned by Do once the pool has been stopped.
var ErrStopped = errors.New("worker pool stopped")

// Job is one unit of CPU-bound work. It must return promptly once ctx is
// done.
type Job func(ctx context.Context) error

type task struct {
	ctx  context.Context
	fn   Job
	done chan error
}

// Pool runs jobs on a fixed number of goroutines, each job under its own
// deadline. It bounds how many size searches run at once.
type Pool struct {
	workers int
	timeout time.Duration
	tasks   chan task
	quit    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewPool creates a pool with the given concurrency and per-job timeout.
// A zero timeout leaves deadlines to the caller's context.
func NewPool(workers int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		timeout: timeout,
		tasks:   make(chan task),
		quit:    make(chan struct{}),
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled or
// Stop is called.
func (p *Pool) Start(ctx context.Context) {
	log.Printf("Worker: starting %d search workers (timeout %s)", p.workers, p.timeout)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case t := <-p.tasks:
					t.done <- p.run(t)
				}
			}
		}()
	}
}

// Stop waits for running jobs to finish. Jobs submitted afterwards fail with
// ErrStopped.
func (p *Pool) Stop() {
	log.Println("Worker: waiting for active jobs to finish...")
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
	log.Println("Worker: stopped")
}

// Do runs fn on a pool goroutine and waits for it. If ctx ends before a
// worker is free, fn never runs and ctx.Err() is returned.
func (p *Pool) Do(ctx context.Context, fn Job) error {
	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrStopped
	}
	return <-t.done
}

func (p *Pool) run(t task) (err error) {
	ctx := t.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker: job panicked: %v", r)
			err = errors.New("job panicked")
		}
	}()
	return t.fn(ctx)
}
