package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tj/go-spin"
)

var ErrPoolClosed = errors.New("utils: worker pool closed")

type job struct {
	ctx    context.Context
	fn     func(context.Context) (any, error)
	result chan jobResult
}

type jobResult struct {
	value any
	err   error
}

// WorkerPool runs submitted jobs on a fixed number of goroutines. The
// service runs it with one worker so batches reach the native library one
// after the other.
type WorkerPool struct {
	NumWorkers int

	jobs    chan job
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	closed  bool
}

// NewWorkerPool creates a pool. numWorkers below 1 means 1.
func NewWorkerPool(numWorkers int, queueSize int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{
		NumWorkers: numWorkers,
		jobs:       make(chan job, queueSize),
	}
}

// Start starts the workers.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return
	}
	wp.started = true
	wp.wg.Add(wp.NumWorkers)
	for i := 0; i < wp.NumWorkers; i++ {
		go wp.worker()
	}
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for j := range wp.jobs {
		if err := j.ctx.Err(); err != nil {
			j.result <- jobResult{err: err}
			continue
		}
		v, err := j.fn(j.ctx)
		j.result <- jobResult{value: v, err: err}
	}
}

// Submit queues fn and waits for its result. A job whose context is done
// before a worker picks it up is not run.
func (wp *WorkerPool) Submit(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	j := job{ctx: ctx, fn: fn, result: make(chan jobResult, 1)}

	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return nil, ErrPoolClosed
	}
	select {
	case wp.jobs <- j:
		wp.mu.Unlock()
	case <-ctx.Done():
		wp.mu.Unlock()
		return nil, ctx.Err()
	}

	// the worker always answers, even for a cancelled job
	r := <-j.result
	return r.value, r.err
}

// Close stops accepting jobs and waits for queued ones to finish.
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
}

// ProgressTracker renders batch progress on a terminal.
type ProgressTracker struct {
	Name      string
	StartTime time.Time

	out     io.Writer
	spinner *spin.Spinner
	mu      sync.Mutex
	last    int
}

// NewProgressTracker creates a tracker writing to out.
func NewProgressTracker(out io.Writer, name string) *ProgressTracker {
	s := spin.New()
	s.Set(spin.Spin1)
	return &ProgressTracker{
		Name:      name,
		StartTime: time.Now(),
		out:       out,
		spinner:   s,
		last:      -1,
	}
}

// Report renders percent. It has the signature of processing.ProgressFunc.
func (pt *ProgressTracker) Report(percent int) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	done := pt.last >= 100
	pt.last = percent
	if percent >= 100 {
		if done {
			return
		}
		fmt.Fprintf(pt.out, "\r%s: 100%% (%s)\n", pt.Name, time.Since(pt.StartTime).Round(time.Millisecond))
		return
	}
	fmt.Fprintf(pt.out, "\r%s %s: %d%%", pt.spinner.Next(), pt.Name, percent)
}

// Percent returns the last reported percentage, or -1.
func (pt *ProgressTracker) Percent() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.last
}
