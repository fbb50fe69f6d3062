package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"video-pipeline/internal/jobs"
	"video-pipeline/internal/logging"
	"video-pipeline/internal/metrics"
)

// ErrPoolClosed is returned by Submit after Shutdown has started.
var ErrPoolClosed = errors.New("worker pool is shut down")

// Task is one unit of work. ctx is cancelled if Shutdown gives up waiting.
type Task func(ctx context.Context)

type queued struct {
	name string
	fn   Task
}

// Pool runs tasks on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	tasks    chan queued
	workers  int
	inFlight atomic.Int64

	mu     sync.RWMutex
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool starts workers goroutines with room for queueSize waiting tasks.
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:   make(chan queued, queueSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}

	logging.Info("Worker pool started: %d worker(s), queue capacity %d", workers, queueSize)
	return p
}

// Submit queues fn without blocking. It returns jobs.ErrQueueFull when
// every worker is busy and the queue is at capacity.
func (p *Pool) Submit(name string, fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- queued{name: name, fn: fn}:
		metrics.WorkerQueueDepth.Set(float64(len(p.tasks)))
		return nil
	default:
		return fmt.Errorf("%w: %d queued", jobs.ErrQueueFull, cap(p.tasks))
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for t := range p.tasks {
		metrics.WorkerQueueDepth.Set(float64(len(p.tasks)))
		p.run(id, t)
	}
}

func (p *Pool) run(id int, t queued) {
	p.inFlight.Add(1)
	metrics.JobsInFlight.Inc()
	defer func() {
		p.inFlight.Add(-1)
		metrics.JobsInFlight.Dec()
		if r := recover(); r != nil {
			logging.Error("worker %d: task %s panicked: %v", id, t.name, r)
		}
	}()

	logging.Debug("worker %d: running %s", id, t.name)
	t.fn(p.ctx)
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish. If ctx expires first the task context is cancelled and ctx.Err()
// is returned once the workers have exited.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		logging.Warn("Worker pool shutdown timed out with %d task(s) running, cancelling", p.InFlight())
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.tasks)
}

// InFlight returns the number of tasks currently running.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Capacity returns the queue capacity.
func (p *Pool) Capacity() int {
	return cap(p.tasks)
}
