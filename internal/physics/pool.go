package physics

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is delivered for any work submitted after Close.
var ErrPoolClosed = errors.New("physics: worker pool closed")

type task struct {
	fn     func() error
	result chan<- error
}

// Pool is a fixed-size worker pool for constraint chunks. Each submission
// gets a one-shot result channel, so callers can fan out a batch and then
// wait on every future before starting the next one.
type Pool struct {
	workers int
	tasks   chan task
	quit    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	active    int64
	completed int64
}

// NewPool starts workers goroutines (NumCPU when workers <= 0).
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		workers: workers,
		tasks:   make(chan task, workers*4),
		quit:    make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			p.drain()
			return
		case t := <-p.tasks:
			atomic.AddInt64(&p.active, 1)
			t.result <- p.run(t.fn)
			atomic.AddInt64(&p.active, -1)
			atomic.AddInt64(&p.completed, 1)
		}
	}
}

// drain fails any tasks still queued at shutdown so their futures resolve
// instead of blocking forever.
func (p *Pool) drain() {
	for {
		select {
		case t := <-p.tasks:
			t.result <- ErrPoolClosed
		default:
			return
		}
	}
}

// run executes fn, converting a panic into an error so one faulty constraint
// cannot kill a worker goroutine.
func (p *Pool) run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("physics: task panic: %v", r)
		}
	}()
	return fn()
}

// Submit queues fn for execution and returns a buffered channel that will
// carry its result exactly once.
func (p *Pool) Submit(fn func() error) <-chan error {
	result := make(chan error, 1)
	select {
	case <-p.quit:
		result <- ErrPoolClosed
		return result
	default:
	}
	select {
	case <-p.quit:
		result <- ErrPoolClosed
	case p.tasks <- task{fn: fn, result: result}:
	}
	return result
}

// Workers reports the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// PoolStats is a point-in-time view of pool activity.
type PoolStats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
}

// Stats returns a snapshot of current pool activity.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers,
		Queued:    len(p.tasks),
		Active:    atomic.LoadInt64(&p.active),
		Completed: atomic.LoadInt64(&p.completed),
	}
}

// Close stops the workers and waits for in-flight tasks to finish. Safe to
// call more than once.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
