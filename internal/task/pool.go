package task

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned by Submit after Shutdown has been called.
var ErrPoolClosed = errors.New("task: pool is shut down")

// Fn is a unit of work executed by a pool worker.
type Fn func() (any, error)

// request pairs a task with the future that carries its outcome. A nil
// request is the shutdown sentinel.
type request struct {
	future *Future[any]
	fn     Fn
}

// Pool executes submitted tasks on a bounded set of long-lived worker
// goroutines.
//
// Workers are spawned lazily: Submit starts a new one only when no
// existing worker is known to be idle and the pool is below its
// maximum. Once started, a worker is never torn down before Shutdown -
// pure reuse, no goroutine churn on the hot path.
//
// A pool with maxWorkers=1 executes tasks strictly in submission
// order, which callers use as a serialization guarantee.
type Pool struct {
	maxWorkers int
	queue      *Queue[*request]

	mu      sync.Mutex
	started int  // workers ever created; never decremented
	idle    int  // workers waiting on the queue
	closed  bool

	wg sync.WaitGroup
}

// NewPool creates a pool that will run at most maxWorkers goroutines.
// maxWorkers must be at least 1.
func NewPool(maxWorkers int) *Pool {
	if maxWorkers < 1 {
		panic(fmt.Sprintf("task: invalid maxWorkers %d", maxWorkers))
	}
	return &Pool{
		maxWorkers: maxWorkers,
		queue:      NewQueue[*request](),
	}
}

// Submit enqueues fn for execution and returns the future carrying its
// outcome. Submit never blocks. After Shutdown the returned future is
// settled immediately with ErrPoolClosed.
func (p *Pool) Submit(fn Fn) *Future[any] {
	future := NewFuture[any]()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		future.SetErr(ErrPoolClosed)
		return future
	}
	p.queue.Put(&request{future: future, fn: fn})
	p.maybeSpawnLocked()
	p.mu.Unlock()

	return future
}

// maybeSpawnLocked reserves an idle worker for the just-queued request,
// or starts a new worker when none is idle and the cap allows it. When
// all workers are busy and the cap is reached the request simply waits
// in the queue. Caller holds p.mu.
func (p *Pool) maybeSpawnLocked() {
	if p.idle > 0 {
		p.idle--
		return
	}
	if p.started == p.maxWorkers {
		return
	}
	p.started++
	p.wg.Add(1)
	go p.work()
}

// work is the worker loop: pull a request, run it, report through the
// future. A task must never kill a worker, so panics are recovered
// into the future as errors. Loop exits only on the shutdown sentinel.
func (p *Pool) work() {
	defer p.wg.Done()
	for {
		req, err := p.queue.Get(0)
		if err != nil {
			return // unreachable with timeout 0, kept for safety
		}
		if req == nil {
			return
		}
		p.run(req)
		p.mu.Lock()
		p.idle++
		p.mu.Unlock()
	}
}

func (p *Pool) run(req *request) {
	defer func() {
		if r := recover(); r != nil {
			req.future.SetErr(fmt.Errorf("task: panic: %v", r))
		}
	}()
	result, err := req.fn()
	if err != nil {
		req.future.SetErr(err)
		return
	}
	req.future.SetResult(result)
}

// Workers returns how many worker goroutines have ever been created.
// Test hook for the reuse property; the count never decreases.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Shutdown drains the pool gracefully: tasks already queued still run,
// then one sentinel per live worker stops the loops. Blocks until all
// workers have exited. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	n := p.started
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		p.queue.Put(nil)
	}
	p.wg.Wait()
}
