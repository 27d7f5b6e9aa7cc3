package task

import (
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by timed waits that expire before an item or
// result becomes available.
var ErrTimeout = errors.New("task: timed out")

// Queue is an unbounded thread-safe FIFO.
//
// Put never blocks; Get blocks until an item is available or the
// timeout elapses. The queue is unbounded so that producers (the
// interactive goroutine submitting work) are never stalled by a slow
// consumer.
//
// Signaling uses a buffered channel of size 1 so that multiple Puts
// coalesce into a single wakeup; a consumer that dequeues while items
// remain re-arms the signal for any sibling consumer.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Put appends an item to the back of the queue and wakes one waiter.
// Safe to call from any goroutine.
func (q *Queue[T]) Put(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Get removes and returns the oldest item (FIFO order).
//
// A timeout <= 0 waits forever. When the timeout elapses with nothing
// available, Get returns ErrTimeout.
func (q *Queue[T]) Get(timeout time.Duration) (T, error) {
	var timer *time.Timer
	var expiry <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		expiry = timer.C
	}

	for {
		if item, ok := q.tryGet(); ok {
			return item, nil
		}
		select {
		case <-q.signal:
		case <-expiry:
			var zero T
			return zero, ErrTimeout
		}
	}
}

// tryGet pops the front item without blocking. When items remain after
// the pop it re-arms the signal so other waiters are not lost to
// signal coalescing.
func (q *Queue[T]) tryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	item := q.items[0]

	// Nil out the slot so the backing array does not retain the
	// item's pointers until reallocation.
	var zero T
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	if len(q.items) > 0 {
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}

	return item, true
}

// Len returns the current queue length.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
