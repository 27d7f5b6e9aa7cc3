package task

import (
	"sync"
	"time"
)

// Future is a single-assignment result holder for an asynchronous
// computation.
//
// Exactly one writer settles the future, with either SetResult or
// SetErr; later settlement attempts are ignored. Any number of readers
// may block on Result or Err. Errors are stored, not thrown: a task
// failure surfaces only when a reader asks for the outcome.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewFuture creates an unsettled future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// SetResult settles the future with a value. No-op if already settled.
func (f *Future[T]) SetResult(v T) {
	f.once.Do(func() {
		f.val = v
		close(f.done)
	})
}

// SetErr settles the future with an error. No-op if already settled.
func (f *Future[T]) SetErr(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Result blocks until the future is settled, then returns the stored
// value or error. A timeout <= 0 waits forever; an expired wait
// returns ErrTimeout and does not affect the eventual settlement -
// the result is simply discarded by the impatient caller.
func (f *Future[T]) Result(timeout time.Duration) (T, error) {
	if err := f.wait(timeout); err != nil {
		var zero T
		return zero, err
	}
	return f.val, f.err
}

// Err blocks until the future is settled and returns the stored error,
// nil when the task succeeded, or ErrTimeout when the wait expires.
func (f *Future[T]) Err(timeout time.Duration) error {
	if err := f.wait(timeout); err != nil {
		return err
	}
	return f.err
}

// Done returns a channel closed when the future settles. Use with
// select for context-aware waiting.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Future[T]) wait(timeout time.Duration) error {
	if timeout <= 0 {
		<-f.done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return nil
	case <-timer.C:
		return ErrTimeout
	}
}
