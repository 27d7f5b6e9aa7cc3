package fetch

import "sync"

// withGuard wraps fn with a best-effort advisory lock acquisition.
// When the lock cannot be taken immediately the task is skipped and
// withGuard reports false - the queued FIFO ordering of the worker
// pool already guarantees correctness for every path that goes
// through it; the guard only fences those paths against diagnostic
// callers holding the engine lock through Worker.WithLock.
func withGuard(mu *sync.Mutex, fn func() error) (bool, error) {
	if !mu.TryLock() {
		return false, nil
	}
	defer mu.Unlock()
	return true, fn()
}
