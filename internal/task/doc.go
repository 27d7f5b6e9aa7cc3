// Package task provides the minimal execution primitives the fetch
// engine is built on: an unbounded thread-safe FIFO queue with timed
// waits, a single-assignment future, and a pool of long-lived worker
// goroutines that are spawned lazily and never discarded before
// shutdown.
//
// The pool is deliberately small in surface: Submit hands a closure to
// the workers and returns a Future; callers that need the result block
// on it, callers that don't simply drop it. A pool configured with one
// worker doubles as a serialization primitive - everything submitted
// runs in FIFO order on a single goroutine, which is how the fetch
// engine guarantees exclusive access to a database connection.
package task
