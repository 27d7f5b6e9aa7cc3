package fetch

import (
	"sync"

	"github.com/roach88/fetchwork/internal/store"
)

// EventType distinguishes worker outcomes carried back to the owner.
type EventType int

const (
	// EventChunk delivers one iterator advance for a parent.
	EventChunk EventType = iota + 1
	// EventStatusChange reports that a parent's fetch status changed
	// (probe finished empty, or its queries were reset).
	EventStatusChange
	// EventItemsAdded reports an add-or-update batch outcome.
	EventItemsAdded
	// EventItemsReadded reports a re-insertion batch outcome.
	EventItemsReadded
	// EventItemsRemoved reports a removal batch outcome.
	EventItemsRemoved
	// EventCommitted reports a successful session commit.
	EventCommitted
	// EventRolledBack reports a successful session rollback.
	EventRolledBack
	// EventError reports a failed fire-and-forget operation.
	EventError
)

// Event is one worker outcome. Which fields are set depends on Type.
type Event struct {
	Type     EventType
	Handle   Handle             // EventChunk, EventStatusChange
	ItemType string             // mutation events
	Items    []store.Item       // EventChunk, EventItemsAdded, EventItemsReadded
	IDs      map[string][]int64 // EventItemsRemoved
	Errors   []error            // per-item mutation errors
	CommitID int64              // EventCommitted
	Cookie   any                // EventCommitted; caller-supplied, opaque
	Err      error              // EventError
}

// dispatcher is the FIFO channel carrying events from the worker
// goroutine back to the owning goroutine. Unbounded, so the worker
// never blocks on a slow owner; delivery order is emission order.
//
// Signaling uses a buffered channel of size 1 that coalesces multiple
// emissions into one wakeup - the owner drains everything pending per
// scheduling tick anyway.
type dispatcher struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// emit appends an event. Returns false if the dispatcher is closed.
func (d *dispatcher) emit(e Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	d.events = append(d.events, e)

	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

// tryNext pops the oldest pending event without blocking.
func (d *dispatcher) tryNext() (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.events) == 0 {
		return Event{}, false
	}
	e := d.events[0]

	// Nil out the slot so the backing array does not retain the
	// event's items until reallocation.
	d.events[0] = Event{}
	if len(d.events) == 1 {
		d.events = d.events[:0]
	} else {
		d.events = d.events[1:]
	}
	return e, true
}

// wait returns a channel that signals when events may be pending.
// After close it returns nil, which blocks forever in a select: a
// shut-down dispatcher is quiescent, not busy. Waiters already parked
// on a previously obtained channel are woken once by close.
func (d *dispatcher) wait() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	return d.signal
}

// close stops accepting events and wakes all waiters. Idempotent.
func (d *dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	close(d.signal)
}

func (d *dispatcher) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}
