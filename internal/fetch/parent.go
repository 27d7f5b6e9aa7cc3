package fetch

import (
	"fmt"

	"github.com/roach88/fetchwork/internal/store"
)

// Parent is the consumer contract driving one logical, resumable
// fetch stream: an item type of interest plus a filter.
//
// ItemType and Filter are called from the worker goroutine and must
// return stable values; ItemsAdded and StatusChanged are called only
// during Drain, on the owning goroutine.
type Parent interface {
	// ItemType names the catalog type this parent fetches.
	ItemType() string

	// Filter returns the conditions applied to the type's base query.
	// A nil filter fetches everything of the type.
	Filter() store.Filter

	// ItemsAdded delivers one non-empty chunk. The parent's busy flag
	// is cleared strictly after this call returns, so a re-entrant
	// FetchMore from inside the callback is a deliberate no-op - that
	// is what breaks the infinite immediate re-fetch loop.
	ItemsAdded(items []store.Item)

	// StatusChanged signals that CanFetchMore may answer differently
	// now (existence probe settled, or queries were reset).
	StatusChanged()
}

// Handle is the opaque identifier issued at parent registration.
// Registry lookups go through handles, never through parent identity.
type Handle int64

// parentState is the engine-side bookkeeping for one registered
// parent.
//
// busy and fetched transition as:
//
//	unfetched -> probing -> fetched          (probe found no rows)
//	unfetched -> probing -> iterating -> ... -> fetched
//
// fetched is terminal until ResetQueries clears it.
type parentState struct {
	parent  Parent
	handle  Handle
	busy    bool
	fetched bool

	probing    bool        // initQuery submitted, probe not settled
	queryReady bool        // query built and probe cached
	query      store.Query // built once; never rebuilt while ready
	queryKey   string
	hasRows    bool

	iter *iterator
}

// state returns the registered parent state or panics: operating on
// an unknown handle is a programming error, not a runtime failure.
func (w *Worker) state(h Handle) *parentState {
	st, ok := w.parents[h]
	if !ok {
		panic(fmt.Sprintf("fetch: unknown parent handle %d", h))
	}
	return st
}

// Register adds a parent and issues its handle.
func (w *Worker) Register(p Parent) Handle {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextHandle++
	h := w.nextHandle
	w.parents[h] = &parentState{parent: p, handle: h}
	return h
}

// Unregister drops a parent and its cached query state. Pending
// events for the handle are still drained but deliver nowhere.
func (w *Worker) Unregister(h Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.parents, h)
}
