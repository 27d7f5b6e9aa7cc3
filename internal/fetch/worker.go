package fetch

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/fetchwork/internal/schema"
	"github.com/roach88/fetchwork/internal/store"
	"github.com/roach88/fetchwork/internal/task"
)

// ErrNotConnected is returned when an operation reaches the worker
// goroutine before Connect has succeeded, or after a connection
// failure left the worker unusable.
var ErrNotConnected = errors.New("fetch: worker is not connected")

// DefaultChunkSize is the default window of one iterator advance.
const DefaultChunkSize = 1000

// Option configures a Worker.
type Option func(*Worker)

// WithChunkSize overrides the iterator window.
func WithChunkSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.chunkSize = n
		}
	}
}

// WithHandler installs the callback receiving mutation, commit and
// error events during Drain. Chunk and status events are routed to
// their parents instead.
func WithHandler(fn func(Event)) Option {
	return func(w *Worker) { w.onEvent = fn }
}

// Worker mediates all access to one database.
//
// The pool is configured with exactly one goroutine: tasks execute
// strictly in submission order, which is what makes "probe a query,
// then iterate it" and "mutate, then re-fetch" safe without extra
// synchronization. The store field is touched only by tasks on that
// goroutine (and by Close, after the pool has drained).
//
// Registry and cache maps are shared between the worker goroutine and
// the owner and guarded by mu; busy flags are cleared only during
// Drain on the owning goroutine.
type Worker struct {
	url       string
	cat       *schema.Schema
	chunkSize int
	onEvent   func(Event)

	pool  *task.Pool
	disp  *dispatcher
	guard sync.Mutex // advisory engine-level lock, see withGuard

	st *store.Store

	mu           sync.Mutex
	parents      map[Handle]*parentState
	nextHandle   Handle
	probes       map[string]bool // has-rows by canonical query key
	fetchedTypes map[string]bool
	commitCache  map[int64]map[string][]int64
	closed       bool
}

// New creates a worker for the database at url, validated against the
// given item-type catalog. The connection itself is opened by Connect.
func New(url string, cat *schema.Schema, opts ...Option) *Worker {
	w := &Worker{
		url:          url,
		cat:          cat,
		chunkSize:    DefaultChunkSize,
		pool:         task.NewPool(1),
		disp:         newDispatcher(),
		parents:      make(map[Handle]*parentState),
		probes:       make(map[string]bool),
		fetchedTypes: make(map[string]bool),
		commitCache:  make(map[int64]map[string][]int64),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Connect opens the store on the worker goroutine and blocks until it
// is ready. Safe to retry after a failure. A no-op when already
// connected.
func (w *Worker) Connect() error {
	_, err := w.submitWait(func() (any, error) {
		if w.st != nil {
			return nil, nil
		}
		st, err := store.Open(w.url, w.cat)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", w.url, err)
		}
		w.st = st
		return nil, nil
	})
	if err == nil {
		slog.Info("fetch worker connected", "url", w.url)
	}
	return err
}

// Close drains the pool gracefully (queued tasks still run), closes
// the store and the dispatcher. Idempotent.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.pool.Shutdown()
	if w.st != nil {
		w.st.Close()
		w.st = nil
	}
	w.disp.close()
	slog.Info("fetch worker closed", "url", w.url)
}

// CanFetchMore reports whether parent h may have more rows to pull.
//
// False while the parent is exhausted or a fetch is in flight. When no
// query exists yet the existence probe is kicked off asynchronously
// and CanFetchMore optimistically answers true - "try again shortly"
// without blocking the caller; once the probe settles the cached
// answer is returned.
func (w *Worker) CanFetchMore(h Handle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := w.state(h)
	if st.fetched || st.busy {
		return false
	}
	if !st.queryReady {
		if !st.probing {
			st.probing = true
			// Submit only enqueues; holding mu here cannot deadlock
			// with the worker goroutine.
			w.submitGuarded("init query", func() error {
				return w.initQuery(h)
			}, func() {
				// Skipped probe: re-arm so the next CanFetchMore
				// retries instead of waiting forever.
				w.mu.Lock()
				if st := w.parents[h]; st != nil {
					st.probing = false
				}
				w.mu.Unlock()
			})
		}
		return true
	}
	return st.hasRows
}

// FetchMore requests the next chunk for parent h. Fire-and-forget:
// the chunk arrives through Drain. A no-op while the parent is busy
// or exhausted, so repeated calls cannot double-deliver.
func (w *Worker) FetchMore(h Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := w.state(h)
	if st.busy || st.fetched {
		return
	}
	st.busy = true

	w.submitGuarded("fetch more", func() error {
		err := w.fetchMore(h)
		if err != nil {
			// Unjam the parent: busy clears when the status event
			// drains.
			w.disp.emit(Event{Type: EventStatusChange, Handle: h})
		}
		return err
	}, func() {
		// Skipped fetch: same unjamming, or busy would stick forever.
		w.disp.emit(Event{Type: EventStatusChange, Handle: h})
	})
}

// FetchAllOptions controls bulk-fetch expansion through the catalog's
// dependency graph.
type FetchAllOptions struct {
	OnlyDescendants  bool
	IncludeAncestors bool
}

// FetchAll eagerly fetches the given item types to exhaustion,
// synchronously on the worker goroutine. A nil slice means every
// catalog type. Already-exhausted types are skipped; fetched rows are
// returned per type and their commit associations are indexed into
// the commit cache (except for types without one).
func (w *Worker) FetchAll(itemTypes []string, opts FetchAllOptions) (map[string][]store.Item, error) {
	if itemTypes == nil {
		itemTypes = w.cat.Types()
	}
	for _, t := range itemTypes {
		if !w.cat.Has(t) {
			return nil, fmt.Errorf("%w: %q", schema.ErrUnknownType, t)
		}
	}

	set := make(map[string]bool)
	if opts.OnlyDescendants {
		for _, t := range w.cat.Descendants(itemTypes) {
			set[t] = true
		}
	} else {
		for _, t := range itemTypes {
			set[t] = true
		}
	}
	if opts.IncludeAncestors {
		keys := make([]string, 0, len(set))
		for t := range set {
			keys = append(keys, t)
		}
		for _, t := range w.cat.Ancestors(keys) {
			set[t] = true
		}
	}

	w.mu.Lock()
	pending := make([]string, 0, len(set))
	for t := range set {
		if !w.fetchedTypes[t] {
			pending = append(pending, t)
		}
	}
	w.mu.Unlock()
	sort.Strings(pending)

	if len(pending) == 0 {
		return map[string][]store.Item{}, nil
	}

	result, err := w.submitWait(func() (any, error) {
		var out map[string][]store.Item
		ran, err := withGuard(&w.guard, func() error {
			var ferr error
			out, ferr = w.fetchAll(pending)
			return ferr
		})
		if err != nil {
			return nil, err
		}
		if !ran {
			return map[string][]store.Item{}, nil
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string][]store.Item), nil
}

// fetchAll runs on the worker goroutine.
func (w *Worker) fetchAll(itemTypes []string) (map[string][]store.Item, error) {
	if w.st == nil {
		return nil, ErrNotConnected
	}
	out := make(map[string][]store.Item, len(itemTypes))
	for _, itemType := range itemTypes {
		it := newIterator(store.NewQuery(itemType, nil), w.chunkSize)
		items := []store.Item{}
		for {
			chunk, err := it.next(w.st)
			if err != nil {
				return nil, err
			}
			if len(chunk) == 0 {
				break
			}
			w.populateCommitCache(itemType, chunk)
			items = append(items, chunk...)
		}
		out[itemType] = items
		w.mu.Lock()
		w.fetchedTypes[itemType] = true
		w.mu.Unlock()
		slog.Debug("bulk fetch complete", "item_type", itemType, "rows", len(items))
	}
	return out, nil
}

// initQuery runs on the worker goroutine: build the parent's query,
// settle the shared existence probe, and mark the parent exhausted
// right away when the probe comes back empty.
func (w *Worker) initQuery(h Handle) error {
	if w.st == nil {
		return ErrNotConnected
	}
	st := w.lookup(h)
	if st == nil {
		return nil // unregistered while queued
	}
	if err := w.ensureQuery(st); err != nil {
		w.mu.Lock()
		st.probing = false
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	has := st.hasRows
	if !has {
		st.fetched = true
	}
	w.mu.Unlock()

	if !has {
		w.disp.emit(Event{Type: EventStatusChange, Handle: h})
	}
	return nil
}

// ensureQuery builds the parent's query at most once and resolves the
// has-rows probe at most once per distinct canonical key, sharing the
// answer across structurally different parents whose filters render
// to the same statement.
func (w *Worker) ensureQuery(st *parentState) error {
	w.mu.Lock()
	if st.queryReady {
		w.mu.Unlock()
		return nil
	}
	parent := st.parent
	w.mu.Unlock()

	itemType := parent.ItemType()
	if !w.cat.Has(itemType) {
		return fmt.Errorf("%w: %q", schema.ErrUnknownType, itemType)
	}
	q := store.NewQuery(itemType, parent.Filter())
	key := q.Key()

	w.mu.Lock()
	has, known := w.probes[key]
	w.mu.Unlock()

	if !known {
		var err error
		has, err = w.st.Exists(q)
		if err != nil {
			return fmt.Errorf("probe %s: %w", itemType, err)
		}
	}

	w.mu.Lock()
	w.probes[key] = has
	st.query = q
	st.queryKey = key
	st.hasRows = has
	st.queryReady = true
	st.probing = false
	w.mu.Unlock()
	return nil
}

// fetchMore runs on the worker goroutine: advance the parent's
// iterator by one chunk and hand it to the dispatcher. The empty
// chunk that signals exhaustion is delivered like any other so the
// owner observes the terminal transition in order.
func (w *Worker) fetchMore(h Handle) error {
	if w.st == nil {
		return ErrNotConnected
	}
	st := w.lookup(h)
	if st == nil {
		return nil
	}
	if err := w.ensureQuery(st); err != nil {
		return err
	}

	w.mu.Lock()
	if st.iter == nil {
		st.iter = newIterator(st.query, w.chunkSize)
	}
	it := st.iter
	w.mu.Unlock()

	chunk, err := it.next(w.st)
	if err != nil {
		return fmt.Errorf("fetch chunk: %w", err)
	}
	w.populateCommitCache(st.query.ItemType, chunk)
	w.disp.emit(Event{Type: EventChunk, Handle: h, Items: chunk})
	return nil
}

// ResetQueries invalidates cached queries, iterators, probe answers
// and fetched flags - globally when itemType is empty, or scoped to
// one item type. Affected parents get a status-change event on the
// next Drain. Used after a rollback or a type-scoped cache
// invalidation.
func (w *Worker) ResetQueries(itemType string) {
	w.mu.Lock()
	var affected []Handle
	for h, st := range w.parents {
		if itemType != "" && st.parent.ItemType() != itemType {
			continue
		}
		if st.queryKey != "" {
			delete(w.probes, st.queryKey)
		}
		st.query = store.Query{}
		st.queryKey = ""
		st.queryReady = false
		st.probing = false
		st.hasRows = false
		st.iter = nil
		st.fetched = false
		affected = append(affected, h)
	}
	if itemType == "" {
		w.fetchedTypes = make(map[string]bool)
	} else {
		delete(w.fetchedTypes, itemType)
	}
	w.mu.Unlock()

	for _, h := range affected {
		w.disp.emit(Event{Type: EventStatusChange, Handle: h})
	}
}

// RunQuery is the synchronous escape hatch for diagnostics and tests:
// fetch everything of one type in a single round trip, still funneled
// through the same single-worker pool.
func (w *Worker) RunQuery(itemType string) ([]store.Item, error) {
	if !w.cat.Has(itemType) {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownType, itemType)
	}
	result, err := w.submitWait(func() (any, error) {
		if w.st == nil {
			return nil, ErrNotConnected
		}
		return w.st.SelectAll(store.NewQuery(itemType, nil))
	})
	if err != nil {
		return nil, err
	}
	return result.([]store.Item), nil
}

// Drain delivers every pending event on the calling goroutine and
// returns how many were delivered. Must always be called from the
// same goroutine - the one that owns externally visible state.
//
// Ordering contract: a parent's busy flag is cleared strictly after
// all synchronous reactions to its chunk-delivered event have run.
func (w *Worker) Drain() int {
	n := 0
	for {
		e, ok := w.disp.tryNext()
		if !ok {
			return n
		}
		w.deliver(e)
		n++
	}
}

// Wait returns a channel signaling that events may be pending. Use
// with select, then Drain. After Close it returns nil, so a select
// loop on a shut-down worker parks instead of spinning.
func (w *Worker) Wait() <-chan struct{} {
	return w.disp.wait()
}

// Pending returns the number of undelivered events.
func (w *Worker) Pending() int {
	return w.disp.len()
}

func (w *Worker) deliver(e Event) {
	switch e.Type {
	case EventChunk:
		st := w.lookup(e.Handle)
		if st == nil {
			return // unregistered while the chunk was in flight
		}
		if len(e.Items) > 0 {
			st.parent.ItemsAdded(e.Items)
		} else {
			w.mu.Lock()
			st.fetched = true
			w.mu.Unlock()
		}
		// Strictly after the synchronous reaction above; clearing
		// earlier would let the delivered data re-trigger an
		// overlapping fetch.
		w.mu.Lock()
		st.busy = false
		w.mu.Unlock()
	case EventStatusChange:
		st := w.lookup(e.Handle)
		if st == nil {
			return
		}
		st.parent.StatusChanged()
		w.mu.Lock()
		st.busy = false
		w.mu.Unlock()
	default:
		if w.onEvent != nil {
			w.onEvent(e)
		}
	}
}

// lookup is the tolerant sibling of state: in-flight tasks and events
// may legitimately race an Unregister.
func (w *Worker) lookup(h Handle) *parentState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.parents[h]
}

// populateCommitCache indexes which items each commit touched, so the
// front end can answer "what changed in which commit" without another
// query. Types without a commit association are skipped, as are
// still-staged rows.
func (w *Worker) populateCommitCache(itemType string, items []store.Item) {
	if itemType == "commit" {
		return
	}
	typ, err := w.cat.Type(itemType)
	if err != nil || !typ.Commit {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, it := range items {
		if it.CommitID == 0 {
			continue
		}
		byType, ok := w.commitCache[it.CommitID]
		if !ok {
			byType = make(map[string][]int64)
			w.commitCache[it.CommitID] = byType
		}
		byType[itemType] = append(byType[itemType], it.ID)
	}
}

// CommitCache returns a copy of the commit index.
func (w *Worker) CommitCache() map[int64]map[string][]int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[int64]map[string][]int64, len(w.commitCache))
	for commitID, byType := range w.commitCache {
		entry := make(map[string][]int64, len(byType))
		for itemType, ids := range byType {
			entry[itemType] = append([]int64(nil), ids...)
		}
		out[commitID] = entry
	}
	return out
}

// submitWait submits fn and blocks for its outcome. Used for the
// operations the caller must have finished before proceeding.
func (w *Worker) submitWait(fn func() (any, error)) (any, error) {
	return w.pool.Submit(fn).Result(0)
}

// submitAsync submits fire-and-forget work; failures surface on the
// error channel instead of escaping the worker loop.
func (w *Worker) submitAsync(op string, fn func() error) {
	w.pool.Submit(func() (any, error) {
		if err := fn(); err != nil {
			slog.Debug("worker task failed", "op", op, "err", err)
			w.disp.emit(Event{Type: EventError, Err: fmt.Errorf("%s: %w", op, err)})
		}
		return nil, nil
	})
}

// submitGuarded is submitAsync with the advisory engine lock around
// the task body; contended tasks are skipped, not queued. onSkip runs
// when the task was skipped so the caller can undo any state it set
// optimistically before submitting.
func (w *Worker) submitGuarded(op string, fn func() error, onSkip func()) {
	w.submitAsync(op, func() error {
		ran, err := withGuard(&w.guard, fn)
		if !ran {
			slog.Debug("guarded task skipped", "op", op)
			if onSkip != nil {
				onSkip()
			}
		}
		return err
	})
}

// WithLock runs fn while holding the engine lock. Guarded worker
// tasks that arrive in the meantime are skipped rather than queued,
// so a diagnostic caller can fence out background fetches for the
// duration; skipped fetches unjam their parents with a status event.
func (w *Worker) WithLock(fn func()) {
	w.guard.Lock()
	defer w.guard.Unlock()
	fn()
}
