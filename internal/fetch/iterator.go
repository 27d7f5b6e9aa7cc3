package fetch

import (
	"github.com/roach88/fetchwork/internal/store"
)

// iterator is one lazy, resumable chunk sequence over a query.
// Advancing it yields the next window of rows; an empty chunk signals
// exhaustion and latches, so further advances stay empty.
type iterator struct {
	query  store.Query
	window int
	offset int
	done   bool
}

func newIterator(q store.Query, window int) *iterator {
	return &iterator{query: q, window: window}
}

// next advances by one chunk. Only called on the worker goroutine.
func (it *iterator) next(s *store.Store) ([]store.Item, error) {
	if it.done {
		return []store.Item{}, nil
	}
	items, err := s.SelectChunk(it.query, it.offset, it.window)
	if err != nil {
		return nil, err
	}
	it.offset += len(items)
	if len(items) == 0 {
		it.done = true
	}
	return items, nil
}
