package store

import (
	"errors"
	"fmt"
)

// ErrNoSession is returned when a session operation runs on a closed
// store.
var ErrNoSession = errors.New("store: no open session")

// ItemError is a per-item validation or integrity failure. Batch
// mutations collect these instead of aborting: the valid remainder of
// the batch still applies.
type ItemError struct {
	ItemType string
	ID       int64
	Reason   string
}

func (e *ItemError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s %d: %s", e.ItemType, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.ItemType, e.Reason)
}
