package fetch

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/fetchwork/internal/store"
)

// AddOrUpdateItems stages a batch of inserts and updates. Fire-and-
// forget: the applied items (with assigned IDs) and per-item failures
// arrive as one EventItemsAdded during Drain. Partial success is the
// norm - invalid items are reported, valid ones still land.
func (w *Worker) AddOrUpdateItems(items []store.Item, itemType string, check bool) {
	w.submitAsync("add or update items", func() error {
		if w.st == nil {
			return ErrNotConnected
		}
		applied, itemErrs, err := w.st.AddOrUpdate(items, itemType, check)
		if err != nil {
			return err
		}
		w.disp.emit(Event{
			Type:     EventItemsAdded,
			ItemType: itemType,
			Items:    applied,
			Errors:   itemErrors(itemErrs),
		})
		return nil
	})
}

// ReaddItems re-inserts previously removed items under their original
// IDs, preserving identity across an undo. Outcome arrives as
// EventItemsReadded.
func (w *Worker) ReaddItems(items []store.Item, itemType string) {
	w.submitAsync("readd items", func() error {
		if w.st == nil {
			return ErrNotConnected
		}
		applied, itemErrs, err := w.st.Readd(items, itemType)
		if err != nil {
			return err
		}
		w.disp.emit(Event{
			Type:     EventItemsReadded,
			ItemType: itemType,
			Items:    applied,
			Errors:   itemErrors(itemErrs),
		})
		return nil
	})
}

// RemoveItems stages deletions for the given ids, grouped by item
// type. Missing ids are reported per item; the rest of the batch
// still goes through. Outcome arrives as EventItemsRemoved.
func (w *Worker) RemoveItems(idsByType map[string][]int64) {
	w.submitAsync("remove items", func() error {
		if w.st == nil {
			return ErrNotConnected
		}
		itemErrs, err := w.st.Remove(idsByType)
		if err != nil {
			return err
		}
		w.disp.emit(Event{
			Type:   EventItemsRemoved,
			IDs:    idsByType,
			Errors: itemErrors(itemErrs),
		})
		return nil
	})
}

// CommitSession makes every staged change durable under one commit
// record. The cookie rides along on the resulting EventCommitted so
// the owner can correlate the outcome with whatever triggered it; a
// nil cookie gets a generated one.
//
// Fire-and-forget: failure (including an empty message or a clean
// session) surfaces as EventError.
func (w *Worker) CommitSession(message string, cookie any) {
	if cookie == nil {
		cookie = uuid.NewString()
	}
	w.submitAsync("commit session", func() error {
		if w.st == nil {
			return ErrNotConnected
		}
		dirty, err := w.st.Dirty()
		if err != nil {
			return err
		}
		if !dirty {
			return fmt.Errorf("nothing to commit")
		}
		commitID, err := w.st.CommitSession(message)
		if err != nil {
			return err
		}
		w.disp.emit(Event{
			Type:     EventCommitted,
			CommitID: commitID,
			Cookie:   cookie,
		})
		return nil
	})
}

// RollbackSession discards every staged change, restoring the last
// committed state. Outcome arrives as EventRolledBack; the owner is
// expected to follow up with ResetQueries so stale fetch state does
// not survive the rollback.
func (w *Worker) RollbackSession() {
	w.submitAsync("rollback session", func() error {
		if w.st == nil {
			return ErrNotConnected
		}
		if err := w.st.RollbackSession(); err != nil {
			return err
		}
		w.disp.emit(Event{Type: EventRolledBack})
		return nil
	})
}

func itemErrors(errs []*store.ItemError) []error {
	if len(errs) == 0 {
		return nil
	}
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}
