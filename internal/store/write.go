package store

import (
	"fmt"

	"github.com/roach88/fetchwork/internal/schema"
)

// AddOrUpdate inserts items with a zero ID and updates the rest, all
// staged on the open session. With check enabled each item is
// validated against the catalog first; offenders are collected as
// ItemErrors and skipped while the rest of the batch still applies.
//
// Returns the applied items with their assigned ids.
func (s *Store) AddOrUpdate(items []Item, itemType string, check bool) ([]Item, []*ItemError, error) {
	if s.tx == nil {
		return nil, nil, ErrNoSession
	}
	typ, err := s.cat.Type(itemType)
	if err != nil {
		return nil, nil, err
	}

	applied := []Item{}
	var itemErrs []*ItemError
	for _, it := range items {
		it.Type = itemType
		if check {
			if verr := s.checkItem(it, typ); verr != nil {
				itemErrs = append(itemErrs, verr)
				continue
			}
		}
		var applyErr error
		if it.ID == 0 {
			applyErr = s.insertItem(&it)
		} else {
			applyErr = s.updateItem(&it)
		}
		if applyErr != nil {
			itemErrs = append(itemErrs, &ItemError{
				ItemType: itemType,
				ID:       it.ID,
				Reason:   applyErr.Error(),
			})
			continue
		}
		applied = append(applied, it)
	}
	return applied, itemErrs, nil
}

// Readd re-inserts previously removed items preserving their original
// ids. Used by undo paths that must restore identity, not just
// content.
func (s *Store) Readd(items []Item, itemType string) ([]Item, []*ItemError, error) {
	if s.tx == nil {
		return nil, nil, ErrNoSession
	}
	if !s.cat.Has(itemType) {
		return nil, nil, fmt.Errorf("%w: %q", schema.ErrUnknownType, itemType)
	}

	applied := []Item{}
	var itemErrs []*ItemError
	for _, it := range items {
		it.Type = itemType
		if it.ID == 0 {
			itemErrs = append(itemErrs, &ItemError{
				ItemType: itemType,
				Reason:   "readd requires an id",
			})
			continue
		}
		raw, err := marshalFields(it.Fields)
		if err != nil {
			return nil, nil, err
		}
		_, err = s.tx.Exec(
			"INSERT INTO items (id, item_type, commit_id, data) VALUES (?, ?, NULL, ?)",
			it.ID, itemType, raw,
		)
		if err != nil {
			itemErrs = append(itemErrs, &ItemError{
				ItemType: itemType,
				ID:       it.ID,
				Reason:   err.Error(),
			})
			continue
		}
		it.CommitID = 0
		applied = append(applied, it)
	}
	return applied, itemErrs, nil
}

// Remove deletes items by id, grouped by type. Missing ids are
// collected as ItemErrors; the rest of the batch still applies.
func (s *Store) Remove(idsByType map[string][]int64) ([]*ItemError, error) {
	if s.tx == nil {
		return nil, ErrNoSession
	}
	var itemErrs []*ItemError
	for itemType, ids := range idsByType {
		for _, id := range ids {
			res, err := s.tx.Exec(
				"DELETE FROM items WHERE id = ? AND item_type = ?",
				id, itemType,
			)
			if err != nil {
				return nil, fmt.Errorf("remove %s %d: %w", itemType, id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return nil, fmt.Errorf("remove %s %d: %w", itemType, id, err)
			}
			if n == 0 {
				itemErrs = append(itemErrs, &ItemError{
					ItemType: itemType,
					ID:       id,
					Reason:   "no such item",
				})
				continue
			}
			s.removals++
		}
	}
	return itemErrs, nil
}

func (s *Store) insertItem(it *Item) error {
	raw, err := marshalFields(it.Fields)
	if err != nil {
		return err
	}
	res, err := s.tx.Exec(
		"INSERT INTO items (item_type, commit_id, data) VALUES (?, NULL, ?)",
		it.Type, raw,
	)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert id: %w", err)
	}
	it.ID = id
	it.CommitID = 0
	return nil
}

// updateItem rewrites the field bag and re-stages the row (commit_id
// back to NULL) so the next commit claims it.
func (s *Store) updateItem(it *Item) error {
	raw, err := marshalFields(it.Fields)
	if err != nil {
		return err
	}
	res, err := s.tx.Exec(
		"UPDATE items SET data = ?, commit_id = NULL WHERE id = ? AND item_type = ?",
		raw, it.ID, it.Type,
	)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no such item")
	}
	it.CommitID = 0
	return nil
}

// checkItem validates required and unique fields per the catalog.
func (s *Store) checkItem(it Item, typ schema.ItemType) *ItemError {
	for _, field := range typ.Required {
		if it.Field(field) == "" {
			return &ItemError{
				ItemType: it.Type,
				ID:       it.ID,
				Reason:   fmt.Sprintf("missing required field %q", field),
			}
		}
	}
	for _, field := range typ.Unique {
		value := it.Field(field)
		if value == "" {
			continue
		}
		var clash int64
		err := s.tx.QueryRow(
			"SELECT COUNT(*) FROM items WHERE item_type = ? AND id != ? AND json_extract(data, '$.'||?) = ?",
			it.Type, it.ID, field, value,
		).Scan(&clash)
		if err != nil {
			return &ItemError{
				ItemType: it.Type,
				ID:       it.ID,
				Reason:   fmt.Sprintf("uniqueness check for %q: %v", field, err),
			}
		}
		if clash > 0 {
			return &ItemError{
				ItemType: it.Type,
				ID:       it.ID,
				Reason:   fmt.Sprintf("duplicate value %q for unique field %q", value, field),
			}
		}
	}
	return nil
}
