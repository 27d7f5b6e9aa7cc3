package store

import (
	"fmt"
)

// SelectChunk returns up to limit items matching q, skipping offset
// rows. An empty result signals exhaustion to the chunked iterator.
func (s *Store) SelectChunk(q Query, offset, limit int) ([]Item, error) {
	if s.tx == nil {
		return nil, ErrNoSession
	}
	stmt, args := q.SQL()
	stmt = fmt.Sprintf("%s LIMIT ? OFFSET ?", stmt)
	args = append(args, limit, offset)

	rows, err := s.tx.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select chunk: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk: %w", err)
	}
	return items, nil
}

// SelectAll runs q to exhaustion in one round trip.
func (s *Store) SelectAll(q Query) ([]Item, error) {
	if s.tx == nil {
		return nil, ErrNoSession
	}
	stmt, args := q.SQL()
	rows, err := s.tx.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select all: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// Exists probes whether q has any rows at all. One database round
// trip; callers are expected to memoize the answer per canonical query
// key, so ProbeCount counts the trips that actually happened.
func (s *Store) Exists(q Query) (bool, error) {
	if s.tx == nil {
		return false, ErrNoSession
	}
	s.probes.Add(1)

	stmt, args := q.SQL()
	probe := fmt.Sprintf("SELECT EXISTS (%s LIMIT 1)", stmt)

	var exists bool
	if err := s.tx.QueryRow(probe, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("existence probe: %w", err)
	}
	return exists, nil
}

// Count returns the number of items matching q.
func (s *Store) Count(q Query) (int64, error) {
	if s.tx == nil {
		return 0, ErrNoSession
	}
	stmt, args := q.SQL()
	counted := fmt.Sprintf("SELECT COUNT(*) FROM (%s)", stmt)

	var n int64
	if err := s.tx.QueryRow(counted, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}
