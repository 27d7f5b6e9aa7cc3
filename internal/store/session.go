package store

import (
	"fmt"
	"time"
)

// Dirty reports whether the open session has staged changes: rows
// awaiting their first commit stamp, or deletions of previously
// committed items.
func (s *Store) Dirty() (bool, error) {
	if s.tx == nil {
		return false, ErrNoSession
	}
	if s.removals > 0 {
		return true, nil
	}
	var staged int64
	err := s.tx.QueryRow("SELECT COUNT(*) FROM items WHERE commit_id IS NULL").Scan(&staged)
	if err != nil {
		return false, fmt.Errorf("count staged items: %w", err)
	}
	return staged > 0, nil
}

// CommitSession makes the staged session work permanent: it writes a
// commit record, stamps every staged row with the new commit id,
// commits the transaction and opens a fresh one. Statement failures
// leave the session transaction - and therefore the staged work -
// untouched, so the caller can retry.
//
// A "commit" item is materialized alongside the commit record so that
// commits are fetchable like any other item type.
func (s *Store) CommitSession(message string) (int64, error) {
	if s.tx == nil {
		return 0, ErrNoSession
	}
	if message == "" {
		return 0, fmt.Errorf("commit session: empty message")
	}

	date := time.Now().UTC().Format(time.RFC3339)
	res, err := s.tx.Exec("INSERT INTO commits (message, date) VALUES (?, ?)", message, date)
	if err != nil {
		return 0, fmt.Errorf("commit session: %w", err)
	}
	commitID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("commit session: %w", err)
	}

	if _, err := s.tx.Exec(
		"UPDATE items SET commit_id = ? WHERE commit_id IS NULL", commitID,
	); err != nil {
		return 0, fmt.Errorf("commit session: stamp staged rows: %w", err)
	}

	record := Item{
		Type: "commit",
		Fields: map[string]any{
			"message": message,
			"date":    date,
		},
	}
	raw, err := marshalFields(record.Fields)
	if err != nil {
		return 0, fmt.Errorf("commit session: %w", err)
	}
	if _, err := s.tx.Exec(
		"INSERT INTO items (item_type, commit_id, data) VALUES ('commit', ?, ?)",
		commitID, raw,
	); err != nil {
		return 0, fmt.Errorf("commit session: %w", err)
	}

	if err := s.tx.Commit(); err != nil {
		// The driver rolls the transaction back on a failed commit;
		// reopen so the store stays usable. The staged work, staged
		// deletions included, is gone.
		s.tx = nil
		s.removals = 0
		if beginErr := s.begin(); beginErr != nil {
			return 0, fmt.Errorf("commit session: %w (reopen: %v)", err, beginErr)
		}
		return 0, fmt.Errorf("commit session: %w", err)
	}
	s.tx = nil
	s.removals = 0
	if err := s.begin(); err != nil {
		return 0, err
	}
	return commitID, nil
}

// RollbackSession discards all staged session work and opens a fresh
// transaction.
func (s *Store) RollbackSession() error {
	if s.tx == nil {
		return ErrNoSession
	}
	if err := s.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback session: %w", err)
	}
	s.tx = nil
	s.removals = 0
	return s.begin()
}
