package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/fetchwork/internal/schema"
)

//go:embed schema.sql
var schemaSQL string

// Store owns a single SQLite handle and the current session
// transaction. Not safe for concurrent use: the caller must serialize
// access, which the fetch worker does structurally by funneling every
// operation through a one-goroutine pool.
type Store struct {
	db     *sql.DB
	tx     *sql.Tx
	cat    *schema.Schema
	probes atomic.Int64

	// removals counts rows deleted in the open session. Staged inserts
	// and updates are visible as commit_id NULL rows; deletions leave
	// no row behind, so they are tracked here.
	removals int
}

// Open creates or opens a SQLite database at the given URL and begins
// the first session transaction.
//
// Accepted URL forms: a plain filesystem path, "sqlite:///path" or
// "sqlite://path". ":memory:" works for tests.
func Open(url string, cat *schema.Schema) (*Store, error) {
	path := ParseURL(url)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports one writer; a single connection also keeps the
	// session transaction and every read on the same handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db, cat: cat}
	if err := s.begin(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// ParseURL strips a sqlite scheme prefix, leaving a filesystem path.
func ParseURL(url string) string {
	for _, prefix := range []string{"sqlite:///", "sqlite://", "file:"} {
		if strings.HasPrefix(url, prefix) {
			return strings.TrimPrefix(url, prefix)
		}
	}
	return url
}

// Catalog returns the item-type catalog this store validates against.
func (s *Store) Catalog() *schema.Schema {
	return s.cat
}

// Close rolls back any staged session work and closes the handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}

// ProbeCount reports how many row-existence probes have hit the
// database. Test hook for the probe-deduplication property.
func (s *Store) ProbeCount() int64 {
	return s.probes.Load()
}

func (s *Store) begin() error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	s.tx = tx
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}
