// Package store provides the SQLite-backed session store the fetch
// engine mediates access to.
//
// A Store owns one live database handle and one open session
// transaction. Every read and mutation runs on that transaction;
// CommitSession stamps staged rows with a new commit record and opens
// a fresh transaction, RollbackSession discards the staged work. The
// store itself does no locking - the fetch worker guarantees that all
// calls arrive from a single goroutine.
//
// Items are schema-less rows: an integer id, an item type, an optional
// commit association and a JSON field bag. The item-type catalog
// (package schema) supplies validation rules; the store collects
// per-item violations instead of aborting whole batches.
//
// # Database Configuration
//
//   - WAL mode: concurrent readers during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
