// Package fetch implements the asynchronous fetch-and-cache worker
// that mediates between an interactive caller and one SQLite session
// store.
//
// Each Worker owns the only live handle to its database and funnels
// every touch of it through a one-goroutine task pool, so "serialize
// all access to this connection" is a structural guarantee rather
// than a locking concern. Consumers register FetchParents - an item
// type plus a filter - and pull rows incrementally: queries are built
// once per parent, row-existence probes are shared across parents
// whose filters render to the same canonical statement, and results
// arrive in bounded chunks through a dispatcher drained on the
// caller's goroutine.
//
// Thread-safety model:
//   - Register / CanFetchMore / FetchMore / mutations: safe from the
//     owning goroutine; they submit work and return.
//   - Drain: must be called from exactly one goroutine, the one that
//     owns all externally visible state.
//   - The store is touched only by tasks on the worker goroutine.
package fetch
