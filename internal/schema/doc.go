// Package schema defines the item-type catalog the fetch engine
// operates on: which item types exist, how they depend on each other
// structurally, whether their rows carry a commit association, and
// which fields mutations must validate.
//
// Catalogs are declared in CUE and compiled through the CUE Go API.
// The engine itself is agnostic to what is being fetched - the catalog
// is the only place domain knowledge enters the system. A default
// catalog ships embedded for the CLI and tests.
package schema
