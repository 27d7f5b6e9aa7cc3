package schema

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownType is returned when a catalog lookup names an item type
// that was never declared.
var ErrUnknownType = errors.New("schema: unknown item type")

// ItemType describes one declared item type.
type ItemType struct {
	// Name is the catalog label, e.g. "object" or "parameter_value".
	Name string

	// Commit reports whether rows of this type carry a commit
	// association. Types without one are excluded from commit
	// indexing during bulk fetches.
	Commit bool

	// Children lists item types that structurally depend on this one.
	// The closure over Children is the dependency graph used to
	// expand bulk-fetch requests.
	Children []string

	// Required lists fields that must be present and non-empty when
	// items of this type are added or updated with checking enabled.
	Required []string

	// Unique lists fields whose values must be unique across live
	// items of this type.
	Unique []string
}

// Schema is a compiled, validated item-type catalog.
type Schema struct {
	types map[string]ItemType
	names []string // sorted, for deterministic iteration
}

// Types returns all declared type names in sorted order.
func (s *Schema) Types() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Type returns the declaration for name.
func (s *Schema) Type(name string) (ItemType, error) {
	t, ok := s.types[name]
	if !ok {
		return ItemType{}, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// Has reports whether name is declared.
func (s *Schema) Has(name string) bool {
	_, ok := s.types[name]
	return ok
}

// Descendants returns the transitive children of the given types,
// excluding the inputs themselves, in sorted order.
func (s *Schema) Descendants(types []string) []string {
	seen := make(map[string]bool)
	var walk func(name string)
	walk = func(name string) {
		for _, child := range s.types[name].Children {
			if !seen[child] {
				seen[child] = true
				walk(child)
			}
		}
	}
	for _, name := range types {
		walk(name)
	}
	for _, name := range types {
		delete(seen, name)
	}
	return sortedKeys(seen)
}

// Ancestors returns every type that transitively lists one of the
// given types among its children, excluding the inputs, sorted.
func (s *Schema) Ancestors(types []string) []string {
	parents := make(map[string][]string)
	for name, t := range s.types {
		for _, child := range t.Children {
			parents[child] = append(parents[child], name)
		}
	}
	seen := make(map[string]bool)
	var walk func(name string)
	walk = func(name string) {
		for _, parent := range parents[name] {
			if !seen[parent] {
				seen[parent] = true
				walk(parent)
			}
		}
	}
	for _, name := range types {
		walk(name)
	}
	for _, name := range types {
		delete(seen, name)
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// validate checks referential integrity of the compiled catalog:
// every child reference must name a declared type, and the dependency
// graph must be acyclic.
func (s *Schema) validate() error {
	for _, name := range s.names {
		for _, child := range s.types[name].Children {
			if !s.Has(child) {
				return fmt.Errorf("schema: type %q lists undeclared child %q", name, child)
			}
		}
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int)
	var visit func(name string) error
	visit = func(name string) error {
		color[name] = grey
		for _, child := range s.types[name].Children {
			switch color[child] {
			case grey:
				return fmt.Errorf("schema: dependency cycle through %q and %q", name, child)
			case white:
				if err := visit(child); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}
	for _, name := range s.names {
		if color[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}
