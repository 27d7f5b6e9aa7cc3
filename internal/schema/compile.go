package schema

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed default.cue
var defaultCatalog string

// CompileError is a catalog compilation failure with CUE position
// information when available.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and compiles a catalog from a CUE file on disk.
func Load(path string) (*Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read catalog: %w", err)
	}
	return Compile(string(src))
}

// LoadDefault compiles the embedded default catalog. Panics on
// failure, which would mean the shipped catalog itself is broken.
func LoadDefault() *Schema {
	s, err := Compile(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("schema: embedded catalog: %v", err))
	}
	return s
}

// Compile parses CUE source into a validated Schema.
//
// The source must declare an "item" struct whose fields are item-type
// declarations:
//
//	item: {
//		object: {
//			children: ["parameter_value"]
//			required: ["name"]
//			unique:   ["name"]
//		}
//		commit: { commit: false }
//	}
//
// Per type, all fields are optional: commit defaults to true, the
// list fields to empty.
func Compile(src string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	itemVal := v.LookupPath(cue.ParsePath("item"))
	if !itemVal.Exists() {
		return nil, &CompileError{
			Field:   "item",
			Message: "catalog must declare an item struct",
			Pos:     v.Pos(),
		}
	}

	iter, err := itemVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	s := &Schema{types: make(map[string]ItemType)}
	for iter.Next() {
		t, err := compileItemType(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		s.types[t.Name] = t
		s.names = append(s.names, t.Name)
	}
	if len(s.names) == 0 {
		return nil, &CompileError{
			Field:   "item",
			Message: "catalog declares no item types",
			Pos:     itemVal.Pos(),
		}
	}
	sort.Strings(s.names)

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func compileItemType(name string, v cue.Value) (ItemType, error) {
	t := ItemType{Name: name, Commit: true}

	commitVal := v.LookupPath(cue.ParsePath("commit"))
	if commitVal.Exists() {
		b, err := commitVal.Bool()
		if err != nil {
			return t, &CompileError{
				Field:   name + ".commit",
				Message: "must be a bool",
				Pos:     commitVal.Pos(),
			}
		}
		t.Commit = b
	}

	var err error
	if t.Children, err = stringList(name+".children", v, "children"); err != nil {
		return t, err
	}
	if t.Required, err = stringList(name+".required", v, "required"); err != nil {
		return t, err
	}
	if t.Unique, err = stringList(name+".unique", v, "unique"); err != nil {
		return t, err
	}
	return t, nil
}

// stringList parses an optional list-of-strings field.
func stringList(field string, v cue.Value, path string) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(path))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "must be a list of strings",
			Pos:     listVal.Pos(),
		}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: "must be a list of strings",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
