package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fetchwork/internal/schema"
)

// CatalogReport describes a compiled catalog for output.
type CatalogReport struct {
	Valid bool          `json:"valid"`
	Types []CatalogType `json:"types,omitempty"`
}

// CatalogType is one item type's declaration rendered for output.
type CatalogType struct {
	Name     string   `json:"name"`
	Commit   bool     `json:"commit"`
	Children []string `json:"children,omitempty"`
	Required []string `json:"required,omitempty"`
	Unique   []string `json:"unique,omitempty"`
}

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and validate item-type catalogs",
	}
	cmd.AddCommand(newSchemaValidateCommand(rootOpts))
	cmd.AddCommand(newSchemaShowCommand(rootOpts))
	return cmd
}

func newSchemaValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalog.cue>",
		Short: "Validate a catalog without opening any database",
		Long: `Compile a CUE item-type catalog and report declaration errors:
bad field types, references to undeclared children, dependency cycles.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaValidate(rootOpts, args[0], cmd)
		},
	}
}

func runSchemaValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cat, err := schema.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "load catalog", err)
		}
		// Compile errors carry CUE positions; graph errors (cycles,
		// undeclared children) are plain. Both are catalog failures.
		_ = formatter.Error(ErrCodeCatalog, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid catalog", err)
	}

	if formatter.Format == "json" {
		return formatter.SuccessJSON(CatalogReport{Valid: true, Types: catalogTypes(cat)})
	}
	fmt.Fprintf(formatter.Writer, "✓ Catalog valid: %d item type(s)\n", len(cat.Types()))
	return nil
}

func newSchemaShowCommand(rootOpts *RootOptions) *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the catalog's item types and their dependency edges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaShow(rootOpts, catalogPath, cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "catalog file (embedded default otherwise)")
	return cmd
}

func runSchemaShow(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cat, err := loadCatalog(path)
	if err != nil {
		_ = formatter.Error(ErrCodeCatalog, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load catalog", err)
	}

	if formatter.Format == "json" {
		return formatter.SuccessJSON(CatalogReport{Valid: true, Types: catalogTypes(cat)})
	}
	for _, ct := range catalogTypes(cat) {
		fmt.Fprintf(formatter.Writer, "%s\n", ct.Name)
		if !ct.Commit {
			fmt.Fprintln(formatter.Writer, "  commit: false")
		}
		if len(ct.Children) > 0 {
			fmt.Fprintf(formatter.Writer, "  children: %s\n", strings.Join(ct.Children, ", "))
		}
		if len(ct.Required) > 0 {
			fmt.Fprintf(formatter.Writer, "  required: %s\n", strings.Join(ct.Required, ", "))
		}
		if len(ct.Unique) > 0 {
			fmt.Fprintf(formatter.Writer, "  unique: %s\n", strings.Join(ct.Unique, ", "))
		}
	}
	return nil
}

func catalogTypes(cat *schema.Schema) []CatalogType {
	out := make([]CatalogType, 0, len(cat.Types()))
	for _, name := range cat.Types() {
		typ, err := cat.Type(name)
		if err != nil {
			continue
		}
		out = append(out, CatalogType{
			Name:     typ.Name,
			Commit:   typ.Commit,
			Children: typ.Children,
			Required: typ.Required,
			Unique:   typ.Unique,
		})
	}
	return out
}
