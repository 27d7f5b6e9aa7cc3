package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fetchwork/internal/fetch"
	"github.com/roach88/fetchwork/internal/store"
)

// QueryResult holds the rows returned by the query command.
type QueryResult struct {
	ItemType string     `json:"item_type"`
	Count    int        `json:"count"`
	Items    []QueryRow `json:"items"`
}

// QueryRow is one item rendered for output.
type QueryRow struct {
	ID       int64          `json:"id"`
	CommitID int64          `json:"commit_id,omitempty"`
	Fields   map[string]any `json:"fields"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "query <database-url> <item-type>",
		Short: "Fetch every item of one type from a database",
		Long: `Run a single synchronous query against a database and print the
matching items. Intended for inspection and debugging; the fetch
command is the bulk path.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, catalogPath, args[0], args[1], cmd)
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "item-type catalog file (embedded default otherwise)")
	return cmd
}

func runQuery(opts *RootOptions, catalogPath, url, itemType string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cat, err := loadCatalog(catalogPath)
	if err != nil {
		_ = formatter.Error(ErrCodeCatalog, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load catalog", err)
	}

	w := fetch.New(url, cat)
	defer w.Close()
	if err := w.Connect(); err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "connect", err)
	}

	items, err := w.RunQuery(itemType)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "query", err)
	}
	formatter.VerboseLog("Fetched %d %s item(s) from %s", len(items), itemType, url)

	result := QueryResult{
		ItemType: itemType,
		Count:    len(items),
		Items:    make([]QueryRow, len(items)),
	}
	for i, it := range items {
		result.Items[i] = QueryRow{ID: it.ID, CommitID: it.CommitID, Fields: it.Fields}
	}

	if formatter.Format == "json" {
		return formatter.SuccessJSON(result)
	}
	for _, row := range result.Items {
		fmt.Fprintf(formatter.Writer, "%d\t%s\n", row.ID, renderFields(row.Fields))
	}
	fmt.Fprintf(formatter.Writer, "%d item(s)\n", result.Count)
	return nil
}

func renderFields(fields map[string]any) string {
	it := store.Item{Fields: fields}
	out := ""
	for _, name := range it.FieldNames() {
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%s=%s", name, it.Field(name))
	}
	return out
}
