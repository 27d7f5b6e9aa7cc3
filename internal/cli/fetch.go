package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/fetchwork/internal/fetch"
	"github.com/roach88/fetchwork/internal/schema"
)

// FetchReport summarizes one fetch run across all configured
// databases.
type FetchReport struct {
	Databases []DatabaseReport `json:"databases"`
}

// DatabaseReport holds per-type row counts for one database.
type DatabaseReport struct {
	URL    string         `json:"url"`
	Counts map[string]int `json:"counts"`
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <config.yaml>",
		Short: "Fetch configured item types from one or more databases",
		Long: `Fetch item types from every database listed in a YAML run
configuration. Databases are fetched concurrently, one worker each;
within a database all access is serialized through its worker.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runFetch(opts *RootOptions, configPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load config", err)
	}

	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		_ = formatter.Error(ErrCodeCatalog, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load catalog", err)
	}

	formatter.VerboseLog("Fetching %d database(s)", len(cfg.Databases))

	// One goroutine per database; each slot is written by exactly one
	// of them.
	reports := make([]DatabaseReport, len(cfg.Databases))

	var g errgroup.Group
	for i, db := range cfg.Databases {
		g.Go(func() error {
			report, err := fetchDatabase(db, cat, cfg.ChunkSize)
			if err != nil {
				return fmt.Errorf("%s: %w", db.URL, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitFailure, "fetch", err)
	}

	if formatter.Format == "json" {
		return formatter.SuccessJSON(FetchReport{Databases: reports})
	}
	for _, report := range reports {
		fmt.Fprintf(formatter.Writer, "%s\n", report.URL)
		types := make([]string, 0, len(report.Counts))
		for t := range report.Counts {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(formatter.Writer, "  %-24s %d\n", t, report.Counts[t])
		}
	}
	return nil
}

// fetchDatabase runs one worker to exhaustion over its configured
// types.
func fetchDatabase(db DatabaseConfig, cat *schema.Schema, chunkSize int) (DatabaseReport, error) {
	var workerOpts []fetch.Option
	if chunkSize > 0 {
		workerOpts = append(workerOpts, fetch.WithChunkSize(chunkSize))
	}
	w := fetch.New(db.URL, cat, workerOpts...)
	defer w.Close()

	if err := w.Connect(); err != nil {
		return DatabaseReport{}, err
	}
	result, err := w.FetchAll(db.ItemTypes, fetch.FetchAllOptions{
		OnlyDescendants:  db.OnlyDescendants,
		IncludeAncestors: db.IncludeAncestors,
	})
	if err != nil {
		return DatabaseReport{}, err
	}

	counts := make(map[string]int, len(result))
	for itemType, items := range result {
		counts[itemType] = len(items)
	}
	return DatabaseReport{URL: db.URL, Counts: counts}, nil
}

// loadCatalog resolves the catalog path, falling back to the embedded
// default.
func loadCatalog(path string) (*schema.Schema, error) {
	if path == "" {
		return schema.LoadDefault(), nil
	}
	return schema.Load(path)
}
