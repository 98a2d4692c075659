package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hydroexec/internal/metrics"
	"github.com/roach88/hydroexec/internal/queryir"
	"github.com/roach88/hydroexec/internal/store"
)

// MetricsOptions holds flags for the metrics command.
type MetricsOptions struct {
	*RootOptions
	Database string
	RunID    string
	Output   string
}

// NewMetricsCommand creates the metrics command.
func NewMetricsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MetricsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Export recorded decisions as Prometheus metrics",
		Long: `Rebuild the decision metrics of a recorded run and print them in the
Prometheus text exposition format: last target load, health, integrity
and financials per unit, plus cycle, emergency and protection counters.

The output suits the node_exporter textfile collector.

Examples:
  hydroexec metrics --db ./audit.db
  hydroexec metrics --db ./audit.db --run 0192... -o /var/lib/node_exporter/hydroexec.prom`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetrics(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to export (default: most recent run)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func runMetrics(opts *MetricsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}
	st, err := store.Open(opts.Database, store.ReadOnly())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	collector, err := collectRun(ctx, st, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read decisions", err)
	}

	if opts.Output != "" {
		if err := writeMetricsFile(opts.Output, collector); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote metrics for %d unit(s) to %s\n", len(collector.Units()), opts.Output)
		return nil
	}
	return collector.WriteText(cmd.OutOrStdout())
}

// collectRun feeds every decision of a run, in seq order, to a fresh
// collector. An empty runID selects the most recent run.
func collectRun(ctx context.Context, st *store.Store, runID string) (*metrics.Collector, error) {
	c := metrics.NewCollector()
	if runID == "" {
		latest, err := st.LatestPerUnit(ctx, "")
		if err != nil {
			return nil, err
		}
		if len(latest) == 0 {
			return c, nil
		}
		runID = latest[0].RunID
	}

	entries, err := st.QueryDecisions(ctx, queryir.Select{
		Filter: queryir.Equals{Field: queryir.FieldRun, Value: runID},
	})
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		c.Observe(e.Record.Decision)
	}
	return c, nil
}
