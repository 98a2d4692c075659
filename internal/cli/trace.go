package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hydroexec/internal/ir"
	"github.com/roach88/hydroexec/internal/queryir"
	"github.com/roach88/hydroexec/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	RunID      string
	Unit       string
	Mode       string
	Reason     string
	Protection string
	Emergency  bool
	SinceSeq   int64
	MinHealth  float64
	Limit      int
	ListRuns   bool
}

// TraceResult holds the decisions matching a trace query.
type TraceResult struct {
	Decisions []DecisionView `json:"decisions"`
	Total     int            `json:"total"`
}

// RunView is the printed form of one recorded run.
type RunView struct {
	RunID         string `json:"run_id"`
	StartedAt     string `json:"started_at"`
	EngineVersion string `json:"engine_version"`
	Decisions     int    `json:"decisions"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query recorded decisions",
		Long: `Query the audit store for recorded executive decisions.

Filters combine with AND. Results are ordered by sequence number, then
unit and run, so the same query always prints the same rows.

Examples:
  hydroexec trace --db ./audit.db --list-runs
  hydroexec trace --db ./audit.db --unit U1 --since-seq 100
  hydroexec trace --db ./audit.db --emergency --reason HIGH_VIBRATION_TRIP
  hydroexec trace --db ./audit.db --protection VIBRATION_CAP --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "only this run")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "only this unit")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "only this mode (RUN|RUN_THROTTLED|STANDBY|STOP)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "only emergencies with this reason code")
	cmd.Flags().StringVar(&opts.Protection, "protection", "", "only decisions with this protection code")
	cmd.Flags().BoolVar(&opts.Emergency, "emergency", false, "only emergency decisions")
	cmd.Flags().Int64Var(&opts.SinceSeq, "since-seq", 0, "only decisions with seq >= this")
	cmd.Flags().Float64Var(&opts.MinHealth, "min-health", 0, "only decisions with master health >= this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of rows (0 = all)")
	cmd.Flags().BoolVar(&opts.ListRuns, "list-runs", false, "list recorded runs instead of decisions")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
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

	if opts.ListRuns {
		return listRuns(ctx, st, opts, cmd)
	}

	q, err := buildTraceQuery(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}
	entries, err := st.QueryDecisions(ctx, q)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query decisions", err)
	}

	result := TraceResult{Decisions: make([]DecisionView, 0, len(entries)), Total: len(entries)}
	for _, e := range entries {
		result.Decisions = append(result.Decisions, newDecisionView(e.RunID, e.Record.Decision, nil))
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	w := cmd.OutOrStdout()
	if result.Total == 0 {
		fmt.Fprintln(w, "No decisions match.")
		return nil
	}
	for _, v := range result.Decisions {
		writeDecisionText(w, v)
		if opts.Verbose && v.Message != "" {
			fmt.Fprintf(w, "       %s\n", v.Message)
		}
	}
	fmt.Fprintf(w, "%d decision(s)\n", result.Total)
	return nil
}

// buildTraceQuery turns the filter flags into a validated query.
func buildTraceQuery(opts *TraceOptions) (queryir.Query, error) {
	var preds []queryir.Predicate
	eq := func(f queryir.Field, v any) {
		preds = append(preds, queryir.Equals{Field: f, Value: v})
	}

	if opts.RunID != "" {
		eq(queryir.FieldRun, opts.RunID)
	}
	if opts.Unit != "" {
		eq(queryir.FieldUnit, opts.Unit)
	}
	if opts.Mode != "" {
		if !ir.Mode(opts.Mode).Valid() {
			return nil, fmt.Errorf("unknown mode %q", opts.Mode)
		}
		eq(queryir.FieldMode, opts.Mode)
	}
	if opts.Emergency {
		eq(queryir.FieldEmergency, true)
	}
	if opts.Reason != "" {
		eq(queryir.FieldReason, opts.Reason)
	}
	if opts.Protection != "" {
		preds = append(preds, queryir.HasProtection{Code: opts.Protection})
	}
	if opts.SinceSeq > 0 {
		preds = append(preds, queryir.Range{Field: queryir.FieldSeq, Min: queryir.Bound(float64(opts.SinceSeq))})
	}
	if opts.MinHealth > 0 {
		preds = append(preds, queryir.Range{Field: queryir.FieldHealth, Min: queryir.Bound(opts.MinHealth)})
	}

	sel := queryir.Select{Limit: opts.Limit}
	if len(preds) > 0 {
		sel.Filter = queryir.And{Predicates: preds}
	}
	if err := queryir.Validate(sel); err != nil {
		return nil, err
	}
	return sel, nil
}

func listRuns(ctx context.Context, st *store.Store, opts *TraceOptions, cmd *cobra.Command) error {
	runs, err := st.Runs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	views := make([]RunView, 0, len(runs))
	for _, r := range runs {
		views = append(views, RunView{
			RunID:         r.RunID,
			StartedAt:     r.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			EngineVersion: r.EngineVersion,
			Decisions:     r.Decisions,
		})
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(views)
	}
	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range views {
		fmt.Fprintf(w, "%s  %s  %s  %d decision(s)\n", r.RunID, r.StartedAt, r.EngineVersion, r.Decisions)
	}
	return nil
}
