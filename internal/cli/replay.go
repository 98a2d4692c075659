package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hydroexec/internal/archive"
	"github.com/roach88/hydroexec/internal/engine"
	"github.com/roach88/hydroexec/internal/ir"
	"github.com/roach88/hydroexec/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Plant    string
	Config   string
	Database string
	Archive  string
	RunID    string
	Unit     string
	Strict   bool
}

// UnitReplay is the replay outcome of one unit.
type UnitReplay struct {
	Unit          string                  `json:"unit"`
	Cycles        int                     `json:"cycles"`
	Deterministic bool                    `json:"deterministic"`
	Matched       int                     `json:"matched"`
	Mismatches    []engine.ReplayMismatch `json:"mismatches,omitempty"`
}

// ReplayResult is the replay outcome of a whole run.
type ReplayResult struct {
	RunID         string       `json:"run_id,omitempty"`
	Source        string       `json:"source"`
	Deterministic bool         `json:"deterministic"`
	Units         []UnitReplay `json:"units"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded telemetry and verify determinism",
		Long: `Re-execute recorded cycles and verify the engine reproduces them.

Records come from the SQLite audit store (--db, optionally --run) or
from a decision archive (--archive). Each unit is replayed twice; the
two passes must produce identical decisions. Decisions are also compared
with the recording. Samples that stopped the live run on staleness are
monitor-only in replay, so such cycles are reported but only fail the
command with --strict.

Exit codes:
  0 - Replay is deterministic
  1 - Replay diverged (or, with --strict, differs from the recording)
  2 - Command error

Examples:
  hydroexec replay --plant plant.cue --db ./audit.db
  hydroexec replay --plant plant.cue --db ./audit.db --run 0192... --unit U1
  hydroexec replay --plant plant.cue --archive ./run.hxa --strict`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Plant, "plant", "", "path to the CUE plant spec (required)")
	_ = cmd.MarkFlagRequired("plant")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to hydroexec.yaml")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite audit database")
	cmd.Flags().StringVar(&opts.Archive, "archive", "", "path to a decision archive")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to replay (default: most recent run)")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "replay only this unit")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail when a decision differs from the recording")
	cmd.MarkFlagsMutuallyExclusive("db", "archive")
	cmd.MarkFlagsOneRequired("db", "archive")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	plant, err := loadPlant(opts.Plant)
	if err != nil {
		return err
	}
	_, settings, err := loadSettings(opts.Config, "")
	if err != nil {
		return err
	}

	result := ReplayResult{Deterministic: true, Units: []UnitReplay{}}
	var byUnit map[string][]ir.AuditRecord
	if opts.Archive != "" {
		result.Source = opts.Archive
		byUnit, err = archiveRecords(opts.Archive)
	} else {
		result.Source = opts.Database
		result.RunID, byUnit, err = storeRecords(ctx, opts.Database, opts.RunID, plant)
	}
	if err != nil {
		return err
	}

	for _, u := range plant.Units {
		if opts.Unit != "" && u.ID != opts.Unit {
			continue
		}
		recs := byUnit[u.ID]
		if len(recs) == 0 {
			continue
		}

		replay := make([]engine.ReplayRecord, 0, len(recs))
		for _, r := range recs {
			rr, err := engine.RecordFromAudit(r)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid record", err)
			}
			replay = append(replay, rr)
		}
		res, err := engine.Replay(u, plant.Capacity(), settings, replay)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("replay of %s failed", u.ID), err)
		}
		result.Units = append(result.Units, UnitReplay{
			Unit:          u.ID,
			Cycles:        res.Cycles,
			Deterministic: res.Deterministic,
			Matched:       res.Matched,
			Mismatches:    res.Mismatches,
		})
		if !res.Deterministic {
			result.Deterministic = false
		}
	}

	if opts.Unit != "" && len(result.Units) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no records for unit %s", opts.Unit))
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		writeReplayText(cmd, result)
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, "replay is not deterministic")
	}
	if opts.Strict {
		for _, u := range result.Units {
			if len(u.Mismatches) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("unit %s differs from the recording", u.Unit))
			}
		}
	}
	return nil
}

func writeReplayText(cmd *cobra.Command, result ReplayResult) {
	w := cmd.OutOrStdout()
	if len(result.Units) == 0 {
		fmt.Fprintln(w, "No records to replay.")
		return
	}
	for _, u := range result.Units {
		mark := "✓"
		if !u.Deterministic {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %d cycle(s), %d match the recording\n", mark, u.Unit, u.Cycles, u.Matched)
		for _, m := range u.Mismatches {
			fmt.Fprintf(w, "  seq %d: recorded %.12s replayed %.12s\n", m.Seq, m.Recorded, m.Replayed)
		}
	}
	if result.Deterministic {
		fmt.Fprintln(w, "Replay is deterministic.")
	} else {
		fmt.Fprintln(w, "Replay diverged between passes.")
	}
}

func archiveRecords(path string) (map[string][]ir.AuditRecord, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("archive not found: %s", path))
	}
	recs, err := archive.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read archive", err)
	}
	byUnit := make(map[string][]ir.AuditRecord)
	for _, r := range recs {
		byUnit[r.Decision.UnitID] = append(byUnit[r.Decision.UnitID], r)
	}
	return byUnit, nil
}

func storeRecords(ctx context.Context, path, runID string, plant *ir.PlantSpec) (string, map[string][]ir.AuditRecord, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path, store.ReadOnly())
	if err != nil {
		return "", nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if runID == "" {
		runs, err := st.Runs(ctx)
		if err != nil {
			return "", nil, WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if len(runs) == 0 {
			return "", map[string][]ir.AuditRecord{}, nil
		}
		runID = runs[len(runs)-1].RunID
	}

	byUnit := make(map[string][]ir.AuditRecord, len(plant.Units))
	for _, u := range plant.Units {
		recs, err := st.ReplayTelemetry(ctx, runID, u.ID)
		if err != nil {
			return "", nil, WrapExitError(ExitCommandError, "failed to read records", err)
		}
		byUnit[u.ID] = recs
	}
	return runID, byUnit, nil
}
