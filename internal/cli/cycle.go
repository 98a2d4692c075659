package cli

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hydroexec/internal/engine"
	"github.com/roach88/hydroexec/internal/fleet"
)

// CycleOptions holds flags for the cycle command.
type CycleOptions struct {
	*RootOptions
	Plant     string
	Config    string
	Tier       string
	ReplayTime bool
}

// NewCycleCommand creates the cycle command.
func NewCycleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CycleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cycle <telemetry>",
		Short: "Evaluate telemetry samples without collaborators",
		Long: `Run executive cycles for the samples in a telemetry file and print
each decision. Nothing is recorded, notified, or actuated.

Samples run in file order on fresh executives. Sample age is judged
against the real clock, so an old recording stops on HEARTBEAT_TIMEOUT.
Pass --replay-time to evaluate a recording at its own timestamps; the
cycles are then marked as replay.

Examples:
  hydroexec cycle --plant plant.cue sample.yaml
  hydroexec cycle --plant plant.cue --replay-time day1.jsonl
  hydroexec cycle --plant plant.cue --tier autonomous samples.jsonl --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Plant, "plant", "", "path to the CUE plant spec (required)")
	_ = cmd.MarkFlagRequired("plant")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to hydroexec.yaml")
	cmd.Flags().StringVar(&opts.Tier, "tier", "", "permission tier override (read-only|advisory|autonomous)")
	cmd.Flags().BoolVar(&opts.ReplayTime, "replay-time", false, "evaluate each sample at its own timestamp, as replay")

	return cmd
}

func runCycle(opts *CycleOptions, path string, cmd *cobra.Command) error {
	plant, err := loadPlant(opts.Plant)
	if err != nil {
		return err
	}
	_, settings, err := loadSettings(opts.Config, opts.Tier)
	if err != nil {
		return err
	}
	samples, err := LoadTelemetry(path, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load telemetry", err)
	}

	board := fleet.NewBoard()
	units := make(map[string]*engine.Executive, len(plant.Units))
	for _, u := range plant.Units {
		units[u.ID] = engine.NewExecutive(u, plant.Capacity(), settings, engine.WithNow(time.Now))
		board.Publish(initialStatus(u))
	}

	views := make([]DecisionView, 0, len(samples))
	for _, t := range samples {
		x, ok := units[t.UnitID]
		if !ok {
			return WrapExitError(ExitCommandError, "telemetry rejected", engine.NewUnknownUnitError(t.UnitID))
		}
		md := sampleMetadata(t, opts.ReplayTime)
		md.Fleet = board.Snapshot()
		out := x.ExecuteCycle(t, md)
		board.Publish(x.Status(out.Decision))
		views = append(views, newDecisionView("", out.Decision, out.Events))
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	for _, v := range views {
		writeDecisionText(cmd.OutOrStdout(), v)
	}
	return nil
}
