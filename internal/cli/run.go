package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/hydroexec/internal/archive"
	"github.com/roach88/hydroexec/internal/config"
	"github.com/roach88/hydroexec/internal/control"
	"github.com/roach88/hydroexec/internal/engine"
	"github.com/roach88/hydroexec/internal/ir"
	"github.com/roach88/hydroexec/internal/metrics"
	"github.com/roach88/hydroexec/internal/notify"
	"github.com/roach88/hydroexec/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Plant      string
	Config     string
	Database   string
	Archive    string
	MetricsOut string
	Tier       string
	RunID      string
	ReplayTime bool

	// RunIDGenerator allows overriding the run ID generator (for testing).
	// If nil and RunID is empty, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// RunSummary is printed when the engine has drained.
type RunSummary struct {
	RunID       string         `json:"run_id"`
	Plant       string         `json:"plant"`
	Submitted   int            `json:"submitted"`
	Rejected    int            `json:"rejected"`
	Cycles      int            `json:"cycles"`
	Emergencies map[string]int `json:"emergencies"`
	Archived    int            `json:"archived,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [telemetry...]",
		Short: "Start the engine and feed it telemetry",
		Long: `Start the hydroexec engine for every unit of a plant and feed it the
given telemetry files in order. With no files, samples are read as JSON
from stdin until EOF or Ctrl-C.

Each unit runs its own single-writer cycle loop. Decisions are recorded
to the SQLite audit store (--db), appended to a compressed archive
(--archive), and summarised as Prometheus metrics (--metrics-out).
Alerts go to the webhooks in the config file; control proposals go to
the control adapter in autonomous tier. Editing the config file while
the engine runs reconfigures it between cycles.

Sample age is judged against the real clock. Recorded files fed with
--replay-time are evaluated at their own timestamps and marked as replay.

Example:
  tail -f scada.jsonl | hydroexec run --plant plant.cue --config hydroexec.yaml
  hydroexec run --plant plant.cue --db ./audit.db --replay-time day1.jsonl`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Plant, "plant", "", "path to the CUE plant spec (required)")
	_ = cmd.MarkFlagRequired("plant")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to hydroexec.yaml (watched for changes)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite audit database (overrides audit.db_path)")
	cmd.Flags().StringVar(&opts.Archive, "archive", "", "path to the decision archive (overrides audit.archive_path)")
	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "write Prometheus text metrics here on exit")
	cmd.Flags().StringVar(&opts.Tier, "tier", "", "permission tier override (read-only|advisory|autonomous)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run ID to record under (default: new UUIDv7)")
	cmd.Flags().BoolVar(&opts.ReplayTime, "replay-time", false, "evaluate each sample at its own timestamp, as replay")

	return cmd
}

func runEngine(opts *RunOptions, inputs []string, cmd *cobra.Command) error {
	plant, err := loadPlant(opts.Plant)
	if err != nil {
		return err
	}
	cfg, settings, err := loadSettings(opts.Config, opts.Tier)
	if err != nil {
		return err
	}

	runID := opts.RunID
	if runID == "" {
		gen := opts.RunIDGenerator
		if gen == nil {
			gen = engine.UUIDv7Generator{}
		}
		runID = gen.Generate()
	}

	collector := metrics.NewCollector()
	adapter := control.NewAdapter(control.LogActuator{}, controlLimits(cfg))
	dispatchOpts := []engine.DispatcherOption{
		engine.WithObserver(collector),
		engine.WithController(adapter),
	}

	dbPath := firstNonEmpty(opts.Database, cfg.Audit.DBPath)
	if dbPath != "" {
		slog.Info("opening database", "path", dbPath, "durable", cfg.Audit.Durable)
		var storeOpts []store.Option
		if cfg.Audit.Durable {
			storeOpts = append(storeOpts, store.Durable())
		}
		st, err := store.Open(dbPath, storeOpts...)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		dispatchOpts = append(dispatchOpts, engine.WithAuditSink(st))
	}

	var arch *archive.Writer
	archivePath := firstNonEmpty(opts.Archive, cfg.Audit.ArchivePath)
	if archivePath != "" {
		f, err := os.Create(archivePath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create archive", err)
		}
		defer f.Close()
		arch, err = archive.NewWriter(f)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start archive", err)
		}
		dispatchOpts = append(dispatchOpts, engine.WithRecorder(arch))
	}

	if targets := notifyTargets(cfg); len(targets) > 0 {
		dispatchOpts = append(dispatchOpts, engine.WithNotifier(notify.New(targets, cfg.Notify.Timeout)))
	}

	summary := &RunSummary{RunID: runID, Plant: plant.Name, Emergencies: map[string]int{}}
	var mu sync.Mutex
	eng, err := engine.New(*plant, settings,
		engine.WithDispatcher(engine.NewDispatcher(runID, dispatchOpts...)),
		engine.WithOutcomeHook(func(out engine.Outcome) {
			mu.Lock()
			defer mu.Unlock()
			summary.Cycles++
			if e := out.Decision.Emergency; e != nil {
				summary.Emergencies[string(e.Reason)]++
			}
		}),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to start engine", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.Config != "" {
		go watchConfig(ctx, opts.Config, opts.Tier, eng, adapter)
	}

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	if len(inputs) == 0 {
		inputs = []string{"-"}
	}
	feedErr := feed(ctx, eng, inputs, cmd, opts.ReplayTime, summary)
	eng.Stop()
	runErr := <-done

	if arch != nil {
		if err := arch.Close(); err != nil {
			slog.Error("error closing archive", "error", err)
		}
		summary.Archived = arch.Count()
	}
	if opts.MetricsOut != "" {
		if err := writeMetricsFile(opts.MetricsOut, collector); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	if feedErr != nil {
		return feedErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", runErr)
	}

	mu.Lock()
	defer mu.Unlock()
	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(summary)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Run %s: %d cycle(s) on %q, %d rejected, %d emergency stop(s)\n",
		summary.RunID, summary.Cycles, summary.Plant, summary.Rejected, countAll(summary.Emergencies))
	return nil
}

// sampleMetadata is the cycle metadata for a fed sample. Live samples are
// aged against the wall clock; replay-time samples are evaluated at their
// own timestamp and marked as replay.
func sampleMetadata(t ir.Telemetry, replayTime bool) ir.Metadata {
	if !replayTime {
		return ir.Metadata{}
	}
	return ir.Metadata{IsReplay: true, SimulationTime: t.Timestamp}
}

// feed submits every sample of every input in order. Unknown units are
// counted and skipped. JSON input is streamed, so a pipe is decided while
// it is still being written.
func feed(ctx context.Context, eng *engine.Engine, inputs []string, cmd *cobra.Command, replayTime bool, summary *RunSummary) error {
	submit := func(t ir.Telemetry) error {
		err := eng.Submit(ctx, t, sampleMetadata(t, replayTime))
		switch {
		case err == nil:
			summary.Submitted++
		case engine.IsUnknownUnit(err):
			slog.Warn("telemetry rejected", "unit", t.UnitID, "err", err)
			summary.Rejected++
		default:
			return err
		}
		return nil
	}

	for _, in := range inputs {
		slog.Debug("feeding telemetry", "input", in)
		if err := feedInput(in, cmd.InOrStdin(), submit); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var fault *engine.FaultError
			if errors.As(err, &fault) {
				return WrapExitError(ExitFailure, "submit failed", err)
			}
			return WrapExitError(ExitCommandError, "failed to load telemetry", err)
		}
	}
	return nil
}

func feedInput(path string, stdin io.Reader, submit func(ir.Telemetry) error) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		samples, err := LoadTelemetry(path, stdin)
		if err != nil {
			return err
		}
		for _, t := range samples {
			if err := submit(t); err != nil {
				return err
			}
		}
		return nil
	}

	if path == "-" {
		return StreamTelemetry(stdin, submit)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open telemetry: %w", err)
	}
	defer f.Close()
	return StreamTelemetry(f, submit)
}

func watchConfig(ctx context.Context, path, tier string, eng *engine.Engine, adapter *control.Adapter) {
	err := config.Watch(ctx, path, func(c *config.Config) {
		if tier != "" {
			c.Engine.Tier = tier
		}
		eng.Reconfigure(engine.SettingsFromConfig(c))
		adapter.SetLimits(controlLimits(c))
	})
	if err != nil {
		slog.Error("config watch stopped", "path", path, "err", err)
	}
}

func controlLimits(cfg *config.Config) control.Limits {
	return control.Limits{
		MaxVibrationMmS:    cfg.Control.MaxVibrationMmS,
		NominalFrequencyHz: cfg.Control.NominalFrequencyHz,
		FrequencyBandHz:    cfg.Control.FrequencyBandHz,
	}
}

func notifyTargets(cfg *config.Config) []notify.Target {
	var targets []notify.Target
	for _, w := range cfg.Notify.Webhooks {
		url := w.ResolveURL()
		if url == "" {
			slog.Warn("webhook has no URL, skipping", "type", w.Type, "url_env", w.URLEnv)
			continue
		}
		targets = append(targets, notify.Target{Type: w.Type, URL: url})
	}
	return targets
}

func writeMetricsFile(path string, c *metrics.Collector) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func countAll(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
