package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hydroexec/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <plant>",
		Short: "Compile a plant spec to canonical JSON",
		Long: `Compile a CUE plant spec into the canonical JSON plant the engine
runs with: units sorted by ID, defaults filled in.

Examples:
  hydroexec compile ./plant.cue
  hydroexec compile ./plants/alpine -o plant.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	spec, err := loadPlant(path)
	if err != nil {
		return err
	}

	data, err := ir.MarshalCanonical(spec)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode plant", err)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		if opts.Format == "json" {
			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(map[string]any{"plant": spec.Name, "output": opts.Output})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Compiled %q to %s\n", spec.Name, opts.Output)
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
