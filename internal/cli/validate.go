package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hydroexec/internal/compiler"
)

// ValidateResult is the JSON payload of a successful validation.
type ValidateResult struct {
	Valid       bool    `json:"valid"`
	Plant       string  `json:"plant"`
	Units       int     `json:"units"`
	CapacityMw  float64 `json:"capacity_mw"`
	InstalledMw float64 `json:"installed_mw"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plant>",
		Short: "Validate a plant spec",
		Long: `Validate a CUE plant spec without starting the engine.

The argument is a .cue file or a directory of .cue files defining a
top-level "plant" value. Every problem is reported, not just the first.

Exit codes:
  0 - Plant is valid
  1 - Plant failed to compile or validate
  2 - Command error (path not found)

Examples:
  hydroexec validate ./plant.cue
  hydroexec validate ./plants/alpine --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		msg := fmt.Sprintf("plant not found: %s", path)
		_ = f.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	f.VerboseLog("Loading plant from %s", path)
	spec, err := compiler.LoadPlant(path)
	if err != nil {
		_ = f.Error(ErrCodeLoad, err.Error(), nil)
		return WrapExitError(ExitFailure, "plant failed to compile", err)
	}

	if errs := compiler.Validate(spec); len(errs) > 0 {
		if opts.Format == "json" {
			_ = f.Error(ErrCodeInvalid, fmt.Sprintf("%d validation error(s)", len(errs)), errs)
		} else {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "✗ %s: %d validation error(s)\n", spec.Name, len(errs))
			for _, e := range errs {
				fmt.Fprintf(w, "  %s\n", e.Error())
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("plant %q is invalid", spec.Name))
	}

	var installed float64
	for _, u := range spec.Units {
		installed += u.MaxCapacityMw
	}
	if opts.Format == "json" {
		return f.Success(ValidateResult{
			Valid:       true,
			Plant:       spec.Name,
			Units:       len(spec.Units),
			CapacityMw:  spec.Capacity(),
			InstalledMw: installed,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Plant %q valid: %d unit(s), %g MW budget\n",
		spec.Name, len(spec.Units), spec.Capacity())
	return nil
}
