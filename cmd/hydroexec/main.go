// Command hydroexec is the executive decision core for hydro turbine units.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/hydroexec/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
