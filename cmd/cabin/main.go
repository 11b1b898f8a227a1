// Command cabin builds, tracks and prunes versioned datasets.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/seeqbio/cabin/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}
	// ExitErrors were already reported by the command in the selected
	// output format; anything else comes from argument parsing.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
