package main

import (
	"fmt"
	"os"

	"github.com/pgden/pgden/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		// A bare ExitError carries a child process exit code whose output
		// the user has already seen; don't print an empty line for it.
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
