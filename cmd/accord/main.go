// Command accord is the fragrance formula workbench CLI.
//
// Usage:
//
//	accord catalog
//	accord apply script.yaml --session amber
//	accord rows --session amber
//	accord test ./scenarios --golden ./golden
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/accord/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}

	// Errors carrying a reason code were already written by the command in
	// the selected format.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Reason == "" {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
