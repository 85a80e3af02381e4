// Command trutils maintains TestRail test cases.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/trutils/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "trutils: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
