// Command ruleunit compiles, runs and tests forward-chaining rule sets.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ruleunit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
