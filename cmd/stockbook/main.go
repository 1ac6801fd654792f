package main

import (
	"fmt"
	"os"

	"github.com/avelis/stockbook/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stockbook:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
