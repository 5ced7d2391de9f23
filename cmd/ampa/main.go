package main

import (
	"os"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
