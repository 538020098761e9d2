package main

import (
	"os"

	"github.com/feichai0017/filing-pipeline/cmd/ingest/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Errors are already printed by the printer package.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
