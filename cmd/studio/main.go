// Package main is the entry point for the studio CLI.
// It runs feature requests through the multi-agent game pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/philjestin/studiomode/internal/cli"
)

// Build information. Populated at build time by GoReleaser.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date, builtBy)

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
