// Package main provides the threadline CLI.
package main

import "github.com/dotcommander/threadline/internal/cmd"

// Build vars.
var (
	//nolint: gochecknoglobals
	Version = ""
	//nolint: gochecknoglobals
	CommitSHA = ""
)

func main() {
	cmd.Execute(cmd.BuildInfo{Version: Version, CommitSHA: CommitSHA})
}
