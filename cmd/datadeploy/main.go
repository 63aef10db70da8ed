package main

import (
	"datadeploy/internal/cli"
	_ "datadeploy/internal/steps/builtin"
)

// These variables are populated by the build via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cli.SetBuildInfo(version, commit, date)
	cli.Execute()
}
