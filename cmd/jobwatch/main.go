// Command jobwatch tracks HTCondor jobs against the job tracking database.
package main

import (
	"os"

	"github.com/kbase/jobwatch/internal/cmd"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	os.Exit(cmd.Execute())
}
