package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Stamped by the release build via -ldflags; defaults describe a dev build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("strata %s (commit: %s, built: %s)\n", Version, Commit, BuildDate)
	},
}

// VersionString is the compact form reported by the health endpoint.
func VersionString() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
