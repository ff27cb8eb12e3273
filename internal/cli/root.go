// Package cli implements the fl command tree. Commands reach the
// orchestration services through package-level variables set during
// application wiring in internal/app.go.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "forgeloop - autonomous build-test-debug orchestration",
	Long: `forgeloop (fl) coordinates a team of specialized model agents that take
a raw product idea through ideation and planning into a self-healing
build: every planned file is generated, tested, and debugged in strict
sequence until the tree passes or the attempt budget runs out.

It provides CLI commands for managing projects, driving builds, watching
agent status, and routing lifecycle events to webhooks.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fl %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
