// Package cli implements the gitquest command-line interface using Cobra.
// serve runs the HTTP daemon; the other commands operate on the local
// database directly for administration.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitquest/gitquest/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "gitquest",
	Short: "gitquest: XP, levels and achievements for your commits",
	Long: `gitquest turns commit activity into progression.
Commits earn XP and build day streaks. Milestones unlock achievements
and daily and weekly challenges pay out bonus XP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openDaemon loads the config and opens the store for a one-shot command.
func openDaemon() (*daemon.Daemon, error) {
	return daemon.New(rootCmd.Version)
}
