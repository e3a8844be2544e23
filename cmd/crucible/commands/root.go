package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "crucible",
		Short: "Crucible - Sequential Action Execution Engine",
		Long: `Crucible executes declared actions against a sandboxed workspace,
strictly in arrival order, one at a time.

Action kinds:
  - shell: run command text in a shared shell session
  - file:  write content to a workspace-relative path
  - build: run the configured build command and keep the artifact
  - start: launch a long-running process, detached
  - data:  persist a migration file or announce a query for confirmation

Failures are classified against known error patterns and reported as
alerts; the queue always continues with the next action.`,
		Version: version + " (commit: " + commit + ", built: " + buildDate + ")",
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
