package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command
func NewRootCmd(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gitgate",
		Short: "Gitgate runs compound git operations safely alongside other git tools",
		Long: `Gitgate runs compound git operations safely alongside other git tools.

Every operation waits until no other process holds a git lock, stashes local
changes that would be overwritten (with your consent) and restores them
afterwards. Conflicts are resolved file by file.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("cwd", "C", "", "Run as if started in this directory")
	rootCmd.PersistentFlags().Bool("debug", false, "Print debug output")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to every question")

	rootCmd.AddCommand(
		newMergeCmd(),
		newRebaseCmd(),
		newUpdateCmd(),
		newSwitchCmd(),
		newFetchCmd(),
		newPushCmd(),
		newCloneCmd(),
		newPublishCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newForgetCmd(),
	)

	return rootCmd
}
