package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stackit.dev/gitgate/internal/cli/common"
	"stackit.dev/gitgate/internal/orchestrator"
	"stackit.dev/gitgate/internal/runtime"
	"stackit.dev/gitgate/internal/utils"
)

// autoStash resolves --autostash against the configured default
func autoStash(cmd *cobra.Command, ctx *runtime.Context, flag bool) bool {
	if cmd.Flags().Changed("autostash") {
		return flag
	}
	return ctx.Config.AutoStash
}

// newMergeCmd creates the merge command
func newMergeCmd() *cobra.Command {
	var (
		message   string
		autostash bool
	)

	cmd := &cobra.Command{
		Use:               "merge <branch>",
		Short:             "Merge a branch into the current branch",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: common.CompleteBranches,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				repo, err := ctx.Root()
				if err != nil {
					return err
				}
				target := args[0]
				if message == "-" {
					if message, err = utils.ReadPiped(os.Stdin); err != nil {
						return err
					}
				}
				opts := orchestrator.MergeOptions{
					Target:  target,
					Message: message,
					Options: orchestrator.Options{AutoStash: autoStash(cmd, ctx, autostash)},
				}

				var result orchestrator.Result
				err = common.WithProgress(ctx, "Merge", common.CompoundSteps("merge "+target), func(c context.Context) error {
					result, err = ctx.Orchestrator.Merge(c, repo, opts)
					return err
				})
				return common.Report(ctx, fmt.Sprintf("merge %s", target), result, err)
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Merge commit message, - reads it from stdin")
	cmd.Flags().BoolVar(&autostash, "autostash", false, "Stash conflicting local changes without asking")
	return cmd
}

// newRebaseCmd creates the rebase command
func newRebaseCmd() *cobra.Command {
	var autostash bool

	cmd := &cobra.Command{
		Use:               "rebase <branch>",
		Short:             "Replay the current branch's commits onto another branch",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: common.CompleteBranches,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				repo, err := ctx.Root()
				if err != nil {
					return err
				}
				target := args[0]
				opts := orchestrator.RebaseOptions{
					Target:  target,
					Options: orchestrator.Options{AutoStash: autoStash(cmd, ctx, autostash)},
				}

				var result orchestrator.Result
				err = common.WithProgress(ctx, "Rebase", common.CompoundSteps("rebase onto "+target), func(c context.Context) error {
					result, err = ctx.Orchestrator.Rebase(c, repo, opts)
					return err
				})
				return common.Report(ctx, fmt.Sprintf("rebase onto %s", target), result, err)
			})
		},
	}

	cmd.Flags().BoolVar(&autostash, "autostash", false, "Stash conflicting local changes without asking")
	return cmd
}

// newUpdateCmd creates the update command
func newUpdateCmd() *cobra.Command {
	var (
		rebase    bool
		autostash bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Fetch and integrate the current branch's upstream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				repo, err := ctx.Root()
				if err != nil {
					return err
				}
				opts := orchestrator.UpdateOptions{
					Rebase:  rebase,
					Options: orchestrator.Options{AutoStash: autoStash(cmd, ctx, autostash)},
				}

				var result orchestrator.Result
				err = common.WithProgress(ctx, "Update", common.CompoundSteps("integrate upstream"), func(c context.Context) error {
					result, err = ctx.Orchestrator.Update(c, repo, opts)
					return err
				})
				return common.Report(ctx, "update", result, err)
			})
		},
	}

	cmd.Flags().BoolVarP(&rebase, "rebase", "r", false, "Rebase onto the upstream instead of merging")
	cmd.Flags().BoolVar(&autostash, "autostash", false, "Stash conflicting local changes without asking")
	return cmd
}

// newSwitchCmd creates the switch command
func newSwitchCmd() *cobra.Command {
	var (
		leave     bool
		autostash bool
	)

	cmd := &cobra.Command{
		Use:               "switch <branch>",
		Short:             "Switch to another branch",
		Long: `Switch to another branch.

By default local changes travel with you, stashed first if they would be
overwritten. With --leave-changes they stay parked on the branch you leave and
come back when you return to it.`,
		Aliases:           []string{"checkout", "co"},
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: common.CompleteBranches,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				repo, err := ctx.Root()
				if err != nil {
					return err
				}
				branch := args[0]
				opts := orchestrator.SwitchOptions{
					Branch:       branch,
					LeaveChanges: leave,
					Options:      orchestrator.Options{AutoStash: autoStash(cmd, ctx, autostash)},
				}

				var result orchestrator.Result
				err = common.WithProgress(ctx, "Switch", common.CompoundSteps("checkout "+branch), func(c context.Context) error {
					result, err = ctx.Orchestrator.SwitchBranch(c, repo, opts)
					return err
				})
				return common.Report(ctx, fmt.Sprintf("switch to %s", branch), result, err)
			})
		},
	}

	cmd.Flags().BoolVar(&leave, "leave-changes", false, "Park local changes on the current branch")
	cmd.Flags().BoolVar(&autostash, "autostash", false, "Stash conflicting local changes without asking")
	return cmd
}
