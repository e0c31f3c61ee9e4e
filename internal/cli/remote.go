package cli

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"stackit.dev/gitgate/internal/cli/common"
	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/internal/orchestrator"
	"stackit.dev/gitgate/internal/runtime"
	"stackit.dev/gitgate/internal/tui"
	"stackit.dev/gitgate/internal/utils"
)

func remoteArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return git.DefaultRemote
}

// newFetchCmd creates the fetch command
func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [remote]",
		Short: "Fetch from a remote",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				repo, err := ctx.Root()
				if err != nil {
					return err
				}
				remote := remoteArg(args)
				err = common.WithProgress(ctx, "Fetch", []string{"fetch " + remote}, func(c context.Context) error {
					return common.Step(c, 0, "fetch "+remote, func() error {
						return ctx.Orchestrator.Fetch(c, repo, remote)
					})
				})
				if err != nil {
					return err
				}
				ctx.Splog.Info("%s fetched %s", tui.ColorGreen("✓"), remote)
				return nil
			})
		},
	}
}

// newPushCmd creates the push command
func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push [remote]",
		Short: "Push the current branch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				repo, err := ctx.Root()
				if err != nil {
					return err
				}
				remote := remoteArg(args)
				err = common.WithProgress(ctx, "Push", []string{"push " + remote}, func(c context.Context) error {
					return common.Step(c, 0, "push "+remote, func() error {
						return ctx.Orchestrator.Push(c, repo, remote)
					})
				})
				if err != nil {
					return err
				}
				ctx.Splog.Info("%s pushed to %s", tui.ColorGreen("✓"), remote)
				return nil
			})
		},
	}
}

// newCloneCmd creates the clone command. It runs outside any repository.
func newCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <url> [directory]",
		Short: "Clone a repository",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			dir := strings.TrimSuffix(filepath.Base(url), ".git")
			if len(args) == 2 {
				dir = args[1]
			}
			if cwd, _ := cmd.Flags().GetString("cwd"); cwd != "" && !filepath.IsAbs(dir) {
				dir = filepath.Join(cwd, dir)
			}

			opts := common.Options(cmd)
			splog, err := tui.NewSplogWithOptions(tui.LogOptions{Debug: opts.Debug})
			if err != nil {
				return err
			}
			defer splog.Close()

			screen := &tui.Screen{}
			orch := orchestrator.New(
				orchestrator.WithCredentials(tui.NewTerminalCredentials(screen)),
				orchestrator.WithPrompter(tui.NewTerminalPrompter(screen, opts.AssumeYes)),
				orchestrator.WithLogger(splog.Logger()),
			)
			rc := &runtime.Context{Context: cmd.Context(), Splog: splog, Screen: screen}
			err = common.WithProgress(rc, "Clone", []string{"clone " + url}, func(c context.Context) error {
				return common.Step(c, 0, "clone "+url, func() error {
					return orch.Clone(c, url, dir)
				})
			})
			if err != nil {
				return err
			}
			splog.Info("%s cloned into %s", tui.ColorGreen("✓"), dir)
			return nil
		},
	}
}

// newPublishCmd creates the publish command
func newPublishCmd() *cobra.Command {
	var (
		opts orchestrator.PublishOptions
		web  bool
	)

	cmd := &cobra.Command{
		Use:   "publish <name>",
		Short: "Create a hosted repository and push the current branch to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				repo, err := ctx.Root()
				if err != nil {
					return err
				}
				opts.Name = args[0]

				var cloneURL string
				err = common.WithProgress(ctx, "Publish", []string{"publish " + opts.Name}, func(c context.Context) error {
					return common.Step(c, 0, "publish "+opts.Name, func() error {
						cloneURL, err = ctx.Orchestrator.Publish(c, repo, opts)
						return err
					})
				})
				if err != nil {
					return err
				}
				ctx.Splog.Info("%s published to %s", tui.ColorGreen("✓"), tui.ColorCyan(cloneURL))
				if web {
					if err := utils.OpenBrowser(strings.TrimSuffix(cloneURL, ".git")); err != nil {
						ctx.Splog.Warn("could not open a browser: %v", err)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Description, "description", "d", "", "Repository description")
	cmd.Flags().BoolVar(&opts.Private, "private", false, "Create a private repository")
	cmd.Flags().BoolVarP(&web, "web", "w", false, "Open the new repository in a browser")
	cmd.Flags().StringVar(&opts.Remote, "remote", git.DefaultRemote, "Name of the remote to add")
	return cmd
}
