package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"stackit.dev/gitgate/internal/cli/common"
	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/internal/lockmon"
	"stackit.dev/gitgate/internal/runtime"
	"stackit.dev/gitgate/internal/scheduler"
	"stackit.dev/gitgate/internal/tui"
)

// newWatchCmd creates the watch command
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow git locks, branch switches and working tree changes until interrupted",
		Long: `Follow git locks, branch switches and working tree changes until interrupted.

Working tree changes made while another git process holds a lock are held
back and reported as one batch once the lock is released.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				ctx.Config.Watch = true
				repo, err := ctx.Root()
				if err != nil {
					return err
				}

				sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
				defer stop()
				// The loop below renders every event, so it may read but never
				// start work that reports progress back to it
				sigCtx = scheduler.WithUIThread(sigCtx)

				// Gate listeners run under the gate's lock
				gateCh := make(chan bool, 16)
				repo.Gate.Subscribe(func(open bool) {
					select {
					case gateCh <- open:
					default:
					}
				})
				repo.Freezer.Subscribe(func(paths []string) {
					for _, p := range paths {
						ctx.Splog.Info("  changed %s", p)
					}
				})

				tree, err := lockmon.NewFSNotifySource(repo.Root, ctx.Splog.Logger())
				if err != nil {
					return err
				}
				defer tree.Close()

				ctx.Splog.Info("Watching %s (ctrl+c to stop)", tui.ColorCyan(repo.Root))
				for {
					select {
					case <-sigCtx.Done():
						return nil
					case open := <-gateCh:
						if open {
							ctx.Splog.Info("%s git locks released", tui.ColorGreen("●"))
						} else {
							ctx.Splog.Info("%s git locked: %v", tui.ColorYellow("●"), repo.Gate.Locks().Paths())
						}
					case ev, ok := <-tree.Events():
						if !ok {
							return errors.New("working tree watcher stopped")
						}
						if filepath.Base(ev.Path) == ".git" || filepath.Base(ev.OldPath) == ".git" {
							continue
						}
						if ev.Path != "" {
							repo.Freezer.Notify(rel(repo.Root, ev.Path))
						}
						if ev.OldPath != "" {
							repo.Freezer.Notify(rel(repo.Root, ev.OldPath))
						}
					case <-repo.Monitor.BranchChanged():
						branch, err := currentBranch(sigCtx, repo.Scheduler)
						if err != nil {
							ctx.Splog.Debug("current branch: %v", err)
							continue
						}
						ctx.Splog.Info("%s on %s", tui.ColorCyan("⎇"), branch)
					}
				}
			})
		},
	}
}

func currentBranch(ctx context.Context, s *scheduler.Scheduler) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return scheduler.Do(ctx, s, func(c context.Context, session *git.Session) (string, error) {
		head, err := session.Head(c)
		if err != nil {
			return "", err
		}
		return head.Short(), nil
	}, scheduler.Name("current branch"))
}

func rel(root, path string) string {
	if r, err := filepath.Rel(root, path); err == nil {
		return r
	}
	return path
}
