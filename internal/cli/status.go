package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"stackit.dev/gitgate/internal/cli/common"
	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/internal/route"
	"stackit.dev/gitgate/internal/runtime"
	"stackit.dev/gitgate/internal/scheduler"
	"stackit.dev/gitgate/internal/tui"
)

type repoStatus struct {
	branch   string
	head     string
	changes  []git.FileStatus
	stashes  []git.StashRecord
	progress string
}

// newStatusCmd creates the status command
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [path...]",
		Short: "Show branch, local changes and git locks of the repositories owning the paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				paths := args
				if len(paths) == 0 {
					paths = []string{ctx.RepoRoot}
				}
				for i, p := range paths {
					if !filepath.IsAbs(p) {
						paths[i] = filepath.Join(ctx.RepoRoot, p)
					}
				}

				groups, err := ctx.Resolver.GroupByRepository(ctx.Context, paths)
				if err != nil {
					return err
				}
				repos := make([]*route.Repository, 0, len(groups))
				for repo := range groups {
					repos = append(repos, repo)
				}
				sort.Slice(repos, func(i, j int) bool { return repos[i].Root < repos[j].Root })
				for _, repo := range repos {
					if err := printStatus(ctx, repo); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func printStatus(ctx *runtime.Context, repo *route.Repository) error {
	// Locks from other tools are re-checked before reporting
	repo.Gate.Recheck()

	st, err := scheduler.Do(ctx.Context, repo.Scheduler, func(c context.Context, s *git.Session) (repoStatus, error) {
		var st repoStatus
		head, err := s.Head(c)
		if err != nil {
			return st, err
		}
		st.head = head.Short()
		if branch, err := s.CurrentBranch(c); err == nil {
			st.branch = branch
		}
		if st.changes, err = s.Status(c); err != nil {
			return st, err
		}
		if st.stashes, err = s.StashList(c); err != nil {
			return st, err
		}
		switch {
		case s.IsRebaseInProgress():
			st.progress = "rebase"
		case s.IsCherryPickInProgress():
			st.progress = "cherry-pick"
		case s.IsMergeInProgress():
			st.progress = "merge"
		}
		return st, nil
	}, scheduler.Name("status"))
	if err != nil {
		return err
	}

	name := repo.Root
	if repo.IsSubmodule {
		name += " (submodule)"
	}
	ctx.Splog.Info("%s", tui.ColorCyan(name))

	branch := st.branch
	if branch == "" {
		branch = "detached at " + st.head
	}
	ctx.Splog.Info("  branch: %s", branch)
	if st.progress != "" {
		ctx.Splog.Warn("%s in progress", st.progress)
	}

	if repo.Gate.IsOpen() {
		ctx.Splog.Info("  locks:  %s", tui.ColorGreen("none"))
	} else {
		for _, lock := range repo.Gate.Locks().Paths() {
			ctx.Splog.Info("  locks:  %s", tui.ColorYellow(lock))
		}
	}
	if repo.Freezer.Frozen() {
		ctx.Splog.Info("  file watching is frozen")
	}

	if len(st.changes) == 0 {
		ctx.Splog.Info("  working tree clean")
	}
	for _, f := range st.changes {
		code := fmt.Sprintf("%c%c", f.Staging, f.Worktree)
		if f.IsConflicted() {
			code = tui.ColorRed(code)
		}
		ctx.Splog.Info("  %s %s", code, f.Path)
	}
	for _, stash := range st.stashes {
		ctx.Splog.Info("  stash:  %s", stash.Message)
	}
	ctx.Splog.Newline()
	return nil
}
