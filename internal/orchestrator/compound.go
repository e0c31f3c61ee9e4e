package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/internal/progress"
	"stackit.dev/gitgate/internal/route"
	"stackit.dev/gitgate/internal/scheduler"
)

// MergeOptions configures Merge
type MergeOptions struct {
	Target  string
	Message string // defaults to "Merge branch '<target>'"
	Options
}

// RebaseOptions configures Rebase
type RebaseOptions struct {
	Target string
	Options
}

// UpdateOptions configures Update
type UpdateOptions struct {
	// Rebase replays local commits onto the upstream instead of merging it
	Rebase bool
	Options
}

// SwitchOptions configures SwitchBranch
type SwitchOptions struct {
	Branch string
	// LeaveChanges parks local changes on the source branch instead of
	// carrying them over
	LeaveChanges bool
	Options
}

// coreFunc is the single blocking step of a compound operation
type coreFunc func(ctx context.Context, s *git.Session, pre *PreResult) (Result, error)

// frame runs pre-phase, core and post-phase. The post-phase runs however the
// core exits, and cancellation is reported as StatusCancelled rather than an
// error.
func (o *Orchestrator) frame(ctx context.Context, name string, repo *route.Repository, target string, opts Options, core coreFunc) (result Result, err error) {
	t := o.beginTask(name, repo)
	reporter := progress.FromContext(ctx)

	var pre *PreResult
	defer func() {
		if postErr := o.PostMergeRebase(ctx, repo, pre, &result); postErr != nil {
			o.logger.Error("failed to restore local changes", "op", name, "error", postErr)
			err = errors.Join(err, postErr)
		}
		o.finishTask(ctx, t, &result, err)
	}()

	pre, err = o.PreMergeRebase(ctx, repo, target, opts)
	if err != nil {
		return cancelled(err)
	}
	if !pre.Proceed {
		result.Status = pre.Status
		return result, nil
	}

	reporter.StepStarted(StepCore, fmt.Sprintf("%s %s", name, target))
	err = repo.Scheduler.Run(ctx, func(ctx context.Context, s *git.Session) error {
		r, err := core(ctx, s, pre)
		result = r
		return err
	}, scheduler.Blocking(), scheduler.UICallback(), scheduler.Name(name))
	if err != nil {
		reporter.StepFailed(StepCore, err)
		return cancelled(err)
	}
	reporter.StepCompleted(StepCore)
	return result, nil
}

// cancelled turns a cancellation into a status; other errors pass through
func cancelled(err error) (Result, error) {
	if gitgateerrors.Classify(err) == gitgateerrors.KindCancelled {
		return Result{Status: StatusCancelled}, nil
	}
	return Result{Status: StatusFailed}, err
}

// Merge merges opts.Target into the current branch
func (o *Orchestrator) Merge(ctx context.Context, repo *route.Repository, opts MergeOptions) (Result, error) {
	opts.Mode = ModeMerge
	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Merge branch '%s'", opts.Target)
	}

	return o.frame(ctx, "merge", repo, opts.Target, opts.Options, func(ctx context.Context, s *git.Session, pre *PreResult) (Result, error) {
		merged, err := s.Merge(ctx, opts.Target, opts.Message)
		if err != nil {
			if s.IsMergeInProgress() {
				if abortErr := s.AbortMerge(context.WithoutCancel(ctx)); abortErr != nil {
					o.logger.Warn("failed to abort merge", "error", abortErr)
				}
			}
			return Result{Status: StatusFailed}, err
		}
		if merged.Status != git.MergeConflicts {
			o.logger.Debug("merge finished", "target", opts.Target, "status", merged.Status.String())
			return Result{Status: StatusSucceeded}, nil
		}

		ok, conflicts, err := o.resolve(ctx, s, pre.StartTip, message)
		result := Result{Status: StatusSucceeded, Conflicts: conflicts}
		switch {
		case err != nil:
			result.Status = StatusFailed
		case !ok:
			result.Status = StatusAborted
		}
		return result, err
	})
}

// Rebase replays the commits of the current branch onto opts.Target
func (o *Orchestrator) Rebase(ctx context.Context, repo *route.Repository, opts RebaseOptions) (Result, error) {
	opts.Mode = ModeRebase

	return o.frame(ctx, "rebase", repo, opts.Target, opts.Options, func(ctx context.Context, s *git.Session, pre *PreResult) (Result, error) {
		return o.replay(ctx, s, pre, opts.Target)
	})
}

func (o *Orchestrator) replay(ctx context.Context, s *git.Session, pre *PreResult, target string) (Result, error) {
	upToDate, err := s.IsAncestor(ctx, target, "HEAD")
	if err != nil {
		return Result{Status: StatusFailed}, err
	}
	if upToDate {
		o.logger.Debug("branch already contains target", "target", target)
		return Result{Status: StatusSucceeded}, nil
	}

	base, err := s.MergeBase(ctx, "HEAD", target)
	if err != nil {
		return Result{Status: StatusFailed}, err
	}
	commits, err := s.CommitsSince(ctx, base, "HEAD")
	if err != nil {
		return Result{Status: StatusFailed}, err
	}
	tip, err := s.ResolveRevision(ctx, target)
	if err != nil {
		return Result{Status: StatusFailed}, err
	}

	// Merge commits are not replayed, so the pre-rebase HEAD is the only
	// safe restore point.
	rollback, err := s.ResolveRevision(ctx, "HEAD")
	if err != nil {
		return Result{Status: StatusFailed}, err
	}

	if err := s.HardReset(ctx, tip); err != nil {
		return Result{Status: StatusFailed}, err
	}

	result := Result{Status: StatusSucceeded}
	reporter := progress.FromContext(ctx)
	for i, c := range commits {
		reporter.Message(fmt.Sprintf("Replaying %d/%d: %s", i+1, len(commits), c.Subject()))

		picked, err := s.CherryPick(ctx, c.Hash)
		if err != nil {
			result.Status = StatusFailed
			return result, errors.Join(err, o.rollback(ctx, s, rollback, nil))
		}
		switch picked {
		case git.CherryPickEmpty:
			o.logger.Info("commit already applied, skipped", "commit", c.Hash, "subject", c.Subject())
			continue
		case git.CherryPickDone:
			continue
		}

		ok, conflicts, err := o.resolve(ctx, s, rollback, c.Message)
		result.Conflicts = append(result.Conflicts, conflicts...)
		if err != nil {
			result.Status = StatusFailed
			return result, err
		}
		if !ok {
			result.Status = StatusAborted
			return result, nil
		}
	}
	return result, nil
}

// Update fetches the upstream of the current branch and merges or rebases
// onto it
func (o *Orchestrator) Update(ctx context.Context, repo *route.Repository, opts UpdateOptions) (Result, error) {
	type upstream struct{ remote, ref string }
	up, err := scheduler.Do(ctx, repo.Scheduler, func(ctx context.Context, s *git.Session) (upstream, error) {
		branch, err := s.CurrentBranch(ctx)
		if err != nil {
			return upstream{}, err
		}
		remote, ref, err := s.Upstream(ctx, branch)
		return upstream{remote, ref}, err
	}, scheduler.Name("resolve upstream"))
	if err != nil {
		return cancelled(err)
	}

	if err := o.Fetch(ctx, repo, up.remote); err != nil {
		return cancelled(err)
	}

	target := strings.TrimPrefix(up.ref, "refs/remotes/")
	if opts.Rebase {
		return o.Rebase(ctx, repo, RebaseOptions{Target: target, Options: opts.Options})
	}
	return o.Merge(ctx, repo, MergeOptions{Target: target, Options: opts.Options})
}

// SwitchBranch checks out opts.Branch. Local changes are carried over through
// a temporary stash, or parked on the source branch with LeaveChanges.
func (o *Orchestrator) SwitchBranch(ctx context.Context, repo *route.Repository, opts SwitchOptions) (Result, error) {
	if opts.LeaveChanges {
		return o.switchLeavingChanges(ctx, repo, opts)
	}

	opts.Mode = ModeSwitch
	return o.frame(ctx, "switch", repo, opts.Branch, opts.Options, func(ctx context.Context, s *git.Session, _ *PreResult) (Result, error) {
		if err := s.Checkout(ctx, opts.Branch); err != nil {
			return Result{Status: StatusFailed}, err
		}
		return Result{Status: StatusSucceeded}, nil
	})
}

func (o *Orchestrator) switchLeavingChanges(ctx context.Context, repo *route.Repository, opts SwitchOptions) (result Result, err error) {
	t := o.beginTask("switch", repo)
	release := repo.Freezer.Scope()
	defer func() {
		release()
		o.finishTask(ctx, t, &result, err)
	}()

	if err := repo.Gate.Wait(ctx); err != nil {
		return cancelled(err)
	}

	err = repo.Scheduler.Run(ctx, func(ctx context.Context, s *git.Session) error {
		source, err := s.CurrentBranch(ctx)
		if err != nil {
			return err
		}
		if _, err := s.ResolveRevision(ctx, opts.Branch); err != nil {
			return err
		}

		parked := o.StashName(source)
		_, created, err := s.StashPush(ctx, parked)
		if err != nil {
			return err
		}
		if err := s.Checkout(ctx, opts.Branch); err != nil {
			if created {
				if _, rerr := o.restoreStash(context.WithoutCancel(ctx), s, parked); rerr != nil {
					err = errors.Join(err, rerr)
				}
			}
			return err
		}
		o.logger.Debug("switched branch", "from", source, "to", opts.Branch, "parked", created)

		if _, ok, err := s.FindStash(ctx, o.StashName(opts.Branch)); err != nil || !ok {
			return err
		}
		result.StashRestored, err = o.restoreStash(ctx, s, o.StashName(opts.Branch))
		return err
	}, scheduler.Blocking(), scheduler.Name("switch"))
	if err != nil {
		return cancelled(err)
	}
	result.Status = StatusSucceeded
	return result, nil
}
