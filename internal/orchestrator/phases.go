package orchestrator

import (
	"context"
	"errors"
	"fmt"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/internal/progress"
	"stackit.dev/gitgate/internal/route"
	"stackit.dev/gitgate/internal/scheduler"
)

// Mode selects how local changes are checked against the incoming change
type Mode int

const (
	// ModeMerge conflicts when a locally changed path is also changed by the target
	ModeMerge Mode = iota
	// ModeRebase conflicts on any tracked local change, since the replay resets the tree
	ModeRebase
	// ModeSwitch conflicts like ModeMerge
	ModeSwitch
)

func (m Mode) String() string {
	switch m {
	case ModeRebase:
		return "rebase"
	case ModeSwitch:
		return "checkout"
	default:
		return "merge"
	}
}

// Options are shared by every compound operation
type Options struct {
	// AutoStash stashes local changes without asking
	AutoStash bool
	Mode      Mode
}

// Step indexes reported to progress.Reporter
const (
	StepPrepare = iota
	StepCore
	StepRestore
)

// PreResult is the outcome of the pre-phase. It always carries the freeze
// taken by the pre-phase, which PostMergeRebase releases.
type PreResult struct {
	Proceed   bool
	Status    Status
	Stash     *git.StashRecord // nil when nothing was stashed
	StashName string
	Options   Options
	Branch    string
	StartTip  string

	release func()
}

// localCheck is what the pre-phase learns about the working tree
type localCheck struct {
	branch      string
	head        string
	dirty       bool
	conflicting []string
}

// PreMergeRebase freezes notifications, waits for the gate and, when local
// changes collide with target, asks whether to stash them (unless AutoStash
// is set). The returned PreResult is never nil and must be passed to
// PostMergeRebase.
func (o *Orchestrator) PreMergeRebase(ctx context.Context, repo *route.Repository, target string, opts Options) (*PreResult, error) {
	pre := &PreResult{
		Options:   opts,
		StashName: o.StashName(target),
		release:   repo.Freezer.Scope(),
	}
	reporter := progress.FromContext(ctx)
	reporter.StepStarted(StepPrepare, "Checking local changes")

	if err := repo.Gate.Wait(ctx); err != nil {
		pre.Status = StatusCancelled
		reporter.StepFailed(StepPrepare, err)
		return pre, err
	}

	check, err := scheduler.Do(ctx, repo.Scheduler, func(ctx context.Context, s *git.Session) (localCheck, error) {
		return checkLocalChanges(ctx, s, target, opts.Mode)
	}, scheduler.Name("check local changes"))
	if err != nil {
		pre.Status = StatusFailed
		reporter.StepFailed(StepPrepare, err)
		return pre, err
	}
	pre.Branch = check.branch
	pre.StartTip = check.head

	stash := opts.AutoStash && check.dirty
	if len(check.conflicting) > 0 && !opts.AutoStash {
		yes, err := o.confirm(ctx, Question{
			ID: "stash-before-" + opts.Mode.String(),
			Message: fmt.Sprintf("Local changes to %d file(s) would be overwritten by %s %s. Stash them and continue?",
				len(check.conflicting), opts.Mode, target),
			AllowRemember: true,
		})
		if err != nil && !errors.Is(err, gitgateerrors.ErrUserCancelled) {
			pre.Status = StatusFailed
			reporter.StepFailed(StepPrepare, err)
			return pre, err
		}
		if !yes {
			o.logger.Info("stash declined, operation not started", "target", target, "conflicting", check.conflicting)
			pre.Status = StatusDeclined
			reporter.StepFailed(StepPrepare, gitgateerrors.ErrUserCancelled)
			return pre, nil
		}
		pre.Options.AutoStash = true
		stash = true
	}

	if stash {
		record, err := scheduler.Do(ctx, repo.Scheduler, func(ctx context.Context, s *git.Session) (*git.StashRecord, error) {
			rec, created, err := s.StashPush(ctx, pre.StashName)
			if err != nil || !created {
				return nil, err
			}
			return &rec, nil
		}, scheduler.Blocking(), scheduler.Name("stash local changes"))
		if err != nil {
			pre.Status = StatusFailed
			reporter.StepFailed(StepPrepare, err)
			return pre, err
		}
		pre.Stash = record
	}

	pre.Proceed = true
	reporter.StepCompleted(StepPrepare)
	return pre, nil
}

// PostMergeRebase restores the temporary stash, if any, and releases the
// freeze taken by the pre-phase. It runs even when ctx is already cancelled.
func (o *Orchestrator) PostMergeRebase(ctx context.Context, repo *route.Repository, pre *PreResult, result *Result) error {
	if pre == nil {
		return nil
	}
	if pre.release != nil {
		defer pre.release()
	}
	if pre.Stash == nil {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	reporter := progress.FromContext(ctx)
	reporter.StepStarted(StepRestore, "Restoring local changes")

	restored, err := scheduler.Do(ctx, repo.Scheduler, func(ctx context.Context, s *git.Session) (bool, error) {
		return o.restoreStash(ctx, s, pre.StashName)
	}, scheduler.Blocking(), scheduler.Name("restore stash"))
	if result != nil {
		result.StashRestored = restored
	}
	if err != nil {
		reporter.StepFailed(StepRestore, err)
		return err
	}
	reporter.StepCompleted(StepRestore)
	return nil
}

// restoreStash applies the named stash. Conflicts go through resolution; if
// that fails the stash is popped unconditionally so no change is lost.
func (o *Orchestrator) restoreStash(ctx context.Context, s *git.Session, name string) (bool, error) {
	record, ok, err := s.FindStash(ctx, name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("temporary stash %q not found", name)
	}

	conflicts, err := s.StashApply(ctx, record.Index)
	if err != nil {
		o.logger.Warn("stash apply failed, falling back to pop", "stash", name, "error", err)
		return o.popStash(ctx, s, record)
	}

	if conflicts {
		head, err := s.Head(ctx)
		if err != nil {
			return false, err
		}
		resolved, _, err := o.resolve(ctx, s, head.Hash, "")
		if err != nil || !resolved {
			o.logger.Warn("stash conflicts not resolved, falling back to pop", "stash", name, "error", err)
			return o.popStash(ctx, s, record)
		}
	}

	if err := s.StashDrop(ctx, record.Index); err != nil {
		return true, err
	}
	return true, nil
}

// popStash is the last resort: a plain pop keeps the entry when it conflicts
func (o *Orchestrator) popStash(ctx context.Context, s *git.Session, record git.StashRecord) (bool, error) {
	conflicts, err := s.StashPop(ctx, record.Index)
	if err != nil {
		return false, fmt.Errorf("failed to restore stash %q, it is kept: %w", record.Message, err)
	}
	if conflicts {
		o.logger.Warn("stash popped with conflicts, entry kept", "stash", record.Message)
		return false, nil
	}
	return true, nil
}

// confirm asks q unless a remembered answer exists
func (o *Orchestrator) confirm(ctx context.Context, q Question) (bool, error) {
	if q.AllowRemember && o.prefs != nil {
		if value, ok := o.prefs.Remembered(q.ID); ok {
			return value, nil
		}
	}

	answer, err := o.prompter.Confirm(ctx, q)
	if err != nil {
		return false, err
	}
	if answer.Remember && q.AllowRemember && o.prefs != nil {
		if err := o.prefs.Remember(q.ID, answer.Yes); err != nil {
			o.logger.Warn("failed to remember answer", "question", q.ID, "error", err)
		}
	}
	return answer.Yes, nil
}

func checkLocalChanges(ctx context.Context, s *git.Session, target string, mode Mode) (localCheck, error) {
	var check localCheck

	head, err := s.Head(ctx)
	if err != nil {
		return check, err
	}
	check.head = head.Hash
	check.branch = head.Short()
	if mode != ModeSwitch {
		if check.branch, err = s.CurrentBranch(ctx); err != nil {
			return check, err
		}
	}

	switch {
	case s.IsRebaseInProgress():
		return check, fmt.Errorf("%w: a rebase is already in progress, finish or abort it first", gitgateerrors.ErrOperationInProgress)
	case s.IsMergeInProgress():
		return check, fmt.Errorf("%w: a merge is already in progress, finish or abort it first", gitgateerrors.ErrOperationInProgress)
	case s.IsCherryPickInProgress():
		return check, fmt.Errorf("%w: a cherry-pick is already in progress, finish or abort it first", gitgateerrors.ErrOperationInProgress)
	}

	if _, err := s.ResolveRevision(ctx, target); err != nil {
		return check, err
	}

	entries, err := s.Status(ctx)
	if err != nil {
		return check, err
	}
	if len(entries) == 0 {
		return check, nil
	}
	check.dirty = true

	incoming, err := s.ChangedPathsBetween(ctx, "HEAD", target)
	if err != nil {
		return check, err
	}
	touched := make(map[string]bool, len(incoming))
	for _, p := range incoming {
		touched[p] = true
	}

	for _, e := range entries {
		switch {
		case e.IsUntracked():
			if touched[e.Path] {
				check.conflicting = append(check.conflicting, e.Path)
			}
		case mode == ModeRebase, touched[e.Path], e.OrigPath != "" && touched[e.OrigPath]:
			check.conflicting = append(check.conflicting, e.Path)
		}
	}
	return check, nil
}
