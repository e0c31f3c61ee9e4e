package orchestrator

import (
	"context"
	"fmt"

	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/internal/route"
	"stackit.dev/gitgate/internal/scheduler"
)

// ResolveConflicts walks the conflicting paths of repo through the configured
// ConflictResolver. Abort resets the tree to rollback and returns false. When
// every path is settled and message is not empty the result is committed.
// Called from inside a blocking operation it runs inline on the worker.
func (o *Orchestrator) ResolveConflicts(ctx context.Context, repo *route.Repository, rollback, message string) (bool, error) {
	type resolution struct {
		ok        bool
		conflicts []string
	}
	r, err := scheduler.Do(ctx, repo.Scheduler, func(ctx context.Context, s *git.Session) (resolution, error) {
		ok, conflicts, err := o.resolve(ctx, s, rollback, message)
		return resolution{ok, conflicts}, err
	}, scheduler.Blocking(), scheduler.Name("resolve conflicts"))
	return r.ok, err
}

// resolve does the work of ResolveConflicts on a session the caller owns. It
// also returns the paths that were in conflict.
func (o *Orchestrator) resolve(ctx context.Context, s *git.Session, rollback, message string) (bool, []string, error) {
	conflicts, err := s.ConflictingPaths(ctx)
	if err != nil {
		return false, nil, err
	}

	for _, path := range conflicts {
		outcome, err := o.resolver.Resolve(ctx, path)
		if err != nil {
			o.logger.Warn("conflict resolver failed, rolling back", "path", path, "error", err)
			return false, conflicts, o.rollback(ctx, s, rollback, err)
		}
		o.logger.Debug("conflict resolved", "path", path, "outcome", outcome.String())

		switch outcome {
		case Skip:
			err = s.RevertPath(ctx, path)
		case Continue:
			err = s.StagePaths(ctx, path)
		default:
			o.logger.Info("conflict resolution aborted", "path", path, "rollback", rollback)
			return false, conflicts, o.rollback(ctx, s, rollback, nil)
		}
		if err != nil {
			return false, conflicts, fmt.Errorf("failed to settle %s: %w", path, err)
		}
	}

	if message != "" {
		if err := s.Commit(ctx, message); err != nil {
			return false, conflicts, err
		}
	}
	return true, conflicts, nil
}

func (o *Orchestrator) rollback(ctx context.Context, s *git.Session, rev string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.HardReset(ctx, rev); err != nil {
		return fmt.Errorf("failed to roll back to %s: %w", rev, err)
	}
	return cause
}
