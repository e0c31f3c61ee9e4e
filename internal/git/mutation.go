package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
)

// MergeStatus is the outcome of a native merge
type MergeStatus int

const (
	// MergeUpToDate indicates nothing needed merging
	MergeUpToDate MergeStatus = iota
	// MergeFastForward indicates HEAD moved forward without a merge commit
	MergeFastForward
	// MergeMerged indicates a merge commit was created
	MergeMerged
	// MergeConflicts indicates the merge stopped with unresolved conflicts
	MergeConflicts
)

func (m MergeStatus) String() string {
	switch m {
	case MergeUpToDate:
		return "up-to-date"
	case MergeFastForward:
		return "fast-forward"
	case MergeMerged:
		return "merged"
	case MergeConflicts:
		return "conflicts"
	default:
		return "unknown"
	}
}

// MergeResult carries the merge status and any conflicting paths
type MergeResult struct {
	Status    MergeStatus
	Conflicts []string
}

// CherryPickResult represents the result of replaying one commit
type CherryPickResult int

const (
	// CherryPickDone indicates the commit was replayed
	CherryPickDone CherryPickResult = iota
	// CherryPickConflict indicates the replay stopped with conflicts
	CherryPickConflict
	// CherryPickEmpty indicates the change was already present and was skipped
	CherryPickEmpty
)

// Checkout checks out an existing branch
func (s *Session) Checkout(ctx context.Context, branchName string) error {
	_, err := s.runner.Run(ctx, "checkout", branchName)
	if err != nil {
		return fmt.Errorf("failed to checkout branch %s: %w", branchName, err)
	}
	return nil
}

// HardReset performs a hard reset to a specific revision
func (s *Session) HardReset(ctx context.Context, rev string) error {
	_, err := s.runner.Run(ctx, "reset", "--hard", rev)
	if err != nil {
		return fmt.Errorf("failed to hard reset to %s: %w", rev, err)
	}
	return nil
}

// Merge merges rev into the current branch. Conflicts are reported in the
// result, never as an error.
func (s *Session) Merge(ctx context.Context, rev, message string) (MergeResult, error) {
	args := []string{"merge", "--no-edit"}
	if message != "" {
		args = append(args, "-m", message)
	}
	args = append(args, rev)

	output, err := s.runner.Run(ctx, args...)
	if err != nil {
		conflicts, cerr := s.ConflictingPaths(ctx)
		if cerr == nil && len(conflicts) > 0 {
			return MergeResult{Status: MergeConflicts, Conflicts: conflicts}, nil
		}
		return MergeResult{}, fmt.Errorf("failed to merge %s: %w", rev, err)
	}

	switch {
	case strings.Contains(output, "Already up to date"), strings.Contains(output, "Already up-to-date"):
		return MergeResult{Status: MergeUpToDate}, nil
	case strings.Contains(output, "Fast-forward"):
		return MergeResult{Status: MergeFastForward}, nil
	default:
		return MergeResult{Status: MergeMerged}, nil
	}
}

// AbortMerge aborts an in-progress merge
func (s *Session) AbortMerge(ctx context.Context) error {
	_, err := s.runner.Run(ctx, "merge", "--abort")
	if err != nil {
		return fmt.Errorf("merge abort failed: %w", err)
	}
	return nil
}

// CherryPick replays a single commit on top of HEAD
func (s *Session) CherryPick(ctx context.Context, hash string) (CherryPickResult, error) {
	_, err := s.runner.Run(ctx, "cherry-pick", "--allow-empty", hash)
	if err == nil {
		return CherryPickDone, nil
	}

	conflicts, cerr := s.ConflictingPaths(ctx)
	if cerr == nil && len(conflicts) > 0 {
		return CherryPickConflict, nil
	}

	var cmdErr *gitgateerrors.GitCommandError
	if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Stderr+cmdErr.Stdout, "now empty") {
		if _, skipErr := s.runner.Run(ctx, "cherry-pick", "--skip"); skipErr != nil {
			return CherryPickEmpty, fmt.Errorf("failed to skip empty cherry-pick of %s: %w", hash, skipErr)
		}
		return CherryPickEmpty, nil
	}
	return CherryPickConflict, fmt.Errorf("failed to cherry-pick %s: %w", hash, err)
}

// StagePaths stages the given paths, deletions included
func (s *Session) StagePaths(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "-A", "--"}, paths...)
	if _, err := s.runner.Run(ctx, args...); err != nil {
		return fmt.Errorf("failed to stage %v: %w", paths, err)
	}
	return nil
}

// RevertPath restores a single path to its HEAD content and stages it. A path
// that does not exist in HEAD is removed.
func (s *Session) RevertPath(ctx context.Context, path string) error {
	if _, err := s.runner.Run(ctx, "cat-file", "-e", "HEAD:"+path); err != nil {
		if _, rmErr := s.runner.Run(ctx, "rm", "-f", "--cached", "--ignore-unmatch", "--quiet", "--", path); rmErr != nil {
			return fmt.Errorf("failed to unstage %s: %w", path, rmErr)
		}
		if rmErr := os.Remove(filepath.Join(s.root, path)); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("failed to remove %s: %w", path, rmErr)
		}
		return nil
	}

	if _, err := s.runner.Run(ctx, "checkout", "HEAD", "--", path); err != nil {
		return fmt.Errorf("failed to revert %s: %w", path, err)
	}
	return nil
}

// Commit records the index as a new commit. Empty commits are allowed so a
// fully skipped resolution still seals the replayed commit.
func (s *Session) Commit(ctx context.Context, message string) error {
	_, err := s.runner.Run(ctx, "commit", "--allow-empty", "-m", message)
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
