package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStatus is one entry of `git status --porcelain`
type FileStatus struct {
	Path     string
	OrigPath string // set for renames and copies
	Staging  byte   // X column
	Worktree byte   // Y column
}

// IsUntracked reports whether the file is not tracked by git
func (f FileStatus) IsUntracked() bool {
	return f.Staging == '?' && f.Worktree == '?'
}

// IsConflicted reports whether the file has unresolved merge conflicts
func (f FileStatus) IsConflicted() bool {
	switch string([]byte{f.Staging, f.Worktree}) {
	case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
		return true
	}
	return false
}

// Status returns the working tree status, untracked files included
func (s *Session) Status(ctx context.Context) ([]FileStatus, error) {
	output, err := s.runner.RunRaw(ctx, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return parsePorcelain(output), nil
}

// parsePorcelain parses NUL separated porcelain v1 output
func parsePorcelain(output string) []FileStatus {
	records := strings.Split(output, "\x00")
	var result []FileStatus
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 4 {
			continue
		}
		fs := FileStatus{
			Staging:  rec[0],
			Worktree: rec[1],
			Path:     rec[3:],
		}
		// Renames and copies carry the original path in the next record
		if (fs.Staging == 'R' || fs.Staging == 'C') && i+1 < len(records) {
			fs.OrigPath = records[i+1]
			i++
		}
		result = append(result, fs)
	}
	return result
}

// HasLocalChanges reports whether the working tree or index differ from HEAD.
// Untracked files count only when includeUntracked is set.
func (s *Session) HasLocalChanges(ctx context.Context, includeUntracked bool) (bool, error) {
	entries, err := s.Status(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.IsUntracked() && !includeUntracked {
			continue
		}
		return true, nil
	}
	return false, nil
}

// ConflictingPaths returns the paths with unresolved conflicts
func (s *Session) ConflictingPaths(ctx context.Context) ([]string, error) {
	lines, err := s.runner.RunLines(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	return uniqueStrings(lines), nil
}

// ChangedPathsBetween returns the paths that differ between two revisions
func (s *Session) ChangedPathsBetween(ctx context.Context, from, to string) ([]string, error) {
	lines, err := s.runner.RunLines(ctx, "diff", "--name-only", from, to, "--")
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s..%s: %w", from, to, err)
	}
	return lines, nil
}

// IsRebaseInProgress checks if a rebase is currently in progress
func (s *Session) IsRebaseInProgress() bool {
	// This is more reliable than checking REBASE_HEAD which can persist after rebase
	return s.controlPathExists("rebase-merge") || s.controlPathExists("rebase-apply")
}

// IsCherryPickInProgress checks if a cherry-pick stopped on a conflict
func (s *Session) IsCherryPickInProgress() bool {
	return s.controlPathExists("CHERRY_PICK_HEAD")
}

// IsMergeInProgress checks if a merge stopped on a conflict
func (s *Session) IsMergeInProgress() bool {
	return s.controlPathExists("MERGE_HEAD")
}

func (s *Session) controlPathExists(name string) bool {
	_, err := os.Stat(filepath.Join(s.gitDir, name))
	return err == nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
