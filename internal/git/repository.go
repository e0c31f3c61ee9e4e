package git

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
)

// Session is an exclusively owned handle to one native repository instance:
// the go-git repository plus a command runner rooted at its worktree.
// A Session is not safe for concurrent use; callers go through the scheduler.
type Session struct {
	repo   *git.Repository
	runner *CommandRunner
	root   string
	gitDir string
	closed bool
}

// Option configures a Session.
type Option func(*Session)

// WithCommandTimeout sets the timeout applied to git commands without a deadline.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		s.runner.SetTimeout(timeout)
	}
}

// Open opens the repository containing path and roots the session at its worktree.
func Open(ctx context.Context, path string, opts ...Option) (*Session, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	repo, err := git.PlainOpenWithOptions(absPath, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	s := &Session{
		repo:   repo,
		root:   worktree.Filesystem.Root(),
		runner: NewCommandRunner(worktree.Filesystem.Root()),
	}
	for _, opt := range opts {
		opt(s)
	}

	gitDir, err := s.runner.Run(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return nil, fmt.Errorf("failed to locate git dir: %w", err)
	}
	s.gitDir = gitDir

	return s, nil
}

// Root returns the worktree root of the repository
func (s *Session) Root() string {
	return s.root
}

// GitDir returns the absolute control directory (usually <root>/.git)
func (s *Session) GitDir() string {
	return s.gitDir
}

// Runner exposes the command runner for calls without a dedicated helper.
func (s *Session) Runner() *CommandRunner {
	return s.runner
}

// Close releases the session. Further use is a programming error.
func (s *Session) Close() error {
	s.closed = true
	s.repo = nil
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed
}
