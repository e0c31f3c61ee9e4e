package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
)

// DefaultRemote is the remote used when none is configured
const DefaultRemote = "origin"

// Credentials are the username/password (or token) pair used for HTTP remotes
type Credentials struct {
	Username string
	Password string
}

// IsZero reports whether no credentials were supplied
func (c Credentials) IsZero() bool {
	return c.Username == "" && c.Password == ""
}

func (c Credentials) auth() transport.AuthMethod {
	if c.IsZero() {
		return nil
	}
	username := c.Username
	if username == "" {
		// Token-only remotes accept any non-empty username
		username = "x-access-token"
	}
	return &http.BasicAuth{Username: username, Password: c.Password}
}

// RemoteURL returns the first URL of the named remote
func (s *Session) RemoteURL(_ context.Context, remote string) (string, error) {
	r, err := s.repo.Remote(remote)
	if err != nil {
		return "", fmt.Errorf("failed to get remote %s: %w", remote, err)
	}
	urls := r.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %s has no URL", remote)
	}
	return urls[0], nil
}

// AddRemote registers a new remote
func (s *Session) AddRemote(_ context.Context, name, url string) error {
	_, err := s.repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}})
	if err != nil {
		return fmt.Errorf("failed to add remote %s: %w", name, err)
	}
	return nil
}

// Upstream returns the remote and remote-tracking ref of a branch, e.g.
// ("origin", "refs/remotes/origin/main"). Branches without tracking
// configuration fall back to the default remote and the same branch name.
func (s *Session) Upstream(_ context.Context, branch string) (string, string, error) {
	remote := DefaultRemote
	merge := plumbing.NewBranchReferenceName(branch)
	if cfg, err := s.repo.Branch(branch); err == nil {
		if cfg.Remote != "" {
			remote = cfg.Remote
		}
		if cfg.Merge != "" {
			merge = cfg.Merge
		}
	}
	if _, err := s.repo.Remote(remote); err != nil {
		return "", "", fmt.Errorf("branch %s has no usable remote %s: %w", branch, remote, err)
	}
	return remote, plumbing.NewRemoteReferenceName(remote, merge.Short()).String(), nil
}

// Fetch fetches from the named remote. An up-to-date remote is not an error.
func (s *Session) Fetch(ctx context.Context, remote string, creds Credentials, progress io.Writer) error {
	url, _ := s.RemoteURL(ctx, remote)
	err := s.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remote,
		Auth:       creds.auth(),
		Progress:   progress,
	})
	return remoteError("fetch", url, err)
}

// Push pushes the current branch to the named remote and records it as upstream
func (s *Session) Push(ctx context.Context, remote string, creds Credentials, progress io.Writer) error {
	branch, err := s.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	url, _ := s.RemoteURL(ctx, remote)

	ref := plumbing.NewBranchReferenceName(branch)
	err = s.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref.String() + ":" + ref.String())},
		Auth:       creds.auth(),
		Progress:   progress,
	})
	if err := remoteError("push", url, err); err != nil {
		return err
	}

	// Written as config so it works before a remote-tracking ref exists
	if _, err := s.runner.Run(ctx, "config", "branch."+branch+".remote", remote); err != nil {
		return fmt.Errorf("failed to set upstream for %s: %w", branch, err)
	}
	if _, err := s.runner.Run(ctx, "config", "branch."+branch+".merge", ref.String()); err != nil {
		return fmt.Errorf("failed to set upstream for %s: %w", branch, err)
	}
	return nil
}

// Clone clones url into dir and opens a session on the result
func Clone(ctx context.Context, url, dir string, creds Credentials, progress io.Writer, opts ...Option) (*Session, error) {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:      url,
		Auth:     creds.auth(),
		Progress: progress,
	})
	if err := remoteError("clone", url, err); err != nil {
		return nil, err
	}
	return Open(ctx, dir, opts...)
}

// remoteError normalises go-git transport errors
func remoteError(op, url string, err error) error {
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if gitgateerrors.IsAuthentication(err) {
		return gitgateerrors.NewAuthenticationError(url, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if strings.Contains(err.Error(), "remote repository is empty") && op == "fetch" {
		return nil
	}
	return gitgateerrors.NewVersionControlError(op, err)
}
