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

// AuthFunc is one attempt of a network operation
type AuthFunc func(ctx context.Context, creds git.Credentials) error

// WithAuthRetry runs fn with credentials for url until it succeeds, fails for
// a reason other than authentication, or the user gives up. Rejected
// credentials are invalidated and the other CredentialKind is tried next. A
// known transient failure is retried once without asking.
func (o *Orchestrator) WithAuthRetry(ctx context.Context, url string, fn AuthFunc) error {
	kind := CredentialNormal
	transientRetried := false
	pending := make(map[CredentialKind]git.Credentials)

	for {
		creds, err := o.credentials.Credentials(ctx, url, kind)
		if err != nil {
			if errors.Is(err, gitgateerrors.ErrUserCancelled) {
				o.storeAll(ctx, url, pending)
				return gitgateerrors.NewVersionControlError("authentication", err)
			}
			return err
		}
		pending[kind] = creds

		err = fn(ctx, creds)
		if err == nil {
			o.store(ctx, url, kind, creds)
			return nil
		}

		if gitgateerrors.IsTransient(err) && !transientRetried {
			transientRetried = true
			o.logger.Info("transient transport failure, retrying", "url", url, "error", err)
			continue
		}

		switch gitgateerrors.Classify(err) {
		case gitgateerrors.KindAuthentication:
		case gitgateerrors.KindUserCancelled:
			o.storeAll(ctx, url, pending)
			return gitgateerrors.NewVersionControlError("authentication", err)
		default:
			return err
		}

		delete(pending, kind)
		if ierr := o.credentials.Invalidate(ctx, url, kind); ierr != nil {
			o.logger.Warn("failed to invalidate credentials", "url", url, "kind", kind.String(), "error", ierr)
		}
		o.logger.Info("authentication failed", "url", url, "kind", kind.String())

		answer, perr := o.prompter.Confirm(ctx, Question{
			ID:      "retry-authentication",
			Message: fmt.Sprintf("Authentication failed for %s. Try again?", url),
		})
		if perr != nil {
			return errors.Join(err, perr)
		}
		if !answer.Yes {
			return err
		}
		kind = kind.next()
	}
}

func (o *Orchestrator) store(ctx context.Context, url string, kind CredentialKind, creds git.Credentials) {
	if creds.IsZero() {
		return
	}
	if err := o.credentials.Store(ctx, url, kind, creds); err != nil {
		o.logger.Warn("failed to store credentials", "url", url, "kind", kind.String(), "error", err)
	}
}

func (o *Orchestrator) storeAll(ctx context.Context, url string, pending map[CredentialKind]git.Credentials) {
	for kind, creds := range pending {
		o.store(ctx, url, kind, creds)
	}
}

// Fetch fetches remote into repo
func (o *Orchestrator) Fetch(ctx context.Context, repo *route.Repository, remote string) (err error) {
	t := o.beginTask("fetch", repo)
	defer func() { o.finishTask(ctx, t, &Result{}, err) }()

	url, err := o.remoteURL(ctx, repo, remote)
	if err != nil {
		return err
	}
	sink := progress.Writer(ctx, o.progressInterval)
	return o.WithAuthRetry(ctx, url, func(ctx context.Context, creds git.Credentials) error {
		return repo.Scheduler.Run(ctx, func(ctx context.Context, s *git.Session) error {
			return s.Fetch(ctx, remote, creds, sink)
		}, scheduler.Blocking(), scheduler.UICallback(), scheduler.Name("fetch"))
	})
}

// Push pushes the current branch of repo to remote
func (o *Orchestrator) Push(ctx context.Context, repo *route.Repository, remote string) (err error) {
	t := o.beginTask("push", repo)
	defer func() { o.finishTask(ctx, t, &Result{}, err) }()

	url, err := o.remoteURL(ctx, repo, remote)
	if err != nil {
		return err
	}
	sink := progress.Writer(ctx, o.progressInterval)
	return o.WithAuthRetry(ctx, url, func(ctx context.Context, creds git.Credentials) error {
		return repo.Scheduler.Run(ctx, func(ctx context.Context, s *git.Session) error {
			return s.Push(ctx, remote, creds, sink)
		}, scheduler.Blocking(), scheduler.UICallback(), scheduler.Name("push"))
	})
}

// Clone clones url into dir. The resolver for the new working tree is left
// to the caller.
func (o *Orchestrator) Clone(ctx context.Context, url, dir string) error {
	sink := progress.Writer(ctx, o.progressInterval)
	err := o.WithAuthRetry(ctx, url, func(ctx context.Context, creds git.Credentials) error {
		session, err := git.Clone(ctx, url, dir, creds, sink)
		if err != nil {
			return err
		}
		return session.Close()
	})
	if err != nil {
		o.logger.Warn("clone failed", "url", url, "dir", dir, "error", err)
		return err
	}
	o.logger.Info("cloned repository", "url", url, "dir", dir)
	return nil
}

// Publish creates a hosted repository, adds it as a remote of repo and pushes
// the current branch to it. It returns the clone URL.
func (o *Orchestrator) Publish(ctx context.Context, repo *route.Repository, opts PublishOptions) (cloneURL string, err error) {
	t := o.beginTask("publish", repo)
	defer func() { o.finishTask(ctx, t, &Result{}, err) }()

	if opts.Remote == "" {
		opts.Remote = git.DefaultRemote
	}

	dirty, err := scheduler.Do(ctx, repo.Scheduler, func(ctx context.Context, s *git.Session) (bool, error) {
		return s.HasLocalChanges(ctx, false)
	}, scheduler.Name("check local changes"))
	if err != nil {
		return "", err
	}
	if dirty {
		o.logger.Warn("uncommitted changes are not published", "repo", repo.Root)
	}

	err = o.WithAuthRetry(ctx, o.host.HostURL(), func(ctx context.Context, creds git.Credentials) error {
		url, err := o.host.CreateRepository(ctx, creds.Password, opts)
		if err != nil {
			return err
		}
		cloneURL = url
		return nil
	})
	if err != nil {
		return "", err
	}

	err = repo.Scheduler.Run(ctx, func(ctx context.Context, s *git.Session) error {
		return s.AddRemote(ctx, opts.Remote, cloneURL)
	}, scheduler.Name("add remote"))
	if err != nil {
		return cloneURL, err
	}

	sink := progress.Writer(ctx, o.progressInterval)
	err = o.WithAuthRetry(ctx, cloneURL, func(ctx context.Context, creds git.Credentials) error {
		return repo.Scheduler.Run(ctx, func(ctx context.Context, s *git.Session) error {
			return s.Push(ctx, opts.Remote, creds, sink)
		}, scheduler.Blocking(), scheduler.UICallback(), scheduler.Name("push"))
	})
	return cloneURL, err
}

func (o *Orchestrator) remoteURL(ctx context.Context, repo *route.Repository, remote string) (string, error) {
	return scheduler.Do(ctx, repo.Scheduler, func(ctx context.Context, s *git.Session) (string, error) {
		return s.RemoteURL(ctx, remote)
	}, scheduler.Name("remote url"))
}
