package orchestrator

import (
	"context"
	"time"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
	"stackit.dev/gitgate/internal/git"
)

// Outcome is the decision for one conflicting path
type Outcome int

const (
	// Abort rolls the whole operation back
	Abort Outcome = iota
	// Skip reverts the path and moves on
	Skip
	// Continue stages the path as resolved
	Continue
)

func (o Outcome) String() string {
	switch o {
	case Abort:
		return "abort"
	case Skip:
		return "skip"
	case Continue:
		return "continue"
	default:
		return "unknown"
	}
}

// ConflictResolver decides what to do with a conflicting path
type ConflictResolver interface {
	Resolve(ctx context.Context, path string) (Outcome, error)
}

// Question is a yes/no prompt. ID keys remembered answers.
type Question struct {
	ID            string
	Message       string
	AllowRemember bool
}

// Answer is the reply to a Question
type Answer struct {
	Yes      bool
	Remember bool
}

// Prompter asks the user yes/no questions
type Prompter interface {
	Confirm(ctx context.Context, q Question) (Answer, error)
}

// CredentialKind selects which credential context is tried
type CredentialKind int

const (
	// CredentialNormal is the stored username/password or token
	CredentialNormal CredentialKind = iota
	// CredentialSession is a credential scoped to the current session only
	CredentialSession
)

func (k CredentialKind) String() string {
	if k == CredentialSession {
		return "session"
	}
	return "normal"
}

// next alternates between the two kinds
func (k CredentialKind) next() CredentialKind {
	if k == CredentialNormal {
		return CredentialSession
	}
	return CredentialNormal
}

// CredentialProvider supplies credentials per URL and kind. Credentials
// returns an error wrapping ErrUserCancelled when the user dismisses it.
type CredentialProvider interface {
	Credentials(ctx context.Context, url string, kind CredentialKind) (git.Credentials, error)
	Store(ctx context.Context, url string, kind CredentialKind, creds git.Credentials) error
	Invalidate(ctx context.Context, url string, kind CredentialKind) error
}

// PublishOptions describes a repository to create on a hosting service
type PublishOptions struct {
	Name        string
	Description string
	Private     bool
	Remote      string // defaults to origin
}

// RepoHost creates hosted repositories
type RepoHost interface {
	// HostURL is the URL credentials are requested for
	HostURL() string
	CreateRepository(ctx context.Context, token string, opts PublishOptions) (cloneURL string, err error)
}

// Preferences persists "don't ask again" answers
type Preferences interface {
	Remembered(id string) (value bool, ok bool)
	Remember(id string, value bool) error
}

// Task describes a finished compound operation
type Task struct {
	ID       string
	Name     string
	Root     string
	Status   Status
	Err      error
	Started  time.Time
	Duration time.Duration
}

// TaskListener is told about every finished compound operation
type TaskListener interface {
	TaskFinished(ctx context.Context, task Task)
}

// abortResolver is used when no resolver is configured
type abortResolver struct{}

func (abortResolver) Resolve(context.Context, string) (Outcome, error) {
	return Abort, nil
}

// declinePrompter answers no to everything
type declinePrompter struct{}

func (declinePrompter) Confirm(context.Context, Question) (Answer, error) {
	return Answer{}, nil
}

// anonymousCredentials supplies empty credentials and never retries
type anonymousCredentials struct{}

func (anonymousCredentials) Credentials(context.Context, string, CredentialKind) (git.Credentials, error) {
	return git.Credentials{}, nil
}

func (anonymousCredentials) Store(context.Context, string, CredentialKind, git.Credentials) error {
	return nil
}

func (anonymousCredentials) Invalidate(context.Context, string, CredentialKind) error {
	return nil
}

// noHost rejects publishing
type noHost struct{}

func (noHost) HostURL() string { return "" }

func (noHost) CreateRepository(context.Context, string, PublishOptions) (string, error) {
	return "", gitgateerrors.ErrNotInitialized
}
