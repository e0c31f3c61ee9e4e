// Package orchestrator implements the compound repository operations (merge,
// rebase, update, branch switch and the network operations) as multi-step
// protocols over the scheduler.
//
// Every compound operation runs the same frame: a pre-phase that waits for
// the gate and stashes conflicting local changes with the user's consent, a
// core phase executed as one blocking scheduler request, and a post-phase
// that always runs, restores the stash and settles bookkeeping. Conflicts are
// data resolved through the ConflictResolver, never errors.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
	"stackit.dev/gitgate/internal/progress"
	"stackit.dev/gitgate/internal/route"
)

// DefaultStashPrefix prefixes the temporary stash created before an operation
const DefaultStashPrefix = "_tmp_"

// TempStashName is the deterministic name of the temporary stash for target
func TempStashName(target string) string {
	return DefaultStashPrefix + target
}

// Status is the terminal state of a compound operation
type Status int

const (
	// StatusSucceeded means the operation completed
	StatusSucceeded Status = iota
	// StatusAborted means conflict resolution was aborted and the tree rolled back
	StatusAborted
	// StatusCancelled means the caller cancelled before or during the operation
	StatusCancelled
	// StatusDeclined means the user declined to stash conflicting local changes
	StatusDeclined
	// StatusFailed means the operation returned an error
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusAborted:
		return "aborted"
	case StatusCancelled:
		return "cancelled"
	case StatusDeclined:
		return "declined"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is what a compound operation reports
type Result struct {
	Status        Status
	Conflicts     []string
	StashRestored bool
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithConflictResolver sets the conflict resolver (default: abort everything)
func WithConflictResolver(r ConflictResolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithPrompter sets the prompter (default: answer no)
func WithPrompter(p Prompter) Option {
	return func(o *Orchestrator) { o.prompter = p }
}

// WithCredentials sets the credential provider (default: anonymous)
func WithCredentials(c CredentialProvider) Option {
	return func(o *Orchestrator) { o.credentials = c }
}

// WithRepoHost sets the hosting service used by Publish
func WithRepoHost(h RepoHost) Option {
	return func(o *Orchestrator) { o.host = h }
}

// WithPreferences sets the store for remembered answers
func WithPreferences(p Preferences) Option {
	return func(o *Orchestrator) { o.prefs = p }
}

// WithTaskListener registers a listener for finished operations
func WithTaskListener(l TaskListener) Option {
	return func(o *Orchestrator) { o.listener = l }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStashPrefix overrides DefaultStashPrefix
func WithStashPrefix(prefix string) Option {
	return func(o *Orchestrator) {
		if prefix != "" {
			o.stashPrefix = prefix
		}
	}
}

// WithProgressInterval sets the spacing of transport progress messages
func WithProgressInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.progressInterval = d }
}

// Orchestrator runs compound operations. It never owns a session; it borrows
// one through the repository's scheduler for each step.
type Orchestrator struct {
	resolver         ConflictResolver
	prompter         Prompter
	credentials      CredentialProvider
	host             RepoHost
	prefs            Preferences
	listener         TaskListener
	logger           *slog.Logger
	stashPrefix      string
	progressInterval time.Duration
}

// New creates an Orchestrator
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:         abortResolver{},
		prompter:         declinePrompter{},
		credentials:      anonymousCredentials{},
		host:             noHost{},
		logger:           slog.New(slog.DiscardHandler),
		stashPrefix:      DefaultStashPrefix,
		progressInterval: progress.DefaultInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StashName is the temporary stash name for target with the configured prefix
func (o *Orchestrator) StashName(target string) string {
	return o.stashPrefix + target
}

// task tracks one compound operation for end-of-task bookkeeping
type task struct {
	id    string
	name  string
	root  string
	start time.Time
}

func (o *Orchestrator) beginTask(name string, repo *route.Repository) *task {
	t := &task{id: uuid.NewString(), name: name, root: repo.Root, start: time.Now()}
	o.logger.Info("operation started", "op", name, "id", t.id, "repo", repo.Root)
	return t
}

func (o *Orchestrator) finishTask(ctx context.Context, t *task, result *Result, err error) {
	status := result.Status
	if err != nil {
		status = StatusFailed
		if gitgateerrors.Classify(err) == gitgateerrors.KindCancelled {
			status = StatusCancelled
		}
	}

	duration := time.Since(t.start)
	attrs := []any{"op", t.name, "id", t.id, "repo", t.root, "status", status.String(), "duration", duration}
	if err != nil {
		o.logger.Warn("operation finished", append(attrs, "error", err)...)
	} else {
		o.logger.Info("operation finished", attrs...)
	}

	if o.listener != nil {
		o.listener.TaskFinished(context.WithoutCancel(ctx), Task{
			ID:       t.id,
			Name:     t.name,
			Root:     t.root,
			Status:   status,
			Err:      err,
			Started:  t.start,
			Duration: duration,
		})
	}
}
