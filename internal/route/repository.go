package route

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
	"stackit.dev/gitgate/internal/freeze"
	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/internal/lockmon"
	"stackit.dev/gitgate/internal/scheduler"
)

// Repository is one live repository instance: its scheduler (which owns the
// session) and the lock gate and freeze coordinator that guard it.
type Repository struct {
	Root        string
	IsSubmodule bool
	Scheduler   *scheduler.Scheduler
	Gate        *lockmon.Gate
	Freezer     *freeze.Coordinator
	Monitor     *lockmon.Monitor

	stopWatch func() error
}

// RepositoryOptions configures NewRepository
type RepositoryOptions struct {
	// RecheckInterval bounds gate waits; zero uses lockmon.DefaultRecheckInterval
	RecheckInterval time.Duration
	// Watch starts an fsnotify source on the control directory
	Watch  bool
	Logger *slog.Logger
}

// NewRepository wires a session into a scheduler, gate, freeze coordinator
// and lock monitor. The returned Repository owns the session.
func NewRepository(session *git.Session, isSubmodule bool, opts RepositoryOptions) *Repository {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("repo", session.Root())

	locks := lockmon.NewLockSet()
	gate := lockmon.NewGate(locks,
		lockmon.WithRecheckInterval(opts.RecheckInterval),
		lockmon.WithLogger(logger))
	freezer := freeze.New(logger)
	monitor := lockmon.NewMonitor(session.GitDir(), gate, freezer, lockmon.WithMonitorLogger(logger))

	repo := &Repository{
		Root:        session.Root(),
		IsSubmodule: isSubmodule,
		Gate:        gate,
		Freezer:     freezer,
		Monitor:     monitor,
	}

	if opts.Watch {
		src, err := lockmon.NewFSNotifySource(session.GitDir(), logger)
		if err != nil {
			logger.Warn("lock watcher unavailable, relying on rechecks", "error", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = monitor.Run(ctx, src.Events())
			}()
			repo.stopWatch = func() error {
				cancel()
				err := src.Close()
				<-done
				return err
			}
		}
	}

	repo.Scheduler = scheduler.New(session, gate, freezer, scheduler.WithLogger(logger))
	return repo
}

// Dispose tears down the scheduler (closing the session) and the watcher
func (r *Repository) Dispose(ctx context.Context) error {
	err := r.Scheduler.Dispose(ctx)
	if errors.Is(err, gitgateerrors.ErrInvalidOperation) {
		return err
	}
	if r.stopWatch != nil {
		err = errors.Join(err, r.stopWatch())
		r.stopWatch = nil
	}
	return err
}
