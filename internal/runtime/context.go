package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stackit.dev/gitgate/internal/config"
	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/internal/github"
	"stackit.dev/gitgate/internal/orchestrator"
	"stackit.dev/gitgate/internal/route"
	"stackit.dev/gitgate/internal/tui"
)

// Options are the global command line settings
type Options struct {
	Cwd       string
	Debug     bool
	AssumeYes bool
}

// Context provides access to the repository services for commands
type Context struct {
	Context      context.Context
	Config       *config.Config
	Splog        *tui.Splog
	Screen       *tui.Screen
	Resolver     *route.Resolver
	Orchestrator *orchestrator.Orchestrator
	RepoRoot     string
	GitDir       string
}

// GetContext locates the repository containing opts.Cwd, loads its config
// and wires the resolver and orchestrator. Close must be called when done.
func GetContext(parent context.Context, opts Options) (*Context, error) {
	if parent == nil {
		parent = context.Background()
	}
	cwd := opts.Cwd
	if cwd == "" {
		cwd = "."
	}

	probe, err := git.Open(parent, cwd)
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	root, gitDir := probe.Root(), probe.GitDir()
	_ = probe.Close()

	cfg, err := config.Load(gitDir)
	if err != nil {
		return nil, err
	}

	splog, err := tui.NewSplogWithOptions(tui.LogOptions{
		File:       tui.GetLogFilePath(cfg.Log.File),
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Debug:      opts.Debug,
	})
	if err != nil {
		// Logging to a file is optional
		splog = tui.NewSplog()
		splog.Debug("file logging disabled: %v", err)
	}

	ctx := &Context{
		Context:  parent,
		Config:   cfg,
		Splog:    splog,
		Screen:   &tui.Screen{},
		RepoRoot: root,
		GitDir:   gitDir,
	}
	ctx.Resolver = NewResolver(root, cfg, splog)
	ctx.Orchestrator = NewOrchestrator(cfg, splog, ctx.Screen, opts.AssumeYes)
	return ctx, nil
}

// NewResolver creates a resolver whose repositories follow cfg
func NewResolver(root string, cfg *config.Config, splog *tui.Splog) *route.Resolver {
	logger := splog.Logger()
	return route.NewResolver(root,
		route.WithLogger(logger),
		route.WithOpener(func(ctx context.Context, path string) (*git.Session, error) {
			return git.Open(ctx, path, git.WithCommandTimeout(cfg.CommandTimeout))
		}),
		route.WithSchedulerFactory(func(session *git.Session, isSubmodule bool) (*route.Repository, error) {
			return route.NewRepository(session, isSubmodule, route.RepositoryOptions{
				RecheckInterval: cfg.RecheckInterval,
				Watch:           cfg.Watch,
				Logger:          logger,
			}), nil
		}),
	)
}

// NewOrchestrator wires the terminal collaborators into an orchestrator
func NewOrchestrator(cfg *config.Config, splog *tui.Splog, screen *tui.Screen, assumeYes bool) *orchestrator.Orchestrator {
	var hostOpts []github.HostOption
	if cfg.GitHub.Organization != "" {
		hostOpts = append(hostOpts, github.WithOrganization(cfg.GitHub.Organization))
	}
	return orchestrator.New(
		orchestrator.WithConflictResolver(tui.NewTerminalResolver(screen)),
		orchestrator.WithPrompter(tui.NewTerminalPrompter(screen, assumeYes)),
		orchestrator.WithCredentials(tui.NewTerminalCredentials(screen)),
		orchestrator.WithRepoHost(github.NewHost(cfg.GitHub.Host, hostOpts...)),
		orchestrator.WithPreferences(cfg),
		orchestrator.WithTaskListener(&TaskLog{Splog: splog}),
		orchestrator.WithLogger(splog.Logger()),
		orchestrator.WithStashPrefix(cfg.StashPrefix),
	)
}

// Root returns the root repository
func (c *Context) Root() (*route.Repository, error) {
	return c.Resolver.Root(c.Context)
}

// Close disposes every repository and closes the log file
func (c *Context) Close() error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Context), 10*time.Second)
	defer cancel()
	return errors.Join(c.Resolver.Dispose(ctx), c.Splog.Close())
}

// TaskLog reports finished operations through splog
type TaskLog struct {
	Splog *tui.Splog
}

// TaskFinished implements orchestrator.TaskListener
func (l *TaskLog) TaskFinished(_ context.Context, task orchestrator.Task) {
	elapsed := task.Duration.Round(time.Millisecond)
	switch task.Status {
	case orchestrator.StatusSucceeded:
		l.Splog.Debug("%s %s in %v", task.Name, task.Status, elapsed)
	case orchestrator.StatusFailed:
		l.Splog.Debug("%s failed after %v: %v", task.Name, elapsed, task.Err)
	default:
		l.Splog.Info("%s %s", task.Name, task.Status)
	}
}
