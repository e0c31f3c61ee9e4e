// Package route maps working-tree paths to the repository (root or
// submodule) responsible for them, keeping exactly one live session per
// repository root.
package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/internal/scheduler"
)

// Opener opens a session rooted at path
type Opener func(ctx context.Context, path string) (*git.Session, error)

// Factory builds a Repository around an opened session
type Factory func(session *git.Session, isSubmodule bool) (*Repository, error)

// Discovery finds submodules below a root repository
type Discovery interface {
	// ManifestModTime returns the last-modified time of the submodule
	// manifest, or the zero time when there is none.
	ManifestModTime(root string) time.Time
	// Submodules returns the absolute worktree paths of the submodules
	Submodules(ctx context.Context, root *Repository) ([]string, error)
}

// Option configures a Resolver
type Option func(*Resolver)

// WithOpener replaces git.Open
func WithOpener(open Opener) Option {
	return func(r *Resolver) { r.open = open }
}

// WithDiscovery replaces the .gitmodules based submodule discovery
func WithDiscovery(d Discovery) Option {
	return func(r *Resolver) { r.discovery = d }
}

// WithSchedulerFactory replaces the default Repository construction
func WithSchedulerFactory(f Factory) Option {
	return func(r *Resolver) { r.factory = f }
}

// WithLogger sets the resolver logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Resolver resolves paths to repositories. The submodule cache is rescanned
// only when the manifest timestamp changes.
type Resolver struct {
	open      Opener
	discovery Discovery
	factory   Factory
	logger    *slog.Logger

	mu           sync.Mutex
	requested    string
	root         *Repository
	submodules   map[string]*Repository // nil value = declared but not opened yet
	manifestTime time.Time
	scanned      bool
	disposed     bool
}

// NewResolver creates a resolver for the repository containing root. Nothing
// is opened until the first request.
func NewResolver(root string, opts ...Option) *Resolver {
	r := &Resolver{
		requested:  root,
		discovery:  ManifestDiscovery{},
		logger:     slog.New(slog.DiscardHandler),
		submodules: make(map[string]*Repository),
	}
	r.open = func(ctx context.Context, path string) (*git.Session, error) {
		return git.Open(ctx, path)
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.factory == nil {
		logger := r.logger
		r.factory = func(session *git.Session, isSubmodule bool) (*Repository, error) {
			return NewRepository(session, isSubmodule, RepositoryOptions{Logger: logger}), nil
		}
	}
	return r
}

// Root returns the root repository, opening it on first use
func (r *Resolver) Root(ctx context.Context) (*Repository, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureRootLocked(ctx)
}

// SetRoot replaces the working-tree root. Every repository of the old root is
// disposed and the new root is opened immediately.
func (r *Resolver) SetRoot(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return gitgateerrors.ErrDisposed
	}
	err := r.disposeAllLocked(ctx)
	r.requested = path
	if _, openErr := r.ensureRootLocked(ctx); openErr != nil {
		return errors.Join(err, openErr)
	}
	return err
}

// Resolve returns the repository owning path: the deepest submodule whose
// root contains it, else the root repository. Paths outside the root are
// rejected.
func (r *Resolver) Resolve(ctx context.Context, path string) (*Repository, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return r.resolveLocked(ctx, path)
}

// GroupByRepository partitions paths by owning repository with a single
// discovery pass
func (r *Resolver) GroupByRepository(ctx context.Context, paths []string) (map[*Repository][]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.refreshLocked(ctx); err != nil {
		return nil, err
	}
	groups := make(map[*Repository][]string)
	for _, p := range paths {
		repo, err := r.resolveLocked(ctx, p)
		if err != nil {
			return nil, err
		}
		groups[repo] = append(groups[repo], p)
	}
	return groups, nil
}

// GroupByRoot partitions paths by the root path of their owning repository
func (r *Resolver) GroupByRoot(ctx context.Context, paths []string) (map[string][]string, error) {
	groups, err := r.GroupByRepository(ctx, paths)
	if err != nil {
		return nil, err
	}
	byRoot := make(map[string][]string, len(groups))
	for repo, ps := range groups {
		byRoot[repo.Root] = ps
	}
	return byRoot, nil
}

// Dispose tears down every repository. Later calls fail with ErrDisposed.
func (r *Resolver) Dispose(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return nil
	}
	r.disposed = true
	return r.disposeAllLocked(ctx)
}

func (r *Resolver) ensureRootLocked(ctx context.Context) (*Repository, error) {
	if r.disposed {
		return nil, gitgateerrors.ErrDisposed
	}
	if r.root != nil {
		return r.root, nil
	}

	session, err := r.open(ctx, r.requested)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", r.requested, err)
	}
	repo, err := r.factory(session, false)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	r.root = repo
	r.logger.Debug("opened root repository", "root", repo.Root)
	return repo, nil
}

// refreshLocked rescans submodules when the manifest timestamp changed
func (r *Resolver) refreshLocked(ctx context.Context) error {
	root, err := r.ensureRootLocked(ctx)
	if err != nil {
		return err
	}

	modTime := r.discovery.ManifestModTime(root.Root)
	if r.scanned && modTime.Equal(r.manifestTime) {
		return nil
	}

	paths, err := r.discovery.Submodules(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to discover submodules: %w", err)
	}

	next := make(map[string]*Repository, len(paths))
	for _, p := range paths {
		p = filepath.Clean(p)
		next[p] = r.submodules[p]
	}
	for p, repo := range r.submodules {
		if _, keep := next[p]; keep || repo == nil {
			continue
		}
		if err := repo.Dispose(ctx); err != nil {
			r.logger.Warn("failed to dispose removed submodule", "path", p, "error", err)
		}
	}

	r.submodules = next
	r.manifestTime = modTime
	r.scanned = true
	r.logger.Debug("submodules scanned", "root", root.Root, "count", len(next))
	return nil
}

func (r *Resolver) resolveLocked(ctx context.Context, path string) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	if !within(r.root.Root, abs) {
		return nil, fmt.Errorf("%w: %s is outside %s", gitgateerrors.ErrInvalidOperation, abs, r.root.Root)
	}

	for _, sub := range r.candidatesLocked(abs) {
		repo, err := r.openSubmoduleLocked(ctx, sub)
		if err != nil {
			r.logger.Debug("submodule not usable, trying parent", "path", sub, "error", err)
			continue
		}
		return repo, nil
	}
	return r.root, nil
}

// candidatesLocked returns the submodule roots containing abs, deepest first
func (r *Resolver) candidatesLocked(abs string) []string {
	var matches []string
	for sub := range r.submodules {
		if within(sub, abs) {
			matches = append(matches, sub)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return len(matches[i]) > len(matches[j]) })
	return matches
}

func (r *Resolver) openSubmoduleLocked(ctx context.Context, path string) (*Repository, error) {
	if repo := r.submodules[path]; repo != nil {
		return repo, nil
	}

	session, err := r.open(ctx, path)
	if err != nil {
		return nil, err
	}
	// An uninitialised submodule directory resolves to the parent repository
	if filepath.Clean(session.Root()) != path {
		_ = session.Close()
		return nil, fmt.Errorf("submodule %s is not initialised", path)
	}
	repo, err := r.factory(session, true)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	r.submodules[path] = repo
	r.logger.Debug("opened submodule", "root", path)
	return repo, nil
}

func (r *Resolver) disposeAllLocked(ctx context.Context) error {
	var errs []error
	for p, repo := range r.submodules {
		if repo != nil {
			errs = append(errs, repo.Dispose(ctx))
		}
		delete(r.submodules, p)
	}
	if r.root != nil {
		errs = append(errs, r.root.Dispose(ctx))
		r.root = nil
	}
	r.scanned = false
	r.manifestTime = time.Time{}
	return errors.Join(errs...)
}

// within reports whether path is root or below it
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ManifestDiscovery reads .gitmodules through the root repository's scheduler
type ManifestDiscovery struct{}

// ManifestModTime stats <root>/.gitmodules
func (ManifestDiscovery) ManifestModTime(root string) time.Time {
	info, err := os.Stat(filepath.Join(root, ".gitmodules"))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Submodules lists the declared submodules of root
func (ManifestDiscovery) Submodules(ctx context.Context, root *Repository) ([]string, error) {
	subs, err := scheduler.Do(ctx, root.Scheduler, func(_ context.Context, session *git.Session) ([]git.Submodule, error) {
		return session.Submodules()
	}, scheduler.Name("discover submodules"))
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(subs))
	for _, s := range subs {
		paths = append(paths, s.Path)
	}
	return paths, nil
}
