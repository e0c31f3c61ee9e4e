// Package scheduler serialises every operation against one repository
// session onto a single worker goroutine.
//
// Callers outside the worker are queued in FIFO order. A caller whose
// context was produced by the worker (see OnWorker) runs inline, so an
// operation that needs the repository again from inside another operation
// never deadlocks. Blocking operations additionally hold the Gate and a
// freeze scope for their whole execution window.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
	"stackit.dev/gitgate/internal/git"
)

// Action is the unit of work run against the session
type Action func(ctx context.Context, session *git.Session) error

// Gate is the exclusive-operation gate consulted by blocking operations
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
}

// Freezer suspends file-change notifications for a scope
type Freezer interface {
	Scope() func()
}

// Option configures a single request
type Option func(*requestOptions)

type requestOptions struct {
	blocking   bool
	uiCallback bool
	name       string
}

// Blocking makes the request wait for the Gate and hold it, together with a
// freeze scope, until the action returns.
func Blocking() Option {
	return func(o *requestOptions) { o.blocking = true }
}

// UICallback marks an action that synchronously invokes rendering or reload
// callbacks. Such requests fail fast when issued from the UI thread.
func UICallback() Option {
	return func(o *requestOptions) { o.uiCallback = true }
}

// Name labels the request in logs
func Name(name string) Option {
	return func(o *requestOptions) { o.name = name }
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithLogger sets the scheduler logger
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type job struct {
	ctx  context.Context
	fn   Action
	opts requestOptions
	done chan error
}

// Scheduler owns one repository session and the worker that drives it
type Scheduler struct {
	session *git.Session
	gate    Gate
	freezer Freezer
	logger  *slog.Logger

	lifetime       context.Context
	cancelLifetime context.CancelFunc

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*job
	disposed bool
	stopped  chan struct{}
}

// New starts a scheduler for session. The scheduler owns the session from
// here on and closes it on Dispose.
func New(session *git.Session, gate Gate, freezer Freezer, opts ...SchedulerOption) *Scheduler {
	lifetime, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		session:        session,
		gate:           gate,
		freezer:        freezer,
		logger:         slog.New(slog.DiscardHandler),
		lifetime:       lifetime,
		cancelLifetime: cancel,
		stopped:        make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("repo", session.Root())

	go s.loop()
	return s
}

// Root returns the worktree root of the owned session
func (s *Scheduler) Root() string {
	return s.session.Root()
}

// Run executes fn against the session and returns its error. Cancellation of
// ctx while queued or while waiting for the Gate returns ctx.Err() without
// running fn.
func (s *Scheduler) Run(ctx context.Context, fn Action, opts ...Option) error {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.uiCallback && IsUIThread(ctx) {
		return fmt.Errorf("%w: %s must not run on the UI thread", gitgateerrors.ErrInvalidOperation, o.label())
	}

	if tag, ok := workerFrom(ctx, s); ok {
		return s.invoke(ctx, tag, fn, o)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	j := &job{ctx: ctx, fn: fn, opts: o, done: make(chan error, 1)}
	if err := s.enqueue(j); err != nil {
		return err
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		// The worker skips the job if it has not started yet
		return ctx.Err()
	}
}

// Do runs fn on the scheduler and returns its value
func Do[T any](ctx context.Context, s *Scheduler, fn func(ctx context.Context, session *git.Session) (T, error), opts ...Option) (T, error) {
	var result T
	err := s.Run(ctx, func(ctx context.Context, session *git.Session) error {
		var err error
		result, err = fn(ctx, session)
		return err
	}, opts...)
	return result, err
}

// Future is the pending result of RunAsync
type Future struct {
	done chan struct{}
	err  error
}

// Done is closed when the operation has finished
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the operation finishes or ctx is done
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAsync submits fn without waiting for it. It is always queued, even
// from the worker, since the caller keeps running alongside it.
func (s *Scheduler) RunAsync(ctx context.Context, fn Action, opts ...Option) *Future {
	ctx = withWorker(ctx, nil)
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.err = s.Run(ctx, fn, opts...)
	}()
	return f
}

// Dispose rejects new work, fails queued requests with ErrDisposed, cancels
// the in-flight action, waits for the worker to quiesce and closes the
// session. Calling it from the worker is an invalid operation.
func (s *Scheduler) Dispose(ctx context.Context) error {
	if _, ok := workerFrom(ctx, s); ok {
		return fmt.Errorf("%w: dispose called from the worker", gitgateerrors.ErrInvalidOperation)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		<-s.stopped
		return nil
	}
	s.disposed = true
	queued := s.queue
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, j := range queued {
		j.done <- gitgateerrors.ErrDisposed
	}
	s.cancelLifetime()
	<-s.stopped

	s.logger.Debug("scheduler disposed", "dropped", len(queued))
	return s.session.Close()
}

func (s *Scheduler) enqueue(j *job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return gitgateerrors.ErrDisposed
	}
	s.queue = append(s.queue, j)
	s.cond.Signal()
	return nil
}

// next blocks until a job is queued; false means the scheduler was disposed
func (s *Scheduler) next() (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.disposed {
		s.cond.Wait()
	}
	if s.disposed {
		return nil, false
	}
	j := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return j, true
}

func (s *Scheduler) loop() {
	defer close(s.stopped)
	for {
		j, ok := s.next()
		if !ok {
			return
		}
		if err := j.ctx.Err(); err != nil {
			j.done <- err
			continue
		}
		j.done <- s.execute(j)
	}
}

// execute runs a dequeued job on the worker with a context merged from the
// caller and the scheduler lifetime
func (s *Scheduler) execute(j *job) error {
	ctx, cancel := context.WithCancelCause(j.ctx)
	defer cancel(nil)
	stop := context.AfterFunc(s.lifetime, func() { cancel(gitgateerrors.ErrDisposed) })
	defer stop()

	return s.invoke(ctx, nil, j.fn, j.opts)
}

// invoke runs fn on the worker. outer is the tag of the action that called
// inline, nil for a dequeued job.
func (s *Scheduler) invoke(ctx context.Context, outer *workerTag, fn Action, o requestOptions) (err error) {
	start := time.Now()
	label := o.label()

	tag := &workerTag{s: s}
	if outer != nil {
		tag.exclusive = outer.exclusive
	}
	if o.blocking {
		if !tag.exclusive {
			if err := s.gate.Acquire(ctx); err != nil {
				if cause := context.Cause(ctx); cause != nil {
					return cause
				}
				return err
			}
			defer s.gate.Release()
			tag.exclusive = true
		}
		thaw := s.freezer.Scope()
		defer thaw()
	}

	tag.active.Store(true)
	defer tag.active.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("operation panicked", "op", label, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("operation %s panicked: %v", label, r)
		}
	}()

	err = fn(withWorker(ctx, tag), s.session)
	s.logger.Debug("operation finished", "op", label, "blocking", o.blocking, "duration", time.Since(start), "error", err)
	return err
}

func (o requestOptions) label() string {
	if o.name != "" {
		return o.name
	}
	return "operation"
}
