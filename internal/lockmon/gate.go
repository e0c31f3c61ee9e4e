package lockmon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRecheckInterval bounds each wait on a closed Gate. Every expiry
// re-validates the tracked lock paths against the filesystem.
const DefaultRecheckInterval = 100 * time.Millisecond

// GateOption configures a Gate
type GateOption func(*Gate)

// WithRecheckInterval overrides DefaultRecheckInterval
func WithRecheckInterval(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.interval = d
		}
	}
}

// WithExistsFunc replaces the filesystem check used when pruning stale locks
func WithExistsFunc(fn func(string) bool) GateOption {
	return func(g *Gate) {
		if fn != nil {
			g.exists = fn
		}
	}
}

// WithLogger sets the logger for gate transitions
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Gate is open exactly when the LockSet is empty and no exclusive blocking
// operation holds it.
type Gate struct {
	locks    *LockSet
	interval time.Duration
	exists   func(string) bool
	logger   *slog.Logger

	mu        sync.Mutex
	exclusive bool
	open      bool
	changed   chan struct{} // closed and replaced on every transition
	listeners []func(open bool)
}

// NewGate creates a Gate derived from locks
func NewGate(locks *LockSet, opts ...GateOption) *Gate {
	g := &Gate{
		locks:    locks,
		interval: DefaultRecheckInterval,
		exists:   PathExists,
		logger:   slog.New(slog.DiscardHandler),
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.open = locks.Len() == 0
	locks.Subscribe(g.refresh)
	return g
}

// Locks returns the LockSet the gate is derived from
func (g *Gate) Locks() *LockSet {
	return g.locks
}

// IsOpen reports the current state
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Subscribe registers fn for every transition. Listeners run synchronously,
// in transition order, and must not call back into the Gate.
func (g *Gate) Subscribe(fn func(open bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Wait blocks until the gate is open or ctx is done. Waits are bounded by the
// recheck interval; each expiry prunes lock paths that no longer exist, so a
// dropped deletion event cannot keep the gate closed.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		open, changed := g.open, g.changed
		g.mu.Unlock()
		if open {
			return nil
		}

		timer := time.NewTimer(g.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-changed:
			timer.Stop()
		case <-timer.C:
			g.Recheck()
		}
	}
}

// Acquire waits for the gate and closes it for an exclusive operation.
// Every successful Acquire must be followed by exactly one Release.
func (g *Gate) Acquire(ctx context.Context) error {
	for {
		if err := g.Wait(ctx); err != nil {
			return err
		}
		g.mu.Lock()
		if g.open && !g.exclusive {
			g.exclusive = true
			g.publishLocked()
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()
	}
}

// Release ends the exclusive hold taken by Acquire
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.exclusive {
		g.logger.Warn("gate release without acquire ignored")
		return
	}
	g.exclusive = false
	g.publishLocked()
}

// Recheck prunes stale lock paths and returns what was pruned
func (g *Gate) Recheck() []string {
	pruned := g.locks.Prune(g.exists)
	if len(pruned) > 0 {
		g.logger.Debug("pruned stale locks", "paths", pruned)
	}
	return pruned
}

func (g *Gate) refresh() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.publishLocked()
}

// publishLocked recomputes the state and announces a transition
func (g *Gate) publishLocked() {
	open := g.locks.Len() == 0 && !g.exclusive
	if open == g.open {
		return
	}
	g.open = open
	close(g.changed)
	g.changed = make(chan struct{})

	g.logger.Debug("gate transition", "open", open, "locks", g.locks.Len(), "exclusive", g.exclusive)
	for _, fn := range g.listeners {
		fn(open)
	}
}
