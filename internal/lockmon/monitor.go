package lockmon

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// Op is the kind of filesystem change carried by an Event
type Op int

const (
	// OpCreate indicates a path appeared
	OpCreate Op = iota + 1
	// OpRemove indicates a path disappeared
	OpRemove
	// OpRename indicates OldPath was renamed to Path. Path is empty when the
	// destination is unknown (moved out of the watched directory).
	OpRename
	// OpChange indicates the content of Path changed
	OpChange
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	case OpChange:
		return "change"
	default:
		return "unknown"
	}
}

// Event is a filesystem notification for a path under the control directory
type Event struct {
	Op      Op
	Path    string
	OldPath string
}

// Freezer is the suspend/resume switch driven by lock transitions
type Freezer interface {
	Freeze()
	Thaw()
}

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

// WithMonitorLogger sets the monitor logger
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPeriodicRecheck makes Run re-validate the lock set on a ticker in
// addition to the rechecks done by waiting callers.
func WithPeriodicRecheck(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.recheckEvery = d
	}
}

// Monitor is the lock state machine. It consumes Events, keeps the LockSet
// current, freezes notifications while locks are held and signals branch
// changes when HEAD moves.
type Monitor struct {
	gate         *Gate
	freezer      Freezer
	headPath     string
	logger       *slog.Logger
	recheckEvery time.Duration

	branchChanged chan struct{}

	mu     sync.Mutex
	frozen bool
}

// NewMonitor creates a Monitor for the control directory gitDir
func NewMonitor(gitDir string, gate *Gate, freezer Freezer, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		gate:          gate,
		freezer:       freezer,
		headPath:      filepath.Join(gitDir, "HEAD"),
		logger:        slog.New(slog.DiscardHandler),
		branchChanged: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	gate.Locks().Subscribe(m.reconcileFreeze)
	return m
}

// BranchChanged delivers a coalesced signal whenever HEAD changes outside a
// lock event. It is a read-only notification.
func (m *Monitor) BranchChanged() <-chan struct{} {
	return m.branchChanged
}

// Run feeds events into Handle until the channel closes or ctx is done
func (m *Monitor) Run(ctx context.Context, events <-chan Event) error {
	var tick <-chan time.Time
	if m.recheckEvery > 0 {
		ticker := time.NewTicker(m.recheckEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.Handle(ev)
		case <-tick:
			m.Recheck()
		}
	}
}

// Handle applies one event to the lock state
func (m *Monitor) Handle(ev Event) {
	locks := m.gate.Locks()

	switch ev.Op {
	case OpCreate:
		if IsLockName(ev.Path) && locks.Add(ev.Path) {
			m.logger.Debug("lock acquired", "path", ev.Path)
		}
		m.signalIfHead(ev.Path)

	case OpRemove:
		if locks.Remove(ev.Path) {
			m.logger.Debug("lock released", "path", ev.Path)
		}

	case OpRename:
		tracked := locks.Has(ev.OldPath)
		toLock := IsLockName(ev.Path)
		switch {
		case tracked && toLock:
			locks.Rename(ev.OldPath, ev.Path)
			m.logger.Debug("lock renamed", "from", ev.OldPath, "to", ev.Path)
		case tracked:
			locks.Remove(ev.OldPath)
			m.logger.Debug("lock released by rename", "from", ev.OldPath, "to", ev.Path)
		case toLock:
			locks.Add(ev.Path)
			m.logger.Debug("lock acquired by rename", "path", ev.Path)
		}
		m.signalIfHead(ev.Path)

	case OpChange:
		m.signalIfHead(ev.Path)
	}
}

// Recheck prunes lock paths that no longer exist. With no lock files left on
// disk the gate reopens even if deletion events were lost.
func (m *Monitor) Recheck() []string {
	return m.gate.Recheck()
}

// signalIfHead posts the branch signal without blocking; pending signals coalesce
func (m *Monitor) signalIfHead(path string) {
	if path == "" || path != m.headPath {
		return
	}
	select {
	case m.branchChanged <- struct{}{}:
	default:
	}
}

// reconcileFreeze keeps exactly one outstanding Freeze while locks are held
func (m *Monitor) reconcileFreeze() {
	if m.freezer == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	held := m.gate.Locks().Len() > 0
	switch {
	case held && !m.frozen:
		m.frozen = true
		m.freezer.Freeze()
	case !held && m.frozen:
		m.frozen = false
		m.freezer.Thaw()
	}
}
