// Package freeze suspends file-change notifications while the repository is
// locked or an exclusive operation is running, and delivers what was
// suppressed as one batch when the last freeze is released.
package freeze

import (
	"log/slog"
	"sort"
	"sync"
)

// Listener receives batches of changed paths
type Listener func(paths []string)

// Stats reports freeze activity for diagnostics
type Stats struct {
	Freezes    int64
	Thaws      int64
	Unmatched  int64 // Thaw calls with no matching Freeze
	Suppressed int64 // Notify paths held back while frozen
	Depth      int
}

// Coordinator is a counted suppression switch. Each Freeze must be paired
// with exactly one Thaw; Scope does the pairing for callers.
type Coordinator struct {
	mu        sync.Mutex
	depth     int
	pending   map[string]struct{}
	listeners []Listener
	stats     Stats
	logger    *slog.Logger
}

// New creates a Coordinator. A nil logger discards output.
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		pending: make(map[string]struct{}),
		logger:  logger,
	}
}

// Freeze suspends notification delivery until the matching Thaw
func (c *Coordinator) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depth++
	c.stats.Freezes++
	if c.depth == 1 {
		c.logger.Debug("notifications frozen")
	}
}

// Thaw releases one Freeze. When the count returns to zero the paths
// suppressed in the meantime are delivered as a single batch.
func (c *Coordinator) Thaw() {
	c.mu.Lock()
	if c.depth == 0 {
		c.stats.Unmatched++
		c.mu.Unlock()
		c.logger.Warn("thaw without matching freeze ignored")
		return
	}
	c.depth--
	c.stats.Thaws++
	if c.depth > 0 {
		c.mu.Unlock()
		return
	}

	batch := c.drainLocked()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	c.logger.Debug("notifications thawed", "pending", len(batch))
	deliver(listeners, batch)
}

// Scope freezes now and returns a release func that thaws exactly once,
// however many times it is called.
func (c *Coordinator) Scope() func() {
	c.Freeze()
	var once sync.Once
	return func() {
		once.Do(c.Thaw)
	}
}

// Frozen reports whether at least one Freeze is outstanding
func (c *Coordinator) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth > 0
}

// Subscribe registers a listener for changed-path batches
func (c *Coordinator) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Notify reports changed paths. They reach listeners immediately when thawed
// and are coalesced until the final Thaw otherwise.
func (c *Coordinator) Notify(paths ...string) {
	if len(paths) == 0 {
		return
	}

	c.mu.Lock()
	if c.depth > 0 {
		for _, p := range paths {
			c.pending[p] = struct{}{}
		}
		c.stats.Suppressed += int64(len(paths))
		c.mu.Unlock()
		return
	}
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	deliver(listeners, append([]string(nil), paths...))
}

// Stats returns a snapshot of the counters
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Depth = c.depth
	return s
}

func (c *Coordinator) drainLocked() []string {
	if len(c.pending) == 0 {
		return nil
	}
	batch := make([]string, 0, len(c.pending))
	for p := range c.pending {
		batch = append(batch, p)
	}
	sort.Strings(batch)
	c.pending = make(map[string]struct{})
	return batch
}

func deliver(listeners []Listener, batch []string) {
	if len(batch) == 0 {
		return
	}
	for _, l := range listeners {
		l(batch)
	}
}
