// Package progress carries step and message progress for one operation.
// Rate limiting is a value owned by the operation and travels in its
// context; there is no process-wide throttle state.
package progress

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// DefaultInterval is the minimum spacing of throttled messages
const DefaultInterval = 200 * time.Millisecond

// Reporter receives progress for one compound operation
type Reporter interface {
	StepStarted(index int, description string)
	StepCompleted(index int)
	StepFailed(index int, err error)
	Message(text string)
}

// Throttle admits at most one event per interval
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewThrottle creates a Throttle. A non-positive interval admits everything.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, now: time.Now}
}

// Allow reports whether an event may pass now, and records it if so
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if t.interval > 0 && !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

type reporterKey struct{}

// WithReporter attaches r to ctx
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// FromContext returns the Reporter carried by ctx, or a no-op Reporter
func FromContext(ctx context.Context) Reporter {
	if r, ok := ctx.Value(reporterKey{}).(Reporter); ok && r != nil {
		return r
	}
	return Nop{}
}

// Nop discards all progress
type Nop struct{}

func (Nop) StepStarted(int, string) {}
func (Nop) StepCompleted(int)       {}
func (Nop) StepFailed(int, error)   {}
func (Nop) Message(string)          {}

// throttled coalesces Message calls; step transitions always pass
type throttled struct {
	Reporter
	throttle *Throttle
}

// Throttled wraps r so Message calls are spaced by at least interval
func Throttled(r Reporter, interval time.Duration) Reporter {
	return &throttled{Reporter: r, throttle: NewThrottle(interval)}
}

func (t *throttled) Message(text string) {
	if t.throttle.Allow() {
		t.Reporter.Message(text)
	}
}

// Writer adapts sideband progress output (lines separated by \r or \n) into
// throttled Message calls on the Reporter carried by ctx.
func Writer(ctx context.Context, interval time.Duration) io.Writer {
	return &lineWriter{
		reporter: FromContext(ctx),
		throttle: NewThrottle(interval),
	}
}

type lineWriter struct {
	mu       sync.Mutex
	reporter Reporter
	throttle *Throttle
	buf      bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		idx := bytes.IndexAny(data, "\r\n")
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(data[:idx]))
		w.buf.Next(idx + 1)
		if line != "" && w.throttle.Allow() {
			w.reporter.Message(line)
		}
	}
	return len(p), nil
}
