package scheduler

import (
	"context"
	"sync/atomic"
)

type workerKey struct{}

// workerTag marks a context as running on a scheduler's worker. exclusive is
// set while an enclosing blocking operation holds the Gate. The tag only
// counts while active: a context that outlives its action is queued again.
type workerTag struct {
	s         *Scheduler
	exclusive bool
	active    atomic.Bool
}

func withWorker(ctx context.Context, tag *workerTag) context.Context {
	return context.WithValue(ctx, workerKey{}, tag)
}

func workerFrom(ctx context.Context, s *Scheduler) (*workerTag, bool) {
	tag, ok := ctx.Value(workerKey{}).(*workerTag)
	if !ok || tag == nil || tag.s != s || !tag.active.Load() {
		return nil, false
	}
	return tag, true
}

// OnWorker reports whether ctx was handed to an action by s that is still
// running. Requests made with such a context run inline instead of being
// queued.
func OnWorker(ctx context.Context, s *Scheduler) bool {
	_, ok := workerFrom(ctx, s)
	return ok
}

type uiThreadKey struct{}

// WithUIThread marks ctx as belonging to the thread that owns the user
// interface.
func WithUIThread(ctx context.Context) context.Context {
	return context.WithValue(ctx, uiThreadKey{}, true)
}

// IsUIThread reports whether ctx was marked by WithUIThread
func IsUIThread(ctx context.Context) bool {
	v, _ := ctx.Value(uiThreadKey{}).(bool)
	return v
}
