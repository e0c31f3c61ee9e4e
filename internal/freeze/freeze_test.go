package freeze_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"stackit.dev/gitgate/internal/freeze"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recorder) listen(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, paths)
}

func (r *recorder) all() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

func TestNotifyPassesThroughWhenThawed(t *testing.T) {
	c := freeze.New(nil)
	rec := &recorder{}
	c.Subscribe(rec.listen)

	c.Notify("a.txt")
	c.Notify()

	require.Equal(t, [][]string{{"a.txt"}}, rec.all())
}

func TestFreezeCoalescesUntilLastThaw(t *testing.T) {
	c := freeze.New(nil)
	rec := &recorder{}
	c.Subscribe(rec.listen)

	c.Freeze()
	c.Freeze()
	c.Notify("b.txt", "a.txt")
	c.Notify("a.txt")
	require.True(t, c.Frozen())

	c.Thaw()
	require.Empty(t, rec.all(), "inner thaw must not deliver")
	require.True(t, c.Frozen())

	c.Thaw()
	require.False(t, c.Frozen())
	require.Equal(t, [][]string{{"a.txt", "b.txt"}}, rec.all())

	stats := c.Stats()
	require.Equal(t, int64(2), stats.Freezes)
	require.Equal(t, int64(2), stats.Thaws)
	require.Equal(t, int64(3), stats.Suppressed)
	require.Equal(t, 0, stats.Depth)
}

func TestUnmatchedThawIsIgnored(t *testing.T) {
	c := freeze.New(nil)

	c.Thaw()
	require.False(t, c.Frozen())
	require.Equal(t, int64(1), c.Stats().Unmatched)

	// A later pair still balances
	c.Freeze()
	require.True(t, c.Frozen())
	c.Thaw()
	require.False(t, c.Frozen())
}

func TestScopeReleasesOnce(t *testing.T) {
	c := freeze.New(nil)

	release := c.Scope()
	require.True(t, c.Frozen())

	release()
	release()
	require.False(t, c.Frozen())
	require.Equal(t, int64(0), c.Stats().Unmatched)
}

func TestScopeReleasesOnPanic(t *testing.T) {
	c := freeze.New(nil)

	func() {
		defer func() { _ = recover() }()
		release := c.Scope()
		defer release()
		panic("boom")
	}()

	require.False(t, c.Frozen())
}

func TestConcurrentScopesBalance(t *testing.T) {
	c := freeze.New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := c.Scope()
			c.Notify("x")
			release()
		}()
	}
	wg.Wait()

	require.False(t, c.Frozen())
	stats := c.Stats()
	require.Equal(t, stats.Freezes, stats.Thaws)
}
