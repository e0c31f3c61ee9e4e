// Package lockmon tracks the lock artifacts git itself creates in the
// control directory and derives the Gate that suspends blocking operations
// while git holds them.
package lockmon

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// lockMarkers are control entries that mark an in-progress native operation
var lockMarkers = map[string]bool{
	"rebase-apply":     true,
	"rebase-merge":     true,
	"CHERRY_PICK_HEAD": true,
	"REVERT_HEAD":      true,
}

// IsLockName reports whether path names a lock artifact: any *.lock file
// (index.lock, HEAD.lock, ref locks) or an in-progress marker.
func IsLockName(path string) bool {
	if path == "" {
		return false
	}
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".lock") || lockMarkers[base]
}

// PathExists is the default existence check used when pruning
func PathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// LockSet is the set of paths currently believed to be held by git.
// Subscribers run after every change of emptiness, outside the set's mutex.
type LockSet struct {
	mu        sync.Mutex
	paths     map[string]struct{}
	listeners []func()
}

// NewLockSet creates an empty LockSet
func NewLockSet() *LockSet {
	return &LockSet{paths: make(map[string]struct{})}
}

// Subscribe registers fn to run whenever the set becomes empty or non-empty
func (s *LockSet) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Add tracks path. It reports whether the path was new.
func (s *LockSet) Add(path string) bool {
	s.mu.Lock()
	if _, ok := s.paths[path]; ok {
		s.mu.Unlock()
		return false
	}
	s.paths[path] = struct{}{}
	flipped := len(s.paths) == 1
	listeners := s.snapshotLocked(flipped)
	s.mu.Unlock()

	notify(listeners)
	return true
}

// Remove stops tracking path. It reports whether the path was tracked.
func (s *LockSet) Remove(path string) bool {
	s.mu.Lock()
	if _, ok := s.paths[path]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.paths, path)
	flipped := len(s.paths) == 0
	listeners := s.snapshotLocked(flipped)
	s.mu.Unlock()

	notify(listeners)
	return true
}

// Rename replaces the identity of a tracked path without changing the
// emptiness of the set. It reports whether oldPath was tracked.
func (s *LockSet) Rename(oldPath, newPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paths[oldPath]; !ok {
		return false
	}
	delete(s.paths, oldPath)
	s.paths[newPath] = struct{}{}
	return true
}

// Prune drops every tracked path for which exists reports false and returns
// the pruned paths.
func (s *LockSet) Prune(exists func(string) bool) []string {
	if exists == nil {
		exists = PathExists
	}

	s.mu.Lock()
	if len(s.paths) == 0 {
		s.mu.Unlock()
		return nil
	}
	var pruned []string
	for p := range s.paths {
		if !exists(p) {
			delete(s.paths, p)
			pruned = append(pruned, p)
		}
	}
	flipped := len(pruned) > 0 && len(s.paths) == 0
	listeners := s.snapshotLocked(flipped)
	s.mu.Unlock()

	sort.Strings(pruned)
	notify(listeners)
	return pruned
}

// Has reports whether path is tracked
func (s *LockSet) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.paths[path]
	return ok
}

// Len returns the number of tracked paths
func (s *LockSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

// Paths returns the tracked paths, sorted
func (s *LockSet) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *LockSet) snapshotLocked(flipped bool) []func() {
	if !flipped || len(s.listeners) == 0 {
		return nil
	}
	return append([]func(){}, s.listeners...)
}

func notify(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}
