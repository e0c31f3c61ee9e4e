// Package testhelpers provides testing utilities for gitgate: a scene system
// backed by real git repositories in temporary directories.
package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"stackit.dev/gitgate/internal/git"
)

// Scene represents a test scene with a temporary directory and Git repository.
type Scene struct {
	Dir  string
	Repo *GitRepo
}

// SceneSetup is a function type for setting up a scene.
type SceneSetup func(*Scene) error

// NewScene creates a new test scene in t.TempDir(). The working directory of
// the process is never changed, so scenes are safe in parallel tests.
func NewScene(t *testing.T, setup SceneSetup) *Scene {
	t.Helper()

	dir := t.TempDir()
	repo, err := NewGitRepo(dir)
	require.NoError(t, err, "failed to create git repo")

	scene := &Scene{Dir: dir, Repo: repo}
	if setup != nil {
		require.NoError(t, setup(scene), "scene setup failed")
	}
	return scene
}

// OpenSession opens a git.Session on the scene repository and closes it on cleanup.
func (s *Scene) OpenSession(t *testing.T) *git.Session {
	t.Helper()

	session, err := git.Open(context.Background(), s.Dir)
	require.NoError(t, err)
	session.Runner().SetEnv("GIT_CONFIG_GLOBAL=/dev/null", "GIT_TERMINAL_PROMPT=0", "GIT_EDITOR=true")
	t.Cleanup(func() { _ = session.Close() })
	return session
}

// BasicSceneSetup is a setup function that creates a basic scene with a single commit.
func BasicSceneSetup(scene *Scene) error {
	return scene.Repo.CreateChangeAndCommit("1", "1")
}
