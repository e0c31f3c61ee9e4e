package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stackit.dev/gitgate/internal/config"
	"stackit.dev/gitgate/testhelpers"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("returns defaults when the file does not exist", func(t *testing.T) {
		t.Parallel()
		scene := testhelpers.NewScene(t, nil)

		cfg, err := config.Load(filepath.Join(scene.Dir, ".git"))
		require.NoError(t, err)
		require.Equal(t, config.DefaultRecheckInterval, cfg.RecheckInterval)
		require.Equal(t, config.DefaultCommandTimeout, cfg.CommandTimeout)
		require.Equal(t, "_tmp_", cfg.StashPrefix)
		require.Equal(t, "github.com", cfg.GitHub.Host)
		require.True(t, cfg.Watch)
		require.False(t, cfg.AutoStash)
		require.Equal(t, filepath.Join(scene.Dir, ".git", "gitgate.yaml"), cfg.File())
	})

	t.Run("reads values and fills the rest with defaults", func(t *testing.T) {
		t.Parallel()
		scene := testhelpers.NewScene(t, nil)
		gitDir := filepath.Join(scene.Dir, ".git")

		content := `recheck_interval: 250ms
auto_stash: true
watch: false
prompts:
  stash-before-merge: true
log:
  file: /tmp/gitgate.log
  max_size: 5
`
		require.NoError(t, os.WriteFile(config.Path(gitDir), []byte(content), 0600))

		cfg, err := config.Load(gitDir)
		require.NoError(t, err)
		require.Equal(t, 250*time.Millisecond, cfg.RecheckInterval)
		require.Equal(t, config.DefaultCommandTimeout, cfg.CommandTimeout)
		require.True(t, cfg.AutoStash)
		require.False(t, cfg.Watch)
		require.Equal(t, "/tmp/gitgate.log", cfg.Log.File)
		require.Equal(t, 5, cfg.Log.MaxSize)

		value, ok := cfg.Remembered("stash-before-merge")
		require.True(t, ok)
		require.True(t, value)
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		t.Parallel()
		scene := testhelpers.NewScene(t, nil)
		gitDir := filepath.Join(scene.Dir, ".git")
		require.NoError(t, os.WriteFile(config.Path(gitDir), []byte("prompts: [unterminated"), 0600))

		_, err := config.Load(gitDir)
		require.Error(t, err)
	})
}

func TestRememberPersists(t *testing.T) {
	t.Parallel()
	scene := testhelpers.NewScene(t, nil)
	gitDir := filepath.Join(scene.Dir, ".git")

	cfg, err := config.Load(gitDir)
	require.NoError(t, err)
	_, ok := cfg.Remembered("retry")
	require.False(t, ok)

	require.NoError(t, cfg.Remember("retry", false))

	info, err := os.Stat(config.Path(gitDir))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := config.Load(gitDir)
	require.NoError(t, err)
	value, ok := reloaded.Remembered("retry")
	require.True(t, ok)
	require.False(t, value)
	require.Equal(t, config.DefaultRecheckInterval, reloaded.RecheckInterval, "durations round-trip")

	require.NoError(t, reloaded.Forget())
	again, err := config.Load(gitDir)
	require.NoError(t, err)
	require.Empty(t, again.Prompts)
}

func TestDefaultHasNoFile(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	require.NoError(t, cfg.Remember("x", true), "in-memory config only records")
	require.Error(t, cfg.Save())
}
