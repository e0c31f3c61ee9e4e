package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadPiped(t *testing.T) {
	t.Run("file content is trimmed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "message")
		require.NoError(t, os.WriteFile(path, []byte("\n  merge message\n\n"), 0600))
		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()

		got, err := ReadPiped(f)
		require.NoError(t, err)
		require.Equal(t, "merge message", got)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty")
		require.NoError(t, os.WriteFile(path, nil, 0600))
		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()

		got, err := ReadPiped(f)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("pipe", func(t *testing.T) {
		r, w, err := os.Pipe()
		require.NoError(t, err)
		defer r.Close()
		_, err = w.WriteString("from a pipe\n")
		require.NoError(t, err)
		require.NoError(t, w.Close())

		got, err := ReadPiped(r)
		require.NoError(t, err)
		require.Equal(t, "from a pipe", got)
	})
}
