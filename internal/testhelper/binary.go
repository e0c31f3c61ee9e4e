// Package testhelper builds the gitgate binary for end-to-end CLI tests.
package testhelper

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

var (
	binaryPath string
	binaryOnce sync.Once
	binaryErr  error
)

// SetBinaryPath overrides the binary used by BinaryPath. TestMain calls it
// when it builds the binary itself.
func SetBinaryPath(path string) {
	binaryPath = path
}

// BinaryPath returns the gitgate binary, building it on first use
func BinaryPath() (string, error) {
	binaryOnce.Do(func() {
		if binaryPath != "" {
			return
		}
		binaryPath, binaryErr = Build(os.TempDir())
	})
	return binaryPath, binaryErr
}

// Build compiles ./cmd/gitgate into a fresh directory under parent
func Build(parent string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	moduleRoot := findModuleRoot(wd)
	if moduleRoot == "" {
		return "", fmt.Errorf("no go.mod above %s", wd)
	}

	dir, err := os.MkdirTemp(parent, "gitgate-bin-*")
	if err != nil {
		return "", fmt.Errorf("failed to create binary directory: %w", err)
	}
	path := filepath.Join(dir, "gitgate")

	cmd := exec.Command("go", "build", "-o", path, "./cmd/gitgate")
	cmd.Dir = moduleRoot
	if output, err := cmd.CombinedOutput(); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("go build: %s: %w", output, err)
	}
	return path, nil
}

func findModuleRoot(dir string) string {
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
