// Package scenario drives the gitgate binary against a Scene and offers a
// terse, chainable API for end-to-end tests.
package scenario

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"stackit.dev/gitgate/internal/testhelper"
	"stackit.dev/gitgate/testhelpers"
)

// Scenario is a Scene plus the binary that operates on it
type Scenario struct {
	T          *testing.T
	Scene      *testhelpers.Scene
	BinaryPath string
	logFile    string
}

// NewScenario creates a scene and locates the gitgate binary. It does not
// touch the process environment, so scenarios may run in parallel.
func NewScenario(t *testing.T, setup testhelpers.SceneSetup) *Scenario {
	t.Helper()

	path, err := testhelper.BinaryPath()
	require.NoError(t, err, "failed to build gitgate")

	return &Scenario{
		T:          t,
		Scene:      testhelpers.NewScene(t, setup),
		BinaryPath: path,
		logFile:    filepath.Join(t.TempDir(), "gitgate.log"),
	}
}

// Dir is the scene's working tree
func (s *Scenario) Dir() string {
	return s.Scene.Dir
}

// WithInitialCommit creates an initial commit on main
func (s *Scenario) WithInitialCommit() *Scenario {
	s.T.Helper()
	require.NoError(s.T, s.Scene.Repo.CreateChangeAndCommit("initial", "init"))
	return s
}

// WithFile writes a file into the working tree without staging it
func (s *Scenario) WithFile(name, content string) *Scenario {
	s.T.Helper()
	require.NoError(s.T, s.Scene.Repo.WriteFile(name, content))
	return s
}

// CommitFile writes, stages and commits a file on the current branch
func (s *Scenario) CommitFile(name, content, message string) *Scenario {
	s.T.Helper()
	require.NoError(s.T, s.Scene.Repo.CommitFile(name, content, message))
	return s
}

// CreateBranch creates and checks out a branch
func (s *Scenario) CreateBranch(name string) *Scenario {
	s.T.Helper()
	require.NoError(s.T, s.Scene.Repo.CreateAndCheckoutBranch(name))
	return s
}

// Checkout checks out an existing branch with plain git
func (s *Scenario) Checkout(branch string) *Scenario {
	s.T.Helper()
	require.NoError(s.T, s.Scene.Repo.CheckoutBranch(branch))
	return s
}

// RunGit runs a git command in the scene repository
func (s *Scenario) RunGit(args ...string) *Scenario {
	s.T.Helper()
	require.NoError(s.T, s.Scene.Repo.RunGitCommand(args...))
	return s
}

func (s *Scenario) command(args ...string) *exec.Cmd {
	cmd := exec.Command(s.BinaryPath, args...)
	cmd.Dir = s.Scene.Dir
	cmd.Env = append(os.Environ(),
		"GITGATE_NO_INTERACTIVE=1",
		"GITGATE_LOG_FILE="+s.logFile,
		"GIT_CONFIG_GLOBAL=/dev/null",
		"GIT_TERMINAL_PROMPT=0",
		"GIT_EDITOR=true",
		"GITHUB_TOKEN=",
	)
	return cmd
}

// Output runs gitgate and returns its combined output
func (s *Scenario) Output(args ...string) (string, error) {
	output, err := s.command(args...).CombinedOutput()
	return string(output), err
}

// OutputWithInput runs gitgate with input on stdin
func (s *Scenario) OutputWithInput(input string, args ...string) (string, error) {
	cmd := s.command(args...)
	cmd.Stdin = strings.NewReader(input)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// RunCli runs gitgate and requires it to succeed
func (s *Scenario) RunCli(args ...string) *Scenario {
	s.T.Helper()
	output, err := s.Output(args...)
	require.NoError(s.T, err, "gitgate %v failed\nOutput: %s", args, output)
	return s
}

// RunExpectError runs gitgate and requires it to fail
func (s *Scenario) RunExpectError(args ...string) *Scenario {
	s.T.Helper()
	output, err := s.Output(args...)
	require.Error(s.T, err, "expected gitgate %v to fail\nOutput: %s", args, output)
	return s
}

// ExpectBranch asserts the checked out branch
func (s *Scenario) ExpectBranch(expected string) *Scenario {
	s.T.Helper()
	actual, err := s.Scene.Repo.CurrentBranchName()
	require.NoError(s.T, err)
	require.Equal(s.T, expected, actual)
	return s
}

// ExpectFile asserts the content of a working tree file
func (s *Scenario) ExpectFile(name, content string) *Scenario {
	s.T.Helper()
	testhelpers.ExpectFileContent(s.T, s.Scene.Repo, name, content)
	return s
}

// ExpectStashes asserts the number of stash entries
func (s *Scenario) ExpectStashes(n int) *Scenario {
	s.T.Helper()
	count, err := s.Scene.Repo.StashCount()
	require.NoError(s.T, err)
	require.Equal(s.T, n, count)
	return s
}

// ExpectCommits asserts the commit subjects of a branch, newest first
func (s *Scenario) ExpectCommits(branch string, subjects ...string) *Scenario {
	s.T.Helper()
	testhelpers.ExpectCommits(s.T, s.Scene.Repo, branch, subjects)
	return s
}
