package testhelpers

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// Must is a generic helper function that panics if err is not nil,
// otherwise returns the value. Useful in test setup code where errors
// are not expected and should halt execution immediately.
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// ExpectBranches asserts that the repository has exactly the expected local branches.
func ExpectBranches(t *testing.T, repo *GitRepo, expected []string) {
	t.Helper()

	output, err := repo.RunGitCommandAndGetOutput("for-each-ref", "refs/heads/", "--format=%(refname:short)")
	require.NoError(t, err, "Failed to list branches")

	branches := splitLines(output)
	sort.Strings(branches)
	want := append([]string(nil), expected...)
	sort.Strings(want)

	require.Equal(t, want, branches, "Branches do not match")
}

// ExpectCommits asserts the newest commit subjects on branch, newest first.
func ExpectCommits(t *testing.T, repo *GitRepo, branch string, expected []string) {
	t.Helper()

	output, err := repo.RunGitCommandAndGetOutput("log", "--format=%s", branch)
	require.NoError(t, err, "Failed to list commits")

	commits := splitLines(output)
	if len(commits) < len(expected) {
		require.Fail(t, "Not enough commits", "Expected %d commits, got %d", len(expected), len(commits))
		return
	}
	require.Equal(t, expected, commits[:len(expected)], "Commits do not match")
}

// ExpectFileContent asserts the content of a file in the worktree.
func ExpectFileContent(t *testing.T, repo *GitRepo, name, expected string) {
	t.Helper()

	content, err := repo.ReadFile(name)
	require.NoError(t, err, "Failed to read %s", name)
	require.Equal(t, expected, content, "Unexpected content in %s", name)
}

// ExpectCleanTree asserts that the worktree has no changes, untracked files included.
func ExpectCleanTree(t *testing.T, repo *GitRepo) {
	t.Helper()

	status, err := repo.StatusPorcelain()
	require.NoError(t, err)
	require.Empty(t, status, "Worktree is not clean")
}
