package testhelpers_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stackit.dev/gitgate/testhelpers"
)

func TestSceneBasics(t *testing.T) {
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)

	branches, err := scene.Repo.RunGitCommandAndGetOutput("branch", "--list")
	require.NoError(t, err)
	require.Contains(t, branches, "main")

	testhelpers.ExpectCommits(t, scene.Repo, "main", []string{"1"})
	testhelpers.ExpectFileContent(t, scene.Repo, "1_test.txt", "1")
	testhelpers.ExpectCleanTree(t, scene.Repo)
}

func TestGitRepoBranchOperations(t *testing.T) {
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)

	require.NoError(t, scene.Repo.CreateAndCheckoutBranch("feature"))
	require.NoError(t, scene.Repo.CommitFile("dir/a.txt", "a", "add a"))

	current, err := scene.Repo.CurrentBranchName()
	require.NoError(t, err)
	require.Equal(t, "feature", current)

	testhelpers.ExpectBranches(t, scene.Repo, []string{"feature", "main"})
	testhelpers.ExpectCommits(t, scene.Repo, "feature", []string{"add a", "1"})
	require.True(t, scene.Repo.FileExists("dir/a.txt"))
}
