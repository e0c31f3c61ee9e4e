package git_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/testhelpers"
)

func TestOpen(t *testing.T) {
	t.Run("resolves root and git dir from a nested path", func(t *testing.T) {
		scene := testhelpers.NewScene(t, func(s *testhelpers.Scene) error {
			return s.Repo.CommitFile("sub/dir/file.txt", "x", "init")
		})

		session, err := git.Open(context.Background(), scene.Repo.Path("sub/dir"))
		require.NoError(t, err)
		defer session.Close()

		root, err := session.Runner().Run(context.Background(), "rev-parse", "--show-toplevel")
		require.NoError(t, err)
		require.Equal(t, root, session.Root())
		require.Contains(t, session.GitDir(), ".git")
		require.False(t, session.Closed())

		require.NoError(t, session.Close())
		require.True(t, session.Closed())
	})

	t.Run("fails outside a repository", func(t *testing.T) {
		_, err := git.Open(context.Background(), t.TempDir())
		require.Error(t, err)
	})
}

func TestStatus(t *testing.T) {
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	session := scene.OpenSession(t)
	ctx := context.Background()

	dirty, err := session.HasLocalChanges(ctx, true)
	require.NoError(t, err)
	require.False(t, dirty)

	require.NoError(t, scene.Repo.WriteFile("untracked.txt", "u"))
	dirty, err = session.HasLocalChanges(ctx, false)
	require.NoError(t, err)
	require.False(t, dirty, "untracked files are ignored unless requested")
	dirty, err = session.HasLocalChanges(ctx, true)
	require.NoError(t, err)
	require.True(t, dirty)

	require.NoError(t, scene.Repo.WriteFile("1_test.txt", "changed"))
	entries, err := session.Status(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "1_test.txt", entries[0].Path)
	require.Equal(t, byte('M'), entries[0].Worktree)
	require.True(t, entries[1].IsUntracked())
}

func TestHistory(t *testing.T) {
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	session := scene.OpenSession(t)
	ctx := context.Background()

	base, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)

	require.NoError(t, scene.Repo.CreateAndCheckoutBranch("feature"))
	require.NoError(t, scene.Repo.CommitFile("a.txt", "a", "C1"))
	require.NoError(t, scene.Repo.CommitFile("b.txt", "b", "C2\n\nbody"))
	require.NoError(t, scene.Repo.CommitFile("c.txt", "c", "C3"))

	require.NoError(t, scene.Repo.CheckoutBranch("main"))
	require.NoError(t, scene.Repo.CommitFile("m.txt", "m", "M1"))
	require.NoError(t, scene.Repo.CheckoutBranch("feature"))

	branch, err := session.CurrentBranch(ctx)
	require.NoError(t, err)
	require.Equal(t, "feature", branch)

	head, err := session.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, "refs/heads/feature", head.Name)
	require.Equal(t, "feature", head.Short())

	mergeBase, err := session.MergeBase(ctx, "HEAD", "main")
	require.NoError(t, err)
	require.Equal(t, base, mergeBase)

	isAncestor, err := session.IsAncestor(ctx, base, "feature")
	require.NoError(t, err)
	require.True(t, isAncestor)
	isAncestor, err = session.IsAncestor(ctx, "main", "feature")
	require.NoError(t, err)
	require.False(t, isAncestor)

	commits, err := session.CommitsSince(ctx, mergeBase, "HEAD")
	require.NoError(t, err)
	require.Len(t, commits, 3)
	require.Equal(t, "C1", commits[0].Subject())
	require.Equal(t, "C2", commits[1].Subject())
	require.Equal(t, "C3", commits[2].Subject())

	branches, err := session.Branches(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"main", "feature"}, branches)

	_, err = session.ResolveRevision(ctx, "does-not-exist")
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	t.Run("reports conflicts as data", func(t *testing.T) {
		scene := testhelpers.NewScene(t, func(s *testhelpers.Scene) error {
			return s.Repo.CommitFile("shared.txt", "base\n", "init")
		})
		session := scene.OpenSession(t)
		ctx := context.Background()

		require.NoError(t, scene.Repo.CreateAndCheckoutBranch("other"))
		require.NoError(t, scene.Repo.CommitFile("shared.txt", "other\n", "other change"))
		require.NoError(t, scene.Repo.CheckoutBranch("main"))
		require.NoError(t, scene.Repo.CommitFile("shared.txt", "main\n", "main change"))

		result, err := session.Merge(ctx, "other", "")
		require.NoError(t, err)
		require.Equal(t, git.MergeConflicts, result.Status)
		require.Equal(t, []string{"shared.txt"}, result.Conflicts)
		require.True(t, session.IsMergeInProgress())

		require.NoError(t, session.AbortMerge(ctx))
		require.False(t, session.IsMergeInProgress())
	})

	t.Run("fast-forwards and reports up to date", func(t *testing.T) {
		scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
		session := scene.OpenSession(t)
		ctx := context.Background()

		require.NoError(t, scene.Repo.CreateAndCheckoutBranch("ahead"))
		require.NoError(t, scene.Repo.CommitFile("a.txt", "a", "ahead"))
		require.NoError(t, scene.Repo.CheckoutBranch("main"))

		result, err := session.Merge(ctx, "ahead", "")
		require.NoError(t, err)
		require.Equal(t, git.MergeFastForward, result.Status)

		result, err = session.Merge(ctx, "ahead", "")
		require.NoError(t, err)
		require.Equal(t, git.MergeUpToDate, result.Status)
	})
}

func TestCherryPickAndResolve(t *testing.T) {
	scene := testhelpers.NewScene(t, func(s *testhelpers.Scene) error {
		return s.Repo.CommitFile("shared.txt", "base\n", "init")
	})
	session := scene.OpenSession(t)
	ctx := context.Background()

	require.NoError(t, scene.Repo.CreateAndCheckoutBranch("feature"))
	require.NoError(t, scene.Repo.WriteFile("added.txt", "added"))
	require.NoError(t, scene.Repo.RunGitCommand("add", "added.txt"))
	require.NoError(t, scene.Repo.CommitFile("shared.txt", "feature\n", "feature change"))
	pick, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)

	require.NoError(t, scene.Repo.CheckoutBranch("main"))
	require.NoError(t, scene.Repo.CommitFile("shared.txt", "main\n", "main change"))

	result, err := session.CherryPick(ctx, pick)
	require.NoError(t, err)
	require.Equal(t, git.CherryPickConflict, result)
	require.True(t, session.IsCherryPickInProgress())

	conflicts, err := session.ConflictingPaths(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"shared.txt"}, conflicts)

	// Skip keeps HEAD content; a path absent from HEAD is removed
	require.NoError(t, session.RevertPath(ctx, "shared.txt"))
	require.NoError(t, session.RevertPath(ctx, "added.txt"))
	require.NoError(t, session.Commit(ctx, "feature change"))

	testhelpers.ExpectFileContent(t, scene.Repo, "shared.txt", "main\n")
	require.False(t, scene.Repo.FileExists("added.txt"))
	testhelpers.ExpectCommits(t, scene.Repo, "main", []string{"feature change", "main change"})
	testhelpers.ExpectCleanTree(t, scene.Repo)
}

func TestCherryPickEmpty(t *testing.T) {
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	session := scene.OpenSession(t)
	ctx := context.Background()

	require.NoError(t, scene.Repo.CreateAndCheckoutBranch("feature"))
	require.NoError(t, scene.Repo.CommitFile("same.txt", "same", "on feature"))
	pick, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)

	require.NoError(t, scene.Repo.CheckoutBranch("main"))
	require.NoError(t, scene.Repo.CommitFile("same.txt", "same", "on main"))

	result, err := session.CherryPick(ctx, pick)
	require.NoError(t, err)
	require.Equal(t, git.CherryPickEmpty, result)
	require.False(t, session.IsCherryPickInProgress())
	testhelpers.ExpectCommits(t, scene.Repo, "main", []string{"on main"})
}

func TestStashRoundTrip(t *testing.T) {
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	session := scene.OpenSession(t)
	ctx := context.Background()

	// Staged new file plus an unstaged modification
	require.NoError(t, scene.Repo.WriteFile("new.txt", "new"))
	require.NoError(t, scene.Repo.RunGitCommand("add", "new.txt"))
	require.NoError(t, scene.Repo.WriteFile("1_test.txt", "modified"))

	before, err := scene.Repo.StatusPorcelain()
	require.NoError(t, err)

	record, created, err := session.StashPush(ctx, "_tmp_")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 0, record.Index)
	testhelpers.ExpectCleanTree(t, scene.Repo)

	found, ok, err := session.FindStash(ctx, "_tmp_")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "_tmp_", found.Message)

	conflicts, err := session.StashPop(ctx, found.Index)
	require.NoError(t, err)
	require.False(t, conflicts)

	after, err := scene.Repo.StatusPorcelain()
	require.NoError(t, err)
	require.Equal(t, before, after)
	testhelpers.ExpectFileContent(t, scene.Repo, "new.txt", "new")
	testhelpers.ExpectFileContent(t, scene.Repo, "1_test.txt", "modified")

	count, err := scene.Repo.StashCount()
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestStashNothingToSave(t *testing.T) {
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	session := scene.OpenSession(t)

	_, created, err := session.StashPush(context.Background(), "_tmp_main")
	require.NoError(t, err)
	require.False(t, created)

	_, ok, err := session.FindStash(context.Background(), "_tmp_main")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoteTransport(t *testing.T) {
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	session := scene.OpenSession(t)
	ctx := context.Background()

	bare, err := scene.Repo.CreateBareRemote("origin")
	require.NoError(t, err)

	url, err := session.RemoteURL(ctx, "origin")
	require.NoError(t, err)
	require.Equal(t, bare, url)

	require.NoError(t, session.Push(ctx, "origin", git.Credentials{}, nil))
	remote, ref, err := session.Upstream(ctx, "main")
	require.NoError(t, err)
	require.Equal(t, "origin", remote)
	require.Equal(t, "refs/remotes/origin/main", ref)

	cloned, err := git.Clone(ctx, bare, t.TempDir(), git.Credentials{}, nil)
	require.NoError(t, err)
	defer cloned.Close()

	head, err := cloned.Head(ctx)
	require.NoError(t, err)
	local, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)
	require.Equal(t, local, head.Hash)

	require.NoError(t, session.Fetch(ctx, "origin", git.Credentials{}, nil), "up to date is not an error")
}
