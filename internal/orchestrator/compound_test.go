package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
	"stackit.dev/gitgate/internal/orchestrator"
	"stackit.dev/gitgate/internal/progress"
	"stackit.dev/gitgate/internal/scheduler"
	"stackit.dev/gitgate/testhelpers"
)

// divergedScene has main and other both changing 1_test.txt
func divergedScene(t *testing.T) *testhelpers.Scene {
	t.Helper()
	return testhelpers.NewScene(t, func(s *testhelpers.Scene) error {
		if err := s.Repo.CommitFile("1_test.txt", "base", "base"); err != nil {
			return err
		}
		if err := s.Repo.CreateAndCheckoutBranch("other"); err != nil {
			return err
		}
		if err := s.Repo.CommitFile("1_test.txt", "theirs", "other change"); err != nil {
			return err
		}
		if err := s.Repo.CheckoutBranch("main"); err != nil {
			return err
		}
		return s.Repo.CommitFile("1_test.txt", "ours", "main change")
	})
}

func requireSettled(t *testing.T, scene *testhelpers.Scene, repo interface {
	IsOpen() bool
}, frozen func() bool) {
	t.Helper()
	require.True(t, repo.IsOpen(), "gate must be open")
	require.False(t, frozen(), "freeze must be released")
	require.NoFileExists(t, filepath.Join(scene.Dir, ".git", "MERGE_HEAD"))
}

func TestRebaseSkipsConflictingPath(t *testing.T) {
	scene := testhelpers.NewScene(t, func(s *testhelpers.Scene) error {
		if err := s.Repo.CommitFile("shared.txt", "base", "A"); err != nil {
			return err
		}
		if err := s.Repo.CreateAndCheckoutBranch("feature"); err != nil {
			return err
		}
		if err := s.Repo.CommitFile("c1.txt", "c1", "C1"); err != nil {
			return err
		}
		if err := s.Repo.WriteFile("c2.txt", "c2"); err != nil {
			return err
		}
		if err := s.Repo.RunGitCommand("add", "c2.txt"); err != nil {
			return err
		}
		if err := s.Repo.CommitFile("shared.txt", "feature", "C2"); err != nil {
			return err
		}
		if err := s.Repo.CommitFile("c3.txt", "c3", "C3"); err != nil {
			return err
		}
		if err := s.Repo.CheckoutBranch("main"); err != nil {
			return err
		}
		if err := s.Repo.CommitFile("shared.txt", "main", "M"); err != nil {
			return err
		}
		return s.Repo.CheckoutBranch("feature")
	})
	repo := newRepository(t, scene)
	resolver := &scriptedResolver{outcomes: map[string]orchestrator.Outcome{"shared.txt": orchestrator.Skip}}
	reporter := &recordingReporter{}
	orch := orchestrator.New(orchestrator.WithConflictResolver(resolver))

	ctx := progress.WithReporter(context.Background(), reporter)
	result, err := orch.Rebase(ctx, repo, orchestrator.RebaseOptions{Target: "main"})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusSucceeded, result.Status)
	require.Equal(t, []string{"shared.txt"}, result.Conflicts)
	require.Equal(t, []string{"shared.txt"}, resolver.Asked())

	testhelpers.ExpectCommits(t, scene.Repo, "feature", []string{"C3", "C2", "C1", "M", "A"})
	testhelpers.ExpectFileContent(t, scene.Repo, "shared.txt", "main")
	testhelpers.ExpectFileContent(t, scene.Repo, "c2.txt", "c2")
	testhelpers.ExpectFileContent(t, scene.Repo, "c3.txt", "c3")
	testhelpers.ExpectCleanTree(t, scene.Repo)
	requireSettled(t, scene, repo.Gate, repo.Freezer.Frozen)

	require.Contains(t, reporter.completed, orchestrator.StepPrepare)
	require.Contains(t, reporter.completed, orchestrator.StepCore)
	require.Len(t, reporter.messages, 3)
}

func TestRebaseAbortRestoresBranch(t *testing.T) {
	scene := divergedScene(t)
	require.NoError(t, scene.Repo.CheckoutBranch("other"))
	tip, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)

	repo := newRepository(t, scene)
	orch := orchestrator.New()

	result, err := orch.Rebase(context.Background(), repo, orchestrator.RebaseOptions{Target: "main"})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusAborted, result.Status)

	after, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)
	require.Equal(t, tip, after, "abort leaves the branch at the rollback point")
	testhelpers.ExpectCleanTree(t, scene.Repo)
	require.NoFileExists(t, filepath.Join(scene.Dir, ".git", "CHERRY_PICK_HEAD"))
}

func TestRebaseAbortKeepsMergeTip(t *testing.T) {
	scene := testhelpers.NewScene(t, func(s *testhelpers.Scene) error {
		if err := s.Repo.CommitFile("shared.txt", "base", "A"); err != nil {
			return err
		}
		if err := s.Repo.CreateAndCheckoutBranch("side"); err != nil {
			return err
		}
		if err := s.Repo.CommitFile("side.txt", "side", "S1"); err != nil {
			return err
		}
		if err := s.Repo.CheckoutBranch("main"); err != nil {
			return err
		}
		if err := s.Repo.CreateAndCheckoutBranch("feature"); err != nil {
			return err
		}
		if err := s.Repo.CommitFile("shared.txt", "feature", "F1"); err != nil {
			return err
		}
		if err := s.Repo.RunGitCommand("merge", "--no-ff", "-m", "merge side", "side"); err != nil {
			return err
		}
		if err := s.Repo.CheckoutBranch("main"); err != nil {
			return err
		}
		if err := s.Repo.CommitFile("shared.txt", "main", "M"); err != nil {
			return err
		}
		return s.Repo.CheckoutBranch("feature")
	})
	tip, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)

	repo := newRepository(t, scene)
	resolver := &scriptedResolver{fallback: orchestrator.Abort}
	orch := orchestrator.New(orchestrator.WithConflictResolver(resolver))

	result, err := orch.Rebase(context.Background(), repo, orchestrator.RebaseOptions{Target: "main"})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusAborted, result.Status)
	require.Contains(t, resolver.Asked(), "shared.txt")

	after, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)
	require.Equal(t, tip, after, "abort must restore the merge commit at the tip")
	testhelpers.ExpectFileContent(t, scene.Repo, "shared.txt", "feature")
	testhelpers.ExpectFileContent(t, scene.Repo, "side.txt", "side")
	testhelpers.ExpectCleanTree(t, scene.Repo)
	requireSettled(t, scene, repo.Gate, repo.Freezer.Frozen)
}

func TestRebaseUpToDate(t *testing.T) {
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	require.NoError(t, scene.Repo.CreateBranch("base"))
	require.NoError(t, scene.Repo.CommitFile("x.txt", "x", "ahead"))
	tip, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)

	repo := newRepository(t, scene)
	result, err := orchestrator.New().Rebase(context.Background(), repo, orchestrator.RebaseOptions{Target: "base"})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusSucceeded, result.Status)

	after, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)
	require.Equal(t, tip, after)
}

func TestMergeDeclinedStashLeavesNothingBehind(t *testing.T) {
	scene := divergedScene(t)
	require.NoError(t, scene.Repo.WriteFile("1_test.txt", "local edit"))
	tip, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)

	repo := newRepository(t, scene)
	prompter := &fakePrompter{answers: []orchestrator.Answer{{Yes: false}}}
	listener := &recordingListener{}
	orch := orchestrator.New(orchestrator.WithPrompter(prompter), orchestrator.WithTaskListener(listener))

	result, err := orch.Merge(context.Background(), repo, orchestrator.MergeOptions{Target: "other"})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusDeclined, result.Status)
	require.Len(t, prompter.Questions(), 1)
	require.Equal(t, "stash-before-merge", prompter.Questions()[0].ID)

	after, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)
	require.Equal(t, tip, after, "merge must not have run")
	testhelpers.ExpectFileContent(t, scene.Repo, "1_test.txt", "local edit")
	stashes, err := scene.Repo.StashCount()
	require.NoError(t, err)
	require.Zero(t, stashes)
	requireSettled(t, scene, repo.Gate, repo.Freezer.Frozen)

	task := listener.Last(t)
	require.Equal(t, "merge", task.Name)
	require.Equal(t, orchestrator.StatusDeclined, task.Status)
	require.NotEmpty(t, task.ID)
}

func TestMergeConflictAbortRollsBack(t *testing.T) {
	scene := divergedScene(t)
	tip, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)

	repo := newRepository(t, scene)
	resolver := &scriptedResolver{fallback: orchestrator.Abort}
	result, err := orchestrator.New(orchestrator.WithConflictResolver(resolver)).
		Merge(context.Background(), repo, orchestrator.MergeOptions{Target: "other"})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusAborted, result.Status)
	require.Equal(t, []string{"1_test.txt"}, result.Conflicts)

	after, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)
	require.Equal(t, tip, after)
	testhelpers.ExpectFileContent(t, scene.Repo, "1_test.txt", "ours")
	testhelpers.ExpectCleanTree(t, scene.Repo)
	requireSettled(t, scene, repo.Gate, repo.Freezer.Frozen)
}

func TestMergeConflictContinueCommits(t *testing.T) {
	scene := divergedScene(t)
	repo := newRepository(t, scene)
	resolver := &scriptedResolver{fallback: orchestrator.Continue}

	result, err := orchestrator.New(orchestrator.WithConflictResolver(resolver)).
		Merge(context.Background(), repo, orchestrator.MergeOptions{Target: "other"})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusSucceeded, result.Status)

	testhelpers.ExpectCommits(t, scene.Repo, "main", []string{"Merge branch 'other'"})
	testhelpers.ExpectCleanTree(t, scene.Repo)
	requireSettled(t, scene, repo.Gate, repo.Freezer.Frozen)
}

func TestMergeAutoStashRestoresChanges(t *testing.T) {
	scene := testhelpers.NewScene(t, func(s *testhelpers.Scene) error {
		if err := s.Repo.CommitFile("mine.txt", "v1", "base"); err != nil {
			return err
		}
		if err := s.Repo.CreateAndCheckoutBranch("other"); err != nil {
			return err
		}
		if err := s.Repo.CommitFile("theirs.txt", "t", "other change"); err != nil {
			return err
		}
		return s.Repo.CheckoutBranch("main")
	})
	require.NoError(t, scene.Repo.WriteFile("mine.txt", "local"))
	require.NoError(t, scene.Repo.WriteFile("new.txt", "untracked"))

	repo := newRepository(t, scene)
	prompter := &fakePrompter{}
	orch := orchestrator.New(orchestrator.WithPrompter(prompter))

	result, err := orch.Merge(context.Background(), repo, orchestrator.MergeOptions{
		Target:  "other",
		Options: orchestrator.Options{AutoStash: true},
	})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusSucceeded, result.Status)
	require.True(t, result.StashRestored)
	require.Empty(t, prompter.Questions(), "auto-stash never prompts")

	testhelpers.ExpectFileContent(t, scene.Repo, "theirs.txt", "t")
	testhelpers.ExpectFileContent(t, scene.Repo, "mine.txt", "local")
	testhelpers.ExpectFileContent(t, scene.Repo, "new.txt", "untracked")
	stashes, err := scene.Repo.StashCount()
	require.NoError(t, err)
	require.Zero(t, stashes)
}

func TestMergeStashConsentIsRemembered(t *testing.T) {
	scene := divergedScene(t)
	require.NoError(t, scene.Repo.WriteFile("1_test.txt", "local edit"))

	repo := newRepository(t, scene)
	prompter := &fakePrompter{answers: []orchestrator.Answer{{Yes: true, Remember: true}}}
	prefs := &memoryPreferences{}
	resolver := &scriptedResolver{fallback: orchestrator.Continue}
	orch := orchestrator.New(
		orchestrator.WithPrompter(prompter),
		orchestrator.WithPreferences(prefs),
		orchestrator.WithConflictResolver(resolver),
	)

	result, err := orch.Merge(context.Background(), repo, orchestrator.MergeOptions{Target: "other"})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusSucceeded, result.Status)
	require.True(t, result.StashRestored, "conflicting stash is resolved and dropped")

	remembered, ok := prefs.Remembered("stash-before-merge")
	require.True(t, ok)
	require.True(t, remembered)

	stashes, err := scene.Repo.StashCount()
	require.NoError(t, err)
	require.Zero(t, stashes)
	require.Len(t, prompter.Questions(), 1)
	requireSettled(t, scene, repo.Gate, repo.Freezer.Frozen)
}

func TestMergeCancelledWhileLocked(t *testing.T) {
	scene := divergedScene(t)
	repo := newRepository(t, scene)

	lock := filepath.Join(scene.Dir, ".git", "index.lock")
	require.NoError(t, os.WriteFile(lock, nil, 0o644))
	t.Cleanup(func() { _ = os.Remove(lock) })
	repo.Gate.Locks().Add(lock)
	require.False(t, repo.Gate.IsOpen())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resolver := &scriptedResolver{fallback: orchestrator.Continue}
	result, err := orchestrator.New(orchestrator.WithConflictResolver(resolver)).
		Merge(ctx, repo, orchestrator.MergeOptions{Target: "other"})
	require.NoError(t, err, "cancellation is an outcome, not an error")
	require.Equal(t, orchestrator.StatusCancelled, result.Status)
	require.Empty(t, resolver.Asked())
	require.False(t, repo.Freezer.Frozen())
	testhelpers.ExpectCommits(t, scene.Repo, "main", []string{"main change"})
}

func TestMergeRefusesUnfinishedCherryPick(t *testing.T) {
	scene := divergedScene(t)
	head, err := scene.Repo.GetCurrentSHA()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(scene.Dir, ".git", "CHERRY_PICK_HEAD"), []byte(head+"\n"), 0o644))
	repo := newRepository(t, scene)

	resolver := &scriptedResolver{fallback: orchestrator.Continue}
	result, err := orchestrator.New(orchestrator.WithConflictResolver(resolver)).
		Merge(context.Background(), repo, orchestrator.MergeOptions{Target: "other"})
	require.ErrorIs(t, err, gitgateerrors.ErrOperationInProgress)
	require.Equal(t, orchestrator.StatusFailed, result.Status)
	require.Empty(t, resolver.Asked())
	require.True(t, repo.Gate.IsOpen())
	require.False(t, repo.Freezer.Frozen())
	testhelpers.ExpectCommits(t, scene.Repo, "main", []string{"main change"})
}

func TestMergeRefusedOnUIThread(t *testing.T) {
	scene := divergedScene(t)
	require.NoError(t, scene.Repo.WriteFile("1_test.txt", "local edit"))
	repo := newRepository(t, scene)
	resolver := &scriptedResolver{fallback: orchestrator.Continue}
	orch := orchestrator.New(orchestrator.WithConflictResolver(resolver))

	ctx := scheduler.WithUIThread(context.Background())
	result, err := orch.Merge(ctx, repo, orchestrator.MergeOptions{Target: "other", Options: orchestrator.Options{AutoStash: true}})
	require.ErrorIs(t, err, gitgateerrors.ErrInvalidOperation)
	require.Equal(t, orchestrator.StatusFailed, result.Status)
	require.Empty(t, resolver.Asked())

	testhelpers.ExpectCommits(t, scene.Repo, "main", []string{"main change", "base"})
	testhelpers.ExpectFileContent(t, scene.Repo, "1_test.txt", "local edit")
	count, err := scene.Repo.StashCount()
	require.NoError(t, err)
	require.Zero(t, count)
	requireSettled(t, scene, repo.Gate, repo.Freezer.Frozen)
}

func TestSwitchBranchCarriesChanges(t *testing.T) {
	scene := divergedScene(t)
	require.NoError(t, scene.Repo.WriteFile("notes.txt", "draft"))
	repo := newRepository(t, scene)

	result, err := orchestrator.New().SwitchBranch(context.Background(), repo, orchestrator.SwitchOptions{
		Branch:  "other",
		Options: orchestrator.Options{AutoStash: true},
	})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusSucceeded, result.Status)

	branch, err := scene.Repo.CurrentBranchName()
	require.NoError(t, err)
	require.Equal(t, "other", branch)
	testhelpers.ExpectFileContent(t, scene.Repo, "notes.txt", "draft")
	testhelpers.ExpectFileContent(t, scene.Repo, "1_test.txt", "theirs")
}

func TestSwitchBranchLeavingChanges(t *testing.T) {
	scene := divergedScene(t)
	require.NoError(t, scene.Repo.WriteFile("1_test.txt", "work in progress"))
	repo := newRepository(t, scene)
	orch := orchestrator.New()
	ctx := context.Background()

	result, err := orch.SwitchBranch(ctx, repo, orchestrator.SwitchOptions{Branch: "other", LeaveChanges: true})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusSucceeded, result.Status)
	require.False(t, result.StashRestored)
	testhelpers.ExpectCleanTree(t, scene.Repo)
	testhelpers.ExpectFileContent(t, scene.Repo, "1_test.txt", "theirs")

	stashes, err := scene.Repo.StashCount()
	require.NoError(t, err)
	require.Equal(t, 1, stashes, "changes parked on main")

	result, err = orch.SwitchBranch(ctx, repo, orchestrator.SwitchOptions{Branch: "main", LeaveChanges: true})
	require.NoError(t, err)
	require.True(t, result.StashRestored)
	testhelpers.ExpectFileContent(t, scene.Repo, "1_test.txt", "work in progress")

	stashes, err = scene.Repo.StashCount()
	require.NoError(t, err)
	require.Zero(t, stashes)
}

func TestStashName(t *testing.T) {
	require.Equal(t, "_tmp_main", orchestrator.TempStashName("main"))
	require.Equal(t, "_tmp_main", orchestrator.New().StashName("main"))
	require.Equal(t, "wip/main", orchestrator.New(orchestrator.WithStashPrefix("wip/")).StashName("main"))
}
