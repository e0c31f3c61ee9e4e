// Package common provides shared helper functions for CLI commands.
package common

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/internal/orchestrator"
	"stackit.dev/gitgate/internal/progress"
	"stackit.dev/gitgate/internal/runtime"
	"stackit.dev/gitgate/internal/tui"
)

// Options reads the global flags
func Options(cmd *cobra.Command) runtime.Options {
	cwd, _ := cmd.Flags().GetString("cwd")
	debug, _ := cmd.Flags().GetBool("debug")
	yes, _ := cmd.Flags().GetBool("yes")
	return runtime.Options{Cwd: cwd, Debug: debug, AssumeYes: yes}
}

// Run is a helper that provides a runtime context to a command's execution function
func Run(cmd *cobra.Command, fn func(ctx *runtime.Context) error) error {
	ctx, err := runtime.GetContext(cmd.Context(), Options(cmd))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := ctx.Close(); closeErr != nil {
			ctx.Splog.Debug("shutdown: %v", closeErr)
		}
	}()
	return fn(ctx)
}

// WithProgress runs fn with a progress reporter in its context: the live view
// on a terminal, plain lines otherwise. Ctrl+C in the view cancels fn's context.
func WithProgress(rc *runtime.Context, title string, steps []string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(rc.Context)
	defer cancel()

	if !tui.Interactive() {
		return fn(progress.WithReporter(ctx, tui.NewLineReporter(rc.Splog)))
	}

	view := tui.StartProgressView(title, steps, cancel)
	rc.Screen.Attach(view)
	rc.Splog.SetQuiet(true)

	err := fn(progress.WithReporter(ctx, progress.Throttled(view, progress.DefaultInterval)))

	rc.Screen.Attach(nil)
	rc.Splog.SetQuiet(false)
	if viewErr := view.Finish(); viewErr != nil {
		rc.Splog.Debug("progress view: %v", viewErr)
	}
	return err
}

// Step reports fn as step index of the progress carried by ctx
func Step(ctx context.Context, index int, description string, fn func() error) error {
	r := progress.FromContext(ctx)
	r.StepStarted(index, description)
	if err := fn(); err != nil {
		r.StepFailed(index, err)
		return err
	}
	r.StepCompleted(index)
	return nil
}

// CompoundSteps are the step lines shown for merge, rebase, update and switch
func CompoundSteps(core string) []string {
	return []string{"Checking local changes", core, "Restoring local changes"}
}

// Report prints the outcome of a compound operation and turns the outcomes
// the user should notice into errors
func Report(rc *runtime.Context, name string, result orchestrator.Result, err error) error {
	if err != nil {
		return err
	}
	for _, path := range result.Conflicts {
		rc.Splog.Info("  resolved %s", path)
	}
	if result.StashRestored {
		rc.Splog.Info("Restored local changes")
	}

	switch result.Status {
	case orchestrator.StatusSucceeded:
		rc.Splog.Info("%s %s", tui.ColorGreen("✓"), name)
		return nil
	case orchestrator.StatusDeclined:
		rc.Splog.Info("Nothing changed: local changes would be overwritten")
		rc.Splog.Tip("Use --autostash to stash them automatically")
		return nil
	case orchestrator.StatusAborted:
		return fmt.Errorf("%s aborted, the working tree was rolled back", name)
	case orchestrator.StatusCancelled:
		return fmt.Errorf("%s cancelled", name)
	default:
		return fmt.Errorf("%s %s", name, result.Status)
	}
}

// CompleteBranches is a helper for cobra.ValidArgsFunction and RegisterFlagCompletionFunc
// that returns all branch names in the repository.
func CompleteBranches(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd == "" {
		cwd = "."
	}
	session, err := git.Open(cmd.Context(), cwd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer session.Close()

	branches, err := session.Branches(cmd.Context())
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return branches, cobra.ShellCompDirectiveNoFileComp
}
