package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// StashRecord identifies one stash entry
type StashRecord struct {
	Index   int
	Message string
}

// Ref returns the stash reference, e.g. stash@{0}
func (r StashRecord) Ref() string {
	return fmt.Sprintf("stash@{%d}", r.Index)
}

// StashPush stashes tracked and untracked changes under message. The bool is
// false when there was nothing to stash.
func (s *Session) StashPush(ctx context.Context, message string) (StashRecord, bool, error) {
	args := []string{"stash", "push", "--include-untracked"}
	if message != "" {
		args = append(args, "-m", message)
	}
	output, err := s.runner.Run(ctx, args...)
	if err != nil {
		return StashRecord{}, false, fmt.Errorf("stash push failed: %w", err)
	}
	if strings.Contains(output, "No local changes to save") {
		return StashRecord{}, false, nil
	}
	return StashRecord{Index: 0, Message: message}, true, nil
}

// StashList returns the stash entries, newest first
func (s *Session) StashList(ctx context.Context) ([]StashRecord, error) {
	lines, err := s.runner.RunLines(ctx, "stash", "list", "--format=%gd%x1f%gs")
	if err != nil {
		return nil, fmt.Errorf("stash list failed: %w", err)
	}

	records := make([]StashRecord, 0, len(lines))
	for _, line := range lines {
		ref, subject, ok := strings.Cut(line, "\x1f")
		if !ok {
			continue
		}
		idx, err := parseStashIndex(ref)
		if err != nil {
			continue
		}
		// Subjects look like "On main: message" or "WIP on main: abc123 subject"
		if _, msg, found := strings.Cut(subject, ": "); found {
			subject = msg
		}
		records = append(records, StashRecord{Index: idx, Message: subject})
	}
	return records, nil
}

// FindStash returns the newest stash whose message equals message
func (s *Session) FindStash(ctx context.Context, message string) (StashRecord, bool, error) {
	records, err := s.StashList(ctx)
	if err != nil {
		return StashRecord{}, false, err
	}
	for _, r := range records {
		if r.Message == message {
			return r, true, nil
		}
	}
	return StashRecord{}, false, nil
}

// StashApply reapplies a stash, restoring the index when possible. It reports
// true when the apply left conflicts; the stash entry is kept either way.
func (s *Session) StashApply(ctx context.Context, index int) (bool, error) {
	return s.stashRestore(ctx, "apply", index)
}

// StashPop reapplies a stash and drops it when the apply was clean
func (s *Session) StashPop(ctx context.Context, index int) (bool, error) {
	return s.stashRestore(ctx, "pop", index)
}

func (s *Session) stashRestore(ctx context.Context, verb string, index int) (bool, error) {
	ref := StashRecord{Index: index}.Ref()
	_, err := s.runner.Run(ctx, "stash", verb, "--index", ref)
	if err == nil {
		return false, nil
	}
	if conflicts, cerr := s.ConflictingPaths(ctx); cerr == nil && len(conflicts) > 0 {
		return true, nil
	}

	// --index refuses when the staged part does not apply cleanly
	_, err = s.runner.Run(ctx, "stash", verb, ref)
	if err == nil {
		return false, nil
	}
	if conflicts, cerr := s.ConflictingPaths(ctx); cerr == nil && len(conflicts) > 0 {
		return true, nil
	}
	return false, fmt.Errorf("stash %s failed: %w", verb, err)
}

// StashDrop removes a stash entry
func (s *Session) StashDrop(ctx context.Context, index int) error {
	_, err := s.runner.Run(ctx, "stash", "drop", StashRecord{Index: index}.Ref())
	if err != nil {
		return fmt.Errorf("stash drop failed: %w", err)
	}
	return nil
}

func parseStashIndex(ref string) (int, error) {
	start := strings.Index(ref, "{")
	end := strings.LastIndex(ref, "}")
	if start < 0 || end <= start {
		return 0, fmt.Errorf("malformed stash ref %q", ref)
	}
	return strconv.Atoi(ref[start+1 : end])
}
