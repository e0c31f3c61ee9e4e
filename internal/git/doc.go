// Package git provides the repository session used by gitgate.
//
// A Session wraps one go-git repository plus a git command runner rooted at
// its worktree, and exposes the primitives the orchestrator composes:
//   - Status and conflict queries (status, conflicting paths, in-progress markers)
//   - Refs and history (HEAD, merge base, commits to replay)
//   - Mutation (checkout, reset, merge, cherry-pick, stage, revert, commit)
//   - Stash records
//   - Remote transport (fetch, push, clone) and submodule discovery
//
// A Session is not safe for concurrent use. Outside of tests it is only
// reached through the scheduler.
package git
