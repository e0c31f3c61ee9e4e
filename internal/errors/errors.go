// Package errors provides sentinel errors and custom error types for gitgate.
// Use errors.Is() and errors.As() to check for specific error types, and
// Classify to map an arbitrary error onto the failure taxonomy.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Sentinel errors for common conditions
var (
	// ErrAuthentication indicates that a remote rejected the supplied credentials
	ErrAuthentication = errors.New("authentication failed")

	// ErrVersionControl indicates a terminal failure reported by git
	ErrVersionControl = errors.New("version control failure")

	// ErrUserCancelled indicates that the user dismissed a prompt
	ErrUserCancelled = errors.New("cancelled by user")

	// ErrDisposed indicates that a scheduler or resolver was used after disposal
	ErrDisposed = errors.New("disposed")

	// ErrNotInitialized indicates that a component was used before it was set up
	ErrNotInitialized = errors.New("not initialized")

	// ErrInvalidOperation indicates a call that violates the execution contract
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrConflict indicates that a merge, cherry-pick or stash apply left conflicts
	ErrConflict = errors.New("conflict")

	// ErrNotOnBranch indicates that HEAD is not on a branch
	ErrNotOnBranch = errors.New("not on a branch")

	// ErrBranchNotFound indicates that a branch does not exist
	ErrBranchNotFound = errors.New("branch not found")

	// ErrRebaseConflict indicates that a rebase operation encountered a conflict
	ErrRebaseConflict = errors.New("rebase conflict")

	// ErrOperationInProgress indicates an unfinished merge, rebase or
	// cherry-pick left behind by another tool
	ErrOperationInProgress = errors.New("operation in progress")
)

// Kind classifies an error for retry and reporting decisions.
type Kind int

const (
	// KindNone is the classification of a nil error
	KindNone Kind = iota
	// KindCancelled is a normal terminal outcome of a cancellable wait, not a failure
	KindCancelled
	// KindAuthentication is retryable and scoped to a credential kind
	KindAuthentication
	// KindVersionControl is terminal and surfaced to the user
	KindVersionControl
	// KindUserCancelled is terminal and re-raised as a version control failure upstream
	KindUserCancelled
	// KindDisposed is a programming-contract violation
	KindDisposed
	// KindNotInitialized is a programming-contract violation
	KindNotInitialized
	// KindInvalidOperation is a programming-contract violation
	KindInvalidOperation
	// KindUnknown is anything else
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCancelled:
		return "cancelled"
	case KindAuthentication:
		return "authentication"
	case KindVersionControl:
		return "version control"
	case KindUserCancelled:
		return "user cancelled"
	case KindDisposed:
		return "disposed"
	case KindNotInitialized:
		return "not initialized"
	case KindInvalidOperation:
		return "invalid operation"
	default:
		return "unknown"
	}
}

// authMarkers are stderr fragments git prints when credentials are rejected.
var authMarkers = []string{
	"authentication failed",
	"could not read username",
	"could not read password",
	"permission denied (publickey",
	"invalid username or password",
	"http basic: access denied",
	"authentication required",
}

// transientMarkers are spurious native failures that deserve one silent retry.
var transientMarkers = []string{
	"failed to retrieve list of ssh authentication methods",
	"failed to start ssh session",
	"connection reset by peer",
	"early eof",
	"the remote end hung up unexpectedly",
}

// Classify maps err onto the failure taxonomy. The order matters: user
// cancellation wins over authentication, which wins over generic git failure.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrUserCancelled):
		return KindUserCancelled
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrDisposed):
		return KindDisposed
	case errors.Is(err, ErrNotInitialized):
		return KindNotInitialized
	case errors.Is(err, ErrInvalidOperation):
		return KindInvalidOperation
	case IsAuthentication(err):
		return KindAuthentication
	}

	var cmdErr *GitCommandError
	if errors.Is(err, ErrVersionControl) || errors.As(err, &cmdErr) {
		return KindVersionControl
	}
	return KindUnknown
}

// IsAuthentication reports whether err means the remote rejected credentials.
func IsAuthentication(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthentication) ||
		errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) {
		return true
	}
	return containsAny(errorText(err), authMarkers)
}

// IsTransient reports whether err is one of the known spurious failures of the
// native transport that succeed when simply tried again.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(errorText(err), transientMarkers)
}

func errorText(err error) string {
	text := err.Error()
	var cmdErr *GitCommandError
	if errors.As(err, &cmdErr) {
		text += "\n" + cmdErr.Stderr
	}
	return strings.ToLower(text)
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// AuthenticationError represents credentials rejected by a remote
type AuthenticationError struct {
	URL string
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("authentication failed for %s", e.URL)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Is returns true if the target error is ErrAuthentication
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

// NewAuthenticationError creates a new AuthenticationError
func NewAuthenticationError(url string, err error) *AuthenticationError {
	return &AuthenticationError{URL: url, Err: err}
}

// VersionControlError represents a terminal failure of a named operation
type VersionControlError struct {
	Op  string
	Err error
}

func (e *VersionControlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed", e.Op)
}

func (e *VersionControlError) Unwrap() error {
	return e.Err
}

// Is returns true if the target error is ErrVersionControl
func (e *VersionControlError) Is(target error) bool {
	return target == ErrVersionControl
}

// NewVersionControlError creates a new VersionControlError
func NewVersionControlError(op string, err error) *VersionControlError {
	return &VersionControlError{Op: op, Err: err}
}

// BranchNotFoundError represents an error when a branch is not found
type BranchNotFoundError struct {
	BranchName string
}

func (e *BranchNotFoundError) Error() string {
	return fmt.Sprintf("branch %s does not exist", e.BranchName)
}

// Is returns true if the target error is ErrBranchNotFound
func (e *BranchNotFoundError) Is(target error) bool {
	return target == ErrBranchNotFound
}

// NewBranchNotFoundError creates a new BranchNotFoundError
func NewBranchNotFoundError(branchName string) *BranchNotFoundError {
	return &BranchNotFoundError{BranchName: branchName}
}

// RebaseConflictError represents an error when a rebase encounters a conflict
type RebaseConflictError struct {
	BranchName string
	Message    string
}

func (e *RebaseConflictError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("rebase conflict on branch %s: %s", e.BranchName, e.Message)
	}
	return fmt.Sprintf("rebase conflict on branch %s", e.BranchName)
}

// Is returns true if the target error is ErrRebaseConflict
func (e *RebaseConflictError) Is(target error) bool {
	return target == ErrRebaseConflict
}

// NewRebaseConflictError creates a new RebaseConflictError
func NewRebaseConflictError(branchName string, message string) *RebaseConflictError {
	return &RebaseConflictError{
		BranchName: branchName,
		Message:    message,
	}
}

// GitCommandError represents an error from a git command execution
type GitCommandError struct {
	Command string
	Args    []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *GitCommandError) Error() string {
	msg := fmt.Sprintf("git command failed: %s", e.Command)
	if len(e.Args) > 0 {
		msg += fmt.Sprintf(" %v", e.Args)
	}
	if e.Stderr != "" {
		msg += fmt.Sprintf("\nstderr: %s", e.Stderr)
	}
	if e.Stdout != "" {
		msg += fmt.Sprintf("\nstdout: %s", e.Stdout)
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n%v", e.Err)
	}
	return msg
}

func (e *GitCommandError) Unwrap() error {
	return e.Err
}

// NewGitCommandError creates a new GitCommandError
func NewGitCommandError(command string, args []string, stdout, stderr string, err error) *GitCommandError {
	return &GitCommandError{
		Command: command,
		Args:    args,
		Stdout:  stdout,
		Stderr:  stderr,
		Err:     err,
	}
}
