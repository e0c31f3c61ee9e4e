package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
)

// Ref is a resolved reference
type Ref struct {
	Name string // full name, e.g. refs/heads/main, or HEAD when detached
	Hash string
}

// Short returns the short branch name, or the abbreviated hash when detached
func (r Ref) Short() string {
	if strings.HasPrefix(r.Name, "refs/heads/") {
		return strings.TrimPrefix(r.Name, "refs/heads/")
	}
	if len(r.Hash) >= 7 {
		return r.Hash[:7]
	}
	return r.Hash
}

// Commit is a commit picked for replay
type Commit struct {
	Hash    string
	Message string
}

// Subject returns the first line of the commit message
func (c Commit) Subject() string {
	return strings.TrimSpace(strings.SplitN(strings.TrimSpace(c.Message), "\n", 2)[0])
}

// Head returns the current HEAD reference
func (s *Session) Head(_ context.Context) (Ref, error) {
	head, err := s.repo.Head()
	if err != nil {
		return Ref{}, fmt.Errorf("failed to get HEAD: %w", err)
	}
	name := head.Name().String()
	if !head.Name().IsBranch() {
		name = plumbing.HEAD.String()
	}
	return Ref{Name: name, Hash: head.Hash().String()}, nil
}

// CurrentBranch returns the current branch name
func (s *Session) CurrentBranch(ctx context.Context) (string, error) {
	head, err := s.Head(ctx)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(head.Name, "refs/heads/") {
		return "", gitgateerrors.ErrNotOnBranch
	}
	return head.Short(), nil
}

// Branches returns all local branch names
func (s *Session) Branches(_ context.Context) ([]string, error) {
	branches, err := s.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("failed to get branches: %w", err)
	}

	var names []string
	err = branches.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate branches: %w", err)
	}
	return names, nil
}

// ResolveRevision resolves a branch, tag, remote ref or hash to a commit hash
func (s *Session) ResolveRevision(_ context.Context, rev string) (string, error) {
	hash, err := s.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return "", gitgateerrors.NewBranchNotFoundError(rev)
		}
		return "", fmt.Errorf("failed to resolve %s: %w", rev, err)
	}
	return hash.String(), nil
}

// MergeBase returns the best common ancestor of two revisions
func (s *Session) MergeBase(ctx context.Context, rev1, rev2 string) (string, error) {
	hash1, err := s.ResolveRevision(ctx, rev1)
	if err != nil {
		return "", err
	}
	hash2, err := s.ResolveRevision(ctx, rev2)
	if err != nil {
		return "", err
	}

	commit1, err := s.repo.CommitObject(plumbing.NewHash(hash1))
	if err != nil {
		return "", fmt.Errorf("failed to get commit %s: %w", rev1, err)
	}
	commit2, err := s.repo.CommitObject(plumbing.NewHash(hash2))
	if err != nil {
		return "", fmt.Errorf("failed to get commit %s: %w", rev2, err)
	}

	bases, err := commit1.MergeBase(commit2)
	if err != nil {
		return "", fmt.Errorf("failed to find merge base: %w", err)
	}
	if len(bases) == 0 {
		return "", fmt.Errorf("no merge base found between %s and %s", rev1, rev2)
	}
	return bases[0].Hash.String(), nil
}

// IsAncestor checks if ancestor is reachable from descendant
func (s *Session) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	ancestorHash, err := s.ResolveRevision(ctx, ancestor)
	if err != nil {
		return false, err
	}
	descendantHash, err := s.ResolveRevision(ctx, descendant)
	if err != nil {
		return false, err
	}
	if ancestorHash == descendantHash {
		return true, nil
	}

	ancestorCommit, err := s.repo.CommitObject(plumbing.NewHash(ancestorHash))
	if err != nil {
		return false, fmt.Errorf("failed to get ancestor commit: %w", err)
	}
	descendantCommit, err := s.repo.CommitObject(plumbing.NewHash(descendantHash))
	if err != nil {
		return false, fmt.Errorf("failed to get descendant commit: %w", err)
	}
	return ancestorCommit.IsAncestor(descendantCommit)
}

// CommitsSince returns the commits reachable from head but not from base,
// in topological order with the oldest first. Merge commits are excluded.
func (s *Session) CommitsSince(ctx context.Context, base, head string) ([]Commit, error) {
	hashes, err := s.runner.RunLines(ctx, "rev-list", "--topo-order", "--reverse", "--no-merges", base+".."+head)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits %s..%s: %w", base, head, err)
	}

	commits := make([]Commit, 0, len(hashes))
	for _, h := range hashes {
		obj, err := s.repo.CommitObject(plumbing.NewHash(h))
		if err != nil {
			return nil, fmt.Errorf("failed to read commit %s: %w", h, err)
		}
		commits = append(commits, Commit{Hash: h, Message: obj.Message})
	}
	return commits, nil
}
