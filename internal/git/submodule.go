package git

import (
	"fmt"
	"path/filepath"
)

// Submodule is a submodule declared in .gitmodules
type Submodule struct {
	Name string
	Path string // absolute path of the submodule worktree
}

// Submodules lists the submodules declared in .gitmodules. Entries are
// reported whether or not they have been initialised.
func (s *Session) Submodules() ([]Submodule, error) {
	worktree, err := s.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	subs, err := worktree.Submodules()
	if err != nil {
		return nil, fmt.Errorf("failed to read submodules: %w", err)
	}

	result := make([]Submodule, 0, len(subs))
	for _, sub := range subs {
		cfg := sub.Config()
		result = append(result, Submodule{
			Name: cfg.Name,
			Path: filepath.Join(s.root, filepath.FromSlash(cfg.Path)),
		})
	}
	return result, nil
}
