package gitdb

import (
	"fmt"
	"os"
	"path/filepath"
)

// Repo is an opened bare object database: an objects/ directory plus refs.
type Repo struct {
	Dir   string
	Store *Store

	// Linked holds additional repositories consulted when resolving
	// gitlink entries. First hit wins; order is a configuration concern.
	Linked []*Repo
}

// Init creates a new repository at dir. It creates the objects/ and
// refs/heads/ directory structure. Returns an error if the directory
// already holds a repository.
func Init(dir string) (*Repo, error) {
	if _, err := os.Stat(filepath.Join(dir, "objects")); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", dir)
	}

	dirs := []string{
		filepath.Join(dir, "objects"),
		filepath.Join(dir, "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	return &Repo{Dir: dir, Store: NewStore(dir)}, nil
}

// Open opens an existing repository at dir.
func Open(dir string) (*Repo, error) {
	info, err := os.Stat(filepath.Join(dir, "objects"))
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("open: not a repository: %s", dir)
	}
	return &Repo{Dir: dir, Store: NewStore(dir)}, nil
}

// ResolveGitlink resolves a gitlink commit hash through the linked
// repositories, returning the repository that holds it. First hit wins.
func (r *Repo) ResolveGitlink(h Hash) (*Repo, *Commit, error) {
	for _, linked := range r.Linked {
		if linked.Store.Has(h) {
			commit, err := linked.Store.ReadCommit(h)
			if err != nil {
				return nil, nil, fmt.Errorf("resolve gitlink %s: %w", h, err)
			}
			return linked, commit, nil
		}
	}
	return nil, nil, nil
}
