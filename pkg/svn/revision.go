package svn

import (
	"strings"
	"time"

	"github.com/StarLamp/git-as-svn/pkg/gitdb"
	"github.com/StarLamp/git-as-svn/pkg/props"
	"github.com/StarLamp/git-as-svn/pkg/svnpath"
)

// CopyFrom answers an SVN copyfrom query: the path was copied from Path at
// Revision.
type CopyFrom struct {
	Revision int
	Path     string
}

// Revision is an immutable handle on one bridge revision. Handles are owned
// by the repository's revisions vector; readers copy them out under the
// shared lock.
type Revision struct {
	repo        *Repository
	cacheCommit gitdb.Hash
	id          int
	gitCommit   gitdb.Hash // "" for the synthetic revision 0
	commit      *gitdb.Commit
	date        int64 // milliseconds
	renames     map[string]CopyFrom
}

// ID returns the revision number.
func (r *Revision) ID() int { return r.id }

// CacheCommit returns the side-branch commit anchoring this revision.
func (r *Revision) CacheCommit() gitdb.Hash { return r.cacheCommit }

// GitCommit returns the mirrored user commit, or "" for revision 0.
func (r *Revision) GitCommit() gitdb.Hash { return r.gitCommit }

// Date returns the commit time in milliseconds since the epoch.
func (r *Revision) Date() int64 { return r.date }

// Author returns the committer name, or "" for revision 0.
func (r *Revision) Author() string {
	if r.commit == nil {
		return ""
	}
	return r.commit.Committer.Name
}

// Log returns the trimmed commit message, or "" for revision 0.
func (r *Revision) Log() string {
	if r.commit == nil {
		return ""
	}
	return strings.TrimSpace(r.commit.Message)
}

// Properties returns the revision properties. Internal props carry author,
// log and date; the Git commit hash rides along whenever present.
func (r *Revision) Properties(includeInternal bool) map[string]string {
	result := make(map[string]string)
	if includeInternal {
		if author := r.Author(); author != "" {
			result[props.RevisionAuthor] = author
		}
		if log := r.Log(); log != "" {
			result[props.RevisionLog] = log
		}
		result[props.RevisionDate] = formatDate(r.date)
	}
	if r.gitCommit != "" {
		result[props.GitCommit] = string(r.gitCommit)
	}
	return result
}

// Root returns the revision's root directory node.
func (r *Revision) Root() (*Node, error) {
	if r.commit == nil {
		return emptyRoot(r.repo, r.id), nil
	}
	return newRootNode(r.repo, r.commit.Tree, r.id)
}

// File resolves a repository path to a node, or nil if absent at this
// revision.
func (r *Revision) File(fullPath string) (*Node, error) {
	node, err := r.Root()
	if err != nil {
		return nil, err
	}
	for _, item := range svnpath.Split(fullPath) {
		node, err = node.Entry(item)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, nil
		}
	}
	return node, nil
}

// CopyFrom answers the copyfrom query for a path at this revision.
func (r *Revision) CopyFrom(fullPath string) (CopyFrom, bool) {
	cf, ok := r.renames[svnpath.Normalize(fullPath)]
	return cf, ok
}

// Changes enumerates this revision's change set against its predecessor.
func (r *Revision) Changes() (map[string]ChangePair, error) {
	if r.commit == nil || r.id == 0 {
		return map[string]ChangePair{}, nil
	}
	prev, err := r.repo.ByID(r.id - 1)
	if err != nil {
		return nil, err
	}
	oldRoot, err := prev.Root()
	if err != nil {
		return nil, err
	}
	newRoot, err := r.Root()
	if err != nil {
		return nil, err
	}
	return collectChanges(oldRoot, newRoot, false)
}

// formatDate renders a millisecond timestamp the way SVN expects revision
// dates: UTC with microsecond precision.
func formatDate(millis int64) string {
	return time.UnixMilli(millis).UTC().Format("2006-01-02T15:04:05.000000Z")
}
