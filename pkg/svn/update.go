package svn

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/StarLamp/git-as-svn/pkg/gitdb"
)

// reportDelay paces progress logging and crash-safety side-branch
// fast-forwards during long extensions.
const reportDelay = 2500 * time.Millisecond

// Update brings the revision store up to date with both refs: it loads
// cache commits the side branch already has, then extends the side branch
// with user commits not yet mirrored, looping until both are stable.
func (r *Repository) Update() error {
	for {
		if _, err := r.loadRevisions(); err != nil {
			return err
		}
		extended, err := r.cacheRevisions()
		if err != nil {
			return err
		}
		if !extended {
			return nil
		}
	}
}

// loadRevisions parses side-branch cache commits that are not in the
// revisions vector yet. Index mutation runs under the exclusive lock;
// committed revisions become visible atomically when the lock drops.
func (r *Repository) loadRevisions() (bool, error) {
	// Fast check.
	r.mu.RLock()
	loadedTip := gitdb.Hash("")
	if len(r.revisions) > 0 {
		loadedTip = r.revisions[len(r.revisions)-1].CacheCommit()
	}
	r.mu.RUnlock()
	tip, err := r.git.ResolveRef(r.sideRef)
	if err != nil {
		return false, err
	}
	if tip == "" {
		return false, fmt.Errorf("load revisions: side branch %s missing", r.sideRef)
	}
	if tip == loadedTip {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	loadedTip = ""
	if len(r.revisions) > 0 {
		loadedTip = r.revisions[len(r.revisions)-1].CacheCommit()
	}

	// Walk back from the tip to the last loaded cache commit.
	var newCommits []gitdb.Hash
	for cursor := tip; cursor != loadedTip; {
		newCommits = append(newCommits, cursor)
		commit, err := r.git.Store.ReadCommit(cursor)
		if err != nil {
			return false, fmt.Errorf("load revisions: %w", err)
		}
		cursor = commit.FirstParent()
		if cursor == "" {
			break
		}
	}
	if len(newCommits) == 0 {
		return false, nil
	}

	begin := time.Now()
	reportTime := begin
	log.WithField("count", len(newCommits)).Info("loading cached revision changes")
	for i := len(newCommits) - 1; i >= 0; i-- {
		if err := r.loadRevisionInfo(newCommits[i]); err != nil {
			return false, err
		}
		if time.Since(reportTime) > reportDelay {
			log.WithField("processed", len(newCommits)-i).Info("processed cached revisions")
			reportTime = time.Now()
		}
	}
	log.WithField("elapsed", time.Since(begin)).Info("cached revisions loaded")
	return true, nil
}

// loadRevisionInfo appends one cache commit's revision to the vector and
// indexes. Callers hold the exclusive lock.
func (r *Repository) loadRevisionInfo(cacheCommit gitdb.Hash) error {
	cacheRev, err := loadCacheRevision(r.git.Store, cacheCommit)
	if err != nil {
		return err
	}
	revisionID := cacheRev.RevisionID
	if revisionID != len(r.revisions) {
		return fmt.Errorf("load revisions: cache commit %s has revision %d at depth %d",
			cacheCommit, revisionID, len(r.revisions))
	}

	copyFroms := make(map[string]CopyFrom)
	for newPath, oldPath := range cacheRev.RenameMap() {
		copyFroms[newPath] = CopyFrom{Revision: revisionID - 1, Path: oldPath}
	}

	var commit *gitdb.Commit
	if cacheRev.GitCommit != "" {
		commit, err = r.git.Store.ReadCommit(cacheRev.GitCommit)
		if err != nil {
			return fmt.Errorf("load revisions: user commit %s: %w", cacheRev.GitCommit, err)
		}
	}

	for _, changed := range cacheRev.ChangedPaths() {
		if changed.Deleted {
			r.lastUpdates.append(changed.Path, revisionID, MarkNoFile)
		} else {
			r.lastUpdates.append(changed.Path, revisionID)
		}
	}

	var date int64
	if commit != nil {
		date = commit.Committer.When
	}
	revision := &Revision{
		repo:        r,
		cacheCommit: cacheCommit,
		id:          revisionID,
		gitCommit:   cacheRev.GitCommit,
		commit:      commit,
		date:        date,
		renames:     copyFroms,
	}

	// The date index skips out-of-order commit times so ByDate stays
	// monotone.
	if revisionID > 0 {
		maxKey, _ := r.byDate.Max()
		if maxKey == nil || maxKey.(int64) <= date {
			r.byDate.Put(date, revision)
		}
	}
	if cacheRev.GitCommit != "" {
		r.byHash[cacheRev.GitCommit] = revision
	}
	r.revisions = append(r.revisions, revision)
	return nil
}

// cacheRevisions extends the side branch with user commits that have no
// cache commit yet. The walk/build phase touches only the object store and
// runs without the repository lock; new revisions enter the indexes via
// the next loadRevisions pass.
func (r *Repository) cacheRevisions() (bool, error) {
	head, err := r.git.ResolveRef(r.branchRef)
	if err != nil {
		return false, err
	}
	if head == "" {
		return false, nil
	}
	if r.isMirrored(head) {
		return false, nil
	}

	// Collect unmirrored commits, first-parent only, oldest first.
	var newCommits []gitdb.Hash
	for cursor := head; cursor != "" && !r.isMirrored(cursor); {
		newCommits = append(newCommits, cursor)
		commit, err := r.git.Store.ReadCommit(cursor)
		if err != nil {
			return false, fmt.Errorf("cache revisions: %w", err)
		}
		cursor = commit.FirstParent()
	}
	if len(newCommits) == 0 {
		return false, nil
	}

	r.mu.RLock()
	revisionID := len(r.revisions)
	cacheTip := r.revisions[len(r.revisions)-1].CacheCommit()
	r.mu.RUnlock()

	begin := time.Now()
	reportTime := begin
	log.WithField("count", len(newCommits)).Info("loading revision changes")
	for i := len(newCommits) - 1; i >= 0; i-- {
		commitHash := newCommits[i]
		commit, err := r.git.Store.ReadCommit(commitHash)
		if err != nil {
			return false, fmt.Errorf("cache revisions: %w", err)
		}
		cacheRev, err := r.buildCacheRevision(commit, commitHash, revisionID)
		if err != nil {
			return false, err
		}
		cacheTip, err = createCacheCommit(r.git.Store, cacheTip, cacheRev, commit.Committer.When)
		if err != nil {
			return false, err
		}
		revisionID++

		// Fast-forward the side branch periodically so partial progress
		// survives a crash.
		if time.Since(reportTime) > reportDelay {
			log.WithField("processed", len(newCommits)-i).Info("processed revisions")
			reportTime = time.Now()
			if err := r.git.UpdateRef(r.sideRef, cacheTip); err != nil {
				return false, err
			}
		}
	}
	log.WithField("elapsed", time.Since(begin)).Info("revision changes loaded")

	if err := r.git.UpdateRef(r.sideRef, cacheTip); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) isMirrored(h gitdb.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byHash[h]
	return ok
}

// buildCacheRevision diffs a user commit against its first parent,
// producing the change set and rename map persisted for the revision.
func (r *Repository) buildCacheRevision(commit *gitdb.Commit, commitHash gitdb.Hash, revisionID int) (*CacheRevision, error) {
	var oldRoot *Node
	if parentHash := commit.FirstParent(); parentHash != "" {
		parent, err := r.git.Store.ReadCommit(parentHash)
		if err != nil {
			return nil, fmt.Errorf("cache revisions: parent %s: %w", parentHash, err)
		}
		oldRoot, err = newRootNode(r, parent.Tree, revisionID-1)
		if err != nil {
			return nil, err
		}
	} else {
		oldRoot = emptyRoot(r, revisionID-1)
	}
	newRoot, err := newRootNode(r, commit.Tree, revisionID)
	if err != nil {
		return nil, err
	}

	changes, err := collectChanges(oldRoot, newRoot, true)
	if err != nil {
		return nil, err
	}
	fileChange := make(map[string]CacheChange, len(changes))
	for path, pair := range changes {
		change := CacheChange{}
		if pair.Old != nil {
			change.OldBlob = pair.Old.ObjectHash()
			change.OldMode = pair.Old.Mode()
		}
		if pair.New != nil {
			change.NewBlob = pair.New.ObjectHash()
			change.NewMode = pair.New.Mode()
		}
		fileChange[path] = change
	}

	renames, err := collectRenames(oldRoot, newRoot, r.renameDetection)
	if err != nil {
		return nil, err
	}
	return NewCacheRevision(revisionID, commitHash, renames, fileChange), nil
}
