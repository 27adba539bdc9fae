package svn

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	cmap "github.com/orcaman/concurrent-map"
	log "github.com/sirupsen/logrus"

	"github.com/StarLamp/git-as-svn/pkg/gitdb"
	"github.com/StarLamp/git-as-svn/pkg/props"
)

// Repository bridges one Git branch to an SVN revision sequence. It owns
// the revisions vector and its date/hash indexes behind a single
// reader-writer lock; the last-change index and content caches are
// concurrent maps of their own.
type Repository struct {
	git             *gitdb.Repo
	branchRef       string
	sideRef         string
	renameDetection bool
	pusher          Pusher
	locks           *LockManager
	uuid            string

	mu        sync.RWMutex
	revisions []*Revision
	byDate    *treemap.Map // int64 millis → *Revision
	byHash    map[gitdb.Hash]*Revision

	lastUpdates   *lastChangeIndex
	md5Cache      cmap.ConcurrentMap
	dirPropCache  cmap.ConcurrentMap
	filePropCache cmap.ConcurrentMap

	// pushMu serializes build-tree → insert-commit → validate → ref-update.
	pushMu sync.Mutex
}

// NewRepository opens the bridge over an exported branch, creating the
// synthetic revision 0 on first use and bringing the revision cache up to
// date with the user branch.
func NewRepository(git *gitdb.Repo, branch string, renameDetection bool, pusher Pusher, locks *LockManager) (*Repository, error) {
	if pusher == nil {
		pusher = SimplePush{}
	}
	if locks == nil {
		var err error
		locks, err = NewLockManager("")
		if err != nil {
			return nil, err
		}
	}
	r := &Repository{
		git:             git,
		branchRef:       "refs/heads/" + branch,
		sideRef:         SideBranchRef(branch),
		renameDetection: renameDetection,
		pusher:          pusher,
		locks:           locks,
		byDate:          treemap.NewWith(utils.Int64Comparator),
		byHash:          make(map[gitdb.Hash]*Revision),
		lastUpdates:     newLastChangeIndex(),
		md5Cache:        cmap.New(),
		dirPropCache:    cmap.New(),
		filePropCache:   cmap.New(),
	}
	if err := r.initSideBranch(); err != nil {
		return nil, err
	}
	if err := r.Update(); err != nil {
		return nil, err
	}
	repositoryID, err := loadRepositoryID(git.Store, r.revisionZero().CacheCommit())
	if err != nil {
		return nil, err
	}
	r.uuid = nameUUID(repositoryID + "\x00" + r.branchRef)
	log.WithField("branch", r.branchRef).Info("repository ready")
	return r, nil
}

// initSideBranch creates the first cache commit when the side branch does
// not exist yet.
func (r *Repository) initSideBranch() error {
	tip, err := r.git.ResolveRef(r.sideRef)
	if err != nil {
		return err
	}
	if tip != "" {
		return nil
	}
	repositoryID, err := randomRepositoryID()
	if err != nil {
		return err
	}
	first, err := createFirstCacheCommit(r.git.Store, repositoryID)
	if err != nil {
		return err
	}
	if err := r.git.UpdateRefCAS(r.sideRef, first, ""); err != nil {
		// A concurrent initializer won the race; its revision 0 stands.
		if tip, rerr := r.git.ResolveRef(r.sideRef); rerr == nil && tip != "" {
			return nil
		}
		return err
	}
	return nil
}

// UUID returns the stable repository UUID presented to SVN clients.
func (r *Repository) UUID() string { return r.uuid }

// Git exposes the underlying object database.
func (r *Repository) Git() *gitdb.Repo { return r.git }

// BranchRef returns the exported user branch ref.
func (r *Repository) BranchRef() string { return r.branchRef }

// LockManager returns the repository's path-lock manager.
func (r *Repository) LockManager() *LockManager { return r.locks }

// Latest returns the newest revision. Revision 0 always exists.
func (r *Repository) Latest() *Revision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revisions[len(r.revisions)-1]
}

func (r *Repository) revisionZero() *Revision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revisions[0]
}

// ByID returns the revision with the given number.
func (r *Repository) ByID(id int) (*Revision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || id >= len(r.revisions) {
		return nil, Errorf(CodeNoSuchRevision, "no such revision %d", id)
	}
	return r.revisions[id], nil
}

// ByDate returns the newest revision with date <= dateMillis, falling back
// to revision 0.
func (r *Repository) ByDate(dateMillis int64) *Revision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, value := r.byDate.Floor(dateMillis); value != nil {
		return value.(*Revision)
	}
	return r.revisions[0]
}

// ByGitCommit returns the revision mirroring a Git commit.
func (r *Repository) ByGitCommit(h gitdb.Hash) (*Revision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rev, ok := r.byHash[h]; ok {
		return rev, nil
	}
	return nil, Errorf(CodeNoSuchRevision, "no such revision %s", h)
}

// LastChange returns the largest revision <= beforeRevision in which path
// changed, or MarkNoFile if the path was absent. The root always reports
// the queried revision.
func (r *Repository) LastChange(path string, beforeRevision int) int {
	if path == "" || path == "/" {
		return beforeRevision
	}
	return r.lastUpdates.lastChange(path, beforeRevision)
}

// Lock acquires path locks against the current latest revision.
func (r *Repository) Lock(user User, comment string, force bool, targets []LockTarget) ([]LockResult, error) {
	return r.locks.Lock(user, comment, force, targets, r.Latest())
}

// Unlock releases path locks.
func (r *Repository) Unlock(user User, breakLock bool, tokens map[string]string) ([]LockResult, error) {
	return r.locks.Unlock(user, breakLock, tokens)
}

// ---------------------------------------------------------------------------
// Derived-property and MD5 caches
// ---------------------------------------------------------------------------

// dirFragments collects the property fragments contributed by config files
// in a directory, memoized by tree hash. Compute-if-absent may race;
// parsing the same tree twice is idempotent.
func (r *Repository) dirFragments(db *gitdb.Repo, treeHash gitdb.Hash) ([]props.Property, error) {
	if treeHash == "" {
		return nil, nil
	}
	if cached, ok := r.dirPropCache.Get(string(treeHash)); ok {
		return cached.([]props.Property), nil
	}
	tree, err := db.Store.ReadTree(treeHash)
	if err != nil {
		return nil, fmt.Errorf("dir properties %s: %w", treeHash, err)
	}
	var fragments []props.Property
	for _, e := range tree.Entries {
		if !e.Mode.IsBlob() {
			continue
		}
		fragment, err := r.fileFragment(db, e.Name, e.Hash)
		if err != nil {
			return nil, err
		}
		if fragment != nil {
			fragments = append(fragments, fragment)
		}
	}
	r.dirPropCache.Set(string(treeHash), fragments)
	return fragments, nil
}

// fileFragment parses one config blob into a fragment, memoized by name
// and blob hash. Unregistered names contribute nothing.
func (r *Repository) fileFragment(db *gitdb.Repo, name string, blobHash gitdb.Hash) (props.Property, error) {
	factory := props.FactoryFor(name)
	if factory == nil {
		return nil, nil
	}
	key := name + "\x00" + string(blobHash)
	if cached, ok := r.filePropCache.Get(key); ok {
		if cached == nil {
			return nil, nil
		}
		return cached.(props.Property), nil
	}
	blob, err := db.Store.ReadBlob(blobHash)
	if err != nil {
		return nil, fmt.Errorf("parse property file %s: %w", name, err)
	}
	fragment := factory(string(blob.Data))
	r.filePropCache.Set(key, fragment)
	return fragment, nil
}

// objectMD5 memoizes the MD5 of an object's SVN content view. The kind
// byte separates symlink from file digests of the same blob.
func (r *Repository) objectMD5(kind byte, hash gitdb.Hash, load func() ([]byte, error)) (string, error) {
	key := string(kind) + string(hash)
	if cached, ok := r.md5Cache.Get(key); ok {
		return cached.(string), nil
	}
	data, err := load()
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	digest := hex.EncodeToString(sum[:])
	r.md5Cache.Set(key, digest)
	return digest, nil
}

// ---------------------------------------------------------------------------
// Identity helpers
// ---------------------------------------------------------------------------

func randomRepositoryID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("repository id: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// nameUUID derives a name-based (version 3) UUID string from the input.
func nameUUID(name string) string {
	sum := md5.Sum([]byte(name))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}
