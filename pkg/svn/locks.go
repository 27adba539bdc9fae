package svn

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/StarLamp/git-as-svn/pkg/svnpath"
)

// User identifies the principal driving a lock or commit operation.
type User struct {
	Name     string
	RealName string
	Email    string
}

// LockDesc describes one held path lock.
type LockDesc struct {
	Path     string    `toml:"path"`
	Token    string    `toml:"token"`
	Owner    string    `toml:"owner"`
	Comment  string    `toml:"comment,omitempty"`
	Created  time.Time `toml:"created"`
	Revision int       `toml:"revision"`
}

// LockResult is the per-path outcome of a Lock or Unlock batch.
type LockResult struct {
	Path string
	Lock *LockDesc
	Err  error
}

// LockTarget names a path to lock together with the caller's revision of it.
type LockTarget struct {
	Path     string
	Revision int
}

// LockManager owns the path-lock table. State per path moves
// unlocked → locked → unlocked; force re-locks atomically with a fresh
// token, break-unlock skips the token check.
//
// When persistPath is set, the table snapshots to a TOML file after every
// mutation so locks survive restarts.
type LockManager struct {
	mu          sync.Mutex
	locks       map[string]*LockDesc
	persistPath string
}

// NewLockManager creates a lock manager, loading a persisted table when
// persistPath names an existing snapshot.
func NewLockManager(persistPath string) (*LockManager, error) {
	lm := &LockManager{
		locks:       make(map[string]*LockDesc),
		persistPath: persistPath,
	}
	if persistPath != "" {
		if err := lm.load(); err != nil {
			return nil, err
		}
	}
	return lm, nil
}

// Lock acquires locks for the given targets on behalf of user. Results come
// back in target order; each path succeeds or fails independently. The
// latest revision supplies existence, kind and freshness checks.
func (lm *LockManager) Lock(user User, comment string, force bool, targets []LockTarget, latest *Revision) ([]LockResult, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	results := make([]LockResult, 0, len(targets))
	mutated := false
	for _, target := range targets {
		path := svnpath.Normalize(target.Path)
		result := LockResult{Path: path}

		node, err := latest.File(path)
		if err != nil {
			return nil, err
		}
		switch {
		case node == nil:
			result.Err = Errorf(CodeOutOfDate, "path not found: %s", path)
		case node.IsDir():
			result.Err = Errorf(CodeNotFile, "path is not a file: %s", path)
		default:
			lastChange := lm.lastChangeOf(node)
			if lastChange == MarkNoFile || target.Revision < lastChange {
				result.Err = Errorf(CodeOutOfDate, "path is out of date: %s", path)
				break
			}
			if existing, ok := lm.locks[path]; ok && !force {
				result.Err = Errorf(CodePathAlreadyLocked, "path already locked by %s: %s", existing.Owner, path)
				break
			}
			token, err := generateToken()
			if err != nil {
				return nil, err
			}
			lock := &LockDesc{
				Path:     path,
				Token:    token,
				Owner:    user.Name,
				Comment:  comment,
				Created:  time.Now().UTC(),
				Revision: latest.ID(),
			}
			lm.locks[path] = lock
			mutated = true
			result.Lock = lock
		}
		results = append(results, result)
	}
	if mutated {
		if err := lm.save(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (lm *LockManager) lastChangeOf(node *Node) int {
	return node.repo.LastChange(node.FullPath(), node.revision)
}

// Unlock removes locks. Without breakLock the supplied token must match the
// stored one; break-unlock removes any lock regardless of principal.
func (lm *LockManager) Unlock(user User, breakLock bool, tokens map[string]string) ([]LockResult, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	normalized := make(map[string]string, len(tokens))
	paths := make([]string, 0, len(tokens))
	for path, token := range tokens {
		path = svnpath.Normalize(path)
		normalized[path] = token
		paths = append(paths, path)
	}
	sort.Strings(paths)

	results := make([]LockResult, 0, len(paths))
	mutated := false
	for _, path := range paths {
		token := normalized[path]
		result := LockResult{Path: path}
		existing, ok := lm.locks[path]
		if !ok || (!breakLock && existing.Token != token) {
			result.Err = Errorf(CodeNoSuchLock, "no lock on path: %s", path)
		} else {
			result.Lock = existing
			delete(lm.locks, path)
			mutated = true
		}
		results = append(results, result)
	}
	if mutated {
		if err := lm.save(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// GetLock returns the lock on a path, or nil.
func (lm *LockManager) GetLock(path string) *LockDesc {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lock, ok := lm.locks[svnpath.Normalize(path)]; ok {
		copied := *lock
		return &copied
	}
	return nil
}

// GetLocks returns the locks under a path prefix, sorted by path.
func (lm *LockManager) GetLocks(prefix string) []LockDesc {
	prefix = svnpath.Normalize(prefix)
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var result []LockDesc
	for path, lock := range lm.locks {
		if svnpath.IsParentOf(prefix, path) {
			result = append(result, *lock)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result
}

// ValidateForCommit checks every edited path against the lock table. An
// edited path covered by a lock requires its token among suppliedTokens;
// deleting a directory requires tokens for every locked descendant.
// Returned paths are the locks the commit consumes.
func (lm *LockManager) ValidateForCommit(editedPaths []string, suppliedTokens map[string]string) ([]string, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	normalized := make(map[string]string, len(suppliedTokens))
	for path, token := range suppliedTokens {
		normalized[svnpath.Normalize(path)] = token
	}

	var consumed []string
	for _, edited := range editedPaths {
		edited = svnpath.Normalize(edited)
		for path, lock := range lm.locks {
			if !svnpath.IsParentOf(edited, path) {
				continue
			}
			token, ok := normalized[path]
			if !ok || token != lock.Token {
				return nil, Errorf(CodeBadLockToken, "missing or invalid lock token for path: %s", path)
			}
			consumed = append(consumed, path)
		}
	}
	sort.Strings(consumed)
	return consumed, nil
}

// ReleaseConsumed removes the locks a successful commit consumed, unless
// the client asked to keep them.
func (lm *LockManager) ReleaseConsumed(paths []string, keepLocks bool) error {
	if keepLocks || len(paths) == 0 {
		return nil
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for _, path := range paths {
		delete(lm.locks, path)
	}
	return lm.save()
}

func generateToken() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80
	return fmt.Sprintf("opaquelocktoken:%x-%x-%x-%x-%x",
		raw[0:4], raw[4:6], raw[6:8], raw[8:10], raw[10:16]), nil
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

type lockSnapshot struct {
	Locks []LockDesc `toml:"locks"`
}

func (lm *LockManager) save() error {
	if lm.persistPath == "" {
		return nil
	}
	snapshot := lockSnapshot{}
	for _, lock := range lm.locks {
		snapshot.Locks = append(snapshot.Locks, *lock)
	}
	sort.Slice(snapshot.Locks, func(i, j int) bool {
		return snapshot.Locks[i].Path < snapshot.Locks[j].Path
	})

	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(snapshot); err != nil {
		return fmt.Errorf("save locks: encode: %w", err)
	}

	dir := filepath.Dir(lm.persistPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save locks: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".locks-tmp-*")
	if err != nil {
		return fmt.Errorf("save locks: tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(buf.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save locks: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save locks: close: %w", err)
	}
	if err := os.Rename(tmpName, lm.persistPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save locks: rename: %w", err)
	}
	return nil
}

func (lm *LockManager) load() error {
	data, err := os.ReadFile(lm.persistPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load locks: %w", err)
	}
	var snapshot lockSnapshot
	if err := toml.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("load locks %s: %w", lm.persistPath, err)
	}
	for i := range snapshot.Locks {
		lock := snapshot.Locks[i]
		lm.locks[lock.Path] = &lock
	}
	return nil
}
