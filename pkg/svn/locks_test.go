package svn

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func lockOne(t *testing.T, f *fixture, path string, rev int, force bool) (*LockDesc, error) {
	t.Helper()
	results, err := f.repo.Lock(testUser, "", force, []LockTarget{{Path: path, Revision: rev}})
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	return results[0].Lock, results[0].Err
}

func TestLockNonexistentPath(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "a"}, 1000, "one")

	if _, err := lockOne(t, f, "/b.txt", 1, false); !errors.Is(err, ErrOutOfDate) {
		t.Fatalf("lock missing path: err = %v, want FS_OUT_OF_DATE", err)
	}
}

func TestLockStalePath(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "a"}, 1000, "one")
	f.commit(map[string]string{"a.txt": "x"}, 2000, "two")

	if _, err := lockOne(t, f, "/a.txt", 1, false); !errors.Is(err, ErrOutOfDate) {
		t.Fatalf("lock stale path: err = %v, want FS_OUT_OF_DATE", err)
	}
	if lock, err := lockOne(t, f, "/a.txt", 2, false); err != nil || lock == nil {
		t.Fatalf("lock fresh path: lock=%v err=%v", lock, err)
	}
}

func TestLockDirectory(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"d/a.txt": "a"}, 1000, "one")

	if _, err := lockOne(t, f, "/d", 1, false); !errors.Is(err, ErrNotFile) {
		t.Fatalf("lock directory: err = %v, want FS_NOT_FILE", err)
	}
}

func TestLockForceSteal(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "a"}, 1000, "one")

	first, err := lockOne(t, f, "/a.txt", 1, false)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if !strings.HasPrefix(first.Token, "opaquelocktoken:") {
		t.Fatalf("token = %q, want opaquelocktoken prefix", first.Token)
	}

	if _, err := lockOne(t, f, "/a.txt", 1, false); !errors.Is(err, ErrPathAlreadyLocked) {
		t.Fatalf("second lock: err = %v, want FS_PATH_ALREADY_LOCKED", err)
	}
	if got := f.repo.LockManager().GetLock("/a.txt"); got == nil || got.Token != first.Token {
		t.Fatalf("lock after rejected steal = %v, want original token", got)
	}

	stolen, err := lockOne(t, f, "/a.txt", 1, true)
	if err != nil {
		t.Fatalf("force lock: %v", err)
	}
	if stolen.Token == first.Token {
		t.Fatal("force lock reused the old token")
	}
	if got := f.repo.LockManager().GetLock("/a.txt"); got == nil || got.Token != stolen.Token {
		t.Fatalf("lock after steal = %v, want stolen token", got)
	}
}

func TestUnlockExclusivity(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "a"}, 1000, "one")

	lock, err := lockOne(t, f, "/a.txt", 1, false)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Wrong token fails.
	results, err := f.repo.Unlock(testUser, false, map[string]string{"/a.txt": "opaquelocktoken:wrong"})
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !errors.Is(results[0].Err, ErrNoSuchLock) {
		t.Fatalf("unlock wrong token: err = %v, want FS_NO_SUCH_LOCK", results[0].Err)
	}

	// Right token succeeds once.
	results, err = f.repo.Unlock(testUser, false, map[string]string{"/a.txt": lock.Token})
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("unlock: %v", results[0].Err)
	}

	// Second unlock with the same token reports no such lock.
	results, err = f.repo.Unlock(testUser, false, map[string]string{"/a.txt": lock.Token})
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !errors.Is(results[0].Err, ErrNoSuchLock) {
		t.Fatalf("double unlock: err = %v, want FS_NO_SUCH_LOCK", results[0].Err)
	}
}

func TestBreakLock(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "a"}, 1000, "one")

	if _, err := lockOne(t, f, "/a.txt", 1, false); err != nil {
		t.Fatalf("lock: %v", err)
	}
	results, err := f.repo.Unlock(testUser, true, map[string]string{"/a.txt": ""})
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("break unlock: %v", results[0].Err)
	}
	if got := f.repo.LockManager().GetLock("/a.txt"); got != nil {
		t.Fatalf("lock after break = %v, want nil", got)
	}
}

func TestGetLocksPrefix(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"d/a.txt": "a", "d/b.txt": "b", "other.txt": "o"}, 1000, "one")

	for _, path := range []string{"/d/a.txt", "/d/b.txt", "/other.txt"} {
		if _, err := lockOne(t, f, path, 1, false); err != nil {
			t.Fatalf("lock %s: %v", path, err)
		}
	}
	locks := f.repo.LockManager().GetLocks("/d")
	if len(locks) != 2 {
		t.Fatalf("locks under /d = %d, want 2", len(locks))
	}
	if locks[0].Path != "/d/a.txt" || locks[1].Path != "/d/b.txt" {
		t.Fatalf("locks = %v, want sorted /d paths", locks)
	}
}

func TestLockPersistenceAcrossRestart(t *testing.T) {
	persist := filepath.Join(t.TempDir(), "locks.toml")

	lm, err := NewLockManager(persist)
	if err != nil {
		t.Fatalf("NewLockManager: %v", err)
	}
	git, err := newScratchGit(t)
	if err != nil {
		t.Fatalf("scratch git: %v", err)
	}
	repo, err := NewRepository(git, "master", false, nil, lm)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	f := &fixture{t: t, git: git, repo: repo}
	f.commit(map[string]string{"a.txt": "a"}, 1000, "one")

	lock, err := lockOne(t, f, "/a.txt", 1, false)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	reloaded, err := NewLockManager(persist)
	if err != nil {
		t.Fatalf("NewLockManager (reload): %v", err)
	}
	got := reloaded.GetLock("/a.txt")
	if got == nil || got.Token != lock.Token || got.Owner != testUser.Name {
		t.Fatalf("reloaded lock = %v, want token %s owner %s", got, lock.Token, testUser.Name)
	}
}

func TestCommitConsumesLocks(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "a"}, 1000, "one")

	lock, err := lockOne(t, f, "/a.txt", 1, false)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Without the token, the edit is rejected.
	if _, err := commitFileEdit(f, "a.txt", "edited", nil, false); !errors.Is(err, ErrBadLockToken) {
		t.Fatalf("commit without token: err = %v, want FS_BAD_LOCK_TOKEN", err)
	}

	// keepLocks=true retains the lock after a successful commit.
	rev, err := commitFileEdit(f, "a.txt", "edited", map[string]string{"/a.txt": lock.Token}, true)
	if err != nil {
		t.Fatalf("commit with token: %v", err)
	}
	if rev == nil {
		t.Fatal("commit rejected unexpectedly")
	}
	if got := f.repo.LockManager().GetLock("/a.txt"); got == nil || got.Token != lock.Token {
		t.Fatalf("lock after keepLocks commit = %v, want retained", got)
	}

	// keepLocks=false releases it.
	rev, err = commitFileEdit(f, "a.txt", "edited again", map[string]string{"/a.txt": lock.Token}, false)
	if err != nil {
		t.Fatalf("commit (release): %v", err)
	}
	if rev == nil {
		t.Fatal("commit rejected unexpectedly")
	}
	if got := f.repo.LockManager().GetLock("/a.txt"); got != nil {
		t.Fatalf("lock after commit = %v, want released", got)
	}
}

func TestDeleteLockedDescendant(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"d/a.txt": "a", "keep.txt": "k"}, 1000, "one")

	lock, err := lockOne(t, f, "/d/a.txt", 1, false)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	deleteDir := func(tokens map[string]string) (*Revision, error) {
		builder, err := f.repo.NewCommitBuilder()
		if err != nil {
			t.Fatalf("NewCommitBuilder: %v", err)
		}
		if tokens != nil {
			builder.SetLockTokens(tokens, false)
		}
		if err := builder.Delete("d"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		return builder.Commit(testUser, "drop d")
	}

	if _, err := deleteDir(nil); !errors.Is(err, ErrBadLockToken) {
		t.Fatalf("delete locked dir without token: err = %v, want FS_BAD_LOCK_TOKEN", err)
	}

	rev, err := deleteDir(map[string]string{"/d/a.txt": lock.Token})
	if err != nil {
		t.Fatalf("delete with descendant token: %v", err)
	}
	if rev == nil {
		t.Fatal("commit rejected unexpectedly")
	}
	node, err := rev.File("/d")
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if node != nil {
		t.Fatal("/d still present after delete commit")
	}
}
