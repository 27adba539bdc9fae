package svn

import (
	"errors"
	"testing"

	"github.com/StarLamp/git-as-svn/pkg/gitdb"
)

func TestRevisionZeroExists(t *testing.T) {
	f := newFixture(t)

	latest := f.repo.Latest()
	if latest.ID() != 0 {
		t.Fatalf("latest id = %d, want 0", latest.ID())
	}
	if latest.GitCommit() != "" {
		t.Fatalf("revision 0 git commit = %q, want empty", latest.GitCommit())
	}
	root, err := latest.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	entries, err := root.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("revision 0 root entries = %d, want 0", len(entries))
	}
}

func TestRevisionNumberingMatchesCommits(t *testing.T) {
	f := newFixture(t)

	var commits []gitdb.Hash
	commits = append(commits, f.commit(map[string]string{"a.txt": "1"}, 1000, "one"))
	commits = append(commits, f.commit(map[string]string{"a.txt": "2"}, 2000, "two"))
	commits = append(commits, f.commit(map[string]string{"a.txt": "3", "b.txt": "b"}, 3000, "three"))

	if got := f.repo.Latest().ID(); got != len(commits) {
		t.Fatalf("latest id = %d, want %d", got, len(commits))
	}
	for k, want := range commits {
		rev, err := f.repo.ByID(k + 1)
		if err != nil {
			t.Fatalf("ByID(%d): %v", k+1, err)
		}
		if rev.GitCommit() != want {
			t.Fatalf("revision %d commit = %s, want %s", k+1, rev.GitCommit(), want)
		}
		back, err := f.repo.ByGitCommit(want)
		if err != nil {
			t.Fatalf("ByGitCommit: %v", err)
		}
		if back.ID() != k+1 {
			t.Fatalf("ByGitCommit id = %d, want %d", back.ID(), k+1)
		}
	}
}

func TestByIDOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "1"}, 1000, "one")

	for _, id := range []int{-1, 2, 100} {
		if _, err := f.repo.ByID(id); !errors.Is(err, ErrNoSuchRevision) {
			t.Fatalf("ByID(%d): err = %v, want FS_NO_SUCH_REVISION", id, err)
		}
	}
}

func TestByGitCommitUnknown(t *testing.T) {
	f := newFixture(t)
	if _, err := f.repo.ByGitCommit(gitdb.HashBytes([]byte("unknown"))); !errors.Is(err, ErrNoSuchRevision) {
		t.Fatalf("err = %v, want FS_NO_SUCH_REVISION", err)
	}
}

func TestByDateFloor(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "1"}, 1000, "one")
	f.commit(map[string]string{"a.txt": "2"}, 2000, "two")

	if got := f.repo.ByDate(1500).ID(); got != 1 {
		t.Fatalf("ByDate(1500) = r%d, want r1", got)
	}
	if got := f.repo.ByDate(2000).ID(); got != 2 {
		t.Fatalf("ByDate(2000) = r%d, want r2", got)
	}
	// Before any commit: falls back to revision 0.
	if got := f.repo.ByDate(10).ID(); got != 0 {
		t.Fatalf("ByDate(10) = r%d, want r0", got)
	}
}

func TestByDateSkipsOutOfOrderCommitTimes(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "1"}, 5000, "one")
	// Committer clock ran backwards; the revision exists but stays out of
	// the date index.
	f.commit(map[string]string{"a.txt": "2"}, 3000, "two")
	f.commit(map[string]string{"a.txt": "3"}, 6000, "three")

	if got := f.repo.Latest().ID(); got != 3 {
		t.Fatalf("latest = r%d, want r3", got)
	}
	if got := f.repo.ByDate(3000).ID(); got != 0 {
		t.Fatalf("ByDate(3000) = r%d, want r0 (skipped entry must not surface)", got)
	}
	if got := f.repo.ByDate(5500).ID(); got != 1 {
		t.Fatalf("ByDate(5500) = r%d, want r1", got)
	}
	if got := f.repo.ByDate(6000).ID(); got != 3 {
		t.Fatalf("ByDate(6000) = r%d, want r3", got)
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "1"}, 1000, "one")

	before := f.repo.Latest().ID()
	if err := f.repo.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := f.repo.Latest().ID(); got != before {
		t.Fatalf("latest after no-op update = %d, want %d", got, before)
	}
}

func TestReloadFromSideBranch(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "1", "d/b.txt": "b"}, 1000, "one")
	f.commit(map[string]string{"a.txt": "2", "d/b.txt": "b"}, 2000, "two")
	uuid := f.repo.UUID()

	// A second bridge over the same database must parse the persisted side
	// branch instead of rebuilding it, and answer identically.
	reopened, err := NewRepository(f.git, "master", false, nil, nil)
	if err != nil {
		t.Fatalf("NewRepository (reopen): %v", err)
	}
	if got := reopened.Latest().ID(); got != 2 {
		t.Fatalf("reopened latest = r%d, want r2", got)
	}
	if reopened.UUID() != uuid {
		t.Fatalf("uuid changed across reopen: %s vs %s", reopened.UUID(), uuid)
	}
	if got := reopened.LastChange("/a.txt", 2); got != 2 {
		t.Fatalf("reopened LastChange(/a.txt, 2) = %d, want 2", got)
	}
}

func TestLastChangeMonotone(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "1"}, 1000, "one")
	f.commit(map[string]string{"a.txt": "1", "b.txt": "b"}, 2000, "two")
	f.commit(map[string]string{"a.txt": "2", "b.txt": "b"}, 3000, "three")

	if got := f.repo.LastChange("/a.txt", 1); got != 1 {
		t.Fatalf("LastChange(a, 1) = %d, want 1", got)
	}
	if got := f.repo.LastChange("/a.txt", 2); got != 1 {
		t.Fatalf("LastChange(a, 2) = %d, want 1", got)
	}
	if got := f.repo.LastChange("/a.txt", 3); got != 3 {
		t.Fatalf("LastChange(a, 3) = %d, want 3", got)
	}
	if got := f.repo.LastChange("/b.txt", 1); got != MarkNoFile {
		t.Fatalf("LastChange(b, 1) = %d, want MarkNoFile", got)
	}
	if got := f.repo.LastChange("/b.txt", 3); got != 2 {
		t.Fatalf("LastChange(b, 3) = %d, want 2", got)
	}
}

func TestLastChangeDeletionSentinel(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "1", "keep.txt": "k"}, 1000, "one")
	f.commit(map[string]string{"keep.txt": "k"}, 2000, "delete a")

	if got := f.repo.LastChange("/a.txt", 1); got != 1 {
		t.Fatalf("LastChange before delete = %d, want 1", got)
	}
	if got := f.repo.LastChange("/a.txt", 2); got != MarkNoFile {
		t.Fatalf("LastChange after delete = %d, want MarkNoFile", got)
	}
}

func TestUUIDFormat(t *testing.T) {
	f := newFixture(t)
	uuid := f.repo.UUID()
	if len(uuid) != 36 {
		t.Fatalf("uuid = %q, want 36-char UUID", uuid)
	}
	for _, pos := range []int{8, 13, 18, 23} {
		if uuid[pos] != '-' {
			t.Fatalf("uuid = %q, want dash at %d", uuid, pos)
		}
	}
}
