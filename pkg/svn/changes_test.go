package svn

import (
	"testing"
)

func TestChangesForAddedFiles(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "1", "d/b.txt": "b"}, 1000, "add")

	rev, err := f.repo.ByID(1)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	changes, err := rev.Changes()
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}

	for _, path := range []string{"/a.txt", "/d", "/d/b.txt"} {
		pair, ok := changes[path]
		if !ok {
			t.Fatalf("missing change for %s: %v", path, keysOf(changes))
		}
		if pair.Old != nil || pair.New == nil {
			t.Fatalf("%s: want pure addition, got old=%v new=%v", path, pair.Old, pair.New)
		}
	}
}

func TestChangesForModification(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"a.txt": "1", "b.txt": "same"}, 1000, "one")
	f.commit(map[string]string{"a.txt": "2", "b.txt": "same"}, 2000, "two")

	rev, err := f.repo.ByID(2)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	changes, err := rev.Changes()
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("changes = %v, want only /a.txt", keysOf(changes))
	}
	pair := changes["/a.txt"]
	if pair.Old == nil || pair.New == nil {
		t.Fatalf("/a.txt: want modification, got old=%v new=%v", pair.Old, pair.New)
	}
}

func TestDeletedDirectoryExpandsInCache(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"d/a.txt": "a", "d/sub/b.txt": "b", "keep.txt": "k"}, 1000, "one")
	f.commit(map[string]string{"keep.txt": "k"}, 2000, "drop d")

	// The last-change index is fed from the cache's fully-expanded change
	// set, so every descendant carries the deletion sentinel.
	for _, path := range []string{"/d", "/d/a.txt", "/d/sub", "/d/sub/b.txt"} {
		if got := f.repo.LastChange(path, 2); got != MarkNoFile {
			t.Fatalf("LastChange(%s, 2) = %d, want MarkNoFile", path, got)
		}
		if got := f.repo.LastChange(path, 1); got != 1 {
			t.Fatalf("LastChange(%s, 1) = %d, want 1", path, got)
		}
	}

	// The editor-facing change set reports the directory delete alone.
	rev, err := f.repo.ByID(2)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	changes, err := rev.Changes()
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	if _, ok := changes["/d"]; !ok {
		t.Fatalf("changes = %v, want /d delete", keysOf(changes))
	}
	if _, ok := changes["/d/sub/b.txt"]; ok {
		t.Fatalf("changes = %v, descendant deletes must not surface without expansion", keysOf(changes))
	}
}

func TestUnchangedSubtreeProducesNoChanges(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"d/a.txt": "a", "other.txt": "1"}, 1000, "one")
	f.commit(map[string]string{"d/a.txt": "a", "other.txt": "2"}, 2000, "two")

	rev, err := f.repo.ByID(2)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	changes, err := rev.Changes()
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	if _, ok := changes["/d/a.txt"]; ok {
		t.Fatalf("changes = %v, unchanged subtree leaked", keysOf(changes))
	}
	if _, ok := changes["/d"]; ok {
		t.Fatalf("changes = %v, unchanged dir leaked", keysOf(changes))
	}
}

func TestDirectoryPropertyOnlyChange(t *testing.T) {
	f := newFixture(t)
	f.commit(map[string]string{"d/a.txt": "a", ".gitignore": "*.log\n"}, 1000, "one")
	// Changing the root .gitignore changes every directory's inherited
	// properties; /d surfaces as a property-only directory change.
	f.commit(map[string]string{"d/a.txt": "a", ".gitignore": "*.tmp\n"}, 2000, "two")

	rev, err := f.repo.ByID(2)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	changes, err := rev.Changes()
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	if _, ok := changes["/.gitignore"]; !ok {
		t.Fatalf("changes = %v, want /.gitignore", keysOf(changes))
	}
	if _, ok := changes["/d"]; !ok {
		t.Fatalf("changes = %v, want property-only /d entry", keysOf(changes))
	}
	pair := changes["/d"]
	if pair.Old == nil || pair.New == nil {
		t.Fatalf("/d: want both sides, got old=%v new=%v", pair.Old, pair.New)
	}
}

func keysOf(changes map[string]ChangePair) []string {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	return keys
}
