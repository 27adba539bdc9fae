package svn

import (
	"fmt"
	"sort"

	difflib "github.com/ianbruene/go-difflib/difflib"

	"github.com/StarLamp/git-as-svn/pkg/gitdb"
	"github.com/StarLamp/git-as-svn/pkg/svnpath"
)

// renameThreshold is the minimum similarity score for a deleted/added file
// pair to count as a rename.
const renameThreshold = 0.6

// collectRenames matches deleted paths against added paths between two
// roots, returning newPath → oldPath for pairs scoring at or above the
// threshold. Detection runs only when both trees live in the same object
// database.
func collectRenames(oldRoot, newRoot *Node, enabled bool) (map[string]string, error) {
	if !enabled || oldRoot == nil || newRoot == nil || oldRoot.db != newRoot.db {
		return map[string]string{}, nil
	}
	store := newRoot.db.Store

	oldFiles := make(map[string]gitdb.TreeEntry)
	if err := flattenBlobs(store, oldRoot.ObjectHash(), "", oldFiles); err != nil {
		return nil, err
	}
	newFiles := make(map[string]gitdb.TreeEntry)
	if err := flattenBlobs(store, newRoot.ObjectHash(), "", newFiles); err != nil {
		return nil, err
	}

	var deleted, added []string
	for p := range oldFiles {
		if _, ok := newFiles[p]; !ok {
			deleted = append(deleted, p)
		}
	}
	for p := range newFiles {
		if _, ok := oldFiles[p]; !ok {
			added = append(added, p)
		}
	}
	if len(deleted) == 0 || len(added) == 0 {
		return map[string]string{}, nil
	}
	sort.Strings(deleted)
	sort.Strings(added)

	result := make(map[string]string)
	used := make(map[string]bool, len(deleted))
	for _, newPath := range added {
		bestScore := 0.0
		bestPath := ""
		for _, oldPath := range deleted {
			if used[oldPath] {
				continue
			}
			score, err := similarity(store, oldFiles[oldPath], newFiles[newPath])
			if err != nil {
				return nil, err
			}
			if score > bestScore {
				bestScore = score
				bestPath = oldPath
			}
		}
		if bestPath != "" && bestScore >= renameThreshold {
			used[bestPath] = true
			result[newPath] = bestPath
		}
	}
	return result, nil
}

// similarity scores two blobs in [0,1]. Identical objects short-circuit to
// 1; otherwise the score is a line-based sequence-match ratio.
func similarity(store *gitdb.Store, oldEntry, newEntry gitdb.TreeEntry) (float64, error) {
	if oldEntry.Hash == newEntry.Hash {
		return 1.0, nil
	}
	oldBlob, err := store.ReadBlob(oldEntry.Hash)
	if err != nil {
		return 0, fmt.Errorf("rename similarity: %w", err)
	}
	newBlob, err := store.ReadBlob(newEntry.Hash)
	if err != nil {
		return 0, fmt.Errorf("rename similarity: %w", err)
	}
	matcher := difflib.NewMatcher(
		difflib.SplitLines(string(oldBlob.Data)),
		difflib.SplitLines(string(newBlob.Data)),
	)
	return matcher.Ratio(), nil
}

// flattenBlobs walks a tree collecting blob entries by full path. Gitlink
// entries are opaque and skipped.
func flattenBlobs(store *gitdb.Store, treeHash gitdb.Hash, prefix string, out map[string]gitdb.TreeEntry) error {
	if treeHash == "" {
		return nil
	}
	tree, err := store.ReadTree(treeHash)
	if err != nil {
		return fmt.Errorf("flatten tree %s: %w", treeHash, err)
	}
	for _, e := range tree.Entries {
		fullPath := svnpath.Join(prefix, e.Name)
		switch {
		case e.Mode == gitdb.ModeDir:
			if err := flattenBlobs(store, e.Hash, fullPath, out); err != nil {
				return err
			}
		case e.Mode.IsBlob():
			out[fullPath] = e
		}
	}
	return nil
}
