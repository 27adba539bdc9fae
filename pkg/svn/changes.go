package svn

import (
	"sort"
)

// ChangePair holds the old and new node of one changed path; a nil side
// marks an addition or a deletion.
type ChangePair struct {
	Old *Node
	New *Node
}

// collectChanges recursively compares two revision roots, producing
// path → pair for every changed node. With fullRemoved, a deleted
// directory expands to deletes of all its descendants, which is what the
// revision cache persists; without it, the directory delete alone is
// emitted, matching the SVN editor view.
func collectChanges(oldRoot, newRoot *Node, fullRemoved bool) (map[string]ChangePair, error) {
	changes := make(map[string]ChangePair)
	if err := collectDirChanges(changes, oldRoot, newRoot, fullRemoved); err != nil {
		return nil, err
	}
	return changes, nil
}

func collectDirChanges(changes map[string]ChangePair, oldDir, newDir *Node, fullRemoved bool) error {
	oldEntries, err := oldDir.Entries()
	if err != nil {
		return err
	}
	newEntries, err := newDir.Entries()
	if err != nil {
		return err
	}

	for _, name := range unionNames(oldEntries, newEntries) {
		oldNode := oldEntries[name]
		newNode := newEntries[name]
		switch {
		case oldNode == nil:
			if err := collectAdded(changes, newNode); err != nil {
				return err
			}
		case newNode == nil:
			if err := collectRemoved(changes, oldNode, fullRemoved); err != nil {
				return err
			}
		default:
			if err := collectModified(changes, oldNode, newNode, fullRemoved); err != nil {
				return err
			}
		}
	}
	return nil
}

func collectAdded(changes map[string]ChangePair, node *Node) error {
	changes[node.FullPath()] = ChangePair{New: node}
	if !node.IsDir() {
		return nil
	}
	entries, err := node.Entries()
	if err != nil {
		return err
	}
	for _, child := range entries {
		if err := collectAdded(changes, child); err != nil {
			return err
		}
	}
	return nil
}

func collectRemoved(changes map[string]ChangePair, node *Node, fullRemoved bool) error {
	changes[node.FullPath()] = ChangePair{Old: node}
	if !node.IsDir() || !fullRemoved {
		return nil
	}
	entries, err := node.Entries()
	if err != nil {
		return err
	}
	for _, child := range entries {
		if err := collectRemoved(changes, child, fullRemoved); err != nil {
			return err
		}
	}
	return nil
}

func collectModified(changes map[string]ChangePair, oldNode, newNode *Node, fullRemoved bool) error {
	// Kind flip is a replacement: one pair carrying both sides.
	if oldNode.IsDir() != newNode.IsDir() {
		changes[newNode.FullPath()] = ChangePair{Old: oldNode, New: newNode}
		if oldNode.IsDir() && fullRemoved {
			entries, err := oldNode.Entries()
			if err != nil {
				return err
			}
			for _, child := range entries {
				if err := collectRemoved(changes, child, fullRemoved); err != nil {
					return err
				}
			}
		}
		if newNode.IsDir() {
			entries, err := newNode.Entries()
			if err != nil {
				return err
			}
			for _, child := range entries {
				if err := collectAdded(changes, child); err != nil {
					return err
				}
			}
		}
		return nil
	}

	propsChanged, err := nodePropsDiffer(oldNode, newNode)
	if err != nil {
		return err
	}

	if newNode.IsDir() {
		// The subtree's own enumerated changes cover content; the directory
		// itself is emitted only for property changes.
		if propsChanged {
			changes[newNode.FullPath()] = ChangePair{Old: oldNode, New: newNode}
		}
		if oldNode.ObjectHash() != newNode.ObjectHash() || propsChanged {
			return collectDirChanges(changes, oldNode, newNode, fullRemoved)
		}
		return nil
	}

	if oldNode.ObjectHash() != newNode.ObjectHash() || oldNode.Mode() != newNode.Mode() || propsChanged {
		changes[newNode.FullPath()] = ChangePair{Old: oldNode, New: newNode}
	}
	return nil
}

func nodePropsDiffer(oldNode, newNode *Node) (bool, error) {
	oldProps, err := oldNode.Properties(false)
	if err != nil {
		return false, err
	}
	newProps, err := newNode.Properties(false)
	if err != nil {
		return false, err
	}
	if len(oldProps) != len(newProps) {
		return true, nil
	}
	for k, v := range oldProps {
		if newProps[k] != v {
			return true, nil
		}
	}
	return false, nil
}

func unionNames(oldEntries, newEntries map[string]*Node) []string {
	seen := make(map[string]struct{}, len(oldEntries)+len(newEntries))
	for name := range oldEntries {
		seen[name] = struct{}{}
	}
	for name := range newEntries {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
