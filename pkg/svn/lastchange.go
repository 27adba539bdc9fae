package svn

import (
	cmap "github.com/orcaman/concurrent-map"
)

// MarkNoFile is the LastChange result for a path absent at the requested
// revision. It doubles as the in-index deletion sentinel.
const MarkNoFile = -1

// lastChangeIndex records, per path, the ordered revisions in which the
// path changed, with MarkNoFile appended after a deleting revision.
// Appends are copy-on-write so a concurrent reader sees either the pre- or
// post-append list, never a torn one.
type lastChangeIndex struct {
	updates cmap.ConcurrentMap
}

func newLastChangeIndex() *lastChangeIndex {
	return &lastChangeIndex{updates: cmap.New()}
}

func (idx *lastChangeIndex) append(path string, revs ...int) {
	idx.updates.Upsert(path, revs, func(exist bool, valueInMap interface{}, newValue interface{}) interface{} {
		add := newValue.([]int)
		if !exist {
			list := make([]int, len(add))
			copy(list, add)
			return list
		}
		old := valueInMap.([]int)
		list := make([]int, 0, len(old)+len(add))
		list = append(list, old...)
		list = append(list, add...)
		return list
	})
}

// lastChange returns the largest recorded revision <= beforeRevision for
// path, or MarkNoFile if the path was absent at that revision.
func (idx *lastChangeIndex) lastChange(path string, beforeRevision int) int {
	value, ok := idx.updates.Get(path)
	if !ok {
		return MarkNoFile
	}
	revs := value.([]int)
	prev := 0
	for i := len(revs) - 1; i >= 0; i-- {
		rev := revs[i]
		if rev >= 0 && rev <= beforeRevision {
			if prev == MarkNoFile {
				return MarkNoFile
			}
			return rev
		}
		prev = rev
	}
	return MarkNoFile
}
