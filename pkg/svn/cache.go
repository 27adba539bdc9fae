package svn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/StarLamp/git-as-svn/pkg/gitdb"
)

// Side-branch schema version. Bump when the cache layout changes.
const cacheSchema = 1

// Pinned entry names inside every cache commit's tree.
const (
	entryCommitRef  = "commit.ref"
	entryChangeJSON = "change.json"
	entryUUID       = "uuid"
)

// SideBranchRef returns the cache ref name for an exported branch.
func SideBranchRef(branch string) string {
	return fmt.Sprintf("refs/git-as-svn/v%d/%s", cacheSchema, branch)
}

// cacheIdent is the fixed identity on every cache commit; the timestamp is
// taken from the mirrored user commit.
func cacheIdent(when int64) gitdb.Ident {
	return gitdb.Ident{Name: "git-as-svn", Email: "git-as-svn@invalid", When: when}
}

// CacheChange is the persisted old/new pair for one changed path.
type CacheChange struct {
	OldBlob gitdb.Hash
	NewBlob gitdb.Hash
	OldMode gitdb.FileMode
	NewMode gitdb.FileMode
}

// CacheRevision is the persisted form of a bridge revision. The maps keep
// lexicographic key order so serialization is byte-identical for equal
// content and Git deduplicates unchanged layout branches.
type CacheRevision struct {
	RevisionID int
	GitCommit  gitdb.Hash // "" for the synthetic revision 0
	Renames    *treemap.Map
	FileChange *treemap.Map
	Branches   *treemap.Map
}

// NewCacheRevision builds a CacheRevision from plain maps.
func NewCacheRevision(revisionID int, gitCommit gitdb.Hash, renames map[string]string, fileChange map[string]CacheChange) *CacheRevision {
	c := emptyCacheRevision()
	c.RevisionID = revisionID
	c.GitCommit = gitCommit
	for k, v := range renames {
		c.Renames.Put(k, v)
	}
	for k, v := range fileChange {
		c.FileChange.Put(k, v)
	}
	return c
}

func emptyCacheRevision() *CacheRevision {
	return &CacheRevision{
		Renames:    treemap.NewWithStringComparator(),
		FileChange: treemap.NewWithStringComparator(),
		Branches:   treemap.NewWithStringComparator(),
	}
}

// RenameMap copies the renames into a plain map.
func (c *CacheRevision) RenameMap() map[string]string {
	result := make(map[string]string, c.Renames.Size())
	c.Renames.Each(func(key, value interface{}) {
		result[key.(string)] = value.(string)
	})
	return result
}

// ChangedPaths returns the changed paths in lexicographic order with a flag
// marking deletions (no new blob and no new directory mode).
func (c *CacheRevision) ChangedPaths() []ChangedPath {
	result := make([]ChangedPath, 0, c.FileChange.Size())
	c.FileChange.Each(func(key, value interface{}) {
		change := value.(CacheChange)
		result = append(result, ChangedPath{
			Path:    key.(string),
			Deleted: change.NewBlob == "" && change.NewMode == "",
		})
	})
	return result
}

// ChangedPath is one entry of a revision's change set.
type ChangedPath struct {
	Path    string
	Deleted bool
}

// MarshalCacheRevision produces the canonical JSON form: object keys in
// lexicographic order at every level, no insignificant whitespace.
func MarshalCacheRevision(c *CacheRevision) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString(`"branches":`)
	writeOrderedStringMap(&buf, c.Branches, func(v interface{}) string {
		return jsonString(string(v.(gitdb.Hash)))
	})

	buf.WriteString(`,"fileChange":`)
	writeOrderedStringMap(&buf, c.FileChange, func(v interface{}) string {
		return marshalCacheChange(v.(CacheChange))
	})

	buf.WriteString(`,"gitCommit":`)
	if c.GitCommit == "" {
		buf.WriteString("null")
	} else {
		buf.WriteString(jsonString(string(c.GitCommit)))
	}

	buf.WriteString(`,"renames":`)
	writeOrderedStringMap(&buf, c.Renames, func(v interface{}) string {
		return jsonString(v.(string))
	})

	fmt.Fprintf(&buf, `,"revision":%d`, c.RevisionID)
	buf.WriteByte('}')
	return buf.Bytes()
}

func marshalCacheChange(ch CacheChange) string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	field := func(name, value string) {
		if value == "" {
			return
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&buf, "%s:%s", jsonString(name), jsonString(value))
	}
	field("newBlob", string(ch.NewBlob))
	field("newMode", string(ch.NewMode))
	field("oldBlob", string(ch.OldBlob))
	field("oldMode", string(ch.OldMode))
	buf.WriteByte('}')
	return buf.String()
}

func writeOrderedStringMap(buf *bytes.Buffer, m *treemap.Map, encode func(interface{}) string) {
	buf.WriteByte('{')
	first := true
	m.Each(func(key, value interface{}) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(buf, "%s:%s", jsonString(key.(string)), encode(value))
	})
	buf.WriteByte('}')
}

func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// cacheRevisionJSON is the wire shape used on the read side.
type cacheRevisionJSON struct {
	Branches   map[string]string          `json:"branches"`
	FileChange map[string]cacheChangeJSON `json:"fileChange"`
	GitCommit  *string                    `json:"gitCommit"`
	Renames    map[string]string          `json:"renames"`
	Revision   int                        `json:"revision"`
}

type cacheChangeJSON struct {
	NewBlob string `json:"newBlob"`
	NewMode string `json:"newMode"`
	OldBlob string `json:"oldBlob"`
	OldMode string `json:"oldMode"`
}

// UnmarshalCacheRevision parses a change.json blob.
func UnmarshalCacheRevision(data []byte) (*CacheRevision, error) {
	var raw cacheRevisionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal cache revision: %w", err)
	}
	c := emptyCacheRevision()
	c.RevisionID = raw.Revision
	if raw.GitCommit != nil {
		c.GitCommit = gitdb.Hash(*raw.GitCommit)
	}
	for k, v := range raw.Renames {
		c.Renames.Put(k, v)
	}
	for k, v := range raw.Branches {
		c.Branches.Put(k, gitdb.Hash(v))
	}
	for k, v := range raw.FileChange {
		c.FileChange.Put(k, CacheChange{
			OldBlob: gitdb.Hash(v.OldBlob),
			NewBlob: gitdb.Hash(v.NewBlob),
			OldMode: gitdb.FileMode(v.OldMode),
			NewMode: gitdb.FileMode(v.NewMode),
		})
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Side-branch commit construction and parsing
// ---------------------------------------------------------------------------

// createCacheCommit writes the cache commit mirroring one user commit.
// parent is the previous cache commit ("" only for revision 0); the uuid
// entry is carried over from the parent's tree.
func createCacheCommit(store *gitdb.Store, parent gitdb.Hash, cacheRev *CacheRevision, commitTime int64) (gitdb.Hash, error) {
	changeBlob, err := store.WriteBlob(&gitdb.Blob{Data: MarshalCacheRevision(cacheRev)})
	if err != nil {
		return "", fmt.Errorf("cache commit: %w", err)
	}
	refBlob, err := store.WriteBlob(&gitdb.Blob{Data: []byte(cacheRev.GitCommit)})
	if err != nil {
		return "", fmt.Errorf("cache commit: %w", err)
	}

	entries := []gitdb.TreeEntry{
		{Name: entryChangeJSON, Mode: gitdb.ModeFile, Hash: changeBlob},
		{Name: entryCommitRef, Mode: gitdb.ModeFile, Hash: refBlob},
	}

	uuidHash, err := uuidEntryOf(store, parent)
	if err != nil {
		return "", err
	}
	if uuidHash != "" {
		entries = append(entries, gitdb.TreeEntry{Name: entryUUID, Mode: gitdb.ModeFile, Hash: uuidHash})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	treeHash, err := store.WriteTree(&gitdb.Tree{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("cache commit: %w", err)
	}

	commit := &gitdb.Commit{
		Tree:      treeHash,
		Author:    cacheIdent(commitTime),
		Committer: cacheIdent(commitTime),
		Message:   fmt.Sprintf("revision %d", cacheRev.RevisionID),
	}
	if parent != "" {
		commit.Parents = []gitdb.Hash{parent}
	}
	return store.WriteCommit(commit)
}

// createFirstCacheCommit synthesizes revision 0: no user commit, an empty
// change set and the stable repository-id blob.
func createFirstCacheCommit(store *gitdb.Store, repositoryID string) (gitdb.Hash, error) {
	cacheRev := emptyCacheRevision()
	changeBlob, err := store.WriteBlob(&gitdb.Blob{Data: MarshalCacheRevision(cacheRev)})
	if err != nil {
		return "", fmt.Errorf("first cache commit: %w", err)
	}
	refBlob, err := store.WriteBlob(&gitdb.Blob{Data: nil})
	if err != nil {
		return "", fmt.Errorf("first cache commit: %w", err)
	}
	uuidBlob, err := store.WriteBlob(&gitdb.Blob{Data: []byte(repositoryID)})
	if err != nil {
		return "", fmt.Errorf("first cache commit: %w", err)
	}

	entries := []gitdb.TreeEntry{
		{Name: entryChangeJSON, Mode: gitdb.ModeFile, Hash: changeBlob},
		{Name: entryCommitRef, Mode: gitdb.ModeFile, Hash: refBlob},
		{Name: entryUUID, Mode: gitdb.ModeFile, Hash: uuidBlob},
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	treeHash, err := store.WriteTree(&gitdb.Tree{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("first cache commit: %w", err)
	}
	return store.WriteCommit(&gitdb.Commit{
		Tree:      treeHash,
		Author:    cacheIdent(0),
		Committer: cacheIdent(0),
		Message:   "revision 0",
	})
}

func uuidEntryOf(store *gitdb.Store, cacheCommit gitdb.Hash) (gitdb.Hash, error) {
	if cacheCommit == "" {
		return "", nil
	}
	commit, err := store.ReadCommit(cacheCommit)
	if err != nil {
		return "", fmt.Errorf("cache commit uuid: %w", err)
	}
	tree, err := store.ReadTree(commit.Tree)
	if err != nil {
		return "", fmt.Errorf("cache commit uuid: %w", err)
	}
	if entry, ok := tree.Lookup(entryUUID); ok {
		return entry.Hash, nil
	}
	return "", nil
}

// loadCacheRevision parses the change.json blob of one cache commit.
func loadCacheRevision(store *gitdb.Store, cacheCommit gitdb.Hash) (*CacheRevision, error) {
	commit, err := store.ReadCommit(cacheCommit)
	if err != nil {
		return nil, fmt.Errorf("load cache revision %s: %w", cacheCommit, err)
	}
	tree, err := store.ReadTree(commit.Tree)
	if err != nil {
		return nil, fmt.Errorf("load cache revision %s: %w", cacheCommit, err)
	}
	entry, ok := tree.Lookup(entryChangeJSON)
	if !ok {
		return nil, fmt.Errorf("load cache revision %s: missing %s", cacheCommit, entryChangeJSON)
	}
	blob, err := store.ReadBlob(entry.Hash)
	if err != nil {
		return nil, fmt.Errorf("load cache revision %s: %w", cacheCommit, err)
	}
	return UnmarshalCacheRevision(blob.Data)
}

// loadRepositoryID reads the uuid blob written at revision 0.
func loadRepositoryID(store *gitdb.Store, firstCacheCommit gitdb.Hash) (string, error) {
	commit, err := store.ReadCommit(firstCacheCommit)
	if err != nil {
		return "", fmt.Errorf("load repository id: %w", err)
	}
	tree, err := store.ReadTree(commit.Tree)
	if err != nil {
		return "", fmt.Errorf("load repository id: %w", err)
	}
	entry, ok := tree.Lookup(entryUUID)
	if !ok {
		return "", fmt.Errorf("load repository id: missing %s entry", entryUUID)
	}
	blob, err := store.ReadBlob(entry.Hash)
	if err != nil {
		return "", fmt.Errorf("load repository id: %w", err)
	}
	return string(blob.Data), nil
}
