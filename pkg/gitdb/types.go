package gitdb

// Hash is a 64-character hex-encoded SHA-256 digest.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
)

// FileMode is a Git canonical mode string for a tree entry.
type FileMode string

const (
	ModeDir        FileMode = "40000"
	ModeFile       FileMode = "100644"
	ModeExecutable FileMode = "100755"
	ModeSymlink    FileMode = "120000"
	ModeGitlink    FileMode = "160000"
)

// IsBlob reports whether the mode names blob content (regular file,
// executable or symlink).
func (m FileMode) IsBlob() bool {
	return m == ModeFile || m == ModeExecutable || m == ModeSymlink
}

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name string
	Mode FileMode
	Hash Hash
}

// Tree holds a list of tree entries sorted by Name.
type Tree struct {
	Entries []TreeEntry
}

// Lookup returns the entry with the given name.
func (t *Tree) Lookup(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// Ident is a commit author or committer identity.
type Ident struct {
	Name  string
	Email string
	// When is the identity timestamp in milliseconds since the epoch.
	When int64
}

// Commit points at a tree with metadata. Timestamps are milliseconds.
type Commit struct {
	Tree      Hash
	Parents   []Hash
	Author    Ident
	Committer Ident
	Signature string
	Message   string
}

// FirstParent returns the first parent hash, or "" for a root commit.
func (c *Commit) FirstParent() Hash {
	if len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[0]
}
