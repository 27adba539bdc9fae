package svn

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/StarLamp/git-as-svn/pkg/gitdb"
	"github.com/StarLamp/git-as-svn/pkg/props"
	"github.com/StarLamp/git-as-svn/pkg/svnpath"
)

// NodeKind is the SVN view of a tree entry.
type NodeKind int

const (
	KindFile NodeKind = iota
	KindDir
	KindSymlink
)

func (k NodeKind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "file"
	}
}

// linkPrefix is prepended to symlink targets in SVN content streams.
const linkPrefix = "link "

// Node projects one Git tree entry as an SVN node at a fixed revision.
// A node lazily caches its directory listing and blob content; instances
// are not safe for concurrent use, matching the per-request lifecycle.
type Node struct {
	repo     *Repository
	db       *gitdb.Repo
	entry    gitdb.TreeEntry
	fullPath string
	props    []props.Property
	revision int

	rawEntries *gitdb.Tree
	children   map[string]*Node
	content    []byte
	haveData   bool
}

// newRootNode projects a commit's root tree.
func newRootNode(repo *Repository, treeHash gitdb.Hash, revision int) (*Node, error) {
	entry := gitdb.TreeEntry{Name: "", Mode: gitdb.ModeDir, Hash: treeHash}
	own, err := repo.dirFragments(repo.git, treeHash)
	if err != nil {
		return nil, err
	}
	return &Node{
		repo:     repo,
		db:       repo.git,
		entry:    entry,
		fullPath: "",
		props:    own,
		revision: revision,
	}, nil
}

// emptyRoot is the root of the synthetic revision 0.
func emptyRoot(repo *Repository, revision int) *Node {
	return &Node{
		repo:       repo,
		db:         repo.git,
		entry:      gitdb.TreeEntry{Name: "", Mode: gitdb.ModeDir},
		fullPath:   "",
		revision:   revision,
		rawEntries: &gitdb.Tree{},
	}
}

// Name returns the node's basename, "" for the root.
func (n *Node) Name() string { return n.entry.Name }

// FullPath returns the repository-absolute path, "" for the root.
func (n *Node) FullPath() string { return n.fullPath }

// Mode returns the underlying Git file mode.
func (n *Node) Mode() gitdb.FileMode { return n.entry.Mode }

// ObjectHash returns the underlying object hash ("" for the empty root).
func (n *Node) ObjectHash() gitdb.Hash { return n.entry.Hash }

// Kind maps the Git mode to the SVN node kind. Submodules surface as
// directories.
func (n *Node) Kind() NodeKind {
	switch n.entry.Mode {
	case gitdb.ModeDir, gitdb.ModeGitlink:
		return KindDir
	case gitdb.ModeSymlink:
		return KindSymlink
	default:
		return KindFile
	}
}

// IsDir reports whether the node is a directory in the SVN view.
func (n *Node) IsDir() bool { return n.Kind() == KindDir }

func (n *Node) isSymlink() bool { return n.entry.Mode == gitdb.ModeSymlink }

// loadRawEntries resolves the node's directory listing, following gitlink
// entries into linked repositories. An unresolvable gitlink lists empty.
func (n *Node) loadRawEntries() (*gitdb.Tree, error) {
	if n.rawEntries != nil {
		return n.rawEntries, nil
	}
	db, treeHash, err := resolveTreeSource(n.db, n.entry)
	if err != nil {
		return nil, err
	}
	if treeHash == "" {
		n.rawEntries = &gitdb.Tree{}
		return n.rawEntries, nil
	}
	tree, err := db.Store.ReadTree(treeHash)
	if err != nil {
		return nil, fmt.Errorf("load entries %q: %w", n.fullPath, err)
	}
	n.db = db
	n.rawEntries = tree
	return tree, nil
}

// resolveTreeSource maps a directory-like entry to the database and tree
// hash its children load from.
func resolveTreeSource(db *gitdb.Repo, entry gitdb.TreeEntry) (*gitdb.Repo, gitdb.Hash, error) {
	switch entry.Mode {
	case gitdb.ModeDir:
		return db, entry.Hash, nil
	case gitdb.ModeGitlink:
		linked, commit, err := db.ResolveGitlink(entry.Hash)
		if err != nil {
			return nil, "", err
		}
		if linked == nil {
			return db, "", nil
		}
		return linked, commit.Tree, nil
	default:
		return db, "", nil
	}
}

// Entries returns the node's children keyed by name.
func (n *Node) Entries() (map[string]*Node, error) {
	if n.children != nil {
		return n.children, nil
	}
	tree, err := n.loadRawEntries()
	if err != nil {
		return nil, err
	}
	children := make(map[string]*Node, len(tree.Entries))
	for _, e := range tree.Entries {
		child, err := n.newChild(e)
		if err != nil {
			return nil, err
		}
		children[e.Name] = child
	}
	n.children = children
	return children, nil
}

func (n *Node) newChild(e gitdb.TreeEntry) (*Node, error) {
	isDir := e.Mode == gitdb.ModeDir || e.Mode == gitdb.ModeGitlink
	var own []props.Property
	if isDir {
		db, treeHash, err := resolveTreeSource(n.db, e)
		if err != nil {
			return nil, err
		}
		own, err = n.repo.dirFragments(db, treeHash)
		if err != nil {
			return nil, err
		}
	}
	// The child keeps the parent's database; for a gitlink, loadRawEntries
	// switches it to the linked repository on first listing.
	return &Node{
		repo:     n.repo,
		db:       n.db,
		entry:    e,
		fullPath: svnpath.Join(n.fullPath, e.Name),
		props:    props.JoinForChild(n.props, e.Name, isDir, own),
		revision: n.revision,
	}, nil
}

// Entry returns the named child, or nil if absent.
func (n *Node) Entry(name string) (*Node, error) {
	entries, err := n.Entries()
	if err != nil {
		return nil, err
	}
	return entries[name], nil
}

// Properties computes the node's effective SVN property map.
func (n *Node) Properties(includeInternal bool) (map[string]string, error) {
	result := props.ApplyAll(n.props)
	switch n.entry.Mode {
	case gitdb.ModeExecutable:
		result[props.Executable] = "*"
	case gitdb.ModeSymlink:
		result[props.Special] = "*"
	}
	if includeInternal {
		last, err := n.LastChange()
		if err != nil {
			return nil, err
		}
		result[props.EntryUUID] = n.repo.UUID()
		result[props.EntryCommittedRev] = strconv.Itoa(last.ID())
		result[props.EntryCommittedDate] = formatDate(last.Date())
		if author := last.Author(); author != "" {
			result[props.EntryLastAuthor] = author
		}
	}
	return result, nil
}

// rawContent loads the underlying blob without the symlink prefix.
func (n *Node) rawContent() ([]byte, error) {
	if n.haveData {
		return n.content, nil
	}
	if !n.entry.Mode.IsBlob() {
		return nil, Errorf(CodeNotFile, "not a file: %s", n.fullPath)
	}
	blob, err := n.db.Store.ReadBlob(n.entry.Hash)
	if err != nil {
		return nil, fmt.Errorf("content %q: %w", n.fullPath, err)
	}
	n.content = blob.Data
	n.haveData = true
	return n.content, nil
}

// Content returns the SVN view of the node's bytes; symlinks carry the
// "link " prefix.
func (n *Node) Content() ([]byte, error) {
	data, err := n.rawContent()
	if err != nil {
		return nil, err
	}
	if n.isSymlink() {
		out := make([]byte, 0, len(linkPrefix)+len(data))
		out = append(out, linkPrefix...)
		return append(out, data...), nil
	}
	return data, nil
}

// Open returns a content stream cursor.
func (n *Node) Open() (io.Reader, error) {
	data, err := n.Content()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// Size returns the SVN content length; directories report 0.
func (n *Node) Size() (int64, error) {
	if !n.entry.Mode.IsBlob() {
		return 0, nil
	}
	data, err := n.rawContent()
	if err != nil {
		return 0, err
	}
	size := int64(len(data))
	if n.isSymlink() {
		size += int64(len(linkPrefix))
	}
	return size, nil
}

// MD5 returns the hex digest of the SVN content view, memoized per object.
func (n *Node) MD5() (string, error) {
	kind := byte('f')
	if n.isSymlink() {
		kind = 'l'
	}
	return n.repo.objectMD5(kind, n.entry.Hash, n.Content)
}

// LastChange returns the newest revision <= this node's revision in which
// the node's path changed.
func (n *Node) LastChange() (*Revision, error) {
	rev := n.repo.LastChange(n.fullPath, n.revision)
	if rev == MarkNoFile {
		return nil, Errorf(CodeNoSuchRevision, "no last change for %s at revision %d", n.fullPath, n.revision)
	}
	return n.repo.ByID(rev)
}
