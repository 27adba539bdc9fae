package svn

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/StarLamp/git-as-svn/pkg/gitdb"
	"github.com/StarLamp/git-as-svn/pkg/props"
	"github.com/StarLamp/git-as-svn/pkg/svnpath"
)

// Signer signs canonical commit payload bytes, returning an encoded
// signature persisted on the commit.
type Signer func(payload []byte) (string, error)

// DeltaConsumer accumulates the content and target properties of one file
// edit. Content is buffered until SaveFile resolves the file mode, so
// symlink payloads can shed their "link " prefix before the blob is
// written.
type DeltaConsumer struct {
	repo       *Repository
	original   *Node
	data       []byte
	haveData   bool
	properties map[string]string
}

// CreateFile starts a consumer for a newly-added file.
func (r *Repository) CreateFile() *DeltaConsumer {
	return &DeltaConsumer{repo: r, properties: make(map[string]string)}
}

// ModifyFile starts a consumer for an existing node.
func (r *Repository) ModifyFile(node *Node) *DeltaConsumer {
	return &DeltaConsumer{repo: r, original: node, properties: make(map[string]string)}
}

// SetProperties records the SVN property map the client intends for the
// file; the map also decides the resulting Git file mode.
func (d *DeltaConsumer) SetProperties(p map[string]string) {
	d.properties = make(map[string]string, len(p))
	for k, v := range p {
		d.properties[k] = v
	}
}

// Properties returns the intended property map.
func (d *DeltaConsumer) Properties() map[string]string {
	return d.properties
}

// WriteContent replaces the buffered file content.
func (d *DeltaConsumer) WriteContent(data []byte) {
	d.data = append([]byte(nil), data...)
	d.haveData = true
}

// flush writes the buffered content as a blob, returning "" when the edit
// carried no content change.
func (d *DeltaConsumer) flush() (gitdb.Hash, error) {
	if !d.haveData {
		return "", nil
	}
	data := d.data
	if _, special := d.properties[props.Special]; special && bytes.HasPrefix(data, []byte(linkPrefix)) {
		data = data[len(linkPrefix):]
	}
	return d.repo.git.Store.WriteBlob(&gitdb.Blob{Data: data})
}

func (d *DeltaConsumer) originalHash() gitdb.Hash {
	if d.original == nil {
		return ""
	}
	return d.original.ObjectHash()
}

// ---------------------------------------------------------------------------
// Tree update stack
// ---------------------------------------------------------------------------

// treeUpdate stages one directory's entries while the editor drive is
// inside it.
type treeUpdate struct {
	name    string
	entries map[string]gitdb.TreeEntry
}

func newTreeUpdate(name string, tree *gitdb.Tree) *treeUpdate {
	entries := make(map[string]gitdb.TreeEntry, len(tree.Entries))
	for _, e := range tree.Entries {
		entries[e.Name] = e
	}
	return &treeUpdate{name: name, entries: entries}
}

func (tu *treeUpdate) buildTree(store *gitdb.Store) (gitdb.Hash, error) {
	entries := make([]gitdb.TreeEntry, 0, len(tu.entries))
	for _, e := range tu.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return store.WriteTree(&gitdb.Tree{Entries: entries})
}

// ---------------------------------------------------------------------------
// Commit builder
// ---------------------------------------------------------------------------

// CommitBuilder accumulates one SVN editor drive and turns it into a Git
// commit. Operations must arrive in depth-first order matching the editor
// protocol; the builder is single-use and not safe for concurrent calls.
type CommitBuilder struct {
	repo     *Repository
	revision *Revision
	stack    []*treeUpdate
	validate []func(v *propertyValidator) error

	editedPaths []string
	lockTokens  map[string]string
	keepLocks   bool
	signer      Signer
}

// NewCommitBuilder opens a builder rooted at the current latest revision.
func (r *Repository) NewCommitBuilder() (*CommitBuilder, error) {
	latest := r.Latest()
	root, err := latest.Root()
	if err != nil {
		return nil, err
	}
	tree, err := root.loadRawEntries()
	if err != nil {
		return nil, err
	}
	return &CommitBuilder{
		repo:       r,
		revision:   latest,
		stack:      []*treeUpdate{newTreeUpdate("", tree)},
		lockTokens: make(map[string]string),
	}, nil
}

// SetLockTokens supplies the client's lock tokens and keep-locks flag for
// commit-time lock validation.
func (b *CommitBuilder) SetLockTokens(tokens map[string]string, keepLocks bool) {
	b.lockTokens = make(map[string]string, len(tokens))
	for k, v := range tokens {
		b.lockTokens[k] = v
	}
	b.keepLocks = keepLocks
}

// SetSigner installs an optional commit signer.
func (b *CommitBuilder) SetSigner(signer Signer) {
	b.signer = signer
}

func (b *CommitBuilder) current() *treeUpdate {
	return b.stack[len(b.stack)-1]
}

func (b *CommitBuilder) fullPath(name string) string {
	path := ""
	for _, tu := range b.stack {
		path = svnpath.Join(path, tu.name)
	}
	return svnpath.Join(path, name)
}

// CheckUpToDate verifies a path exists at latest and was not changed after
// the client's revision.
func (b *CommitBuilder) CheckUpToDate(path string, rev int) error {
	node, err := b.revision.File(path)
	if err != nil {
		return err
	}
	if node == nil {
		return Errorf(CodeEntryNotFound, "%s", path)
	}
	last, err := node.LastChange()
	if err != nil {
		return err
	}
	if last.ID() > rev {
		return Errorf(CodeNotUpToDate, "working copy is not up-to-date: %s", path)
	}
	return nil
}

// AddDir opens a new directory frame. A source directory seeds the entries
// map, giving SVN copy semantics.
func (b *CommitBuilder) AddDir(name string, sourceDir *Node) error {
	current := b.current()
	if _, exists := current.entries[name]; exists {
		return Errorf(CodeAlreadyExists, "%s", b.fullPath(name))
	}
	tree := &gitdb.Tree{}
	if sourceDir != nil {
		loaded, err := sourceDir.loadRawEntries()
		if err != nil {
			return err
		}
		tree = loaded
	}
	b.editedPaths = append(b.editedPaths, b.fullPath(name))
	b.validate = append(b.validate, func(v *propertyValidator) error {
		return v.openDir(name)
	})
	b.stack = append(b.stack, newTreeUpdate(name, tree))
	return nil
}

// OpenDir descends into an existing directory, removing it from the parent
// frame until CloseDir re-inserts the rebuilt subtree.
func (b *CommitBuilder) OpenDir(name string) error {
	current := b.current()
	entry, ok := current.entries[name]
	if !ok || entry.Mode != gitdb.ModeDir {
		return Errorf(CodeEntryNotFound, "%s", b.fullPath(name))
	}
	delete(current.entries, name)
	tree, err := b.repo.git.Store.ReadTree(entry.Hash)
	if err != nil {
		return fmt.Errorf("open dir %s: %w", b.fullPath(name), err)
	}
	b.validate = append(b.validate, func(v *propertyValidator) error {
		return v.openDir(name)
	})
	b.stack = append(b.stack, newTreeUpdate(name, tree))
	return nil
}

// CheckDirProperties defers an exact-equality assertion on the current
// directory's derived properties.
func (b *CommitBuilder) CheckDirProperties(expected map[string]string) {
	expected = copyProps(expected)
	b.validate = append(b.validate, func(v *propertyValidator) error {
		return v.checkProperties("", expected)
	})
}

// CloseDir pops the current frame, serializes its tree and hangs it on the
// parent. Empty directories are not representable.
func (b *CommitBuilder) CloseDir() error {
	if len(b.stack) < 2 {
		return fmt.Errorf("close dir: no open directory")
	}
	last := b.current()
	b.stack = b.stack[:len(b.stack)-1]
	current := b.current()
	fullPath := b.fullPath(last.name)
	if len(last.entries) == 0 {
		return Errorf(CodeCancelled, "empty directories are not supported: %s", fullPath)
	}
	subtree, err := last.buildTree(b.repo.git.Store)
	if err != nil {
		return fmt.Errorf("close dir %s: %w", fullPath, err)
	}
	log.WithFields(log.Fields{"tree": subtree, "dir": fullPath}).Debug("created subtree")
	if _, exists := current.entries[last.name]; exists {
		return Errorf(CodeAlreadyExists, "%s", fullPath)
	}
	current.entries[last.name] = gitdb.TreeEntry{Name: last.name, Mode: gitdb.ModeDir, Hash: subtree}
	b.validate = append(b.validate, func(v *propertyValidator) error {
		v.closeDir()
		return nil
	})
	return nil
}

// SaveFile records a file entry from a delta consumer. With modify the
// name must already exist, without it the name must be absent.
func (b *CommitBuilder) SaveFile(name string, dc *DeltaConsumer, modify bool) error {
	current := b.current()
	_, exists := current.entries[name]
	if modify != exists {
		return Errorf(CodeNotUpToDate, "working copy is not up-to-date: %s", b.fullPath(name))
	}
	objectHash, err := dc.flush()
	if err != nil {
		return err
	}
	if objectHash == "" {
		// Content not updated.
		if dc.originalHash() == "" {
			return Errorf(CodeIncompleteData, "added file without content: %s", b.fullPath(name))
		}
		return nil
	}
	current.entries[name] = gitdb.TreeEntry{
		Name: name,
		Mode: fileModeFor(dc.Properties()),
		Hash: objectHash,
	}
	b.editedPaths = append(b.editedPaths, b.fullPath(name))
	expected := copyProps(dc.Properties())
	b.validate = append(b.validate, func(v *propertyValidator) error {
		return v.checkProperties(name, expected)
	})
	return nil
}

func fileModeFor(p map[string]string) gitdb.FileMode {
	if _, ok := p[props.Special]; ok {
		return gitdb.ModeSymlink
	}
	if _, ok := p[props.Executable]; ok {
		return gitdb.ModeExecutable
	}
	return gitdb.ModeFile
}

// Delete removes an entry from the current frame.
func (b *CommitBuilder) Delete(name string) error {
	current := b.current()
	if _, ok := current.entries[name]; !ok {
		return Errorf(CodeEntryNotFound, "%s", b.fullPath(name))
	}
	delete(current.entries, name)
	b.editedPaths = append(b.editedPaths, b.fullPath(name))
	return nil
}

// Commit assembles the root tree, synthesizes the commit, validates locks
// and properties and pushes. A nil revision with nil error signals a
// non-fast-forward rejection: the caller re-reads latest and restarts.
func (b *CommitBuilder) Commit(user User, message string) (*Revision, error) {
	b.repo.pushMu.Lock()
	defer b.repo.pushMu.Unlock()

	if len(b.stack) != 1 {
		return nil, fmt.Errorf("commit: %d directories left open", len(b.stack)-1)
	}
	store := b.repo.git.Store

	consumed, err := b.repo.locks.ValidateForCommit(b.editedPaths, b.lockTokens)
	if err != nil {
		return nil, err
	}

	treeHash, err := b.current().buildTree(store)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	log.WithField("tree", treeHash).Debug("created root tree")

	ident := gitdb.Ident{Name: user.RealName, Email: user.Email, When: time.Now().UnixMilli()}
	commit := &gitdb.Commit{
		Tree:      treeHash,
		Author:    ident,
		Committer: ident,
		Message:   message,
	}
	if parent := b.revision.GitCommit(); parent != "" {
		commit.Parents = []gitdb.Hash{parent}
	}
	if b.signer != nil {
		signature, err := b.signer(gitdb.CommitSigningPayload(commit))
		if err != nil {
			return nil, fmt.Errorf("commit: sign: %w", err)
		}
		commit.Signature = signature
	}
	commitHash, err := store.WriteCommit(commit)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	log.Debug("validate properties")
	if err := b.validateProperties(treeHash); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"commit": commitHash, "ref": b.repo.branchRef}).Info("pushing commit")
	pushed, err := b.repo.pusher.Push(b.repo.git, commitHash, b.repo.branchRef, b.revision.GitCommit())
	if err != nil {
		return nil, err
	}
	if !pushed {
		log.Info("non fast forward push rejected")
		return nil, nil
	}

	if err := b.repo.Update(); err != nil {
		return nil, err
	}
	if err := b.repo.locks.ReleaseConsumed(consumed, b.keepLocks); err != nil {
		return nil, err
	}
	return b.repo.ByGitCommit(commitHash)
}

func (b *CommitBuilder) validateProperties(treeHash gitdb.Hash) error {
	root, err := newRootNode(b.repo, treeHash, b.revision.ID())
	if err != nil {
		return err
	}
	validator := &propertyValidator{stack: []*Node{root}}
	for _, action := range b.validate {
		if err := action(validator); err != nil {
			return err
		}
	}
	return nil
}

func copyProps(p map[string]string) map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Property validator
// ---------------------------------------------------------------------------

// propertyValidator replays the recorded editor walk over the prospective
// commit's tree view and requires the client's property maps to equal the
// derived ones exactly.
type propertyValidator struct {
	stack []*Node
}

func (v *propertyValidator) top() *Node {
	return v.stack[len(v.stack)-1]
}

func (v *propertyValidator) openDir(name string) error {
	node, err := v.top().Entry(name)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("invalid state: can't find %q in created commit", name)
	}
	v.stack = append(v.stack, node)
	return nil
}

func (v *propertyValidator) closeDir() {
	v.stack = v.stack[:len(v.stack)-1]
}

// checkProperties compares the client's property map against the derived
// one for the named child ("" checks the current directory itself).
func (v *propertyValidator) checkProperties(name string, actual map[string]string) error {
	node := v.top()
	if name != "" {
		child, err := node.Entry(name)
		if err != nil {
			return err
		}
		if child == nil {
			return fmt.Errorf("invalid state: can't find %q in created commit", name)
		}
		node = child
	}
	expected, err := node.Properties(false)
	if err != nil {
		return err
	}
	if propsEqual(expected, actual) {
		return nil
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "Can't commit entry: %s\nInvalid svn properties found.\n", node.FullPath())
	msg.WriteString("Expected:\n")
	writePropLines(&msg, expected)
	msg.WriteString("Actual:\n")
	writePropLines(&msg, actual)
	msg.WriteString("\n----------------\nSubversion properties must be consistent with Git config files:\n")
	for _, configFile := range props.Registered() {
		fmt.Fprintf(&msg, "  %s\n", configFile)
	}
	return Errorf(CodeReposHookFailure, "%s", msg.String())
}

func propsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if other, ok := b[k]; !ok || other != v {
			return false
		}
	}
	return true
}

func writePropLines(msg *strings.Builder, p map[string]string) {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(msg, "  %s = %q\n", k, p[k])
	}
}
