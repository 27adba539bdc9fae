package gitdb

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// Tree
// ---------------------------------------------------------------------------

// MarshalTree serializes a Tree. Entries are sorted by Name for
// deterministic output. Each entry is one line:
//
//	mode hash name
//
// where mode is a Git-compatible mode string (e.g. 40000, 100644, 120000).
// Name comes last so entry names may contain spaces.
func MarshalTree(t *Tree) []byte {
	sorted := make([]TreeEntry, len(t.Entries))
	copy(sorted, t.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		fmt.Fprintf(&buf, "%s %s %s\n", modeOrDefault(e.Mode), e.Hash, e.Name)
	}
	return buf.Bytes()
}

// UnmarshalTree parses a Tree from its serialized form.
func UnmarshalTree(data []byte) (*Tree, error) {
	t := &Tree{}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return t, nil
	}
	for _, line := range strings.Split(text, "\n") {
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		mode, err := parseMode(parts[0])
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		t.Entries = append(t.Entries, TreeEntry{
			Name: parts[2],
			Mode: mode,
			Hash: Hash(parts[1]),
		})
	}
	return t, nil
}

func modeOrDefault(m FileMode) FileMode {
	if strings.TrimSpace(string(m)) == "" {
		return ModeFile
	}
	return m
}

func parseMode(mode string) (FileMode, error) {
	switch FileMode(mode) {
	case ModeDir, ModeFile, ModeExecutable, ModeSymlink, ModeGitlink:
		return FileMode(mode), nil
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// Commit
// ---------------------------------------------------------------------------

// MarshalCommit serializes a Commit:
//
//	tree H
//	parent H     (zero or more)
//	author NAME <EMAIL> MILLIS
//	committer NAME <EMAIL> MILLIS
//	signature S  (optional)
//
//	message
func MarshalCommit(c *Commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", string(c.Tree))
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", string(p))
	}
	fmt.Fprintf(&buf, "author %s\n", formatIdent(c.Author))
	fmt.Fprintf(&buf, "committer %s\n", formatIdent(c.Committer))
	if strings.TrimSpace(c.Signature) != "" {
		fmt.Fprintf(&buf, "signature %s\n", c.Signature)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a Commit from its serialized form.
func UnmarshalCommit(data []byte) (*Commit, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &Commit{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.Tree = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			ident, err := parseIdent(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w", err)
			}
			c.Author = ident
		case "committer":
			ident, err := parseIdent(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w", err)
			}
			c.Committer = ident
		case "signature":
			c.Signature = val
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	return c, nil
}

// CommitSigningPayload returns the canonical bytes that are signed for a
// commit. The payload intentionally excludes the signature field itself.
func CommitSigningPayload(c *Commit) []byte {
	if c == nil {
		return nil
	}
	copyCommit := *c
	copyCommit.Signature = ""
	return MarshalCommit(&copyCommit)
}

func formatIdent(id Ident) string {
	return fmt.Sprintf("%s <%s> %d", id.Name, id.Email, id.When)
}

func parseIdent(s string) (Ident, error) {
	open := strings.LastIndex(s, "<")
	end := strings.LastIndex(s, ">")
	if open < 0 || end < open {
		return Ident{}, fmt.Errorf("malformed ident %q", s)
	}
	when, err := strconv.ParseInt(strings.TrimSpace(s[end+1:]), 10, 64)
	if err != nil {
		return Ident{}, fmt.Errorf("malformed ident timestamp %q: %w", s, err)
	}
	return Ident{
		Name:  strings.TrimSpace(s[:open]),
		Email: s[open+1 : end],
		When:  when,
	}, nil
}
