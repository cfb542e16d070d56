// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds a single entry name in bytes.
const MaxNameLength = 255

// Node is one entry of an archive's directory tree: either a directory with
// children or a file leaf pointing at its entry header.
type Node struct {
	Name     string
	Children []*Node // sorted by Name; nil for files
	Offset   uint64  // offset of the file's entry header
	Size     uint64  // uncompressed size, recorded from version 2

	dir    bool
	source string // file system path, pack time only
}

// NewDirNode returns an empty directory node.
func NewDirNode(name string) *Node {
	return &Node{Name: name, dir: true}
}

// IsDir reports whether n is a directory.
func (n *Node) IsDir() bool { return n.dir }

// child returns the direct child with the given name.
func (n *Node) child(name string) *Node {
	i := sort.Search(len(n.Children), func(i int) bool { return n.Children[i].Name >= name })
	if i < len(n.Children) && n.Children[i].Name == name {
		return n.Children[i]
	}
	return nil
}

// addChild inserts c keeping Children sorted. The name must be free.
func (n *Node) addChild(c *Node) {
	i := sort.Search(len(n.Children), func(i int) bool { return n.Children[i].Name >= c.Name })
	n.Children = append(n.Children, nil)
	copy(n.Children[i+1:], n.Children[i:])
	n.Children[i] = c
}

// Lookup resolves a slash-separated logical path below n. The empty path
// and "." resolve to n itself.
func (n *Node) Lookup(logical string) (*Node, bool) {
	cur := n
	for _, part := range splitLogical(logical) {
		if !cur.dir {
			return nil, false
		}
		if cur = cur.child(part); cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// Walk calls fn for every node below n in name order, depth first, with the
// node's logical path relative to n. Returning an error stops the walk.
func (n *Node) Walk(fn func(logical string, node *Node) error) error {
	return n.walk("", fn)
}

func (n *Node) walk(prefix string, fn func(string, *Node) error) error {
	for _, c := range n.Children {
		p := c.Name
		if prefix != "" {
			p = prefix + "/" + c.Name
		}
		if err := fn(p, c); err != nil {
			return err
		}
		if c.dir {
			if err := c.walk(p, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Files returns the logical paths of all file leaves below n, sorted.
func (n *Node) Files() []string {
	var out []string
	_ = n.Walk(func(p string, c *Node) error {
		if !c.dir {
			out = append(out, p)
		}
		return nil
	})
	return out
}

// Clone returns a deep copy of n without pack-time source paths.
func (n *Node) Clone() *Node {
	c := &Node{Name: n.Name, Offset: n.Offset, Size: n.Size, dir: n.dir}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return c
}

// Insert adds a file leaf named name under the logical directory dir,
// creating intermediate directories. A name already taken is resolved with
// ResolveName; the name actually used is returned.
func (n *Node) Insert(dir, name, source string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	parent := n
	for _, part := range splitLogical(dir) {
		if err := ValidateName(part); err != nil {
			return "", err
		}
		next := parent.child(part)
		if next == nil {
			next = NewDirNode(part)
			parent.addChild(next)
		} else if !next.dir {
			return "", newError(KindInvalidValue, "insert", dir, fmt.Errorf("%q is a file", part))
		}
		parent = next
	}

	resolved := ResolveName(parent.names(), name)
	parent.addChild(&Node{Name: resolved, source: source})
	return resolved, nil
}

func (n *Node) names() map[string]struct{} {
	set := make(map[string]struct{}, len(n.Children))
	for _, c := range n.Children {
		set[c.Name] = struct{}{}
	}
	return set
}

// ValidateName rejects entry names that could escape the extraction
// directory or are not portable across file systems.
func ValidateName(name string) error {
	switch {
	case name == "":
		return newError(KindInvalidValue, "validate name", name, errors.New("empty name"))
	case name == "." || name == "..":
		return newError(KindInvalidValue, "validate name", name, errors.New("relative path component"))
	case len(name) > MaxNameLength:
		return newError(KindInvalidValue, "validate name", name, fmt.Errorf("longer than %d bytes", MaxNameLength))
	case !utf8.ValidString(name):
		return newError(KindInvalidValue, "validate name", name, errors.New("invalid UTF-8"))
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return newError(KindInvalidValue, "validate name", name, fmt.Errorf("control character 0x%02x", r))
		}
		if strings.ContainsRune(`/\:*?<>"|`, r) {
			return newError(KindInvalidValue, "validate name", name, fmt.Errorf("reserved character %q", r))
		}
	}
	return nil
}

// ResolveName returns candidate if it is not in existing, otherwise the
// first free "stem~N.ext" with N counting up from 1. The result depends only
// on its arguments.
func ResolveName(existing map[string]struct{}, candidate string) string {
	if _, taken := existing[candidate]; !taken {
		return candidate
	}
	ext := path.Ext(candidate)
	stem := strings.TrimSuffix(candidate, ext)
	if stem == "" {
		// dotfiles such as ".env" have no stem; keep the whole name.
		stem, ext = candidate, ""
	}
	for i := 1; ; i++ {
		name := stem + "~" + strconv.Itoa(i) + ext
		if _, taken := existing[name]; !taken {
			return name
		}
	}
}

// BuildTree walks root and returns its directory tree. Entries are visited
// in name order so the same folder always packs to the same layout.
// Symbolic links and special files are not archived.
func BuildTree(root string) (*Node, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, ioError("build tree", root, err)
	}
	if !info.IsDir() {
		return nil, newError(KindInvalidValue, "build tree", root, errors.New("not a directory"))
	}

	tree := NewDirNode("")
	if err := buildDir(tree, root); err != nil {
		return nil, err
	}
	return tree, nil
}

func buildDir(parent *Node, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ioError("build tree", dir, err)
	}
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		if err := ValidateName(e.Name()); err != nil {
			return wrapError(KindInvalidValue, "build tree", full, err)
		}
		switch {
		case e.IsDir():
			child := NewDirNode(e.Name())
			if err := buildDir(child, full); err != nil {
				return err
			}
			parent.addChild(child)
		case e.Type().IsRegular():
			parent.addChild(&Node{Name: e.Name(), source: full})
		}
	}
	return nil
}

// splitLogical splits a logical path on both separators, dropping empty
// and "." components.
func splitLogical(logical string) []string {
	logical = strings.ReplaceAll(logical, "\\", "/")
	var parts []string
	for _, p := range strings.Split(logical, "/") {
		if p == "" || p == "." {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

// cleanLogical normalizes a logical path to its slash-joined form.
func cleanLogical(logical string) string {
	return strings.Join(splitLogical(logical), "/")
}
