// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// formatCodec is the per-version strategy for the parts of the layout that
// changed between versions: the entry header and the tree blob.
type formatCodec interface {
	version() uint16
	entryHasCRC() bool
	encodeTree(root *Node) ([]byte, error)
	decodeTree(blob []byte) (*Node, error)
}

// codecFor selects the codec for an archive version. Versions newer than
// CurrentVersion that passed the MinVersion gate are read with the newest
// codec.
func codecFor(version uint16) (formatCodec, error) {
	switch {
	case version == FormatVersion0:
		return v0Codec{}, nil
	case version == FormatVersion1:
		return v1Codec{}, nil
	case version >= FormatVersion2:
		return v2Codec{}, nil
	}
	return nil, newError(KindUnsupportedVersion, "select codec", "", fmt.Errorf("version %d", version))
}

// v0Codec: JSON tree (name -> offset | object), entry headers without CRC.
type v0Codec struct{}

func (v0Codec) version() uint16                       { return FormatVersion0 }
func (v0Codec) entryHasCRC() bool                     { return false }
func (v0Codec) encodeTree(root *Node) ([]byte, error) { return encodeJSONTree(root) }
func (v0Codec) decodeTree(blob []byte) (*Node, error) { return decodeJSONTree(blob) }

// v1Codec: same JSON tree as v0, entry headers carry a CRC.
type v1Codec struct{}

func (v1Codec) version() uint16                       { return FormatVersion1 }
func (v1Codec) entryHasCRC() bool                     { return true }
func (v1Codec) encodeTree(root *Node) ([]byte, error) { return encodeJSONTree(root) }
func (v1Codec) decodeTree(blob []byte) (*Node, error) { return decodeJSONTree(blob) }

func encodeJSONTree(root *Node) ([]byte, error) {
	return json.Marshal(jsonTree(root))
}

func jsonTree(n *Node) map[string]any {
	m := make(map[string]any, len(n.Children))
	for _, c := range n.Children {
		if c.dir {
			m[c.Name] = jsonTree(c)
		} else {
			m[c.Name] = c.Offset
		}
	}
	return m
}

// maxTreeDepth bounds directory nesting in a decoded tree blob.
const maxTreeDepth = 512

// decodeJSONTree walks the blob token by token so that a name repeated
// within one object is rejected instead of silently overwritten.
func decodeJSONTree(blob []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode json tree: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode json tree: root is %v, not an object", tok)
	}
	root := NewDirNode("")
	if err := fillJSONDir(dec, root, "", 1); err != nil {
		return nil, fmt.Errorf("decode json tree: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode json tree: trailing data")
	}
	return root, nil
}

// fillJSONDir reads the members of an object whose opening brace has been
// consumed, up to and including the closing brace.
func fillJSONDir(dec *json.Decoder, dir *Node, p string, depth int) error {
	if depth > maxTreeDepth {
		return fmt.Errorf("directory %q nested deeper than %d", p, maxTreeDepth)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("directory %q: unexpected key %v", p, tok)
		}
		if dir.child(name) != nil {
			return fmt.Errorf("duplicate entry %q in %q", name, p)
		}

		tok, err = dec.Token()
		if err != nil {
			return err
		}
		switch val := tok.(type) {
		case json.Delim:
			if val != '{' {
				return fmt.Errorf("entry %q: unexpected %v", name, val)
			}
			child := NewDirNode(name)
			if err := fillJSONDir(dec, child, path.Join(p, name), depth+1); err != nil {
				return err
			}
			dir.addChild(child)
		case json.Number:
			off, err := strconv.ParseUint(val.String(), 10, 64)
			if err != nil {
				return fmt.Errorf("entry %q: bad offset %q", name, val)
			}
			dir.addChild(&Node{Name: name, Offset: off})
		default:
			return fmt.Errorf("entry %q: unexpected %T", name, tok)
		}
	}
	// closing brace
	_, err := dec.Token()
	return err
}

// v2Codec: CBOR tree with sizes, entry headers with CRC.
type v2Codec struct{}

type cborNode struct {
	Name     string     `cbor:"n"`
	Dir      bool       `cbor:"d,omitempty"`
	Offset   uint64     `cbor:"o,omitempty"`
	Size     uint64     `cbor:"s,omitempty"`
	Children []cborNode `cbor:"c,omitempty"`
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	if cborEnc, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	cborDec, err = cbor.DecOptions{
		MaxNestedLevels:  maxTreeDepth,
		MaxArrayElements: 1 << 20,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func (v2Codec) version() uint16   { return FormatVersion2 }
func (v2Codec) entryHasCRC() bool { return true }

func (v2Codec) encodeTree(root *Node) ([]byte, error) {
	return cborEnc.Marshal(toCBOR(root))
}

func (v2Codec) decodeTree(blob []byte) (*Node, error) {
	var raw cborNode
	if err := cborDec.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("decode cbor tree: %w", err)
	}
	if !raw.Dir {
		return nil, errors.New("decode cbor tree: root is not a directory")
	}
	return fromCBOR(raw), nil
}

func toCBOR(n *Node) cborNode {
	c := cborNode{Name: n.Name, Dir: n.dir, Offset: n.Offset, Size: n.Size}
	if n.dir {
		c.Offset, c.Size = 0, 0
		c.Children = make([]cborNode, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = toCBOR(ch)
		}
	}
	return c
}

func fromCBOR(c cborNode) *Node {
	n := &Node{Name: c.Name, dir: c.Dir, Offset: c.Offset, Size: c.Size}
	if c.Dir {
		n.Offset, n.Size = 0, 0
		for _, ch := range c.Children {
			n.addChild(fromCBOR(ch))
		}
	}
	return n
}

// checkTree validates a decoded tree: every name is legal, names are unique
// per directory and every leaf offset lies in [lo, hi).
func checkTree(root *Node, lo, hi uint64) error {
	if err := checkUnique(root, ""); err != nil {
		return err
	}
	return root.Walk(func(p string, n *Node) error {
		if err := ValidateName(n.Name); err != nil {
			return fmt.Errorf("entry %q: %w", p, err)
		}
		if n.dir {
			return checkUnique(n, p)
		}
		if n.Offset < lo || n.Offset >= hi {
			return fmt.Errorf("entry %q: offset %d outside [%d, %d)", p, n.Offset, lo, hi)
		}
		return nil
	})
}

func checkUnique(dir *Node, p string) error {
	for i := 1; i < len(dir.Children); i++ {
		if dir.Children[i].Name == dir.Children[i-1].Name {
			return fmt.Errorf("duplicate entry %q in %q", dir.Children[i].Name, p)
		}
	}
	return nil
}
