// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree(t *testing.T) *Node {
	t.Helper()
	root := NewDirNode("")
	entries := []struct {
		dir, name string
		off, size uint64
	}{
		{"", "a.txt", 100, 5},
		{"sub", "b.bin", 200, 3},
		{"sub/deep", "c", 300, 0},
	}
	for _, e := range entries {
		_, err := root.Insert(e.dir, e.name, "")
		require.NoError(t, err)
		n, _ := root.Lookup(cleanLogical(e.dir + "/" + e.name))
		n.Offset, n.Size = e.off, e.size
	}
	root.addChild(NewDirNode("empty"))
	return root
}

func TestCodecRoundTrip(t *testing.T) {
	for _, version := range []uint16{FormatVersion0, FormatVersion1, FormatVersion2} {
		codec, err := codecFor(version)
		require.NoError(t, err)
		assert.Equal(t, version, codec.version())

		tree := sampleTree(t)
		blob, err := codec.encodeTree(tree)
		require.NoError(t, err)
		got, err := codec.decodeTree(blob)
		require.NoError(t, err)

		assert.Equal(t, tree.Files(), got.Files(), "version %d", version)
		n, ok := got.Lookup("sub/b.bin")
		require.True(t, ok)
		assert.Equal(t, uint64(200), n.Offset)
		if version >= FormatVersion2 {
			assert.Equal(t, uint64(3), n.Size)
		}
		empty, ok := got.Lookup("empty")
		require.True(t, ok, "version %d keeps empty directories", version)
		assert.True(t, empty.IsDir())
	}
}

func TestCodecForFutureVersion(t *testing.T) {
	codec, err := codecFor(CurrentVersion + 5)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion2, codec.version())
	assert.True(t, codec.entryHasCRC())

	v0, _ := codecFor(FormatVersion0)
	assert.False(t, v0.entryHasCRC())
}

func TestCBOREncodingIsDeterministic(t *testing.T) {
	a, err := v2Codec{}.encodeTree(sampleTree(t))
	require.NoError(t, err)
	b, err := v2Codec{}.encodeTree(sampleTree(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecodeTreeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		codec formatCodec
		blob  []byte
	}{
		{"json not object", v1Codec{}, []byte(`[1,2]`)},
		{"json bad value", v1Codec{}, []byte(`{"a":"x"}`)},
		{"json negative offset", v1Codec{}, []byte(`{"a":-1}`)},
		{"json fractional offset", v0Codec{}, []byte(`{"a":1.5}`)},
		{"json trailing data", v1Codec{}, []byte(`{"a":1}{}`)},
		{"json too deep", v1Codec{}, []byte(strings.Repeat(`{"d":`, maxTreeDepth+1) + "1" + strings.Repeat("}", maxTreeDepth+1))},
		{"cbor garbage", v2Codec{}, []byte{0xff, 0x00, 0x13}},
		{"cbor root not dir", v2Codec{}, mustCBOR(t, cborNode{Name: "x", Offset: 1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.decodeTree(tt.blob)
			assert.Error(t, err)
		})
	}
}

func TestJSONTreeRejectsDuplicateNames(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"root", `{"a.txt":26,"a.txt":60}`},
		{"nested", `{"d":{"x":30,"x":40}}`},
		{"file and dir", `{"d":30,"d":{}}`},
	}
	for _, codec := range []formatCodec{v0Codec{}, v1Codec{}} {
		for _, tt := range tests {
			t.Run(fmt.Sprintf("v%d %s", codec.version(), tt.name), func(t *testing.T) {
				_, err := codec.decodeTree([]byte(tt.blob))
				require.Error(t, err)
				assert.Contains(t, err.Error(), "duplicate entry")
			})
		}
	}

	root, err := v1Codec{}.decodeTree([]byte(`{"x":30,"d":{"x":40}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"d/x", "x"}, root.Files())
}

func mustCBOR(t *testing.T, v any) []byte {
	t.Helper()
	b, err := cborEnc.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestCheckTree(t *testing.T) {
	assert.NoError(t, checkTree(sampleTree(t), 42, 1000))

	// offset outside [lo, hi)
	assert.Error(t, checkTree(sampleTree(t), 42, 300))
	assert.Error(t, checkTree(sampleTree(t), 150, 1000))

	bad := sampleTree(t)
	bad.Children[0].Name = ".."
	assert.Error(t, checkTree(bad, 42, 1000))

	dup := sampleTree(t)
	dup.Children = append(dup.Children, &Node{Name: dup.Children[len(dup.Children)-1].Name, Offset: 100})
	assert.Error(t, checkTree(dup, 42, 1000))

	// Crafted CBOR with a path separator in a name is caught after decoding.
	blob := mustCBOR(t, cborNode{Name: "", Dir: true, Children: []cborNode{{Name: "../x", Offset: 100}}})
	tree, err := v2Codec{}.decodeTree(blob)
	require.NoError(t, err)
	assert.Error(t, checkTree(tree, 42, 1000))
}
