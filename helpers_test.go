// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFiles creates files below root from a logical path -> content map.
func writeFiles(t testing.TB, root string, files map[string][]byte) {
	t.Helper()
	for p, content := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, content, 0644))
	}
}

// sampleFiles is the folder from the basic pack/unpack scenario.
func sampleFiles() map[string][]byte {
	return map[string][]byte{
		"a.txt":     []byte("hello"),
		"sub/b.bin": {0x00, 0x01, 0x02},
	}
}

// packSample packs files into a fresh archive and returns its path.
func packSample(t testing.TB, files map[string][]byte, opts Options) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeFiles(t, src, files)
	out := filepath.Join(dir, "test.ars")
	require.NoError(t, Pack(out, src, opts))
	return out
}

// plainOptions returns options without encryption or compression.
func plainOptions() Options {
	opts := DefaultOptions()
	opts.Encryption = EncryptionNone
	opts.Compression = CompressionNone
	return opts
}

// withPassword returns the default options with password set.
func withPassword(pw string) Options {
	opts := DefaultOptions()
	opts.Password = pw
	return opts
}

// patchFile overwrites len(b) bytes of the file at offset.
func patchFile(t testing.TB, path string, offset int64, b []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteAt(b, offset)
	require.NoError(t, err)
}

// flipByte inverts one byte of the file at offset.
func flipByte(t testing.TB, path string, offset int64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	b := make([]byte, 1)
	_, err = f.ReadAt(b, offset)
	require.NoError(t, err)
	b[0] ^= 0xFF
	_, err = f.WriteAt(b, offset)
	require.NoError(t, err)
}

// payloadOffset returns where the stored bytes of logical begin.
func payloadOffset(t testing.TB, archivePath, password, logical string) int64 {
	t.Helper()
	a, err := OpenArchive(archivePath, password)
	require.NoError(t, err)
	defer a.Close()
	tree, err := a.GetFileTree("")
	require.NoError(t, err)
	n, ok := tree.Lookup(logical)
	require.True(t, ok)
	return int64(n.Offset) + int64(a.Header().FileHeaderSize)
}
