// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	for _, version := range []uint16{FormatVersion0, FormatVersion1, FormatVersion2} {
		h, err := newArchiveHeader(version, EncryptionAES256, CompressionZIP, 9, FlagVerifyChecksum)
		require.NoError(t, err)
		h.DirHeaderLoc = 1234

		var buf bytes.Buffer
		require.NoError(t, WriteHeader(&buf, h))
		assert.Equal(t, int(h.HeaderSize), buf.Len(), "version %d", version)

		got, err := ReadHeader(&buf)
		require.NoError(t, err)
		assert.Equal(t, *h, *got)
		assert.True(t, got.VerifyChecksum())
		assert.False(t, got.SingleFile())
	}
}

func TestHeaderSizes(t *testing.T) {
	tests := []struct {
		version       uint16
		header, entry uint16
	}{
		{FormatVersion0, 26, 32},
		{FormatVersion1, 26, 36},
		{FormatVersion2, 42, 36},
	}
	for _, tt := range tests {
		h, err := newArchiveHeader(tt.version, EncryptionNone, CompressionNone, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, tt.header, h.HeaderSize)
		assert.Equal(t, tt.entry, h.FileHeaderSize)
		assert.Equal(t, tt.entry, h.DirHeaderSize)
		assert.Equal(t, tt.version, h.MinVersion)
	}

	_, err := newArchiveHeader(CurrentVersion+1, EncryptionNone, CompressionNone, 0, 0)
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestHeaderUniqueArchiveID(t *testing.T) {
	a, err := newArchiveHeader(FormatVersion2, EncryptionNone, CompressionNone, 0, 0)
	require.NoError(t, err)
	b, err := newArchiveHeader(FormatVersion2, EncryptionNone, CompressionNone, 0, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a.ArchiveID, b.ArchiveID)
}

func TestReadHeaderSkipsLargerHeader(t *testing.T) {
	h, err := newArchiveHeader(FormatVersion2, EncryptionNone, CompressionNone, 0, 0)
	require.NoError(t, err)
	h.HeaderSize = headerSizeV2 + 8

	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, h))
	buf.Write(make([]byte, 8))
	buf.WriteString("X")

	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h.ArchiveID, got.ArchiveID)

	next, err := buf.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('X'), next)
}

func TestReadHeaderErrors(t *testing.T) {
	valid := func() []byte {
		h, _ := newArchiveHeader(FormatVersion2, EncryptionNone, CompressionNone, 0, 0)
		var buf bytes.Buffer
		_ = WriteHeader(&buf, h)
		return buf.Bytes()
	}

	badMagic := valid()
	badMagic[0] = 'Z'

	small := valid()
	binary.LittleEndian.PutUint16(small[4:6], 10)

	tests := map[string][]byte{
		"empty":        nil,
		"truncated":    valid()[:12],
		"bad magic":    badMagic,
		"tiny size":    small,
		"missing tail": valid()[:30],
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadHeader(bytes.NewReader(data))
			assert.True(t, errors.Is(err, ErrInvalidFormat), "%v", err)
		})
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name            string
		version, minVer uint16
		kind            ErrorKind
	}{
		{"current", 2, 2, KindUnknown},
		{"legacy", 0, 0, KindUnknown},
		{"newer but readable", 7, 2, KindUnknown},
		{"needs newer reader", 7, 3, KindUnsupportedVersion},
		{"inconsistent", 1, 2, KindInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &ArchiveHeader{}
			h.Version, h.MinVersion = tt.version, tt.minVer
			err := checkVersion(h, CurrentVersion, MinReadableVersion)
			assert.Equal(t, tt.kind, KindOf(err), "%v", err)
		})
	}

	h := &ArchiveHeader{}
	h.Version, h.MinVersion = 0, 0
	assert.Equal(t, KindUnsupportedVersion, KindOf(checkVersion(h, 2, 1)))
}

func TestEntryHeaderLayouts(t *testing.T) {
	e := EntryHeader{UncSize: 10, CompSize: 16, CRC: 0xCAFEBABE}
	copy(e.Block[:], bytes.Repeat([]byte{7}, 16))

	for _, size := range []uint16{entryHeaderSizeV0, entryHeaderSizeV1, 48} {
		withCRC := size >= entryHeaderSizeV1
		var buf bytes.Buffer
		require.NoError(t, writeEntryHeader(&buf, &e, size))
		assert.Equal(t, int(size), buf.Len())

		got, err := readEntryHeader(&buf, size, withCRC)
		require.NoError(t, err)
		want := e
		if !withCRC {
			want.CRC = 0
		}
		assert.Equal(t, want, got, "size %d", size)
	}

	_, err := readEntryHeader(bytes.NewReader(make([]byte, 64)), entryHeaderSizeV0, true)
	assert.Error(t, err, "v0 size cannot carry a CRC")

	_, err = readEntryHeader(bytes.NewReader(make([]byte, 20)), entryHeaderSizeV1, true)
	assert.Error(t, err)
}
