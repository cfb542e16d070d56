// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// Archive format constants
const (
	// Magic signature "ARS\x1A" in little-endian
	arcMagic = 0x1A535241

	// Format versions
	FormatVersion0 uint16 = 0 // JSON tree, entry headers without CRC
	FormatVersion1 uint16 = 1 // JSON tree, CRC per entry
	FormatVersion2 uint16 = 2 // CBOR tree, archive id, extra codecs and GCM

	// CurrentVersion is written by default and is the newest layout this
	// package can decode.
	CurrentVersion = FormatVersion2
	// MinReadableVersion is the oldest layout this package can decode.
	MinReadableVersion = FormatVersion0

	// Header sizes
	baseHeaderSize     = 26
	headerSizeV2       = baseHeaderSize + 16
	entryHeaderSizeV0  = 32
	entryHeaderSizeV1  = 36
	maxEntryHeaderSize = 1 << 12

	// Archive flags
	FlagSingleFile     uint8 = 1 << 0
	FlagVerifyChecksum uint8 = 1 << 1
)

// baseHeader is the part of the archive header shared by every version (26 bytes).
type baseHeader struct {
	Magic          uint32 // "ARS\x1A"
	HeaderSize     uint16 // Size of the whole header on disk
	FileHeaderSize uint16 // Size of each file entry header
	DirHeaderSize  uint16 // Size of the directory block header
	Version        uint16 // Format version written
	MinVersion     uint16 // Minimum reader version able to parse this archive
	Encryption     Encryption
	Compression    Compression
	Level          uint8
	Flags          uint8
	DirHeaderLoc   uint64 // Offset of the directory block
}

// ArchiveHeader is the fixed-size header stored once at the start of an archive.
type ArchiveHeader struct {
	baseHeader
	ArchiveID uuid.UUID // Version 2 and later
}

// SingleFile reports whether the archive holds one unnamed payload and no tree.
func (h ArchiveHeader) SingleFile() bool { return h.Flags&FlagSingleFile != 0 }

// VerifyChecksum reports whether readers must CRC-check entries.
func (h ArchiveHeader) VerifyChecksum() bool { return h.Flags&FlagVerifyChecksum != 0 }

// EntryHeader describes one stored block: a file entry (FileHeader) or the
// directory block (DirectoryHeader).
type EntryHeader struct {
	UncSize  uint64   // Size after decryption and decompression
	CompSize uint64   // Size on disk
	CRC      uint32   // CRC-32 of the plaintext, version 1 and later
	Block    [16]byte // IV/nonce, unique per entry
}

// FileHeader and DirectoryHeader share a layout.
type (
	FileHeader      = EntryHeader
	DirectoryHeader = EntryHeader
)

// newArchiveHeader builds the header a writer emits for the given version.
func newArchiveHeader(version uint16, enc Encryption, comp Compression, level int, flags uint8) (*ArchiveHeader, error) {
	h := &ArchiveHeader{
		baseHeader: baseHeader{
			Magic:       arcMagic,
			Version:     version,
			MinVersion:  version,
			Encryption:  enc,
			Compression: comp,
			Level:       uint8(level),
			Flags:       flags,
		},
	}

	switch version {
	case FormatVersion0:
		h.HeaderSize = baseHeaderSize
		h.FileHeaderSize = entryHeaderSizeV0
	case FormatVersion1:
		h.HeaderSize = baseHeaderSize
		h.FileHeaderSize = entryHeaderSizeV1
	case FormatVersion2:
		h.HeaderSize = headerSizeV2
		h.FileHeaderSize = entryHeaderSizeV1
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, fmt.Errorf("generate archive id: %w", err)
		}
		h.ArchiveID = id
	default:
		return nil, newError(KindUnsupportedVersion, "create", "", fmt.Errorf("cannot write version %d", version))
	}
	h.DirHeaderSize = h.FileHeaderSize
	return h, nil
}

// ReadHeader reads and validates an archive header. Trailing header bytes
// from newer writers are skipped.
func ReadHeader(r io.Reader) (*ArchiveHeader, error) {
	h := &ArchiveHeader{}

	if err := binary.Read(r, binary.LittleEndian, &h.baseHeader); err != nil {
		return nil, newErrorAt(KindInvalidFormat, "read header", "", 0, truncated(err))
	}
	if h.Magic != arcMagic {
		return nil, newErrorAt(KindInvalidFormat, "read header", "", 0, fmt.Errorf("bad magic: expected 0x%08X, found 0x%08X", uint32(arcMagic), h.Magic))
	}
	if h.HeaderSize < baseHeaderSize {
		return nil, newErrorAt(KindInvalidFormat, "read header", "", 4, fmt.Errorf("header size %d smaller than %d", h.HeaderSize, baseHeaderSize))
	}

	rest := int64(h.HeaderSize) - baseHeaderSize
	if h.Version >= FormatVersion2 && rest >= int64(len(h.ArchiveID)) {
		if _, err := io.ReadFull(r, h.ArchiveID[:]); err != nil {
			return nil, newErrorAt(KindInvalidFormat, "read header", "", baseHeaderSize, truncated(err))
		}
		rest -= int64(len(h.ArchiveID))
	}
	if rest > 0 {
		if _, err := io.CopyN(io.Discard, r, rest); err != nil {
			return nil, newErrorAt(KindInvalidFormat, "read header", "", int64(h.HeaderSize)-rest, truncated(err))
		}
	}

	return h, nil
}

// WriteHeader writes h. HeaderSize must already describe the bytes written.
func WriteHeader(w io.Writer, h *ArchiveHeader) error {
	if err := binary.Write(w, binary.LittleEndian, &h.baseHeader); err != nil {
		return err
	}
	if h.Version >= FormatVersion2 {
		if _, err := w.Write(h.ArchiveID[:]); err != nil {
			return err
		}
	}
	return nil
}

// GetHeader reads only the header of the archive at path, for quick format
// and version probing.
func GetHeader(path string) (*ArchiveHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError("get header", path, err)
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return nil, wrapError(KindInvalidFormat, "get header", path, err)
	}
	return h, nil
}

// checkVersion gates an archive against the versions a reader understands.
func checkVersion(h *ArchiveHeader, readerVersion, readerMinVersion uint16) error {
	if h.MinVersion > readerVersion {
		return newError(KindUnsupportedVersion, "open", "", fmt.Errorf("archive requires reader version %d, this reader supports up to %d", h.MinVersion, readerVersion))
	}
	if h.Version < readerMinVersion {
		return newError(KindUnsupportedVersion, "open", "", fmt.Errorf("archive version %d is older than the oldest supported version %d", h.Version, readerMinVersion))
	}
	if h.MinVersion > h.Version {
		return newError(KindInvalidFormat, "open", "", fmt.Errorf("minimum version %d exceeds version %d", h.MinVersion, h.Version))
	}
	return nil
}

// readEntryHeader reads an entry header of the recorded on-disk size. The
// CRC field is present from version 1; any extra bytes are ignored.
func readEntryHeader(r io.Reader, size uint16, withCRC bool) (EntryHeader, error) {
	var e EntryHeader
	need := entryHeaderSizeV0
	if withCRC {
		need = entryHeaderSizeV1
	}
	if int(size) < need || size > maxEntryHeaderSize {
		return e, fmt.Errorf("entry header size %d, need at least %d", size, need)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return e, truncated(err)
	}
	e.UncSize = binary.LittleEndian.Uint64(buf[0:8])
	e.CompSize = binary.LittleEndian.Uint64(buf[8:16])
	off := 16
	if withCRC {
		e.CRC = binary.LittleEndian.Uint32(buf[16:20])
		off = 20
	}
	copy(e.Block[:], buf[off:off+16])
	return e, nil
}

// writeEntryHeader writes e in the layout of the given header size.
func writeEntryHeader(w io.Writer, e *EntryHeader, size uint16) error {
	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf[0:8], e.UncSize)
	binary.LittleEndian.PutUint64(buf[8:16], e.CompSize)
	off := 16
	if size >= entryHeaderSizeV1 {
		binary.LittleEndian.PutUint32(buf[16:20], e.CRC)
		off = 20
	}
	copy(buf[off:off+16], e.Block[:])
	_, err := w.Write(buf)
	return err
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("truncated stream: %w", io.ErrUnexpectedEOF)
	}
	return err
}

func ioError(op, path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return newError(KindFileNotFound, op, path, err)
	}
	return newError(KindIO, op, path, err)
}
