// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/suprsokr/go-arcsys/pkg/logging"
	"github.com/suprsokr/go-arcsys/pkg/metrics"
)

// CorruptPolicy decides what UnpackTo does with an entry that fails
// decryption, decompression or its checksum.
type CorruptPolicy int

const (
	// OnCorruptAbort stops at the first bad entry.
	OnCorruptAbort CorruptPolicy = iota
	// OnCorruptSkip extracts everything else and reports the bad entries
	// in an *UnpackReport.
	OnCorruptSkip
)

// OpenOption configures a FileArchive.
type OpenOption func(*openConfig)

type openConfig struct {
	key     []byte
	logger  logging.Logger
	metrics *metrics.Registry
	policy  CorruptPolicy
}

// WithKey supplies pre-derived key material; it takes precedence over the
// password given to Open.
func WithKey(key []byte) OpenOption {
	return func(c *openConfig) { c.key = key }
}

// WithLogger sets the logger used for open, read and unpack events.
func WithLogger(l logging.Logger) OpenOption {
	return func(c *openConfig) { c.logger = l }
}

// WithMetrics records reads and integrity failures in r.
func WithMetrics(r *metrics.Registry) OpenOption {
	return func(c *openConfig) { c.metrics = r }
}

// WithCorruptPolicy sets how UnpackTo treats corrupted entries.
func WithCorruptPolicy(p CorruptPolicy) OpenOption {
	return func(c *openConfig) { c.policy = p }
}

// FileArchive reads an archive. It starts closed and can be opened, closed
// and opened again. Reads use ReadAt, so concurrent Get calls on an open
// archive are safe; Open and Close must not race with them.
type FileArchive struct {
	cfg    openConfig
	log    logging.Logger
	file   *os.File
	path   string
	size   int64
	header *ArchiveHeader
	codec  formatCodec
	key    []byte
	tree   *Node
}

// NewFileArchive returns a closed reader.
func NewFileArchive(opts ...OpenOption) *FileArchive {
	a := &FileArchive{}
	for _, opt := range opts {
		opt(&a.cfg)
	}
	a.log = logging.OrNop(a.cfg.logger).With(logging.Component("reader"))
	return a
}

// OpenArchive opens the archive at path for reading.
func OpenArchive(path, password string, opts ...OpenOption) (*FileArchive, error) {
	a := NewFileArchive(opts...)
	if err := a.Open(path, password); err != nil {
		return nil, err
	}
	return a, nil
}

// Open reads and validates the header and directory of the archive at path.
func (a *FileArchive) Open(path, password string) error {
	if a.file != nil {
		return newError(KindAlreadyOpen, "open", path, fmt.Errorf("already open: %s", a.path))
	}

	file, err := os.Open(path)
	if err != nil {
		return ioError("open", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return newError(KindIO, "open", path, err)
	}

	// Read and validate header
	header, err := ReadHeader(io.NewSectionReader(file, 0, info.Size()))
	if err != nil {
		file.Close()
		return wrapError(KindInvalidFormat, "open", path, err)
	}
	if err := a.checkHeader(header, info.Size()); err != nil {
		file.Close()
		return wrapError(KindInvalidFormat, "open", path, err)
	}
	codec, err := codecFor(header.Version)
	if err != nil {
		file.Close()
		return wrapError(KindUnsupportedVersion, "open", path, err)
	}

	prevPath := a.path
	a.file = file
	a.path = path
	a.size = info.Size()
	a.header = header
	a.codec = codec
	a.key = resolveKey(a.cfg.key, password)
	a.tree = nil

	if !header.SingleFile() {
		if err := a.loadTree(); err != nil {
			a.reset()
			a.path = prevPath
			return wrapError(KindInvalidFormat, "open", path, err)
		}
	}

	a.log.Debug("archive opened",
		logging.Path(path),
		logging.Int("version", int(header.Version)),
		logging.String("encryption", header.Encryption.String()),
		logging.String("compression", header.Compression.String()),
		logging.Bool("single_file", header.SingleFile()),
		logging.Any("archive_id", header.ArchiveID))
	return nil
}

// checkHeader applies the checks that need more than the header bytes.
func (a *FileArchive) checkHeader(h *ArchiveHeader, size int64) error {
	if err := checkVersion(h, CurrentVersion, MinReadableVersion); err != nil {
		return err
	}
	if err := h.Encryption.Valid(); err != nil {
		return newErrorAt(KindInvalidFormat, "open", "", 14, err)
	}
	if err := h.Compression.Valid(); err != nil {
		return newErrorAt(KindInvalidFormat, "open", "", 15, err)
	}
	if h.DirHeaderLoc < uint64(h.HeaderSize) || h.DirHeaderLoc >= uint64(size) {
		return newErrorAt(KindInvalidFormat, "open", "", 18,
			fmt.Errorf("directory offset %d outside [%d, %d)", h.DirHeaderLoc, h.HeaderSize, size))
	}
	return nil
}

func (a *FileArchive) loadTree() error {
	blob, _, err := a.readEntry(a.header.DirHeaderLoc, a.header.DirHeaderSize, "")
	if err != nil {
		return err
	}
	tree, err := a.codec.decodeTree(blob)
	if err != nil {
		return newErrorAt(KindInvalidFormat, "decode tree", "", int64(a.header.DirHeaderLoc), err)
	}
	if err := checkTree(tree, uint64(a.header.HeaderSize), a.header.DirHeaderLoc); err != nil {
		return newErrorAt(KindInvalidFormat, "decode tree", "", int64(a.header.DirHeaderLoc), err)
	}
	a.tree = tree
	return nil
}

// Close releases the file handle. Closing a closed archive is a no-op.
func (a *FileArchive) Close() error {
	if a.file == nil {
		return nil
	}
	file := a.file
	a.file = nil
	a.reset()
	if err := file.Close(); err != nil {
		return newError(KindIO, "close", a.path, err)
	}
	return nil
}

func (a *FileArchive) reset() {
	if a.file != nil {
		a.file.Close()
	}
	a.file = nil
	a.size = 0
	a.header = nil
	a.codec = nil
	a.key = nil
	a.tree = nil
}

// IsOpen reports whether the archive is open.
func (a *FileArchive) IsOpen() bool { return a.file != nil }

// Path returns the path of the last archive opened.
func (a *FileArchive) Path() string { return a.path }

// Header returns a copy of the archive header, or the zero value when closed.
func (a *FileArchive) Header() ArchiveHeader {
	if a.header == nil {
		return ArchiveHeader{}
	}
	return *a.header
}

// readEntry reads the entry header at offset and returns the verified
// plaintext payload.
func (a *FileArchive) readEntry(offset uint64, headerSize uint16, logical string) ([]byte, EntryHeader, error) {
	var eh EntryHeader
	if offset+uint64(headerSize) > uint64(a.size) {
		return nil, eh, newErrorAt(KindInvalidFormat, "read entry", logical, int64(offset),
			fmt.Errorf("entry header past end of file (size %d)", a.size))
	}

	eh, err := readEntryHeader(io.NewSectionReader(a.file, int64(offset), int64(headerSize)), headerSize, a.codec.entryHasCRC())
	if err != nil {
		return nil, eh, newErrorAt(KindInvalidFormat, "read entry", logical, int64(offset), err)
	}

	start := offset + uint64(headerSize)
	if eh.CompSize > uint64(a.size)-start {
		return nil, eh, newErrorAt(KindInvalidFormat, "read entry", logical, int64(offset),
			fmt.Errorf("truncated stream: entry needs %d bytes, %d left", eh.CompSize, uint64(a.size)-start))
	}

	stored := make([]byte, eh.CompSize)
	if _, err := a.file.ReadAt(stored, int64(start)); err != nil {
		return nil, eh, newErrorAt(KindIO, "read entry", logical, int64(start), err)
	}

	plain, err := Decrypt(stored, a.key, a.header.Encryption, eh.Block[:])
	if err != nil {
		return nil, eh, a.integrity(logical, offset, err)
	}
	data, err := Decompress(plain, a.header.Compression, eh.UncSize)
	if err != nil {
		return nil, eh, a.integrity(logical, offset, err)
	}

	// The directory block is always checked when the layout has a CRC.
	verify := a.header.VerifyChecksum() || offset == a.header.DirHeaderLoc && !a.header.SingleFile()
	if verify && a.codec.entryHasCRC() {
		if got := Checksum(data); got != eh.CRC {
			return nil, eh, a.integrity(logical, offset, fmt.Errorf("checksum mismatch: expected 0x%08X, found 0x%08X", eh.CRC, got))
		}
	}
	return data, eh, nil
}

// integrity classifies a failed entry. Under encryption a wrong password and
// damaged data look the same.
func (a *FileArchive) integrity(logical string, offset uint64, err error) error {
	kind := KindCorrupted
	if a.header.Encryption != EncryptionNone {
		kind = KindWrongPassword
	}
	a.cfg.metrics.RecordIntegrityFailure(kind.String())
	a.log.Warn("entry failed integrity check",
		logging.Operation("read entry"), logging.Entry(logical), logging.Uint64("offset", offset), logging.Error(err))

	var e *Error
	if errors.As(err, &e) {
		err = e.Err
	}
	return newErrorAt(kind, "read entry", logical, int64(offset), err)
}

func (a *FileArchive) notOpen(op, logical string) error {
	return newError(KindNotOpen, op, logical, errors.New("archive is not open"))
}

// leaf resolves a logical path to the offset of its entry header.
func (a *FileArchive) leaf(op, logical string) (*Node, error) {
	if a.file == nil {
		return nil, a.notOpen(op, logical)
	}
	clean := cleanLogical(logical)
	if a.header.SingleFile() {
		if clean != "" {
			return nil, newError(KindFileNotFound, op, logical, errors.New("single-file archive has only the empty path"))
		}
		return &Node{Offset: a.header.DirHeaderLoc}, nil
	}
	n, ok := a.tree.Lookup(clean)
	if !ok {
		return nil, newError(KindFileNotFound, op, logical, errors.New("no such entry"))
	}
	if n.dir {
		return nil, newError(KindInvalidValue, op, logical, errors.New("is a directory"))
	}
	return n, nil
}

// GetBinaryFile returns the contents of the file at logical path.
func (a *FileArchive) GetBinaryFile(logical string) ([]byte, error) {
	n, err := a.leaf("get file", logical)
	if err != nil {
		return nil, err
	}
	data, eh, err := a.readEntry(n.Offset, a.header.FileHeaderSize, logical)
	if err != nil {
		a.cfg.metrics.RecordRead("error", 0, 0)
		return nil, wrapError(KindIO, "get file", logical, err)
	}
	if a.header.Version >= FormatVersion2 && !a.header.SingleFile() && n.Size != eh.UncSize {
		a.cfg.metrics.RecordRead("error", 0, 0)
		return nil, newErrorAt(KindInvalidFormat, "get file", logical, int64(n.Offset),
			fmt.Errorf("tree records %d bytes, entry header %d", n.Size, eh.UncSize))
	}
	a.cfg.metrics.RecordRead("ok", eh.UncSize, eh.CompSize)
	a.log.Debug("entry read", logging.Entry(logical), logging.Bytes(eh.UncSize))
	return data, nil
}

// GetTextFile returns the contents of the file at logical path as a string.
func (a *FileArchive) GetTextFile(logical string) (string, error) {
	data, err := a.GetBinaryFile(logical)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HasFile reports whether logical names a file in the open archive.
func (a *FileArchive) HasFile(logical string) bool {
	_, err := a.leaf("has file", logical)
	return err == nil
}

// ListFiles returns the sorted logical paths of every file. Single-file
// archives have no names and return nil.
func (a *FileArchive) ListFiles() ([]string, error) {
	if a.file == nil {
		return nil, a.notOpen("list files", "")
	}
	if a.tree == nil {
		return nil, nil
	}
	return a.tree.Files(), nil
}

// GetFileTree returns a deep copy of the tree below root ("" for the whole
// archive).
func (a *FileArchive) GetFileTree(root string) (*Node, error) {
	if a.file == nil {
		return nil, a.notOpen("get file tree", root)
	}
	if a.tree == nil {
		return nil, newError(KindInvalidValue, "get file tree", root, errors.New("single-file archive has no tree"))
	}
	n, ok := a.tree.Lookup(root)
	if !ok {
		return nil, newError(KindFileNotFound, "get file tree", root, errors.New("no such entry"))
	}
	return n.Clone(), nil
}

// ExtractFile writes the file at logical path to destPath.
func (a *FileArchive) ExtractFile(logical, destPath string) error {
	data, err := a.GetBinaryFile(logical)
	if err != nil {
		return err
	}
	return writeOut(destPath, data)
}

func writeOut(destPath string, data []byte) error {
	// Ensure destination directory exists
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return newError(KindIO, "extract", destPath, fmt.Errorf("create directory: %w", err))
	}
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return newError(KindIO, "extract", destPath, fmt.Errorf("write file: %w", err))
	}
	return nil
}

// SkippedEntry is one entry left out by OnCorruptSkip.
type SkippedEntry struct {
	Path string
	Err  error
}

// UnpackReport is returned by UnpackTo under OnCorruptSkip when entries were
// left out. Everything else was extracted.
type UnpackReport struct {
	Extracted int
	Skipped   []SkippedEntry
}

func (r *UnpackReport) Error() string {
	names := make([]string, len(r.Skipped))
	for i, s := range r.Skipped {
		names[i] = s.Path
	}
	return fmt.Sprintf("unpack: %d extracted, %d skipped: %s", r.Extracted, len(r.Skipped), strings.Join(names, ", "))
}

// Unwrap exposes the per-entry errors to errors.Is and errors.As.
func (r *UnpackReport) Unwrap() []error {
	errs := make([]error, len(r.Skipped))
	for i, s := range r.Skipped {
		errs[i] = s.Err
	}
	return errs
}

// UnpackTo extracts every file below dest, mirroring the archive tree. A
// single-file archive is written to dest itself. Every name is checked
// before anything is written.
func (a *FileArchive) UnpackTo(dest string) error {
	if a.file == nil {
		return a.notOpen("unpack", dest)
	}
	timer := logging.StartTimer(a.log, "unpack", logging.Path(a.path), logging.String("dest", dest))

	var err error
	report := &UnpackReport{}
	if a.header.SingleFile() {
		err = a.unpackSingle(dest, report)
	} else {
		err = a.unpackTree(dest, report)
	}
	a.cfg.metrics.ObserveOperation("unpack", timer.Elapsed())

	if err != nil {
		timer.EndError(err)
		return err
	}
	timer.End(logging.Count(report.Extracted), logging.Int("skipped", len(report.Skipped)))
	if len(report.Skipped) > 0 {
		return report
	}
	return nil
}

func (a *FileArchive) unpackSingle(dest string, report *UnpackReport) error {
	data, err := a.GetBinaryFile("")
	if err != nil {
		return a.skipOrFail("", err, report)
	}
	if err := writeOut(dest, data); err != nil {
		return err
	}
	report.Extracted++
	return nil
}

func (a *FileArchive) unpackTree(dest string, report *UnpackReport) error {
	root, err := filepath.Abs(dest)
	if err != nil {
		return newError(KindIO, "unpack", dest, err)
	}

	// Validate all targets first so a bad name fails before any write.
	targets := make(map[string]string)
	err = a.tree.Walk(func(p string, n *Node) error {
		if err := ValidateName(n.Name); err != nil {
			return wrapError(KindInvalidValue, "unpack", p, err)
		}
		target := filepath.Join(root, filepath.FromSlash(p))
		rel, err := filepath.Rel(root, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
			return newError(KindInvalidValue, "unpack", p, errors.New("path escapes destination"))
		}
		targets[p] = target
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return newError(KindIO, "unpack", root, err)
	}
	return a.tree.Walk(func(p string, n *Node) error {
		target := targets[p]
		if n.dir {
			if err := os.MkdirAll(target, 0755); err != nil {
				return newError(KindIO, "unpack", target, err)
			}
			return nil
		}
		data, err := a.GetBinaryFile(p)
		if err != nil {
			return a.skipOrFail(p, err, report)
		}
		if err := writeOut(target, data); err != nil {
			return err
		}
		report.Extracted++
		return nil
	})
}

func (a *FileArchive) skipOrFail(p string, err error, report *UnpackReport) error {
	switch KindOf(err) {
	case KindCorrupted, KindWrongPassword, KindInvalidFormat:
		if a.cfg.policy == OnCorruptSkip {
			a.log.Warn("skipping corrupted entry", logging.Operation("unpack"), logging.Entry(p), logging.Error(err))
			report.Skipped = append(report.Skipped, SkippedEntry{Path: p, Err: err})
			return nil
		}
	}
	return err
}

// Unpack opens the archive at archivePath and extracts it below dest.
func Unpack(archivePath, dest, password string, opts ...OpenOption) error {
	a, err := OpenArchive(archivePath, password, opts...)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.UnpackTo(dest)
}
