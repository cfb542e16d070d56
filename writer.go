// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/suprsokr/go-arcsys/pkg/logging"
	"github.com/suprsokr/go-arcsys/pkg/metrics"
)

// Options controls how an archive is written.
type Options struct {
	Password string
	// Key is pre-derived key material; it takes precedence over Password.
	Key []byte

	Encryption     Encryption  `validate:"lte=2"`
	Compression    Compression `validate:"lte=5"`
	Level          int         `validate:"gte=0,lte=9"`
	VerifyChecksum bool
	Version        uint16 `validate:"lte=2"`

	Logger  logging.Logger    `validate:"-"`
	Metrics *metrics.Registry `validate:"-"`
}

// DefaultOptions returns AES-256, ZIP level 9, checksums on, current format.
func DefaultOptions() Options {
	return Options{
		Encryption:     EncryptionAES256,
		Compression:    CompressionZIP,
		Level:          MaxLevel,
		VerifyChecksum: true,
		Version:        CurrentVersion,
	}
}

var optionsValidator = validator.New()

func (o *Options) validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return newError(KindInvalidValue, "options", "", fmt.Errorf("%s: %v fails %q", fe.Field(), fe.Value(), fe.Tag()+"="+fe.Param()))
		}
		return newError(KindInvalidValue, "options", "", err)
	}
	if o.Version < FormatVersion2 {
		if o.Compression > CompressionZIP {
			return newError(KindInvalidValue, "options", "", fmt.Errorf("compression %s needs format version %d", o.Compression, FormatVersion2))
		}
		if o.Encryption > EncryptionAES256 {
			return newError(KindInvalidValue, "options", "", fmt.Errorf("encryption %s needs format version %d", o.Encryption, FormatVersion2))
		}
	}
	if o.Encryption != EncryptionNone && len(resolveKey(o.Key, o.Password)) == 0 {
		return newError(KindCrypto, "options", "", errors.New("encryption requested without a password or key"))
	}
	return nil
}

// Writer builds an archive in a temporary file next to its destination and
// moves it into place on Close.
type Writer struct {
	path     string
	tempPath string
	opts     Options
	key      []byte
	codec    formatCodec
	header   *ArchiveHeader
	tree     *Node
	single   []byte // payload of a single-file archive
	isSingle bool
	log      logging.Logger
	closed   bool
}

// Create starts a new multi-file archive at path.
func Create(path string, opts Options) (*Writer, error) {
	return create(path, opts, 0)
}

func create(path string, opts Options, flags uint8) (*Writer, error) {
	if err := opts.validate(); err != nil {
		return nil, wrapError(KindInvalidValue, "create", path, err)
	}
	if opts.VerifyChecksum {
		flags |= FlagVerifyChecksum
	}

	header, err := newArchiveHeader(opts.Version, opts.Encryption, opts.Compression, opts.Level, flags)
	if err != nil {
		return nil, wrapError(KindIO, "create", path, err)
	}
	codec, err := codecFor(opts.Version)
	if err != nil {
		return nil, err
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, newError(KindIO, "create", path, fmt.Errorf("create directory: %w", err))
	}

	// Create temp file in same directory for atomic write
	tempFile, err := os.CreateTemp(dir, ".arcsys_*.tmp")
	if err != nil {
		return nil, newError(KindIO, "create", path, fmt.Errorf("create temp file: %w", err))
	}
	tempPath := tempFile.Name()
	tempFile.Close()

	return &Writer{
		path:     path,
		tempPath: tempPath,
		opts:     opts,
		key:      resolveKey(opts.Key, opts.Password),
		codec:    codec,
		header:   header,
		tree:     NewDirNode(""),
		isSingle: flags&FlagSingleFile != 0,
		log:      logging.OrNop(opts.Logger).With(logging.Component("writer")),
	}, nil
}

// AddFile queues srcPath under logicalPath ("dir/sub/name"). A logical path
// already in use gets a "~N" suffix; the path actually used is returned.
func (w *Writer) AddFile(srcPath, logicalPath string) (string, error) {
	if w.closed {
		return "", newError(KindNotOpen, "add file", w.path, errors.New("writer closed"))
	}
	if w.isSingle {
		return "", newError(KindInvalidValue, "add file", srcPath, errors.New("single-file archive"))
	}
	info, err := os.Stat(srcPath)
	if err != nil {
		return "", ioError("add file", srcPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", newError(KindInvalidValue, "add file", srcPath, errors.New("not a regular file"))
	}

	parts := splitLogical(logicalPath)
	if len(parts) == 0 {
		return "", newError(KindInvalidValue, "add file", logicalPath, errors.New("empty logical path"))
	}
	dir := strings.Join(parts[:len(parts)-1], "/")
	name, err := w.tree.Insert(dir, parts[len(parts)-1], srcPath)
	if err != nil {
		return "", wrapError(KindInvalidValue, "add file", logicalPath, err)
	}
	if dir == "" {
		return name, nil
	}
	return dir + "/" + name, nil
}

// AddTree queues every file below root, mirroring its layout at the
// archive root.
func (w *Writer) AddTree(root string) error {
	tree, err := BuildTree(root)
	if err != nil {
		return err
	}
	return tree.Walk(func(p string, n *Node) error {
		if n.dir {
			return nil
		}
		_, err := w.AddFile(n.source, p)
		return err
	})
}

// Abort discards the archive being written.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := os.Remove(w.tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return newError(KindIO, "abort", w.tempPath, err)
	}
	return nil
}

// Close writes the archive and moves it to its destination. On any error
// the temporary file is removed and nothing is left at the destination.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	timer := logging.StartTimer(w.log, "pack", logging.Path(w.path))
	stats, err := w.writeArchive()
	if err == nil {
		err = commit(w.tempPath, w.path)
	}
	if err != nil {
		os.Remove(w.tempPath)
		timer.EndError(err)
		w.opts.Metrics.RecordPack("error", stats.entries, stats.plain, stats.stored, timer.Elapsed())
		return wrapError(KindIO, "pack", w.path, err)
	}

	timer.End(logging.Count(stats.entries), logging.Bytes(stats.stored))
	w.opts.Metrics.RecordPack("ok", stats.entries, stats.plain, stats.stored, timer.Elapsed())
	return nil
}

type packStats struct {
	entries int
	plain   uint64
	stored  uint64
}

// countingWriter tracks the stream offset of a buffered writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// writeArchive writes the complete archive to the temp file
func (w *Writer) writeArchive() (packStats, error) {
	var stats packStats

	file, err := os.OpenFile(w.tempPath, os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return stats, newError(KindIO, "pack", w.tempPath, err)
	}
	defer file.Close()

	buf := bufio.NewWriterSize(file, 1<<16)
	cw := &countingWriter{w: buf}

	// Reserve space for header
	if _, err := cw.Write(make([]byte, w.header.HeaderSize)); err != nil {
		return stats, newError(KindIO, "pack", w.tempPath, err)
	}

	if w.isSingle {
		w.header.DirHeaderLoc = uint64(cw.n)
		eh, err := w.writeEntry(cw, w.single)
		if err != nil {
			return stats, err
		}
		stats = packStats{entries: 1, plain: eh.UncSize, stored: eh.CompSize}
	} else {
		// Write file data and record offsets in the tree
		err := w.tree.Walk(func(p string, n *Node) error {
			if n.dir {
				return nil
			}
			data, err := os.ReadFile(n.source)
			if err != nil {
				return ioError("pack", n.source, err)
			}
			n.Offset = uint64(cw.n)
			n.Size = uint64(len(data))
			eh, err := w.writeEntry(cw, data)
			if err != nil {
				return wrapError(KindIO, "pack", p, err)
			}
			stats.entries++
			stats.plain += eh.UncSize
			stats.stored += eh.CompSize
			w.log.Debug("entry written", logging.Entry(p), logging.Uint64("offset", n.Offset), logging.Bytes(eh.CompSize))
			return nil
		})
		if err != nil {
			return stats, err
		}

		// Write directory block
		blob, err := w.codec.encodeTree(w.tree)
		if err != nil {
			return stats, newError(KindInvalidValue, "encode tree", w.path, err)
		}
		w.header.DirHeaderLoc = uint64(cw.n)
		if _, err := w.writeEntry(cw, blob); err != nil {
			return stats, wrapError(KindIO, "write directory", w.path, err)
		}
	}

	if err := buf.Flush(); err != nil {
		return stats, newError(KindIO, "pack", w.tempPath, err)
	}

	// Write header
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return stats, newError(KindIO, "pack", w.tempPath, fmt.Errorf("seek to header: %w", err))
	}
	if err := WriteHeader(file, w.header); err != nil {
		return stats, newError(KindIO, "pack", w.tempPath, fmt.Errorf("write header: %w", err))
	}
	if err := file.Sync(); err != nil {
		return stats, newError(KindIO, "pack", w.tempPath, err)
	}
	return stats, nil
}

// writeEntry compresses and encrypts data under a fresh block and appends
// header and payload.
func (w *Writer) writeEntry(cw *countingWriter, data []byte) (EntryHeader, error) {
	eh := EntryHeader{UncSize: uint64(len(data)), CRC: Checksum(data)}

	comp, err := Compress(data, w.opts.Compression, w.opts.Level)
	if err != nil {
		return eh, err
	}
	block, err := GenerateBlock()
	if err != nil {
		return eh, err
	}
	enc, _, err := Encrypt(comp, w.key, w.opts.Encryption, block)
	if err != nil {
		return eh, err
	}
	copy(eh.Block[:], block)
	eh.CompSize = uint64(len(enc))

	if err := writeEntryHeader(cw, &eh, w.header.FileHeaderSize); err != nil {
		return eh, fmt.Errorf("write entry header: %w", err)
	}
	if _, err := cw.Write(enc); err != nil {
		return eh, fmt.Errorf("write entry data: %w", err)
	}
	return eh, nil
}

// commit moves the finished temp file over the destination.
func commit(tempPath, path string) error {
	if err := os.Rename(tempPath, path); err != nil {
		if err := copyFile(tempPath, path); err != nil {
			return fmt.Errorf("save archive: %w", err)
		}
		os.Remove(tempPath)
	}
	return nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// Pack writes every file below folderPath into a new archive at archivePath.
func Pack(archivePath, folderPath string, opts Options) error {
	tree, err := BuildTree(folderPath)
	if err != nil {
		return wrapError(KindIO, "pack", folderPath, err)
	}
	w, err := Create(archivePath, opts)
	if err != nil {
		return err
	}
	w.tree = tree
	return w.Close()
}

// PackFile writes a single-file archive holding the contents of filePath.
func PackFile(archivePath, filePath string, opts Options) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return ioError("pack file", filePath, err)
	}
	return PackBytes(archivePath, data, opts)
}

// PackBytes writes a single-file archive holding data.
func PackBytes(archivePath string, data []byte, opts Options) error {
	w, err := create(archivePath, opts, FlagSingleFile)
	if err != nil {
		return err
	}
	w.single = data
	return w.Close()
}
