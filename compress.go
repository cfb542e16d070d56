// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// Compression selects the codec applied to every entry of an archive.
type Compression uint8

const (
	CompressionNone   Compression = 0
	CompressionZIP    Compression = 1 // zlib deflate
	CompressionLZ4    Compression = 2
	CompressionZstd   Compression = 3
	CompressionSnappy Compression = 4
	CompressionLZMA   Compression = 5
)

// MaxLevel is the highest compression level accepted.
const MaxLevel = 9

// maxWindowSize bounds the LZMA dictionary or zstd window a stored stream
// may ask the decoder to allocate.
const maxWindowSize = 1 << 26

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZIP:
		return "zip"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZMA:
		return "lzma"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Valid returns a nil error iff c is a known method.
func (c Compression) Valid() error {
	if c <= CompressionLZMA {
		return nil
	}
	return newError(KindInvalidValue, "compression", "", fmt.Errorf("unknown method 0x%02x", uint8(c)))
}

// ParseCompression maps a CLI name to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "none", "store", "":
		return CompressionNone, nil
	case "zip", "zlib", "deflate":
		return CompressionZIP, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "zstandard":
		return CompressionZstd, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lzma":
		return CompressionLZMA, nil
	}
	return 0, newError(KindInvalidValue, "parse compression", "", fmt.Errorf("unknown method %q", s))
}

// Compress compresses data with the given method and level (0..9).
func Compress(data []byte, method Compression, level int) ([]byte, error) {
	if level < 0 || level > MaxLevel {
		return nil, newError(KindInvalidValue, "compress", "", fmt.Errorf("level %d outside 0..%d", level, MaxLevel))
	}

	switch method {
	case CompressionNone:
		return data, nil

	case CompressionZIP:
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, level)
		if err != nil {
			return nil, compressError("create zlib writer", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, compressError("zlib write", err)
		}
		if err := w.Close(); err != nil {
			return nil, compressError("zlib close", err)
		}
		return buf.Bytes(), nil

	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if err := w.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
			return nil, compressError("configure lz4 writer", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, compressError("lz4 write", err)
		}
		if err := w.Close(); err != nil {
			return nil, compressError("lz4 close", err)
		}
		return buf.Bytes(), nil

	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)), zstd.WithZeroFrames(true))
		if err != nil {
			return nil, compressError("create zstd encoder", err)
		}
		out := enc.EncodeAll(data, nil)
		if err := enc.Close(); err != nil {
			return nil, compressError("zstd close", err)
		}
		return out, nil

	case CompressionSnappy:
		return snappy.Encode(nil, data), nil

	case CompressionLZMA:
		var buf bytes.Buffer
		w, err := lzma.NewWriter(&buf)
		if err != nil {
			return nil, compressError("create lzma writer", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, compressError("lzma write", err)
		}
		if err := w.Close(); err != nil {
			return nil, compressError("lzma close", err)
		}
		return buf.Bytes(), nil
	}

	return nil, method.Valid()
}

// Decompress decompresses data that must expand to exactly size bytes. At
// most size+1 bytes are ever produced, which bounds memory for hostile input.
func Decompress(data []byte, method Compression, size uint64) ([]byte, error) {
	if size >= math.MaxInt64 {
		return nil, newError(KindCorrupted, "decompress", "", fmt.Errorf("declared size %d too large", size))
	}

	switch method {
	case CompressionNone:
		if uint64(len(data)) != size {
			return nil, sizeMismatch(size, uint64(len(data)))
		}
		return data, nil

	case CompressionZIP:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, newError(KindCorrupted, "decompress", "", fmt.Errorf("create zlib reader: %w", err))
		}
		defer r.Close()
		return readExact(r, size, "zlib")

	case CompressionLZ4:
		return readExact(lz4.NewReader(bytes.NewReader(data)), size, "lz4")

	case CompressionZstd:
		dec, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxWindow(maxWindowSize))
		if err != nil {
			return nil, newError(KindCorrupted, "decompress", "", fmt.Errorf("create zstd reader: %w", err))
		}
		defer dec.Close()
		return readExact(dec, size, "zstd")

	case CompressionSnappy:
		n, err := snappy.DecodedLen(data)
		if err != nil {
			return nil, newError(KindCorrupted, "decompress", "", fmt.Errorf("snappy header: %w", err))
		}
		if uint64(n) != size {
			return nil, sizeMismatch(size, uint64(n))
		}
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, newError(KindCorrupted, "decompress", "", fmt.Errorf("snappy decode: %w", err))
		}
		return out, nil

	case CompressionLZMA:
		if len(data) >= lzma.HeaderLen {
			if dictCap := binary.LittleEndian.Uint32(data[1:5]); dictCap > maxWindowSize {
				return nil, newError(KindCorrupted, "decompress", "", fmt.Errorf("lzma dictionary of %d bytes exceeds %d", dictCap, maxWindowSize))
			}
		}
		r, err := lzma.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, newError(KindCorrupted, "decompress", "", fmt.Errorf("create lzma reader: %w", err))
		}
		return readExact(r, size, "lzma")
	}

	return nil, method.Valid()
}

func readExact(r io.Reader, size uint64, codec string) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, int64(size)+1))
	if err != nil {
		return nil, newError(KindCorrupted, "decompress", "", fmt.Errorf("%s: %w", codec, err))
	}
	if uint64(len(out)) != size {
		return nil, sizeMismatch(size, uint64(len(out)))
	}
	return out, nil
}

func compressError(what string, err error) error {
	return newError(KindIO, "compress", "", fmt.Errorf("%s: %w", what, err))
}

func sizeMismatch(want, got uint64) error {
	if got > want {
		return newError(KindCorrupted, "decompress", "", fmt.Errorf("expected %d bytes, got more", want))
	}
	return newError(KindCorrupted, "decompress", "", fmt.Errorf("expected %d bytes, got %d", want, got))
}
