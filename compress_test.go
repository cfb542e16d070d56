// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"bytes"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allCompressions = []Compression{
	CompressionNone, CompressionZIP, CompressionLZ4,
	CompressionZstd, CompressionSnappy, CompressionLZMA,
}

func TestCompressRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	for _, method := range allCompressions {
		method := method
		properties.Property("decompress inverts compress with "+method.String(), prop.ForAll(
			func(data []byte, level int) bool {
				comp, err := Compress(data, method, level)
				if err != nil {
					return false
				}
				out, err := Decompress(comp, method, uint64(len(data)))
				return err == nil && bytes.Equal(out, data)
			},
			gen.SliceOf(gen.UInt8()),
			gen.IntRange(0, MaxLevel),
		))
	}

	properties.TestingRun(t)
}

func TestCompressShrinksRepetitiveData(t *testing.T) {
	data := bytes.Repeat([]byte("archive entry "), 4096)
	for _, method := range allCompressions[1:] {
		t.Run(method.String(), func(t *testing.T) {
			comp, err := Compress(data, method, MaxLevel)
			require.NoError(t, err)
			assert.Less(t, len(comp), len(data)/4)
		})
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	data := []byte("exactly these bytes")
	for _, method := range allCompressions {
		t.Run(method.String(), func(t *testing.T) {
			comp, err := Compress(data, method, 6)
			require.NoError(t, err)

			_, err = Decompress(comp, method, uint64(len(data))+1)
			assert.True(t, errors.Is(err, ErrCorrupted), "too short: %v", err)

			_, err = Decompress(comp, method, uint64(len(data))-1)
			assert.True(t, errors.Is(err, ErrCorrupted), "too long: %v", err)
		})
	}
}

func TestDecompressGarbage(t *testing.T) {
	garbage := bytes.Repeat([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 16)
	for _, method := range allCompressions[1:] {
		t.Run(method.String(), func(t *testing.T) {
			_, err := Decompress(garbage, method, 1000)
			assert.True(t, errors.Is(err, ErrCorrupted), "%v", err)
		})
	}
}

func TestDecompressRejectsHugeWindows(t *testing.T) {
	tests := []struct {
		name   string
		method Compression
		data   []byte
	}{
		// frame header asking for a 128 MiB window, then an empty last raw block
		{"zstd", CompressionZstd, []byte{0x28, 0xB5, 0x2F, 0xFD, 0x00, 0x88, 0x01, 0x00, 0x00}},
		// properties byte, 128 MiB dictionary, unknown size
		{"lzma", CompressionLZMA, []byte{0x5D, 0x00, 0x00, 0x00, 0x08, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decompress(tt.data, tt.method, 0)
			assert.True(t, errors.Is(err, ErrCorrupted), "%v", err)
		})
	}
}

func TestCompressFailuresCarryKind(t *testing.T) {
	inner := errors.New("short write")
	err := compressError("zlib write", inner)
	assert.Equal(t, KindIO, KindOf(err))
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "zlib write")
}

func TestCompressRejectsBadInput(t *testing.T) {
	_, err := Compress([]byte("x"), CompressionZIP, MaxLevel+1)
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, err = Compress([]byte("x"), Compression(42), 1)
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, err = Decompress([]byte("x"), Compression(42), 1)
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestParseCompression(t *testing.T) {
	for _, method := range allCompressions {
		got, err := ParseCompression(method.String())
		require.NoError(t, err)
		assert.Equal(t, method, got)
	}
	got, err := ParseCompression("deflate")
	require.NoError(t, err)
	assert.Equal(t, CompressionZIP, got)

	_, err = ParseCompression("rar")
	assert.Error(t, err)
}
