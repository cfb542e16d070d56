// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every error returned at the package boundary.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	// KindInvalidFormat: bad magic, bad sizes, truncated stream, malformed tree.
	KindInvalidFormat
	// KindUnsupportedVersion: the archive needs a newer (or older) reader.
	KindUnsupportedVersion
	// KindCrypto: key material or cipher failure in the primitives.
	KindCrypto
	// KindWrongPassword: an encrypted entry failed to decrypt, decompress or
	// checksum. CBC gives no way to tell a wrong password from corruption.
	KindWrongPassword
	// KindCorrupted: an unencrypted entry failed to decompress or checksum.
	KindCorrupted
	KindFileNotFound
	KindIO
	KindInvalidValue
	KindAlreadyOpen
	KindNotOpen
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidFormat:
		return "invalid format"
	case KindUnsupportedVersion:
		return "unsupported version"
	case KindCrypto:
		return "crypto error"
	case KindWrongPassword:
		return "wrong password or corrupted data"
	case KindCorrupted:
		return "corrupted data"
	case KindFileNotFound:
		return "file not found"
	case KindIO:
		return "i/o error"
	case KindInvalidValue:
		return "invalid value"
	case KindAlreadyOpen:
		return "archive already open"
	case KindNotOpen:
		return "archive not open"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by archive operations.
type Error struct {
	Kind   ErrorKind
	Op     string // operation, e.g. "open", "pack", "read entry"
	Path   string // file system or logical path, if any
	Offset int64  // stream offset, -1 when not applicable
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so the sentinel
// values below can be used with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidFormat      = &Error{Kind: KindInvalidFormat, Offset: -1}
	ErrUnsupportedVersion = &Error{Kind: KindUnsupportedVersion, Offset: -1}
	ErrCrypto             = &Error{Kind: KindCrypto, Offset: -1}
	ErrWrongPassword      = &Error{Kind: KindWrongPassword, Offset: -1}
	ErrCorrupted          = &Error{Kind: KindCorrupted, Offset: -1}
	ErrFileNotFound       = &Error{Kind: KindFileNotFound, Offset: -1}
	ErrIO                 = &Error{Kind: KindIO, Offset: -1}
	ErrInvalidValue       = &Error{Kind: KindInvalidValue, Offset: -1}
	ErrAlreadyOpen        = &Error{Kind: KindAlreadyOpen, Offset: -1}
	ErrNotOpen            = &Error{Kind: KindNotOpen, Offset: -1}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind ErrorKind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Offset: -1, Err: err}
}

func newErrorAt(kind ErrorKind, op, path string, offset int64, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Offset: offset, Err: err}
}

// wrapError keeps an existing *Error's kind and offset but fills in the
// operation and path when they are missing.
func wrapError(kind ErrorKind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		out := *e
		if out.Op == "" {
			out.Op = op
		}
		if out.Path == "" {
			out.Path = path
		}
		return &out
	}
	return newError(kind, op, path, err)
}
