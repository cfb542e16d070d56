// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package logging

import "time"

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field        { return Field{Key: key, Value: value} }
func Int(key string, value int) Field       { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field     { return Field{Key: key, Value: value} }
func Any(key string, value any) Field       { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Common keys used by the archive code.

func Component(name string) Field   { return String("component", name) }
func Operation(op string) Field     { return String("operation", op) }
func Path(p string) Field           { return String("path", p) }
func Entry(p string) Field          { return String("entry", p) }
func Count(n int) Field             { return Int("count", n) }
func Bytes(n uint64) Field          { return Uint64("bytes", n) }
func Latency(d time.Duration) Field { return Duration("latency", d) }
