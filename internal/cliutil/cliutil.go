// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package cliutil holds the pieces shared by the arc command line tools.
package cliutil

import (
	"errors"
	"fmt"
	"io"

	"github.com/suprsokr/go-arcsys/pkg/keyfile"
	"github.com/suprsokr/go-arcsys/pkg/logging"
	"github.com/suprsokr/go-arcsys/pkg/metrics"
)

// Exit codes
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// ErrUsage marks command line mistakes; commands exit with ExitUsage.
var ErrUsage = errors.New("usage error")

// Usagef returns an error wrapping ErrUsage.
func Usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// NewLogger returns a JSON logger on w at the named level.
func NewLogger(w io.Writer, level string) logging.Logger {
	return logging.NewJSONLogger(w, logging.ParseLevel(level))
}

// Credentials resolves the key material for a command: a key file wins over
// a password. Both empty means no encryption.
func Credentials(keyPath, password string) (key []byte, pass string, err error) {
	if keyPath != "" {
		if password != "" {
			return nil, "", Usagef("give either a password or -keyfile, not both")
		}
		k, err := keyfile.LoadKey(keyPath)
		if err != nil {
			return nil, "", err
		}
		return k, "", nil
	}
	return nil, password, nil
}

// NewMetrics returns a registry when path is set, nil otherwise.
func NewMetrics(path string) *metrics.Registry {
	if path == "" {
		return nil
	}
	return metrics.NewRegistry()
}

// FlushMetrics writes reg to path when both are set.
func FlushMetrics(reg *metrics.Registry, path string) error {
	if reg == nil || path == "" {
		return nil
	}
	if err := reg.WriteTextfile(path); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// Report prints err on stderr in one line and returns the exit code for it.
func Report(stderr io.Writer, prog string, err error) int {
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(stderr, "%s: %v\n", prog, err)
	if errors.Is(err, ErrUsage) {
		return ExitUsage
	}
	return ExitError
}
