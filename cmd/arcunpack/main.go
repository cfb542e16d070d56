// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Command arcunpack extracts an archive into a folder, or lists it.
//
//	arcunpack [flags] <archivePath> <destFolderPath> [password]
//	arcunpack -list [flags] <archivePath> [password]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	arcsys "github.com/suprsokr/go-arcsys"
	"github.com/suprsokr/go-arcsys/internal/cliutil"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("arcunpack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyFile := fs.String("keyfile", "", "Key file written by arcgen (instead of a password)")
	skipCorrupt := fs.Bool("skip-corrupt", false, "Extract what can be read and report corrupted entries")
	list := fs.Bool("list", false, "List the files instead of extracting")
	logLevel := fs.String("log-level", "warn", "Log level: debug, info, warn, error")
	metricsFile := fs.String("metrics-file", "", "Write Prometheus metrics to this file")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: arcunpack [flags] <archivePath> <destFolderPath> [password]")
		fmt.Fprintln(stderr, "       arcunpack -list [flags] <archivePath> [password]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cliutil.ExitUsage
	}

	var archivePath, dest, password string
	switch {
	case *list && (fs.NArg() == 1 || fs.NArg() == 2):
		archivePath, password = fs.Arg(0), fs.Arg(1)
	case !*list && (fs.NArg() == 2 || fs.NArg() == 3):
		archivePath, dest, password = fs.Arg(0), fs.Arg(1), fs.Arg(2)
	default:
		fs.Usage()
		return cliutil.ExitUsage
	}

	key, password, err := cliutil.Credentials(*keyFile, password)
	if err != nil {
		return cliutil.Report(stderr, "arcunpack", err)
	}

	reg := cliutil.NewMetrics(*metricsFile)
	opts := []arcsys.OpenOption{
		arcsys.WithKey(key),
		arcsys.WithLogger(cliutil.NewLogger(stderr, *logLevel)),
		arcsys.WithMetrics(reg),
	}
	if *skipCorrupt {
		opts = append(opts, arcsys.WithCorruptPolicy(arcsys.OnCorruptSkip))
	}

	if *list {
		err = listArchive(stdout, archivePath, password, opts)
	} else {
		err = arcsys.Unpack(archivePath, dest, password, opts...)
	}
	if merr := cliutil.FlushMetrics(reg, *metricsFile); err == nil {
		err = merr
	}

	var report *arcsys.UnpackReport
	if errors.As(err, &report) {
		for _, s := range report.Skipped {
			fmt.Fprintf(stderr, "arcunpack: skipped %s: %v\n", s.Path, s.Err)
		}
	}
	if err != nil {
		return cliutil.Report(stderr, "arcunpack", err)
	}
	if !*list {
		fmt.Fprintf(stdout, "unpacked %s to %s\n", archivePath, dest)
	}
	return cliutil.ExitOK
}

func listArchive(w io.Writer, path, password string, opts []arcsys.OpenOption) error {
	a, err := arcsys.OpenArchive(path, password, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	h := a.Header()
	fmt.Fprintf(w, "# version %d, %s, %s\n", h.Version, h.Encryption, h.Compression)
	if h.SingleFile() {
		fmt.Fprintln(w, "(single file)")
		return nil
	}
	files, err := a.ListFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintln(w, f)
	}
	return nil
}
