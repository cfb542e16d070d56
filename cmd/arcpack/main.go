// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Command arcpack packs a folder (or, with -single, one file) into an archive.
//
//	arcpack [flags] <archivePath> <folderPath> [password]
//
// Without a password or -keyfile the archive is not encrypted.
package main

import (
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

type config struct {
	archive, source, password string

	keyFile     string
	encryption  string
	compression string
	level       int
	noCRC       bool
	single      bool
	version     uint
	logLevel    string
	metricsFile string

	encryptionSet bool
}

func parseArgs(args []string, stderr io.Writer) (*config, error) {
	cfg := &config{}
	fs := flag.NewFlagSet("arcpack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.keyFile, "keyfile", "", "Key file written by arcgen (instead of a password)")
	fs.StringVar(&cfg.encryption, "encryption", "aes256", "Encryption: none, aes256, aes256-gcm")
	fs.StringVar(&cfg.compression, "compression", "zip", "Compression: none, zip, lz4, zstd, snappy, lzma")
	fs.IntVar(&cfg.level, "level", arcsys.MaxLevel, "Compression level 0-9")
	fs.BoolVar(&cfg.noCRC, "no-crc", false, "Do not ask readers to verify checksums")
	fs.BoolVar(&cfg.single, "single", false, "Pack a single file as a single-file archive")
	fs.UintVar(&cfg.version, "format-version", uint(arcsys.CurrentVersion), "Archive format version to write")
	fs.StringVar(&cfg.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: arcpack [flags] <archivePath> <folderPath> [password]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, cliutil.Usagef("%v", err)
	}
	if fs.NArg() < 2 || fs.NArg() > 3 {
		fs.Usage()
		return nil, cliutil.Usagef("expected 2 or 3 arguments, got %d", fs.NArg())
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "encryption" {
			cfg.encryptionSet = true
		}
	})

	cfg.archive, cfg.source = fs.Arg(0), fs.Arg(1)
	cfg.password = fs.Arg(2)
	return cfg, nil
}

func (c *config) options() (arcsys.Options, error) {
	opts := arcsys.DefaultOptions()

	enc, err := arcsys.ParseEncryption(c.encryption)
	if err != nil {
		return opts, cliutil.Usagef("%v", err)
	}
	comp, err := arcsys.ParseCompression(c.compression)
	if err != nil {
		return opts, cliutil.Usagef("%v", err)
	}
	key, password, err := cliutil.Credentials(c.keyFile, c.password)
	if err != nil {
		return opts, err
	}
	if len(key) == 0 && password == "" && !c.encryptionSet {
		enc = arcsys.EncryptionNone
	}
	if c.version > uint(arcsys.CurrentVersion) {
		return opts, cliutil.Usagef("format version %d is newer than %d", c.version, arcsys.CurrentVersion)
	}

	opts.Key = key
	opts.Password = password
	opts.Encryption = enc
	opts.Compression = comp
	opts.Level = c.level
	opts.VerifyChecksum = !c.noCRC
	opts.Version = uint16(c.version)
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		return cliutil.Report(stderr, "arcpack", err)
	}
	opts, err := cfg.options()
	if err != nil {
		return cliutil.Report(stderr, "arcpack", err)
	}
	opts.Logger = cliutil.NewLogger(stderr, cfg.logLevel)
	opts.Metrics = cliutil.NewMetrics(cfg.metricsFile)

	if cfg.single {
		err = arcsys.PackFile(cfg.archive, cfg.source, opts)
	} else {
		err = arcsys.Pack(cfg.archive, cfg.source, opts)
	}
	if merr := cliutil.FlushMetrics(opts.Metrics, cfg.metricsFile); err == nil {
		err = merr
	}
	if err != nil {
		return cliutil.Report(stderr, "arcpack", err)
	}
	fmt.Fprintf(stdout, "packed %s (%s, %s)\n", cfg.archive, opts.Encryption, opts.Compression)
	return cliutil.ExitOK
}
