// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Command arcgen derives archive key material from a password and writes it
// as a YAML key file.
//
//	arcgen [-o file] <password>
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/suprsokr/go-arcsys/internal/cliutil"
	"github.com/suprsokr/go-arcsys/pkg/keyfile"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("arcgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("o", "arcsys.key", "Output key file")
	comment := fs.String("comment", "", "Free-form comment stored in the key file")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: arcgen [-o file] <password>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cliutil.ExitUsage
	}
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		fs.Usage()
		return cliutil.ExitUsage
	}

	k := keyfile.Generate(fs.Arg(0))
	k.Comment = *comment
	if err := k.Write(*out); err != nil {
		return cliutil.Report(stderr, "arcgen", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", *out)
	return cliutil.ExitOK
}
