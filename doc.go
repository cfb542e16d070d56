// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package arcsys reads and writes ARS archives: a single-file container that
stores a directory tree of files, each compressed and optionally encrypted
on its own, so that one file can be read without touching the others.

# Layout

An archive is a fixed header, one [EntryHeader] plus payload per file, and a
directory block holding the encoded tree. Tree leaves store the offset of
their entry header. Format version 2 (current) encodes the tree as CBOR and
adds an archive id; versions 0 and 1 use a JSON tree and are still read.

# Basic Usage

Packing a folder:

	opts := arcsys.DefaultOptions()
	opts.Password = "secret"
	if err := arcsys.Pack("assets.ars", "assets/", opts); err != nil {
		log.Fatal(err)
	}

Reading one file:

	archive, err := arcsys.OpenArchive("assets.ars", "secret")
	if err != nil {
		log.Fatal(err)
	}
	defer archive.Close()

	text, err := archive.GetTextFile("config/game.json")

Extracting everything:

	err = arcsys.Unpack("assets.ars", "out/", "secret")

# Errors

Every error returned by the package carries an [ErrorKind]. Test for a class
with errors.Is against the sentinels:

	if errors.Is(err, arcsys.ErrWrongPassword) { ... }

With AES-256-CBC a wrong password and damaged data cannot be told apart;
both surface as [KindWrongPassword]. AES-256-GCM detects tampering through
its tag, with the same error kind.

# Paths

Logical paths use forward slashes; backslashes are accepted and converted.
Entry names are checked when packing and again when reading, and
[FileArchive.UnpackTo] refuses to write outside its destination.
*/
package arcsys
