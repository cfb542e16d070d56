// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"errors"
	"fmt"
	"sort"
)

// Chain is a prioritized list of archives, such as a base archive followed
// by patches. A logical path resolves to the last archive that holds it.
type Chain struct {
	archives []*FileArchive
	fileMap  map[string]int // cleaned logical path -> archive index
}

// OpenChain opens archives in order of increasing priority. The last path
// has the highest priority. All archives share password and opts.
func OpenChain(paths []string, password string, opts ...OpenOption) (*Chain, error) {
	archives := make([]*FileArchive, 0, len(paths))
	for _, path := range paths {
		archive, err := OpenArchive(path, password, opts...)
		if err != nil {
			for _, opened := range archives {
				_ = opened.Close()
			}
			return nil, wrapError(KindIO, "open chain", path, err)
		}
		archives = append(archives, archive)
	}

	chain := &Chain{archives: archives}
	if err := chain.rebuildFileMap(); err != nil {
		chain.Close()
		return nil, err
	}
	return chain, nil
}

// rebuildFileMap maps every file to the highest-priority archive holding it.
func (c *Chain) rebuildFileMap() error {
	c.fileMap = make(map[string]int)

	// Highest priority first, so earlier entries win.
	for i := len(c.archives) - 1; i >= 0; i-- {
		files, err := c.archives[i].ListFiles()
		if err != nil {
			return err
		}
		for _, file := range files {
			if _, exists := c.fileMap[file]; !exists {
				c.fileMap[file] = i
			}
		}
	}
	return nil
}

// Close closes all archives in the chain and returns the first error.
func (c *Chain) Close() error {
	var firstErr error
	for _, archive := range c.archives {
		if err := archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Chain) resolve(op, logical string) (*FileArchive, error) {
	idx, found := c.fileMap[cleanLogical(logical)]
	if !found {
		return nil, newError(KindFileNotFound, op, logical, errors.New("not found in chain"))
	}
	return c.archives[idx], nil
}

// HasFile reports whether any archive in the chain holds logical.
func (c *Chain) HasFile(logical string) bool {
	_, found := c.fileMap[cleanLogical(logical)]
	return found
}

// Source returns the path of the archive that logical resolves to.
func (c *Chain) Source(logical string) (string, error) {
	a, err := c.resolve("source", logical)
	if err != nil {
		return "", err
	}
	return a.Path(), nil
}

// GetBinaryFile returns the highest-priority version of logical.
func (c *Chain) GetBinaryFile(logical string) ([]byte, error) {
	a, err := c.resolve("get file", logical)
	if err != nil {
		return nil, err
	}
	data, err := a.GetBinaryFile(cleanLogical(logical))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.Path(), err)
	}
	return data, nil
}

// GetTextFile returns the highest-priority version of logical as a string.
func (c *Chain) GetTextFile(logical string) (string, error) {
	data, err := c.GetBinaryFile(logical)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ExtractFile writes the highest-priority version of logical to destPath.
func (c *Chain) ExtractFile(logical, destPath string) error {
	data, err := c.GetBinaryFile(logical)
	if err != nil {
		return err
	}
	return writeOut(destPath, data)
}

// ListFiles returns the sorted union of files across the chain.
func (c *Chain) ListFiles() []string {
	result := make([]string, 0, len(c.fileMap))
	for file := range c.fileMap {
		result = append(result, file)
	}
	sort.Strings(result)
	return result
}

// ArchiveCount returns the number of archives in the chain.
func (c *Chain) ArchiveCount() int {
	return len(c.archives)
}
