// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import "hash/crc32"

// Checksum returns the CRC-32 (IEEE) of data, as stored in entry headers.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
