// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Encryption selects the cipher applied to every entry of an archive.
type Encryption uint8

const (
	EncryptionNone Encryption = 0
	// EncryptionAES256 is AES-256-CBC with PKCS#7 padding. The 16-byte entry
	// block is the IV.
	EncryptionAES256 Encryption = 1
	// EncryptionAES256GCM is AES-256-GCM. The first 12 bytes of the entry
	// block are the nonce; the tag is appended to the ciphertext.
	EncryptionAES256GCM Encryption = 2
)

const (
	// KeySize is the length of the key returned by HashPassword.
	KeySize = 32
	// BlockSize is the length of the per-entry IV/nonce block.
	BlockSize = aes.BlockSize

	gcmNonceSize = 12
	gcmTagSize   = 16
)

func (e Encryption) String() string {
	switch e {
	case EncryptionNone:
		return "none"
	case EncryptionAES256:
		return "aes256"
	case EncryptionAES256GCM:
		return "aes256-gcm"
	default:
		return fmt.Sprintf("encryption(%d)", uint8(e))
	}
}

// Valid returns a nil error iff e is a known method.
func (e Encryption) Valid() error {
	switch e {
	case EncryptionNone, EncryptionAES256, EncryptionAES256GCM:
		return nil
	}
	return newError(KindInvalidValue, "encryption", "", fmt.Errorf("unknown method 0x%02x", uint8(e)))
}

// ParseEncryption maps a CLI name to an Encryption.
func ParseEncryption(s string) (Encryption, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return EncryptionNone, nil
	case "aes256", "aes-256", "aes256-cbc":
		return EncryptionAES256, nil
	case "aes256-gcm", "aes-256-gcm", "gcm":
		return EncryptionAES256GCM, nil
	}
	return 0, newError(KindInvalidValue, "parse encryption", "", fmt.Errorf("unknown method %q", s))
}

// HashPassword derives a fixed-length key from a password with SHA3-256.
func HashPassword(password string) []byte {
	sum := sha3.Sum256([]byte(password))
	return sum[:]
}

// GenerateBlock returns a fresh, unpredictable 16-byte IV block.
func GenerateBlock() ([]byte, error) {
	block := make([]byte, BlockSize)
	if _, err := rand.Read(block); err != nil {
		return nil, newError(KindCrypto, "generate block", "", err)
	}
	return block, nil
}

// Encrypt encrypts data with the given method. If block is nil a new one is
// generated; the block actually used is returned so the caller can store it
// in the entry header.
func Encrypt(data, key []byte, method Encryption, block []byte) ([]byte, []byte, error) {
	if method == EncryptionNone {
		return data, block, nil
	}
	if err := method.Valid(); err != nil {
		return nil, nil, err
	}
	if len(key) == 0 {
		return nil, nil, newError(KindCrypto, "encrypt", "", errors.New("encryption requested without key material"))
	}
	if block == nil {
		var err error
		if block, err = GenerateBlock(); err != nil {
			return nil, nil, err
		}
	}
	if len(block) != BlockSize {
		return nil, nil, newError(KindInvalidValue, "encrypt", "", fmt.Errorf("block must be %d bytes, got %d", BlockSize, len(block)))
	}

	c, err := newCipher(key)
	if err != nil {
		return nil, nil, err
	}

	switch method {
	case EncryptionAES256:
		padded := pkcs7Pad(data, aes.BlockSize)
		out := make([]byte, len(padded))
		cipher.NewCBCEncrypter(c, block).CryptBlocks(out, padded)
		return out, block, nil
	default:
		gcm, err := cipher.NewGCM(c)
		if err != nil {
			return nil, nil, newError(KindCrypto, "encrypt", "", fmt.Errorf("create GCM: %w", err))
		}
		return gcm.Seal(nil, block[:gcmNonceSize], data, nil), block, nil
	}
}

// Decrypt reverses Encrypt. A wrong key usually surfaces here as a padding
// or tag failure, but under CBC it may also pass and leave garbage for the
// decompression and checksum steps to catch.
func Decrypt(data, key []byte, method Encryption, block []byte) ([]byte, error) {
	if method == EncryptionNone {
		return data, nil
	}
	if err := method.Valid(); err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, newError(KindCrypto, "decrypt", "", errors.New("decryption requested without key material"))
	}
	if len(block) != BlockSize {
		return nil, newError(KindInvalidValue, "decrypt", "", fmt.Errorf("block must be %d bytes, got %d", BlockSize, len(block)))
	}

	c, err := newCipher(key)
	if err != nil {
		return nil, err
	}

	switch method {
	case EncryptionAES256:
		if len(data) == 0 || len(data)%aes.BlockSize != 0 {
			return nil, newError(KindCrypto, "decrypt", "", fmt.Errorf("ciphertext length %d is not a positive multiple of %d", len(data), aes.BlockSize))
		}
		out := make([]byte, len(data))
		cipher.NewCBCDecrypter(c, block).CryptBlocks(out, data)
		plain, err := pkcs7Unpad(out, aes.BlockSize)
		if err != nil {
			return nil, newError(KindCrypto, "decrypt", "", err)
		}
		return plain, nil
	default:
		if len(data) < gcmTagSize {
			return nil, newError(KindCrypto, "decrypt", "", fmt.Errorf("ciphertext shorter than tag"))
		}
		gcm, err := cipher.NewGCM(c)
		if err != nil {
			return nil, newError(KindCrypto, "decrypt", "", fmt.Errorf("create GCM: %w", err))
		}
		plain, err := gcm.Open(nil, block[:gcmNonceSize], data, nil)
		if err != nil {
			return nil, newError(KindCrypto, "decrypt", "", errors.New("authentication failed"))
		}
		return plain, nil
	}
}

// newCipher accepts raw 32-byte keys as-is and hashes anything else down to
// KeySize, so short pre-shared keys still give AES-256.
func newCipher(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		sum := sha3.Sum256(key)
		key = sum[:]
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, newError(KindCrypto, "create cipher", "", err)
	}
	return c, nil
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}

// resolveKey picks explicit key material over a password. Empty results mean
// "no key".
func resolveKey(key []byte, password string) []byte {
	if len(key) > 0 {
		return key
	}
	if password == "" {
		return nil
	}
	return HashPassword(password)
}
