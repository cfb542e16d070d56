// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package arcsys

import (
	"bytes"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	a := HashPassword("secret")
	assert.Len(t, a, KeySize)
	assert.Equal(t, a, HashPassword("secret"))
	assert.NotEqual(t, a, HashPassword("secret2"))
	assert.Len(t, HashPassword(""), KeySize)
}

func TestEncryptRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	for _, method := range []Encryption{EncryptionAES256, EncryptionAES256GCM} {
		method := method
		properties.Property("decrypt inverts encrypt with "+method.String(), prop.ForAll(
			func(data []byte, password string) bool {
				key := HashPassword("p" + password)
				ct, block, err := Encrypt(data, key, method, nil)
				if err != nil || len(block) != BlockSize {
					return false
				}
				pt, err := Decrypt(ct, key, method, block)
				return err == nil && bytes.Equal(pt, data)
			},
			gen.SliceOf(gen.UInt8()),
			gen.AnyString(),
		))
	}

	properties.TestingRun(t)
}

func TestEncryptNoneIsIdentity(t *testing.T) {
	data := []byte("plain")
	ct, _, err := Encrypt(data, nil, EncryptionNone, nil)
	require.NoError(t, err)
	assert.Equal(t, data, ct)

	pt, err := Decrypt(ct, nil, EncryptionNone, nil)
	require.NoError(t, err)
	assert.Equal(t, data, pt)
}

func TestEncryptErrors(t *testing.T) {
	key := HashPassword("k")

	_, _, err := Encrypt([]byte("x"), nil, EncryptionAES256, nil)
	assert.True(t, errors.Is(err, ErrCrypto), "empty key: %v", err)

	_, _, err = Encrypt([]byte("x"), key, EncryptionAES256, make([]byte, 8))
	assert.True(t, errors.Is(err, ErrInvalidValue), "short block: %v", err)

	_, _, err = Encrypt([]byte("x"), key, Encryption(9), nil)
	assert.True(t, errors.Is(err, ErrInvalidValue), "unknown method: %v", err)

	_, err = Decrypt([]byte("not a multiple"), key, EncryptionAES256, make([]byte, BlockSize))
	assert.True(t, errors.Is(err, ErrCrypto), "bad length: %v", err)
}

func TestEncryptFreshBlocks(t *testing.T) {
	key := HashPassword("k")
	data := []byte("same plaintext")

	ct1, b1, err := Encrypt(data, key, EncryptionAES256, nil)
	require.NoError(t, err)
	ct2, b2, err := Encrypt(data, key, EncryptionAES256, nil)
	require.NoError(t, err)

	assert.NotEqual(t, b1, b2)
	assert.NotEqual(t, ct1, ct2)
}

func TestGCMDetectsTampering(t *testing.T) {
	key := HashPassword("k")
	ct, block, err := Encrypt([]byte("authenticated payload"), key, EncryptionAES256GCM, nil)
	require.NoError(t, err)

	ct[3] ^= 0x01
	_, err = Decrypt(ct, key, EncryptionAES256GCM, block)
	assert.True(t, errors.Is(err, ErrCrypto), "tampered: %v", err)
}

func TestDecryptWrongKeyNeverMatches(t *testing.T) {
	data := []byte("hello archive payload")
	ct, block, err := Encrypt(data, HashPassword("right"), EncryptionAES256, nil)
	require.NoError(t, err)

	pt, err := Decrypt(ct, HashPassword("wrong"), EncryptionAES256, block)
	if err == nil {
		assert.NotEqual(t, Checksum(data), Checksum(pt))
	}
}

func TestShortKeysAreHashed(t *testing.T) {
	ct, block, err := Encrypt([]byte("x"), []byte("short"), EncryptionAES256, nil)
	require.NoError(t, err)
	pt, err := Decrypt(ct, []byte("short"), EncryptionAES256, block)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), pt)
}

func TestParseEncryption(t *testing.T) {
	tests := []struct {
		in   string
		want Encryption
	}{
		{"none", EncryptionNone},
		{"AES256", EncryptionAES256},
		{"aes256-gcm", EncryptionAES256GCM},
		{"gcm", EncryptionAES256GCM},
	}
	for _, tt := range tests {
		got, err := ParseEncryption(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.NoError(t, got.Valid())
	}
	_, err := ParseEncryption("des")
	assert.Error(t, err)
}

func TestPKCS7(t *testing.T) {
	for n := 0; n < 40; n++ {
		data := bytes.Repeat([]byte{0xAB}, n)
		padded := pkcs7Pad(data, 16)
		require.Zero(t, len(padded)%16)
		require.Greater(t, len(padded), n)
		out, err := pkcs7Unpad(padded, 16)
		require.NoError(t, err)
		require.Equal(t, data, out)
	}

	bad := bytes.Repeat([]byte{0x05}, 16)
	bad[15] = 0x11
	_, err := pkcs7Unpad(bad, 16)
	assert.Error(t, err)
}

func TestResolveKey(t *testing.T) {
	assert.Nil(t, resolveKey(nil, ""))
	assert.Equal(t, HashPassword("pw"), resolveKey(nil, "pw"))
	assert.Equal(t, []byte("raw"), resolveKey([]byte("raw"), "pw"))
}
