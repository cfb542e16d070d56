// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package keyfile reads and writes the YAML key artifact produced by arcgen.
// A key file holds the derived key rather than the password, so it can be
// handed to arcpack and arcunpack with -keyfile.
package keyfile

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	arcsys "github.com/suprsokr/go-arcsys"
)

// Algorithm is the only key derivation recorded in key files.
const Algorithm = "sha3-256"

// KeyFile is the on-disk key artifact.
type KeyFile struct {
	Algorithm string    `yaml:"algorithm" validate:"required,eq=sha3-256"`
	Key       string    `yaml:"key" validate:"required,hexadecimal,len=64"`
	Created   time.Time `yaml:"created"`
	Comment   string    `yaml:"comment,omitempty"`
}

var validate = validator.New()

// Generate derives a key file from password.
func Generate(password string) *KeyFile {
	return &KeyFile{
		Algorithm: Algorithm,
		Key:       hex.EncodeToString(arcsys.HashPassword(password)),
		Created:   time.Now().UTC().Truncate(time.Second),
	}
}

// Validate checks the algorithm and key encoding.
func (k *KeyFile) Validate() error {
	if err := validate.Struct(k); err != nil {
		return fmt.Errorf("invalid key file: %w", err)
	}
	return nil
}

// Bytes returns the raw key material.
func (k *KeyFile) Bytes() ([]byte, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(k.Key)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return key, nil
}

// Write saves the key file to path, readable by the owner only.
func (k *KeyFile) Write(path string) error {
	if err := k.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(k)
	if err != nil {
		return fmt.Errorf("marshal key file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// Load reads and validates the key file at path.
func Load(path string) (*KeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var k KeyFile
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return &k, nil
}

// LoadKey reads the key file at path and returns its key material.
func LoadKey(path string) ([]byte, error) {
	k, err := Load(path)
	if err != nil {
		return nil, err
	}
	return k.Bytes()
}
