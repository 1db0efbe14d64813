// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/quartermaster-backup/quartermaster/lib/secret"
)

// SealedPrefix marks a configuration value as vault ciphertext.
const SealedPrefix = "enc:"

var (
	// ErrNoKey is returned by Open when the key file does not exist.
	ErrNoKey = errors.New("vault key not found")

	// ErrKeyExists is returned by Init when a key file is already present.
	ErrKeyExists = errors.New("vault key already exists")

	// ErrInsecureKey is returned by Open when the key file is readable
	// by group or other.
	ErrInsecureKey = errors.New("vault key file permissions too open")
)

// Vault seals and unseals values with one age identity.
type Vault struct {
	path      string
	identity  *secret.Buffer
	recipient string
}

// Init generates a new identity and writes it to path with mode 0600.
// An existing file is never overwritten.
func Init(path string) (*Vault, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrKeyExists)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating vault identity: %w", err)
	}
	encoded := []byte(identity.String() + "\n")

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		secret.Zero(encoded)
		return nil, fmt.Errorf("creating vault key directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		secret.Zero(encoded)
		return nil, fmt.Errorf("creating vault key %s: %w", path, err)
	}
	_, writeErr := file.Write(encoded)
	syncErr := file.Sync()
	closeErr := file.Close()
	secret.Zero(encoded)
	if err := errors.Join(writeErr, syncErr, closeErr); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing vault key %s: %w", path, err)
	}

	return Open(path)
}

// Open loads the identity stored at path.
func Open(path string) (*Vault, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNoKey)
		}
		return nil, err
	}
	if info.Mode().Perm()&0077 != 0 {
		return nil, fmt.Errorf("%s has mode %04o: %w", path, info.Mode().Perm(), ErrInsecureKey)
	}

	identityBuffer, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("reading vault key %s: %w", path, err)
	}
	identity, err := age.ParseX25519Identity(identityBuffer.String())
	if err != nil {
		identityBuffer.Close()
		return nil, fmt.Errorf("parsing vault key %s: %w", path, err)
	}

	return &Vault{
		path:      path,
		identity:  identityBuffer,
		recipient: identity.Recipient().String(),
	}, nil
}

// OpenOrInit opens the key at path, creating it first if it is absent.
func OpenOrInit(path string) (*Vault, error) {
	v, err := Open(path)
	if errors.Is(err, ErrNoKey) {
		return Init(path)
	}
	return v, err
}

// Path returns the key file location.
func (v *Vault) Path() string { return v.path }

// Recipient returns the public half of the identity (age1...).
func (v *Vault) Recipient() string { return v.recipient }

// Close releases the identity.
func (v *Vault) Close() error { return v.identity.Close() }

// Seal encrypts plaintext and returns a prefixed, base64-encoded value.
func (v *Vault) Seal(plaintext []byte) (string, error) {
	recipient, err := age.ParseX25519Recipient(v.recipient)
	if err != nil {
		return "", fmt.Errorf("parsing vault recipient: %w", err)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing encryption: %w", err)
	}
	return SealedPrefix + base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// SealValue seals a configuration value unless it is empty or already
// sealed, in which case it is returned unchanged.
func (v *Vault) SealValue(value string) (string, error) {
	if value == "" || IsSealed(value) {
		return value, nil
	}
	plaintext := []byte(value)
	defer secret.Zero(plaintext)
	return v.Seal(plaintext)
}

// Unseal decrypts a sealed value. A value without the prefix is treated
// as plaintext and copied into a buffer as is. The caller closes the
// returned buffer.
func (v *Vault) Unseal(value string) (*secret.Buffer, error) {
	if !IsSealed(value) {
		if value == "" {
			return nil, fmt.Errorf("empty value")
		}
		return secret.NewFromBytes([]byte(value))
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("decoding sealed value: %w", err)
	}
	identity, err := age.ParseX25519Identity(v.identity.String())
	if err != nil {
		return nil, fmt.Errorf("parsing vault identity: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting sealed value: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading decrypted value: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("sealed value decrypts to an empty string")
	}
	return secret.NewFromBytes(plaintext)
}

// IsSealed reports whether value carries the vault prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Reseal decrypts value with from and seals it again with to.
func Reseal(value string, from, to *Vault) (string, error) {
	if !IsSealed(value) {
		return to.SealValue(value)
	}
	plaintext, err := from.Unseal(value)
	if err != nil {
		return "", err
	}
	defer plaintext.Close()
	return to.Seal(plaintext.Bytes())
}
