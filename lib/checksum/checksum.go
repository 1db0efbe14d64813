// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checksum

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
	_ "github.com/opencontainers/go-digest/blake3"
)

// Digest is an "algorithm:hex" content digest.
type Digest = digest.Digest

// Algorithm names a supported hash function.
type Algorithm = digest.Algorithm

const (
	SHA256 Algorithm = digest.SHA256
	BLAKE3 Algorithm = digest.BLAKE3
)

// ErrMismatch is returned (wrapped) by Verify when the content does not
// hash to the expected digest.
var ErrMismatch = errors.New("checksum mismatch")

var bareSHA256 = regexp.MustCompile(`^[a-f0-9]{64}$`)

// ParseAlgorithm maps a configuration value to an Algorithm. The empty
// string selects SHA256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha256":
		return SHA256, nil
	case "blake3":
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unsupported checksum algorithm %q", name)
	}
}

// File streams the file at path through algorithm.
func File(path string, algorithm Algorithm) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	result, _, err := Reader(file, algorithm)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return result, nil
}

// Reader consumes reader and returns its digest and length.
func Reader(reader io.Reader, algorithm Algorithm) (Digest, int64, error) {
	if !algorithm.Available() {
		return "", 0, fmt.Errorf("checksum algorithm %q is not available", algorithm)
	}
	digester := algorithm.Digester()
	written, err := io.Copy(digester.Hash(), reader)
	if err != nil {
		return "", written, err
	}
	return digester.Digest(), written, nil
}

// Normalize parses a stored checksum. Both "sha256:<hex>" and a bare
// SHA-256 hex string are accepted.
func Normalize(value string) (Digest, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("empty checksum")
	}
	if bareSHA256.MatchString(value) {
		return digest.NewDigestFromEncoded(SHA256, value), nil
	}
	parsed, err := digest.Parse(value)
	if err != nil {
		return "", fmt.Errorf("parsing checksum %q: %w", value, err)
	}
	return parsed, nil
}

// Hex returns the encoded portion of d, without the algorithm prefix.
func Hex(d Digest) string {
	return d.Encoded()
}

// Verify hashes the file at path with the algorithm named by expected
// and compares the result. A mismatch wraps ErrMismatch.
func Verify(path, expected string) error {
	want, err := Normalize(expected)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	verifier := want.Verifier()
	if _, err := io.Copy(verifier, file); err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}
	if !verifier.Verified() {
		got, err := File(path, want.Algorithm())
		if err != nil {
			return fmt.Errorf("%s: %w (expected %s)", path, ErrMismatch, want)
		}
		return fmt.Errorf("%s: %w (expected %s, got %s)", path, ErrMismatch, want, got)
	}
	return nil
}
