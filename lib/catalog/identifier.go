// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)

// ErrInvalidName is wrapped by ValidateIdentifier and
// ValidateBackupFilename.
var ErrInvalidName = errors.New("invalid name")

// ValidateIdentifier checks an item, job, or target name. Names become
// directory and file name components, so only letters, digits,
// underscore, hyphen, and dot are allowed, and "." and ".." are
// rejected.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid identifier %q: %w", name, ErrInvalidName)
	}
	return nil
}

// ValidateBackupFilename checks a caller-supplied archive file name: a
// plain name with no directory separators or parent references.
func ValidateBackupFilename(filename string) error {
	if filename == "" || filename == "." || filename == ".." ||
		strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") ||
		strings.ContainsRune(filename, 0) {
		return fmt.Errorf("invalid backup filename %q: %w", filename, ErrInvalidName)
	}
	return nil
}
