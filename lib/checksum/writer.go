// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checksum

import (
	"io"

	"github.com/opencontainers/go-digest"
)

// Writer passes bytes through to an underlying writer while hashing and
// counting them.
type Writer struct {
	target   io.Writer
	digester digest.Digester
	size     int64
}

// NewWriter returns a Writer hashing with algorithm. target may be nil,
// in which case the Writer only hashes.
func NewWriter(target io.Writer, algorithm Algorithm) *Writer {
	if target == nil {
		target = io.Discard
	}
	return &Writer{target: target, digester: algorithm.Digester()}
}

func (w *Writer) Write(data []byte) (int, error) {
	n, err := w.target.Write(data)
	w.digester.Hash().Write(data[:n])
	w.size += int64(n)
	return n, err
}

// Digest returns the digest of everything written so far.
func (w *Writer) Digest() Digest { return w.digester.Digest() }

// Size returns the number of bytes written.
func (w *Writer) Size() int64 { return w.size }
