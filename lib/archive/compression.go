// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is the stream compressor wrapped around a tar.
type Compression string

const (
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
	LZ4  Compression = "lz4"
)

// ParseCompression accepts "gzip", "zstd", or "lz4". Empty means gzip.
func ParseCompression(name string) (Compression, error) {
	switch Compression(strings.ToLower(name)) {
	case "", Gzip:
		return Gzip, nil
	case Zstd:
		return Zstd, nil
	case LZ4:
		return LZ4, nil
	}
	return "", fmt.Errorf("unknown compression %q (want gzip, zstd, or lz4)", name)
}

// TarExtension is the archive file extension for a tar compressed with c.
func (c Compression) TarExtension() string {
	switch c {
	case Zstd:
		return ".tar.zst"
	case LZ4:
		return ".tar.lz4"
	default:
		return ".tar.gz"
	}
}

// CompressionForName infers the compression of a file from its name.
func CompressionForName(filename string) (Compression, error) {
	switch {
	case strings.HasSuffix(filename, ".gz"), strings.HasSuffix(filename, ".tgz"):
		return Gzip, nil
	case strings.HasSuffix(filename, ".zst"):
		return Zstd, nil
	case strings.HasSuffix(filename, ".lz4"):
		return LZ4, nil
	}
	return "", fmt.Errorf("cannot infer compression of %q", filename)
}

var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// NewWriter wraps w in a compressor. Level zero selects the
// compressor's default; otherwise it is clamped to the compressor's
// range. Close flushes the compressor but does not close w.
func (c Compression) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	switch c {
	case Gzip, "":
		if level == 0 {
			level = gzip.DefaultCompression
		}
		level = min(max(level, gzip.HuffmanOnly), gzip.BestCompression)
		return gzip.NewWriterLevel(w, level)
	case Zstd:
		var options []zstd.EOption
		if level > 0 {
			options = append(options, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		return zstd.NewWriter(w, options...)
	case LZ4:
		writer := lz4.NewWriter(w)
		if level > 0 {
			if err := writer.Apply(lz4.CompressionLevelOption(lz4Levels[min(level, len(lz4Levels)-1)])); err != nil {
				return nil, fmt.Errorf("lz4 level %d: %w", level, err)
			}
		}
		return writer, nil
	}
	return nil, fmt.Errorf("unknown compression %q", c)
}

// NewReader wraps r in a decompressor.
func (c Compression) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case Gzip, "":
		return gzip.NewReader(r)
	case Zstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return decoder.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return nil, fmt.Errorf("unknown compression %q", c)
}
