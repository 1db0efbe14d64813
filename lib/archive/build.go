// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/quartermaster-backup/quartermaster/lib/atomicfile"
	"github.com/quartermaster-backup/quartermaster/lib/checksum"
)

// BuildOptions configures one archive build.
type BuildOptions struct {
	// Source is the directory to archive.
	Source string

	// Prefix is prepended to every entry name, normally the project
	// name, so the archive extracts into a single directory.
	Prefix string

	// Destination is the final archive path.
	Destination string

	Compression Compression
	Level       int

	// Filter leaves paths out. Nil archives everything.
	Filter *Filter

	// Base makes the build incremental against a previous snapshot.
	Base *Snapshot

	// CompareContent records BLAKE3 fingerprints and requires them to
	// match before an unchanged-looking file is skipped.
	CompareContent bool

	// Algorithm is the digest computed over the compressed archive.
	// Empty means SHA-256.
	Algorithm checksum.Algorithm

	Logger *slog.Logger
}

// BuildResult describes a finished archive.
type BuildResult struct {
	Path   string
	Digest checksum.Digest

	// Size is the compressed archive size in bytes.
	Size int64

	// SourceBytes is the uncompressed size of the files written.
	SourceBytes int64

	FilesAdded   int
	FilesSkipped int
	Directories  int

	// Snapshot indexes every regular file that passed the filter,
	// whether written or skipped. It is the base for the next
	// incremental build.
	Snapshot *Snapshot
}

// Build writes the archive described by options. On any error, including
// context cancellation, nothing is left at Destination.
func Build(ctx context.Context, options BuildOptions) (BuildResult, error) {
	info, err := os.Stat(options.Source)
	if err != nil {
		return BuildResult{}, fmt.Errorf("archive source: %w", err)
	}
	if !info.IsDir() {
		return BuildResult{}, fmt.Errorf("archive source %s is not a directory", options.Source)
	}
	if options.Algorithm == "" {
		options.Algorithm = checksum.SHA256
	}
	if options.Filter == nil {
		options.Filter = NewFilter(nil, ModeComplete)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(options.Destination), 0700); err != nil {
		return BuildResult{}, fmt.Errorf("creating archive directory: %w", err)
	}

	builder := &builder{
		options: options,
		logger:  logger,
		result: BuildResult{
			Path:     options.Destination,
			Snapshot: NewSnapshot(),
		},
	}
	builder.result.Snapshot.Archive = filepath.Base(options.Destination)
	builder.result.Snapshot.Created = time.Now().UTC()

	err = atomicfile.WriteFrom(options.Destination, 0600, func(file io.Writer) error {
		hashing := checksum.NewWriter(file, options.Algorithm)
		compressor, err := options.Compression.NewWriter(hashing, options.Level)
		if err != nil {
			return err
		}
		writer := tar.NewWriter(compressor)
		if err := builder.walk(ctx, writer); err != nil {
			writer.Close()
			compressor.Close()
			return err
		}
		if err := writer.Close(); err != nil {
			compressor.Close()
			return fmt.Errorf("finishing tar: %w", err)
		}
		if err := compressor.Close(); err != nil {
			return fmt.Errorf("finishing %s stream: %w", options.Compression, err)
		}
		builder.result.Digest = hashing.Digest()
		builder.result.Size = hashing.Size()
		return nil
	})
	if err != nil {
		return BuildResult{}, err
	}
	return builder.result, nil
}

type builder struct {
	options BuildOptions
	logger  *slog.Logger
	result  BuildResult
}

func (b *builder) walk(ctx context.Context, writer *tar.Writer) error {
	source := b.options.Source
	if b.options.Prefix != "" {
		info, err := os.Stat(source)
		if err != nil {
			return err
		}
		if err := b.writeHeader(writer, info, b.options.Prefix, ""); err != nil {
			return err
		}
	}

	return filepath.WalkDir(source, func(current string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if current == source {
			return nil
		}
		relative, err := filepath.Rel(source, current)
		if err != nil {
			return err
		}
		relative = filepath.ToSlash(relative)
		if b.options.Filter.Excluded(relative, entry.IsDir()) {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		name := path.Join(b.options.Prefix, relative)

		info, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case info.IsDir():
			b.result.Directories++
			return b.writeHeader(writer, info, name, "")
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(current)
			if err != nil {
				return err
			}
			return b.writeHeader(writer, info, name, target)
		case info.Mode().IsRegular():
			return b.writeFile(writer, current, relative, name, info)
		default:
			b.logger.Debug("skipping special file", "path", current, "mode", info.Mode().String())
			return nil
		}
	})
}

func (b *builder) writeHeader(writer *tar.Writer, info fs.FileInfo, name, link string) error {
	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("tar header for %s: %w", name, err)
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}
	if err := writer.WriteHeader(header); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (b *builder) writeFile(writer *tar.Writer, current, relative, name string, info fs.FileInfo) error {
	var fingerprint []byte
	if b.options.CompareContent && b.options.Base != nil {
		var err error
		if fingerprint, err = Fingerprint(current); err != nil {
			return fmt.Errorf("fingerprinting %s: %w", relative, err)
		}
	}

	state := FileState{
		ModTime:     info.ModTime().UnixNano(),
		Size:        info.Size(),
		Mode:        info.Mode(),
		Fingerprint: fingerprint,
	}

	if b.options.Base.Unchanged(relative, info.ModTime(), info.Size(), fingerprint) {
		if fingerprint == nil && b.options.CompareContent {
			state.Fingerprint = b.options.Base.Files[relative].Fingerprint
		}
		b.result.Snapshot.Files[relative] = state
		b.result.FilesSkipped++
		return nil
	}

	file, err := os.Open(current)
	if err != nil {
		return fmt.Errorf("opening %s: %w", relative, err)
	}
	defer file.Close()

	if err := b.writeHeader(writer, info, name, ""); err != nil {
		return err
	}

	var source io.Reader = file
	var hasher *blake3.Hasher
	if b.options.CompareContent && fingerprint == nil {
		hasher = blake3.New()
		source = io.TeeReader(file, hasher)
	}
	copied, err := io.CopyN(writer, source, info.Size())
	if err != nil {
		return fmt.Errorf("archiving %s (copied %d of %d bytes, file changed during backup?): %w",
			relative, copied, info.Size(), err)
	}
	if hasher != nil {
		state.Fingerprint = hasher.Sum(nil)
	}

	b.result.Snapshot.Files[relative] = state
	b.result.FilesAdded++
	b.result.SourceBytes += copied
	return nil
}
