// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dbdump

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/quartermaster-backup/quartermaster/lib/atomicfile"
	"github.com/quartermaster-backup/quartermaster/lib/sqlitepool"
)

// ErrNotSQLite is returned by SQLite.Restore when the stream does not
// start with the SQLite file header.
var ErrNotSQLite = errors.New("not a SQLite database")

var sqliteHeader = []byte("SQLite format 3\x00")

// SQLite copies a SQLite database file.
type SQLite struct {
	Path string
}

// Size returns the size of the database file.
func (s *SQLite) Size() (int64, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Dump writes a consistent copy of the database to w.
func (s *SQLite) Dump(ctx context.Context, w io.Writer) error {
	if _, err := os.Stat(s.Path); err != nil {
		return fmt.Errorf("sqlite source: %w", err)
	}

	scratch, err := os.MkdirTemp("", "quartermaster-sqlite-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)
	copyPath := filepath.Join(scratch, "copy.db")

	pool, err := sqlitepool.Open(sqlitepool.Config{Path: s.Path, ReadOnly: true, PoolSize: 1})
	if err != nil {
		return err
	}
	err = pool.With(ctx, func(conn *sqlite.Conn) error {
		conn.SetInterrupt(ctx.Done())
		return sqlitex.Execute(conn, "VACUUM INTO ?", &sqlitex.ExecOptions{Args: []any{copyPath}})
	})
	if closeErr := pool.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("copying %s: %w", s.Path, err)
	}

	copied, err := os.Open(copyPath)
	if err != nil {
		return err
	}
	defer copied.Close()
	if _, err := io.Copy(w, copied); err != nil {
		return fmt.Errorf("streaming copy of %s: %w", s.Path, err)
	}
	return nil
}

// Restore replaces destination with the database read from r. The
// file is written beside destination and renamed into place, so a
// failed restore leaves the old file intact. The replaced file keeps
// its permissions, and its WAL companions are removed so stale frames
// are never replayed onto the restored database.
func (s *SQLite) Restore(ctx context.Context, r io.Reader, destination string) error {
	if destination == "" {
		destination = s.Path
	}
	buffered := bufio.NewReader(r)
	header, err := buffered.Peek(len(sqliteHeader))
	if err != nil || !bytes.Equal(header, sqliteHeader) {
		return ErrNotSQLite
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0700); err != nil {
		return err
	}
	mode := os.FileMode(0600)
	if info, err := os.Stat(destination); err == nil {
		mode = info.Mode().Perm()
	}
	err = atomicfile.WriteFrom(destination, mode, func(file io.Writer) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := io.Copy(file, buffered)
		return err
	})
	if err != nil {
		return err
	}
	return removeCompanions(destination)
}

// companionSuffixes name the files SQLite keeps beside a database.
var companionSuffixes = []string{"-wal", "-shm", "-journal"}

func removeCompanions(database string) error {
	var errs []error
	for _, suffix := range companionSuffixes {
		if err := os.Remove(database + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
