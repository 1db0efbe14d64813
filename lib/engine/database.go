// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/quartermaster-backup/quartermaster/lib/atomicfile"
	"github.com/quartermaster-backup/quartermaster/lib/catalog"
	"github.com/quartermaster-backup/quartermaster/lib/checksum"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/dbdump"
	"github.com/quartermaster-backup/quartermaster/lib/secret"
	"github.com/quartermaster-backup/quartermaster/lib/vault"
)

// Database dumps reserve at least min_database_mb, or the estimated
// size if larger, plus 10%.
const databaseMargin = 1.1

// BackupDatabase dumps one database to a gzipped archive.
func (e *Engine) BackupDatabase(ctx context.Context, name string) (Result, error) {
	started := e.now()
	result := Result{Kind: catalog.KindDatabase, Item: name}

	database, err := e.database(name)
	if err != nil {
		return e.finish(ctx, result, started, err)
	}
	unlock, err := e.lock(catalog.KindDatabase, name)
	if err != nil {
		return e.finish(ctx, result, started, err)
	}
	defer unlock()

	result, err = e.backupDatabase(ctx, database, result)
	return e.finish(ctx, result, started, err)
}

func (e *Engine) backupDatabase(ctx context.Context, database config.Database, result Result) (Result, error) {
	settings := e.Config.Backup
	now := e.now()

	if settings.SkipIfExistsToday {
		exists, err := e.Catalog.HasBackupOn(catalog.KindDatabase, database.Name, catalog.TypeDump, now)
		if err != nil {
			return result, err
		}
		if exists {
			result.Status = StatusSkipped
			result.Message = "backup already exists today"
			return result, nil
		}
	}

	algorithm, err := checksum.ParseAlgorithm(settings.Checksum)
	if err != nil {
		return result, err
	}

	dumper, extension, cleanup, err := e.dumper(database, config.Seconds(e.Config.Timeouts.MySQLDump))
	if err != nil {
		return result, err
	}
	defer cleanup()

	estimate, err := dumper.size(ctx)
	if err != nil {
		e.Logger.Warn("database size estimate failed", "database", database.Name, "error", err)
		estimate = 0
	}
	required := max(settings.MinDatabaseMB<<20, estimate)
	directory := e.Catalog.Layout.Dir(catalog.KindDatabase, database.Name)
	if err := e.ensureSpace(directory, uint64(float64(required)*databaseMargin)); err != nil {
		return result, err
	}

	archivePath := filepath.Join(directory, catalog.ArchiveName{
		Item:      database.Name,
		Time:      now,
		Type:      catalog.TypeDump,
		Extension: extension,
	}.String())

	var (
		sum  checksum.Digest
		size int64
	)
	err = atomicfile.WriteFrom(archivePath, 0600, func(file io.Writer) error {
		hashing := checksum.NewWriter(file, algorithm)
		compressor := gzip.NewWriter(hashing)
		if err := dumper.dump(ctx, compressor); err != nil {
			compressor.Close()
			return err
		}
		if err := compressor.Close(); err != nil {
			return fmt.Errorf("finishing gzip stream: %w", err)
		}
		sum = hashing.Digest()
		size = hashing.Size()
		return nil
	})
	if err != nil {
		return result, err
	}

	if _, err := e.publish(ctx, archivePath, record{
		kind:        catalog.KindDatabase,
		item:        database.Name,
		description: database.Description,
		backupType:  catalog.TypeDump,
		compression: "gzip",
		digest:      sum,
		size:        size,
	}); err != nil {
		return result, err
	}

	result.BackupType = catalog.TypeDump
	result.Path = archivePath
	result.Size = size
	result.Digest = sum.String()
	return result, nil
}

// databaseEngine adapts the MySQL and SQLite dumpers to one shape.
type databaseEngine struct {
	size    func(ctx context.Context) (int64, error)
	dump    func(ctx context.Context, w io.Writer) error
	restore func(ctx context.Context, r io.Reader) error
}

// dumper returns the engine for a database, its archive extension, and
// a cleanup func releasing any unsealed password.
func (e *Engine) dumper(database config.Database, timeout time.Duration) (databaseEngine, string, func(), error) {
	switch database.Engine {
	case config.EngineSQLite:
		sqlite := &dbdump.SQLite{Path: database.Path}
		return databaseEngine{
			size: func(context.Context) (int64, error) { return sqlite.Size() },
			dump: sqlite.Dump,
			restore: func(ctx context.Context, r io.Reader) error {
				return sqlite.Restore(ctx, r, "")
			},
		}, catalog.ExtSQLiteGzip, func() {}, nil

	case config.EngineMySQL, "":
		password, err := e.password(database)
		if err != nil {
			return databaseEngine{}, "", nil, err
		}
		mysql := &dbdump.MySQL{
			Host:         cmp.Or(database.Host, e.Config.MySQL.Host),
			Port:         cmp.Or(database.Port, e.Config.MySQL.Port),
			User:         cmp.Or(database.User, e.Config.MySQL.User),
			Password:     password,
			Options:      database.DumpOptions,
			Timeout:      timeout,
			DumpBinary:   e.MySQLDump,
			ClientBinary: e.MySQLClient,
			Logger:       e.Logger,
		}
		schema := database.SchemaName()
		cleanup := func() {
			if password != nil {
				password.Close()
			}
		}
		return databaseEngine{
			size: func(ctx context.Context) (int64, error) { return mysql.Size(ctx, schema) },
			dump: func(ctx context.Context, w io.Writer) error { return mysql.Dump(ctx, schema, w) },
			restore: func(ctx context.Context, r io.Reader) error {
				return mysql.Restore(ctx, schema, r)
			},
		}, catalog.ExtSQLGzip, cleanup, nil
	}
	return databaseEngine{}, "", nil, fmt.Errorf("database %s: unsupported engine %q", database.Name, database.Engine)
}

// password returns the database password in locked memory, unsealing
// vault values. An empty password yields nil.
func (e *Engine) password(database config.Database) (*secret.Buffer, error) {
	if database.Password == "" {
		return nil, nil
	}
	if !vault.IsSealed(database.Password) {
		return secret.NewFromBytes([]byte(database.Password))
	}
	if e.Vault == nil {
		return nil, fmt.Errorf("database %s: password is sealed but no vault is open", database.Name)
	}
	password, err := e.Vault.Unseal(database.Password)
	if err != nil {
		return nil, fmt.Errorf("database %s: unsealing password: %w", database.Name, err)
	}
	return password, nil
}
