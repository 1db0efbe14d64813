// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool Quartermaster
// uses for its own state and for reading the SQLite databases it backs
// up.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers [Pool.Take]
// a connection, do their work, and [Pool.Put] it back, or use
// [Pool.With] to do both. Connections are not safe for concurrent use.
//
// # Modes
//
// A writable pool (the default) owns its database. Every connection is
// initialized with:
//
//   - journal_mode=WAL, so status queries never block a running backup
//     that is recording history.
//   - synchronous=NORMAL: committed rows survive a process crash.
//   - busy_timeout=5000: wait for a write lock instead of failing with
//     SQLITE_BUSY when the daemon and the CLI write at once.
//   - cache_size=-8192 and temp_store=MEMORY.
//
// A read-only pool ([Config.ReadOnly]) is for databases Quartermaster
// does not own. It opens the file read-only and sets only busy_timeout,
// so a backup never changes the journal mode or any other persistent
// property of the source file.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   filepath.Join(base, ".quartermaster_history.db"),
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	err = pool.With(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "DELETE FROM tasks WHERE finished < ?", &sqlitex.ExecOptions{Args: []any{cutoff}})
//	})
package sqlitepool
