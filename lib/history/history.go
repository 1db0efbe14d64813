// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/quartermaster-backup/quartermaster/lib/sqlitepool"
)

// FileName is the history database inside the local base.
const FileName = ".quartermaster_history.db"

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id        TEXT PRIMARY KEY,
	job       TEXT NOT NULL DEFAULT '',
	kind      TEXT NOT NULL,
	target    TEXT NOT NULL DEFAULT '',
	status    TEXT NOT NULL,
	message   TEXT NOT NULL DEFAULT '',
	error     TEXT NOT NULL DEFAULT '',
	created   INTEGER NOT NULL,
	started   INTEGER NOT NULL DEFAULT 0,
	completed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS tasks_created ON tasks (created);
CREATE INDEX IF NOT EXISTS tasks_kind_status ON tasks (kind, status, completed);
`

// Entry is one recorded task. Zero times mean "not yet".
type Entry struct {
	ID        string    `json:"id"`
	Job       string    `json:"job,omitempty"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Created   time.Time `json:"created"`
	Started   time.Time `json:"started,omitzero"`
	Completed time.Time `json:"completed,omitzero"`
}

// Store is the task history database.
type Store struct {
	pool *sqlitepool.Pool
}

// Open opens or creates the history database in directory.
func Open(directory string, logger *slog.Logger) (*Store, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   filepath.Join(directory, FileName),
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening task history: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value)
}

// Record inserts the entry or replaces the one with the same ID.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	return s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO tasks (id, job, kind, target, status, message, error, created, started, completed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				status = excluded.status,
				message = excluded.message,
				error = excluded.error,
				started = excluded.started,
				completed = excluded.completed`,
			&sqlitex.ExecOptions{Args: []any{
				entry.ID, entry.Job, entry.Kind, entry.Target, entry.Status, entry.Message, entry.Error,
				millis(entry.Created), millis(entry.Started), millis(entry.Completed),
			}})
	})
}

const selectColumns = `SELECT id, job, kind, target, status, message, error, created, started, completed FROM tasks`

func scanEntry(stmt *sqlite.Stmt) Entry {
	return Entry{
		ID:        stmt.ColumnText(0),
		Job:       stmt.ColumnText(1),
		Kind:      stmt.ColumnText(2),
		Target:    stmt.ColumnText(3),
		Status:    stmt.ColumnText(4),
		Message:   stmt.ColumnText(5),
		Error:     stmt.ColumnText(6),
		Created:   fromMillis(stmt.ColumnInt64(7)),
		Started:   fromMillis(stmt.ColumnInt64(8)),
		Completed: fromMillis(stmt.ColumnInt64(9)),
	}
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, selectColumns+` ORDER BY created DESC, id LIMIT ?`, &sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entries = append(entries, scanEntry(stmt))
				return nil
			},
		})
	})
	return entries, err
}

// LastSuccess returns the completion time of the newest completed
// entry of kind, or the zero time when there is none.
func (s *Store) LastSuccess(ctx context.Context, kind string) (time.Time, error) {
	var last int64
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT COALESCE(MAX(completed), 0) FROM tasks WHERE kind = ? AND status = 'completed'`,
			&sqlitex.ExecOptions{
				Args: []any{kind},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					last = stmt.ColumnInt64(0)
					return nil
				},
			})
	})
	return fromMillis(last), err
}

// Prune deletes entries created before cutoff and returns how many.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	var deleted int
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM tasks WHERE created < ?`, &sqlitex.ExecOptions{
			Args: []any{cutoff.UnixMilli()},
		}); err != nil {
			return err
		}
		deleted = conn.Changes()
		return nil
	})
	return deleted, err
}
