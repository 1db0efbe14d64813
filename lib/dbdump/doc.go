// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dbdump produces and restores logical database backups.
//
// [MySQL] drives the mysqldump and mysql client binaries. Credentials
// reach them through a temporary [client] option file created with
// mode 0600 and removed when the command exits, so the password never
// appears in a process listing. Extra mysqldump options come from
// configuration and are checked against [AllowedOptions]; anything
// else is rejected before a process is started.
//
// [SQLite] copies a live SQLite database with VACUUM INTO, which yields
// a consistent, defragmented snapshot without blocking writers for the
// whole copy. The source is opened read-only.
//
// Neither type compresses its output. The caller wraps the writer.
package dbdump
