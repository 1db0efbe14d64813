// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration used for Quartermaster's
// binary on-disk state, chiefly the per-project snapshot index that
// drives incremental backups.
//
// Human-facing files (metadata sidecars, the scheduler state, config)
// are JSON or YAML. The snapshot index can list hundreds of thousands of
// files, so it is CBOR: compact, and with Core Deterministic Encoding
// (RFC 8949 §4.2) the same tree always produces the same bytes, which
// keeps the index diffable and its checksum stable between runs.
//
//	data, err := codec.Marshal(snapshot)
//	err = codec.Unmarshal(data, &snapshot)
//
// Types serialized only as CBOR use `cbor` struct tags. Types that are
// also printed as JSON (CLI --json output) use `json` tags, which the
// CBOR library reads as a fallback.
package codec
