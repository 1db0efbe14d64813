// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault encrypts database passwords stored in configuration
// files.
//
// A vault is an age X25519 identity kept in a key file readable only by
// its owner. Sealed values are written into databases.yaml as
//
//	enc:<base64 age ciphertext>
//
// so a config file can mix sealed and not-yet-sealed passwords during
// migration: [Vault.Unseal] passes plaintext through unchanged, and
// [Vault.SealValue] is idempotent on values that already carry the
// prefix.
//
// Decrypted passwords come back as [secret.Buffer] values. Callers hand
// them to the database tools through a temporary option file and close
// the buffer as soon as the tool has started.
package vault
