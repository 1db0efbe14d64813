// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"fmt"
	"os"
)

// Rotate generates a fresh identity at the vault's path and re-seals
// every entry of values under it. The previous key is kept beside the
// new one with an ".old" suffix so values missed by the caller can still
// be recovered by hand.
//
// On success the receiver is closed and the returned Vault replaces it.
// values is updated in place.
func (v *Vault) Rotate(values map[string]string) (*Vault, error) {
	oldPath := v.path + ".old"
	if err := os.Rename(v.path, oldPath); err != nil {
		return nil, fmt.Errorf("moving current key aside: %w", err)
	}

	next, err := Init(v.path)
	if err != nil {
		os.Rename(oldPath, v.path)
		return nil, fmt.Errorf("generating replacement key: %w", err)
	}

	resealed := make(map[string]string, len(values))
	for name, value := range values {
		updated, err := Reseal(value, v, next)
		if err != nil {
			next.Close()
			os.Remove(v.path)
			os.Rename(oldPath, v.path)
			return nil, fmt.Errorf("resealing %s: %w", name, err)
		}
		resealed[name] = updated
	}

	for name, value := range resealed {
		values[name] = value
	}
	v.Close()
	return next, nil
}
