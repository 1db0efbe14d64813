// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newVault(t *testing.T) *Vault {
	t.Helper()
	v, err := Init(filepath.Join(t.TempDir(), "config", ".vault_key"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func TestInit_KeyFileMode(t *testing.T) {
	v := newVault(t)

	info, err := os.Stat(v.Path())
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key mode = %04o, want 0600", info.Mode().Perm())
	}
	if !strings.HasPrefix(v.Recipient(), "age1") {
		t.Errorf("Recipient = %q, want age1 prefix", v.Recipient())
	}
}

func TestInit_RefusesOverwrite(t *testing.T) {
	v := newVault(t)
	if _, err := Init(v.Path()); !errors.Is(err, ErrKeyExists) {
		t.Fatalf("second Init = %v, want ErrKeyExists", err)
	}
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, ErrNoKey) {
		t.Fatalf("Open = %v, want ErrNoKey", err)
	}
}

func TestOpen_RejectsLooseMode(t *testing.T) {
	v := newVault(t)
	if err := os.Chmod(v.Path(), 0644); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if _, err := Open(v.Path()); !errors.Is(err, ErrInsecureKey) {
		t.Fatalf("Open = %v, want ErrInsecureKey", err)
	}
}

func TestOpenOrInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".vault_key")

	first, err := OpenOrInit(path)
	if err != nil {
		t.Fatalf("OpenOrInit (create): %v", err)
	}
	defer first.Close()

	second, err := OpenOrInit(path)
	if err != nil {
		t.Fatalf("OpenOrInit (reopen): %v", err)
	}
	defer second.Close()

	if first.Recipient() != second.Recipient() {
		t.Error("reopened vault has a different identity")
	}
}

func TestSealUnseal(t *testing.T) {
	v := newVault(t)

	sealed, err := v.Seal([]byte("p@ss w0rd"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("Seal result %q lacks prefix", sealed)
	}
	if _, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, SealedPrefix)); err != nil {
		t.Errorf("ciphertext is not base64: %v", err)
	}

	plaintext, err := v.Unseal(sealed)
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	defer plaintext.Close()
	if plaintext.String() != "p@ss w0rd" {
		t.Errorf("Unseal = %q", plaintext.String())
	}
}

func TestUnseal_PlaintextPassthrough(t *testing.T) {
	v := newVault(t)

	plaintext, err := v.Unseal("legacy-plain")
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	defer plaintext.Close()
	if plaintext.String() != "legacy-plain" {
		t.Errorf("Unseal = %q", plaintext.String())
	}
}

func TestUnseal_WrongVault(t *testing.T) {
	owner := newVault(t)
	other := newVault(t)

	sealed, err := owner.Seal([]byte("only-for-owner"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := other.Unseal(sealed); err == nil {
		t.Fatal("Unseal with a different identity succeeded")
	}
}

func TestUnseal_Corrupt(t *testing.T) {
	v := newVault(t)
	for _, value := range []string{"enc:!!!not-base64", "enc:" + base64.StdEncoding.EncodeToString([]byte("garbage"))} {
		if _, err := v.Unseal(value); err == nil {
			t.Errorf("Unseal(%q) succeeded", value)
		}
	}
}

func TestSealValue_Idempotent(t *testing.T) {
	v := newVault(t)

	once, err := v.SealValue("hunter2")
	if err != nil {
		t.Fatalf("SealValue: %v", err)
	}
	twice, err := v.SealValue(once)
	if err != nil {
		t.Fatalf("SealValue(sealed): %v", err)
	}
	if once != twice {
		t.Error("sealing a sealed value changed it")
	}
	if empty, _ := v.SealValue(""); empty != "" {
		t.Errorf("SealValue(\"\") = %q, want empty", empty)
	}
}

func TestRotate(t *testing.T) {
	v := newVault(t)
	sealed, err := v.Seal([]byte("rotate-me"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	values := map[string]string{"main_db": sealed, "legacy_db": "plain"}
	oldRecipient := v.Recipient()

	next, err := v.Rotate(values)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	defer next.Close()

	if next.Recipient() == oldRecipient {
		t.Error("rotation kept the same identity")
	}
	if _, err := os.Stat(next.Path() + ".old"); err != nil {
		t.Errorf("previous key not kept: %v", err)
	}
	for name, want := range map[string]string{"main_db": "rotate-me", "legacy_db": "plain"} {
		if !IsSealed(values[name]) {
			t.Errorf("%s not sealed after rotation: %q", name, values[name])
			continue
		}
		plaintext, err := next.Unseal(values[name])
		if err != nil {
			t.Errorf("Unseal %s: %v", name, err)
			continue
		}
		if plaintext.String() != want {
			t.Errorf("%s = %q, want %q", name, plaintext.String(), want)
		}
		plaintext.Close()
	}
}
