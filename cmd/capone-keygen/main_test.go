// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/capone-project/capone/identity"
)

func TestRunWritesMatchingKeyPair(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "id")

	if code := run([]string{"--out", prefix}); code != 0 {
		t.Fatalf("run returned %d, want 0", code)
	}

	kp, err := identity.LoadSignKeyPair(prefix+".pub", prefix+".sec")
	if err != nil {
		t.Fatalf("LoadSignKeyPair: %v", err)
	}
	defer kp.Close()

	info, err := os.Stat(prefix + ".sec")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("secret file mode = %o, want 0600", info.Mode().Perm())
	}
}

func TestRunDefaultsOutPrefix(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(cwd)

	if code := run(nil); code != 0 {
		t.Fatalf("run returned %d, want 0", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "capone.pub")); err != nil {
		t.Errorf("default output file missing: %v", err)
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	if code := run([]string{"--nonsense"}); code == 0 {
		t.Error("run should fail for an unknown flag")
	}
}
