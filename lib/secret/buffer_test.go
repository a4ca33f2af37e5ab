// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import "testing"

func TestNewZeroFills(t *testing.T) {
	buf, err := New(64)
	if err != nil {
		t.Fatalf("New(64): %v", err)
	}
	defer buf.Close()

	if buf.Len() != 64 {
		t.Errorf("Len() = %d, want 64", buf.Len())
	}

	for i, b := range buf.Bytes() {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("New(0) should fail")
	}
	if _, err := New(-1); err == nil {
		t.Error("New(-1) should fail")
	}
}

func TestNewFromBytesZeroesSource(t *testing.T) {
	source := []byte("a-signing-secret")
	want := string(source)

	buf, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buf.Close()

	if got := buf.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	for i, b := range source {
		if b != 0 {
			t.Fatalf("source byte %d = %d, want 0 after handoff", i, b)
		}
	}
}

func TestNewFromBytesRejectsEmpty(t *testing.T) {
	if _, err := NewFromBytes([]byte{}); err == nil {
		t.Error("NewFromBytes([]byte{}) should fail")
	}
}

func TestBufferWriteThroughBytes(t *testing.T) {
	buf, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer buf.Close()

	copy(buf.Bytes(), []byte("handshake-key-01"))

	if got, want := buf.String(), "handshake-key-01"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestCloseZeroesAndIsIdempotent(t *testing.T) {
	buf, err := New(32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	copy(buf.Bytes(), []byte("a root capability secret value!"))

	if err := buf.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if buf.data != nil {
		t.Error("data should be nil after Close")
	}
	if err := buf.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}

func TestBytesPanicsAfterClose(t *testing.T) {
	buf, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("Bytes() after Close should panic")
		}
	}()
	buf.Bytes()
}

func TestStringPanicsAfterClose(t *testing.T) {
	buf, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("String() after Close should panic")
		}
	}()
	_ = buf.String()
}
