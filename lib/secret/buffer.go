// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer holds key material in memory that is locked against swapping,
// excluded from core dumps, and zeroed on close. The backing memory is
// allocated via mmap outside the Go heap, so the garbage collector
// never sees it and cannot copy or relocate it — the only way to
// guarantee a signature secret or session key does not linger in a
// heap region after it is no longer needed.
//
// A Buffer must not be copied after creation. Close releases the
// memory; Bytes or String after Close panics.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	length int
	closed bool
}

// New allocates a zero-filled secret buffer of size bytes, locked into
// physical RAM and excluded from core dumps. The caller must Close it
// once the secret is no longer needed.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}

	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}

	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		// MADV_DONTDUMP isn't available on every kernel; without it the
		// buffer cannot be kept out of core dumps, so allocation fails.
		unix.Munlock(data)
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}

	return &Buffer{data: data, length: size}, nil
}

// NewFromBytes copies source into a guarded buffer and zeros source in
// place, so the caller's slice stops holding the secret once this
// returns. This is how identity and capability hand off freshly
// derived key material: the derivation's own scratch buffer is zeroed
// the instant it's copied into guarded memory.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("secret: cannot create buffer from empty source")
	}

	buffer, err := New(len(source))
	if err != nil {
		return nil, err
	}

	copy(buffer.data, source)
	zero(source)

	return buffer, nil
}

// Bytes returns the secret data. The returned slice aliases the mmap
// region directly — callers must not retain it past Close. Panics if
// the buffer has been closed.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		panic("secret: read from closed buffer")
	}

	return b.data[:b.length]
}

// String returns the secret data as a heap-allocated string, for API
// boundaries that require one (e.g. an ed25519.PrivateKey's hex form).
// Prefer Bytes when the caller doesn't need a string specifically,
// since this leaves a copy on the Go heap for the garbage collector to
// eventually reclaim rather than zero. Panics if the buffer is closed.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		panic("secret: read from closed buffer")
	}

	return string(b.data[:b.length])
}

// Len returns the size of the secret data.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.length
}

// Close zeros the buffer's contents, unlocks and unmaps the memory.
// Close is idempotent; any access to Bytes or String after Close
// panics.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	zero(b.data)

	var firstErr error
	if err := unix.Munlock(b.data); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("secret: munlock: %w", err)
	}
	if err := unix.Munmap(b.data); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("secret: munmap: %w", err)
	}

	b.data = nil
	return firstErr
}

// zero overwrites data with zero bytes in place.
func zero(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
