// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data such
// as passwords, access tokens, and encryption keys.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, guaranteeing secret material does not persist after release.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [ReadFromPath] -- reads a trimmed secret from a file, or stdin
//     when the path is "-"
//
// Access via [Buffer.Bytes] (slice into mmap region) or [Buffer.String]
// (heap copy for API boundaries such as ed25519.PrivateKey or an age
// identity string). After Close, Bytes and String panic. Close is
// idempotent.
//
// Depends on golang.org/x/sys/unix. No capone-internal dependencies.
// Imported by identity (long-term signature secret keys, handshake
// ephemeral keys, symmetric session keys) and capability (capability
// secrets and the root secret) for every value whose compromise would
// let an attacker forge a signature or a delegation.
package secret
