// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package crypto wraps the primitive operations capone builds on: Ed25519
// signatures, X25519 scalar multiplication, XSalsa20-Poly1305 authenticated
// symmetric encryption, and BLAKE2b hashing. Every other package in
// this module reaches these primitives through here rather than importing
// golang.org/x/crypto or crypto/ed25519 directly, so the choice of
// primitive is made in exactly one place.
//
// These line up with the primitives libsodium exposes as crypto_sign,
// crypto_scalarmult, crypto_secretbox, and crypto_generichash; Go's
// standard library supplies Ed25519 directly, and golang.org/x/crypto
// supplies the rest.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// SignPublicSize is the size in bytes of an Ed25519 public key.
	SignPublicSize = ed25519.PublicKeySize
	// SignSecretSize is the size in bytes of an Ed25519 secret key.
	SignSecretSize = ed25519.PrivateKeySize
	// SignatureSize is the size in bytes of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize

	// EncryptPublicSize is the size in bytes of an X25519 public key.
	EncryptPublicSize = curve25519.PointSize
	// EncryptSecretSize is the size in bytes of an X25519 secret scalar.
	EncryptSecretSize = curve25519.ScalarSize

	// SymmetricKeySize is the size in bytes of a secretbox key.
	SymmetricKeySize = 32
	// NonceSize is the size in bytes of a secretbox nonce.
	NonceSize = 24
	// MACSize is the size in bytes of the Poly1305 authenticator
	// secretbox appends to every sealed block.
	MACSize = secretbox.Overhead

	// HashSize is the output size in bytes of the hash used to
	// derive handshake keys and capability chain secrets.
	HashSize = 32
)

// RandomBytes fills buf with cryptographically secure random bytes,
// matching libsodium's randombytes_buf.
func RandomBytes(buf []byte) error {
	_, err := rand.Read(buf)
	if err != nil {
		return fmt.Errorf("crypto: reading random bytes: %w", err)
	}
	return nil
}

// GenerateSignKeyPair creates a new Ed25519 long-term signature keypair.
func GenerateSignKeyPair() (public ed25519.PublicKey, secret ed25519.PrivateKey, err error) {
	public, secret, err = ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: generating Ed25519 keypair: %w", err)
	}
	return public, secret, nil
}

// Sign produces a detached Ed25519 signature of message.
func Sign(secret ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(secret, message)
}

// Verify checks a detached Ed25519 signature of message against public.
func Verify(public ed25519.PublicKey, message, signature []byte) bool {
	if len(public) != SignPublicSize || len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(public, message, signature)
}

// GenerateEncryptKeyPair creates a new ephemeral X25519 keypair for a
// single handshake. The secret scalar is clamped per RFC 7748 by
// curve25519.X25519, which derives the public key below by multiplying
// it with curve25519.Basepoint.
func GenerateEncryptKeyPair() (public, secret [32]byte, err error) {
	if err := RandomBytes(secret[:]); err != nil {
		return public, secret, err
	}
	basePublic, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return public, secret, fmt.Errorf("crypto: deriving X25519 public key: %w", err)
	}
	copy(public[:], basePublic)
	return public, secret, nil
}

// ScalarMult computes the X25519 shared point for a local secret scalar
// and a remote public point. Returns an error if the result is the
// all-zero point, rejecting low-order and invalid curve points.
func ScalarMult(secret, remotePublic [32]byte) ([32]byte, error) {
	var shared [32]byte
	out, err := curve25519.X25519(secret[:], remotePublic[:])
	if err != nil {
		return shared, fmt.Errorf("crypto: scalar multiplication: %w", err)
	}
	copy(shared[:], out)

	var zero [32]byte
	if constantTimeEqual(shared[:], zero[:]) {
		return shared, fmt.Errorf("crypto: scalar multiplication produced the all-zero point")
	}
	return shared, nil
}

// Hash computes the unkeyed BLAKE2b-256 hash of the concatenation of parts,
// matching libsodium's crypto_generichash with a 32-byte output and no
// key. Used for both handshake key derivation and capability chain
// secret derivation.
func Hash(parts ...[]byte) ([HashSize]byte, error) {
	var out [HashSize]byte
	h, err := blake2b.New(HashSize, nil)
	if err != nil {
		return out, fmt.Errorf("crypto: initializing BLAKE2b: %w", err)
	}
	for _, part := range parts {
		if _, err := h.Write(part); err != nil {
			return out, fmt.Errorf("crypto: hashing: %w", err)
		}
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Seal encrypts plaintext under key with the given 24-byte nonce using
// XSalsa20-Poly1305, appending the result to dst. The returned slice is
// len(plaintext)+MACSize bytes longer than dst.
func Seal(dst []byte, plaintext []byte, nonce [NonceSize]byte, key [SymmetricKeySize]byte) []byte {
	return secretbox.Seal(dst, plaintext, &nonce, &key)
}

// Open authenticates and decrypts ciphertext (as produced by Seal) under
// key with the given nonce, appending the plaintext to dst. Returns an
// error if authentication fails.
func Open(dst []byte, ciphertext []byte, nonce [NonceSize]byte, key [SymmetricKeySize]byte) ([]byte, error) {
	out, ok := secretbox.Open(dst, ciphertext, &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("crypto: authenticated decryption failed")
	}
	return out, nil
}

// constantTimeEqual compares two equal-length byte slices in time
// independent of their contents.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

// ConstantTimeCompare exposes constant-time byte comparison for callers
// outside this package (capability secret verification, signature key
// comparison).
func ConstantTimeCompare(a, b []byte) bool {
	return constantTimeEqual(a, b)
}
