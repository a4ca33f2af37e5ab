// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity holds capone's key material: long-term Ed25519
// signature identities, ephemeral X25519 handshake keypairs, and the
// symmetric keys a handshake produces. Secret halves are stored in
// lib/secret.Buffer so they live outside the Go heap and are zeroed on
// Close, the same hygiene libsodium's guarded allocations provide.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/capone-project/capone/crypto"
	"github.com/capone-project/capone/lib/secret"
)

// SignPublic is an Ed25519 long-term public identity. It implements
// encoding.TextMarshaler/TextUnmarshaler so it serializes as a hex
// string in CBOR and in config files, matching capone's wire and
// capability string conventions.
type SignPublic [ed25519.PublicKeySize]byte

// MarshalText implements encoding.TextMarshaler.
func (p SignPublic) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(p[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *SignPublic) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("identity: decoding sign public key: %w", err)
	}
	if len(decoded) != len(p) {
		return fmt.Errorf("identity: sign public key has wrong length %d, want %d", len(decoded), len(p))
	}
	copy(p[:], decoded)
	return nil
}

// String returns the hex encoding of the public key.
func (p SignPublic) String() string {
	return hex.EncodeToString(p[:])
}

// Bytes returns the public key as an ed25519.PublicKey.
func (p SignPublic) Bytes() ed25519.PublicKey {
	return ed25519.PublicKey(p[:])
}

// Equal reports whether p and other are the same public key.
func (p SignPublic) Equal(other SignPublic) bool {
	return crypto.ConstantTimeCompare(p[:], other[:])
}

// ParseSignPublic decodes a hex-encoded Ed25519 public key.
func ParseSignPublic(s string) (SignPublic, error) {
	var p SignPublic
	err := p.UnmarshalText([]byte(s))
	return p, err
}

// SignSecret is an Ed25519 long-term secret key, held in guarded memory.
type SignSecret struct {
	buf *secret.Buffer
}

// NewSignSecret copies raw into a guarded buffer. raw is zeroed by the
// copy (see secret.NewFromBytes).
func NewSignSecret(raw []byte) (*SignSecret, error) {
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("identity: sign secret key has wrong length %d, want %d", len(raw), ed25519.PrivateKeySize)
	}
	buf, err := secret.NewFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("identity: allocating sign secret: %w", err)
	}
	return &SignSecret{buf: buf}, nil
}

// Key returns the secret key for use with ed25519 functions. The
// returned slice aliases guarded memory; do not retain it past Close.
func (s *SignSecret) Key() ed25519.PrivateKey {
	return ed25519.PrivateKey(s.buf.Bytes())
}

// Public derives the public key half of the secret key.
func (s *SignSecret) Public() SignPublic {
	var p SignPublic
	copy(p[:], s.Key().Public().(ed25519.PublicKey))
	return p
}

// Sign signs message with the secret key.
func (s *SignSecret) Sign(message []byte) []byte {
	return crypto.Sign(s.Key(), message)
}

// Close zeroes and releases the secret key's backing memory.
func (s *SignSecret) Close() error {
	return s.buf.Close()
}

// SignKeyPair is a long-term Ed25519 identity: a public key and its
// guarded secret half.
type SignKeyPair struct {
	Public SignPublic
	Secret *SignSecret
}

// GenerateSignKeyPair creates a new long-term signature identity.
func GenerateSignKeyPair() (*SignKeyPair, error) {
	pub, sec, err := crypto.GenerateSignKeyPair()
	if err != nil {
		return nil, err
	}
	secretKey, err := NewSignSecret(sec)
	if err != nil {
		return nil, err
	}
	var public SignPublic
	copy(public[:], pub)
	return &SignKeyPair{Public: public, Secret: secretKey}, nil
}

// Close releases the keypair's secret key.
func (k *SignKeyPair) Close() error {
	return k.Secret.Close()
}

// ParseSignKeyPair assembles a keypair from a hex-encoded public key
// and a hex-encoded secret key, as found inline in a configuration
// file's [core] section, and checks that they form a matching pair.
func ParseSignKeyPair(publicHex, secretHex string) (*SignKeyPair, error) {
	public, err := ParseSignPublic(publicHex)
	if err != nil {
		return nil, fmt.Errorf("identity: parsing public key: %w", err)
	}

	secretRaw, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("identity: parsing secret key: %w", err)
	}
	secretKey, err := NewSignSecret(secretRaw)
	if err != nil {
		return nil, err
	}
	if secretKey.Public() != public {
		return nil, fmt.Errorf("identity: public_key and secret_key do not form a matching keypair")
	}

	return &SignKeyPair{Public: public, Secret: secretKey}, nil
}

// EncryptPublic is an ephemeral X25519 public key exchanged during the
// handshake.
type EncryptPublic [32]byte

// MarshalText implements encoding.TextMarshaler.
func (p EncryptPublic) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(p[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *EncryptPublic) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("identity: decoding encrypt public key: %w", err)
	}
	if len(decoded) != len(p) {
		return fmt.Errorf("identity: encrypt public key has wrong length %d, want %d", len(decoded), len(p))
	}
	copy(p[:], decoded)
	return nil
}

// String returns the hex encoding of the public key.
func (p EncryptPublic) String() string {
	return hex.EncodeToString(p[:])
}

// EncryptSecret is an ephemeral X25519 secret scalar, held in guarded
// memory and destroyed immediately after the handshake completes.
type EncryptSecret struct {
	buf *secret.Buffer
}

func newEncryptSecret(raw [32]byte) (*EncryptSecret, error) {
	buf, err := secret.NewFromBytes(raw[:])
	if err != nil {
		return nil, fmt.Errorf("identity: allocating encrypt secret: %w", err)
	}
	return &EncryptSecret{buf: buf}, nil
}

// Scalar returns the 32-byte secret scalar.
func (s *EncryptSecret) Scalar() [32]byte {
	var out [32]byte
	copy(out[:], s.buf.Bytes())
	return out
}

// Close zeroes and releases the secret scalar's backing memory.
func (s *EncryptSecret) Close() error {
	return s.buf.Close()
}

// EncryptKeyPair is an ephemeral handshake keypair.
type EncryptKeyPair struct {
	Public EncryptPublic
	Secret *EncryptSecret
}

// GenerateEncryptKeyPair creates a new ephemeral X25519 keypair.
func GenerateEncryptKeyPair() (*EncryptKeyPair, error) {
	pub, sec, err := crypto.GenerateEncryptKeyPair()
	if err != nil {
		return nil, err
	}
	secretHalf, err := newEncryptSecret(sec)
	if err != nil {
		return nil, err
	}
	return &EncryptKeyPair{Public: EncryptPublic(pub), Secret: secretHalf}, nil
}

// Close releases the keypair's secret scalar. Callers must call this as
// soon as the handshake derives the symmetric session key — ephemeral
// key material has no reason to outlive the handshake.
func (k *EncryptKeyPair) Close() error {
	return k.Secret.Close()
}

// SymmetricKey is the shared secretbox key a handshake derives, held in
// guarded memory for the lifetime of a channel.
type SymmetricKey struct {
	buf *secret.Buffer
}

// NewSymmetricKey copies raw (zeroed by the copy) into guarded memory.
func NewSymmetricKey(raw [32]byte) (*SymmetricKey, error) {
	buf, err := secret.NewFromBytes(raw[:])
	if err != nil {
		return nil, fmt.Errorf("identity: allocating symmetric key: %w", err)
	}
	return &SymmetricKey{buf: buf}, nil
}

// Key returns the 32-byte secretbox key.
func (k *SymmetricKey) Key() [32]byte {
	var out [32]byte
	copy(out[:], k.buf.Bytes())
	return out
}

// Close zeroes and releases the symmetric key's backing memory.
func (k *SymmetricKey) Close() error {
	return k.buf.Close()
}
