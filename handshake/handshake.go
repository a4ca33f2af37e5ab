// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package handshake implements capone's session-key exchange: each
// side generates an ephemeral X25519 keypair, signs its ephemeral
// public key with its long-term Ed25519 identity, and the initiator
// sends first. Each side verifies the other's signature against the
// identity named in the message, then derives a shared symmetric key
// as a BLAKE2b hash of the X25519 shared point and both ephemeral public
// keys in a fixed order, so both sides arrive at identical key
// material without either one dictating it. Ephemeral keys are
// destroyed the moment the shared key is derived.
package handshake

import (
	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/crypto"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/protoerr"
	"github.com/capone-project/capone/wire"
)

// Result is the outcome of a successful handshake: the derived
// symmetric key, the side the local party played, and the remote
// identity that authenticated, ready to be passed to
// Channel.EnableEncryption and to authorization checks respectively.
type Result struct {
	Key    *identity.SymmetricKey
	Side   channel.Side
	Remote identity.SignPublic
}

// Initiate performs the client side of the handshake over ch: it sends
// its SessionKey first, then reads the server's. If expectedRemote is
// non-zero, the responder's claimed identity must match it exactly
// (pinning); pass the zero value to accept whatever identity the
// responder proves it holds.
func Initiate(ch *channel.Channel, local *identity.SignKeyPair, expectedRemote identity.SignPublic) (*Result, error) {
	ephemeral, err := identity.GenerateEncryptKeyPair()
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindCrypto, "handshake: generating ephemeral keypair", err)
	}
	defer ephemeral.Close()

	localMsg := signSessionKey(local, ephemeral.Public)
	if err := ch.WriteMessage(localMsg); err != nil {
		return nil, err
	}

	var remoteMsg wire.SessionKey
	if err := ch.ReadMessage(&remoteMsg); err != nil {
		return nil, err
	}

	var zero identity.SignPublic
	if expectedRemote != zero && remoteMsg.Identity != expectedRemote {
		return nil, protoerr.Wrap(protoerr.KindCrypto, "handshake: server identity does not match expected", nil)
	}
	if err := verifySessionKey(remoteMsg); err != nil {
		return nil, err
	}

	key, err := deriveKey(ephemeral, remoteMsg.EphemeralPublic, ephemeral.Public, remoteMsg.EphemeralPublic)
	if err != nil {
		return nil, err
	}
	return &Result{Key: key, Side: channel.Client, Remote: remoteMsg.Identity}, nil
}

// Accept performs the server side of the handshake over ch: it reads
// the client's SessionKey first, verifying the signature against the
// identity the client claims, then sends its own. A server accepts
// any identity that proves possession of its claimed secret key;
// authorization against that identity happens afterward, at the ACL
// and capability layer.
func Accept(ch *channel.Channel, local *identity.SignKeyPair) (*Result, error) {
	ephemeral, err := identity.GenerateEncryptKeyPair()
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindCrypto, "handshake: generating ephemeral keypair", err)
	}
	defer ephemeral.Close()

	var remoteMsg wire.SessionKey
	if err := ch.ReadMessage(&remoteMsg); err != nil {
		return nil, err
	}
	if err := verifySessionKey(remoteMsg); err != nil {
		return nil, err
	}

	localMsg := signSessionKey(local, ephemeral.Public)
	if err := ch.WriteMessage(localMsg); err != nil {
		return nil, err
	}

	key, err := deriveKey(ephemeral, remoteMsg.EphemeralPublic, remoteMsg.EphemeralPublic, ephemeral.Public)
	if err != nil {
		return nil, err
	}
	return &Result{Key: key, Side: channel.Server, Remote: remoteMsg.Identity}, nil
}

func verifySessionKey(msg wire.SessionKey) error {
	if !crypto.Verify(msg.Identity.Bytes(), msg.EphemeralPublic[:], msg.Signature[:]) {
		return protoerr.Wrap(protoerr.KindCrypto, "handshake: session key signature invalid", nil)
	}
	return nil
}

func signSessionKey(local *identity.SignKeyPair, ephemeralPublic identity.EncryptPublic) wire.SessionKey {
	var msg wire.SessionKey
	msg.Identity = local.Public
	msg.EphemeralPublic = ephemeralPublic
	sig := local.Secret.Sign(ephemeralPublic[:])
	copy(msg.Signature[:], sig)
	return msg
}

// deriveKey computes H(q || pk_initiator || pk_responder) where q is
// the X25519 shared point between local and remotePublic, and
// pk_initiator/pk_responder are always ordered initiator-then-responder
// regardless of which side is computing, so both parties derive
// identical key material.
func deriveKey(local *identity.EncryptKeyPair, remotePublic identity.EncryptPublic, pkInitiator, pkResponder identity.EncryptPublic) (*identity.SymmetricKey, error) {
	shared, err := crypto.ScalarMult(local.Secret.Scalar(), [32]byte(remotePublic))
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindCrypto, "handshake: deriving shared secret", err)
	}
	sum, err := crypto.Hash(shared[:], pkInitiator[:], pkResponder[:])
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindCrypto, "handshake: deriving session key", err)
	}
	key, err := identity.NewSymmetricKey(sum)
	if err != nil {
		return nil, err
	}
	return key, nil
}
