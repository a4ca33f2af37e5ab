// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the structured messages exchanged between
// capone-client and capone-server, and between two capone-server
// instances. Every message is a Go struct tagged for CBOR Core
// Deterministic Encoding via lib/codec — `cbor:"N,keyasint"` so field
// numbers, not names, travel on the wire.
package wire

import "github.com/capone-project/capone/identity"

// SessionKey is exchanged during the handshake: an ephemeral X25519
// public key, the sender's claimed long-term identity, and a
// signature over the ephemeral key binding the two together.
type SessionKey struct {
	Identity        identity.SignPublic    `cbor:"0,keyasint"`
	EphemeralPublic identity.EncryptPublic `cbor:"1,keyasint"`
	Signature       [64]byte               `cbor:"2,keyasint"`
}

// Commands a ConnectionInitiation may name.
const (
	CommandQuery     = "QUERY"
	CommandRequest   = "REQUEST"
	CommandConnect   = "CONNECT"
	CommandTerminate = "TERMINATE"
)

// ConnectionInitiation is the first message a client sends after the
// handshake completes, naming the command it wants to invoke and,
// for QUERY and REQUEST, the service it targets.
type ConnectionInitiation struct {
	Command string `cbor:"0,keyasint"`
	Service string `cbor:"1,keyasint"`
}

// ServiceDescription answers a Query command: the set of parameters a
// service accepts, for display to a requesting client.
type ServiceDescription struct {
	Name       string   `cbor:"0,keyasint"`
	Category   string   `cbor:"1,keyasint"`
	Location   string   `cbor:"2,keyasint"`
	Port       uint16   `cbor:"3,keyasint"`
	Parameters []string `cbor:"4,keyasint"`
}

// SessionRequest is sent by a client to request a new session be
// created for a service invocation with the given parameters. On
// success the server replies with SessionMessage.
type SessionRequest struct {
	Parameters []string `cbor:"0,keyasint"`
}

// SessionMessage answers a successful SessionRequest: the identifier
// under which the session was registered and the capability
// (secret plus delegation chain) authorizing a later CONNECT or
// TERMINATE. The chain has exactly one link naming the requester with
// Exec|Term on a freshly requested session, but a capability handed
// off via Distribute before being presented may carry more.
type SessionMessage struct {
	SessionID uint32     `cbor:"0,keyasint"`
	Cap       Capability `cbor:"1,keyasint"`
}

// SessionInitiation is sent by a client to begin CONNECT: the session
// identifier to join and the capability authorizing it. cap's chain is
// replayed against the session's root capability on arrival — it need
// not be the depth-1 capability REQUEST returned; any capability
// delegated from it with Exec still in its final link's rights works.
type SessionInitiation struct {
	SessionID uint32     `cbor:"0,keyasint"`
	Cap       Capability `cbor:"1,keyasint"`
}

// SessionResult answers CONNECT and TERMINATE: 0 reports success,
// a nonzero value reports the protoerr.Kind the server rejected the
// command with (see protoerr.ExitCode).
type SessionResult struct {
	Result int32 `cbor:"0,keyasint"`
}

// SessionTermination is sent by a client to request TERMINATE on a
// session it holds a capability for. Like SessionInitiation, cap's
// chain is replayed against the session's root on arrival.
type SessionTermination struct {
	SessionID uint32     `cbor:"0,keyasint"`
	Cap       Capability `cbor:"1,keyasint"`
}

// Capability is the wire form of a capability chain: the root secret
// and the chain of identity/rights links delegated from it.
type Capability struct {
	Secret [32]byte    `cbor:"0,keyasint"`
	Chain  []ChainLink `cbor:"1,keyasint"`
}

// ChainLink is one delegation step in a capability chain.
type ChainLink struct {
	Identity identity.SignPublic `cbor:"0,keyasint"`
	Rights   uint32              `cbor:"1,keyasint"`
}

// DiscoveryRequest is broadcast on the LAN discovery port to locate
// capone-server instances.
type DiscoveryRequest struct{}

// DiscoveryResponse answers a DiscoveryRequest, identifying a server.
type DiscoveryResponse struct {
	Name    string              `cbor:"0,keyasint"`
	SignPK  identity.SignPublic `cbor:"1,keyasint"`
	Port    uint16              `cbor:"2,keyasint"`
}
