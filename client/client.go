// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements capone-client's protocol functions: Query,
// Request, Connect, and Terminate, each a single connection performing
// a handshake followed by one command, mirroring the server's
// dispatch model one command per connection.
package client

import (
	"fmt"
	"net"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/handshake"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/protoerr"
	"github.com/capone-project/capone/service"
	"github.com/capone-project/capone/wire"
)

// wireCapability converts a capability's secret and chain into its
// wire form, as sent in a SessionInitiation or SessionTermination.
func wireCapability(cap *capability.Capability) wire.Capability {
	chain := make([]wire.ChainLink, len(cap.Chain()))
	for i, l := range cap.Chain() {
		chain[i] = wire.ChainLink{Identity: l.Identity, Rights: uint32(l.Rights)}
	}
	return wire.Capability{Secret: cap.SecretBytes(), Chain: chain}
}

// CapabilityFromWire reconstructs the capability carried by a
// SessionMessage (or one received out-of-band, e.g. from a broker) so
// it can be delegated further with CreateRef or presented to Connect
// or Terminate.
func CapabilityFromWire(w wire.Capability) (*capability.Capability, error) {
	chain := make([]capability.Link, len(w.Chain))
	for i, l := range w.Chain {
		chain[i] = capability.Link{Identity: l.Identity, Rights: capability.Rights(l.Rights)}
	}
	secretHex := fmt.Sprintf("%x", w.Secret[:])
	return capability.FromParts(secretHex, chain)
}

// dial performs a handshake over a new connection to addr and returns
// the resulting encrypted channel.
func dial(addr string, local *identity.SignKeyPair, remote identity.SignPublic, blockLength int) (*channel.Channel, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	ch, err := channel.New(conn, blockLength)
	if err != nil {
		conn.Close()
		return nil, err
	}

	result, err := handshake.Initiate(ch, local, remote)
	if err != nil {
		conn.Close()
		return nil, err
	}
	ch.EnableEncryption(result.Key, result.Side)
	return ch, nil
}

// Query asks a server for a service's description.
func Query(addr string, local *identity.SignKeyPair, remote identity.SignPublic, serviceName string, blockLength int) (*wire.ServiceDescription, error) {
	ch, err := dial(addr, local, remote, blockLength)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	init := wire.ConnectionInitiation{Command: wire.CommandQuery, Service: serviceName}
	if err := ch.WriteMessage(init); err != nil {
		return nil, err
	}

	var desc wire.ServiceDescription
	if err := ch.ReadMessage(&desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

// Request asks a server to create a session for a service invocation
// with the given parameters, returning the session identifier and the
// capability authorizing a later Connect or Terminate.
func Request(addr string, local *identity.SignKeyPair, remote identity.SignPublic, serviceName string, parameters []string, blockLength int) (*wire.SessionMessage, error) {
	ch, err := dial(addr, local, remote, blockLength)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	init := wire.ConnectionInitiation{Command: wire.CommandRequest, Service: serviceName}
	if err := ch.WriteMessage(init); err != nil {
		return nil, err
	}
	if err := ch.WriteMessage(wire.SessionRequest{Parameters: parameters}); err != nil {
		return nil, err
	}

	var result wire.SessionMessage
	if err := ch.ReadMessage(&result); err != nil {
		return nil, err
	}
	// A rejected REQUEST is answered with a SessionResult, whose code
	// decodes into SessionID and leaves Cap empty; a granted one always
	// carries a one-link chain.
	if len(result.Cap.Chain) == 0 {
		code := int32(result.SessionID)
		return nil, protoerr.Wrap(protoerr.KindFromCode(code),
			fmt.Sprintf("client: server rejected request (code %d)", code), nil)
	}
	return &result, nil
}

// Connect joins a previously requested session, presenting cap (the
// capability Request returned, or one delegated further from it — e.g.
// received from a broker), and runs plugin's client side of the
// service protocol over the resulting channel. It only invokes
// plugin.ClientFn once the server has acknowledged the CONNECT with a
// successful SessionResult.
func Connect(addr string, local *identity.SignKeyPair, remote identity.SignPublic, sessionID uint32, cap *capability.Capability, plugin service.Plugin, parameters []string, blockLength int) error {
	ch, err := dial(addr, local, remote, blockLength)
	if err != nil {
		return err
	}
	defer ch.Close()

	init := wire.ConnectionInitiation{Command: wire.CommandConnect}
	if err := ch.WriteMessage(init); err != nil {
		return err
	}
	if err := ch.WriteMessage(wire.SessionInitiation{SessionID: sessionID, Cap: wireCapability(cap)}); err != nil {
		return err
	}

	var ack wire.SessionResult
	if err := ch.ReadMessage(&ack); err != nil {
		return err
	}
	if ack.Result != 0 {
		return protoerr.Wrap(protoerr.KindFromCode(ack.Result),
			fmt.Sprintf("client: server rejected connect (code %d)", ack.Result), nil)
	}

	return plugin.ClientFn(ch, parameters)
}

// Terminate ends a session early, presenting cap (the capability
// Request returned, or one delegated further from it). It reports the
// server's SessionResult as an error when the termination was
// rejected.
func Terminate(addr string, local *identity.SignKeyPair, remote identity.SignPublic, sessionID uint32, cap *capability.Capability, blockLength int) error {
	ch, err := dial(addr, local, remote, blockLength)
	if err != nil {
		return err
	}
	defer ch.Close()

	init := wire.ConnectionInitiation{Command: wire.CommandTerminate}
	if err := ch.WriteMessage(init); err != nil {
		return err
	}
	if err := ch.WriteMessage(wire.SessionTermination{SessionID: sessionID, Cap: wireCapability(cap)}); err != nil {
		return err
	}

	var ack wire.SessionResult
	if err := ch.ReadMessage(&ack); err != nil {
		return err
	}
	if ack.Result != 0 {
		return protoerr.Wrap(protoerr.KindFromCode(ack.Result),
			fmt.Sprintf("client: server rejected terminate (code %d)", ack.Result), nil)
	}
	return nil
}
