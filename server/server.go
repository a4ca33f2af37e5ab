// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements capone-server's connection dispatch: the
// handshake, then a single command (QUERY, REQUEST, CONNECT, or
// TERMINATE) per connection, resolved against the configured service
// registry, session registry, and ACLs.
package server

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/handshake"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/protoerr"
	"github.com/capone-project/capone/service"
	"github.com/capone-project/capone/session"
	"github.com/capone-project/capone/wire"
)

// Server dispatches incoming connections to command handlers.
type Server struct {
	Identity    *identity.SignKeyPair
	Services    *service.Registry
	Sessions    *session.Registry
	BlockLength int
	Logger      *slog.Logger
}

// New constructs a Server. Pass a nil logger to use slog.Default.
func New(id *identity.SignKeyPair, services *service.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Identity: id,
		Services: services,
		Sessions: session.NewRegistry(),
		Logger:   logger,
	}
}

// HandleConnection performs the handshake and dispatches exactly one
// command over conn, then closes it. The peer's identity is learned
// from the handshake itself.
func (s *Server) HandleConnection(conn net.Conn) error {
	defer conn.Close()

	ch, err := channel.New(conn, s.BlockLength)
	if err != nil {
		return err
	}

	result, err := handshake.Accept(ch, s.Identity)
	if err != nil {
		s.Logger.Warn("handshake failed", "remote", conn.RemoteAddr(), "error", err)
		return err
	}
	ch.EnableEncryption(result.Key, result.Side)
	defer result.Key.Close()
	remotePublic := result.Remote

	var init wire.ConnectionInitiation
	if err := ch.ReadMessage(&init); err != nil {
		return err
	}

	var dispatchErr error
	switch init.Command {
	case wire.CommandQuery:
		dispatchErr = s.handleQuery(ch, remotePublic, init.Service)
	case wire.CommandRequest:
		dispatchErr = s.handleRequest(ch, remotePublic, init.Service)
	case wire.CommandConnect:
		dispatchErr = s.handleConnect(ch, remotePublic)
	case wire.CommandTerminate:
		dispatchErr = s.handleTerminate(ch, remotePublic)
	default:
		dispatchErr = protoerr.Wrap(protoerr.KindProtocol, fmt.Sprintf("server: unknown command %q", init.Command), nil)
	}
	if dispatchErr != nil {
		s.Logger.Warn("command dispatch failed", "command", init.Command, "remote", conn.RemoteAddr(), "error", dispatchErr)
	}
	return dispatchErr
}

func (s *Server) handleQuery(ch *channel.Channel, remote identity.SignPublic, serviceName string) error {
	desc, ok := s.Services.Find(serviceName)
	if !ok {
		return sendFailure(ch, protoerr.Wrap(protoerr.KindNotFound, "server: unknown service "+serviceName, nil))
	}
	if !desc.ACL.AllowsQuery(remote) {
		return sendFailure(ch, protoerr.Wrap(protoerr.KindUnauthorized, "server: query denied for "+serviceName, nil))
	}

	resp := wire.ServiceDescription{
		Name:       desc.Name,
		Category:   desc.Category,
		Location:   desc.Location,
		Port:       desc.Port,
		Parameters: desc.Plugin.ParamsDescriptor(),
	}
	return ch.WriteMessage(resp)
}

func (s *Server) handleRequest(ch *channel.Channel, remote identity.SignPublic, serviceName string) error {
	desc, ok := s.Services.Find(serviceName)
	if !ok {
		return sendFailure(ch, protoerr.Wrap(protoerr.KindNotFound, "server: unknown service "+serviceName, nil))
	}
	if !desc.ACL.AllowsRequest(remote) {
		return sendFailure(ch, protoerr.Wrap(protoerr.KindUnauthorized, "server: request denied for "+serviceName, nil))
	}

	var req wire.SessionRequest
	if err := ch.ReadMessage(&req); err != nil {
		return err
	}
	if err := desc.Plugin.ParseParams(req.Parameters); err != nil {
		return sendFailure(ch, protoerr.Wrap(protoerr.KindInvalid, "server: invalid parameters", err))
	}

	root, err := capability.Root()
	if err != nil {
		return sendFailure(ch, err)
	}

	grant, err := root.CreateRef(remote, capability.Exec|capability.Term)
	if err != nil {
		root.Close()
		return sendFailure(ch, err)
	}

	// The session keeps the root alive, not grant: a later CONNECT or
	// TERMINATE may present a capability delegated further than this
	// depth-1 grant (e.g. relayed through a broker), and only the root
	// lets that chain be replayed and verified.
	sess, err := s.Sessions.Add(remote, serviceName, req.Parameters, root)
	if err != nil {
		root.Close()
		grant.Close()
		return sendFailure(ch, err)
	}
	defer grant.Close()

	resp := wire.SessionMessage{
		SessionID: sess.ID,
		Cap:       wireCapability(grant),
	}
	return ch.WriteMessage(resp)
}

// wireCapability converts a capability's secret and chain into its
// wire form, as sent in a SessionMessage, SessionInitiation, or
// SessionTermination.
func wireCapability(cap *capability.Capability) wire.Capability {
	chain := make([]wire.ChainLink, len(cap.Chain()))
	for i, l := range cap.Chain() {
		chain[i] = wire.ChainLink{Identity: l.Identity, Rights: uint32(l.Rights)}
	}
	return wire.Capability{Secret: cap.SecretBytes(), Chain: chain}
}

func (s *Server) handleConnect(ch *channel.Channel, remote identity.SignPublic) error {
	var msg wire.SessionInitiation
	if err := ch.ReadMessage(&msg); err != nil {
		return err
	}

	sess, ok := s.Sessions.Find(msg.SessionID)
	if !ok {
		return sendFailure(ch, protoerr.Wrap(protoerr.KindNotFound, "server: unknown session", nil))
	}
	if err := authorizeSession(sess, msg.Cap, remote, capability.Exec); err != nil {
		return sendFailure(ch, err)
	}

	desc, ok := s.Services.Find(sess.ServiceName)
	if !ok {
		return sendFailure(ch, protoerr.Wrap(protoerr.KindNotFound, "server: session references unknown service", nil))
	}

	// A session may be connected exactly once; remove it before
	// running the plugin so a second CONNECT racing on the same
	// capability cannot also succeed.
	s.Sessions.Remove(msg.SessionID)

	if err := ch.WriteMessage(wire.SessionResult{Result: 0}); err != nil {
		return err
	}
	return desc.Plugin.ServerFn(ch, sess.Parameters)
}

func (s *Server) handleTerminate(ch *channel.Channel, remote identity.SignPublic) error {
	var msg wire.SessionTermination
	if err := ch.ReadMessage(&msg); err != nil {
		return err
	}

	sess, ok := s.Sessions.Find(msg.SessionID)
	if !ok {
		return sendFailure(ch, protoerr.Wrap(protoerr.KindNotFound, "server: unknown session", nil))
	}
	if err := authorizeSession(sess, msg.Cap, remote, capability.Term); err != nil {
		return sendFailure(ch, err)
	}

	s.Sessions.Remove(msg.SessionID)
	return ch.WriteMessage(wire.SessionResult{Result: 0})
}

// sendFailure writes a SessionResult carrying the wire code for err's
// Kind, best-effort, and returns err unchanged so the caller still
// propagates it for logging. The write is not itself fatal: by the
// time a command fails the channel may already be unusable, and the
// dispatch loop closes the connection regardless.
func sendFailure(ch *channel.Channel, err error) error {
	ch.WriteMessage(wire.SessionResult{Result: int32(protoerr.ExitCode(protoerr.KindOf(err)))})
	return err
}

// authorizeSession replays the chain presented's client claims to hold
// against the session's root capability, and checks that the replayed
// final link names holder with at least the required rights. The
// session's own stored capability is always its root (handleRequest
// never lets it be closed or replaced by a depth-1 grant), so a chain
// delegated further than the one REQUEST originally handed out — via a
// broker, say — verifies here exactly as the depth-1 grant would.
func authorizeSession(sess *session.Session, presented wire.Capability, holder identity.SignPublic, required capability.Rights) error {
	rootSecret := sess.Capability.SecretBytes()

	chain := make([]capability.Link, len(presented.Chain))
	for i, l := range presented.Chain {
		chain[i] = capability.Link{Identity: l.Identity, Rights: capability.Rights(l.Rights)}
	}

	return capability.Verify(rootSecret[:], chain, presented.Secret[:], holder, required)
}
