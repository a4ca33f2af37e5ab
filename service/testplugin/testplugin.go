// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package testplugin provides a minimal echo service used by capone's
// integration tests and available in capone-server as a diagnostic
// service for exercising the full QUERY/REQUEST/CONNECT/TERMINATE flow
// without any real workload.
package testplugin

import (
	"fmt"

	"github.com/capone-project/capone/channel"
)

// probeMessage is this plugin's own wire format, opaque to the server:
// the core only ever hands a connected channel to ServerFn/ClientFn
// and has no notion of what a service sends over it.
type probeMessage struct {
	Payload []byte `cbor:"0,keyasint"`
}

// Plugin echoes every message the client sends back unmodified, until
// the client closes the channel. It accepts no parameters.
type Plugin struct{}

// New returns a new echo plugin instance.
func New() *Plugin {
	return &Plugin{}
}

// ParseParams accepts only an empty parameter list.
func (p *Plugin) ParseParams(params []string) error {
	if len(params) != 0 {
		return fmt.Errorf("testplugin: echo takes no parameters, got %d", len(params))
	}
	return nil
}

// ParamsDescriptor reports that no parameters are accepted.
func (p *Plugin) ParamsDescriptor() []string {
	return nil
}

// ServerFn reads messages until the channel closes, echoing each one
// back to the client.
func (p *Plugin) ServerFn(ch *channel.Channel, params []string) error {
	for {
		var msg probeMessage
		if err := ch.ReadMessage(&msg); err != nil {
			return nil
		}
		if err := ch.WriteMessage(msg); err != nil {
			return err
		}
	}
}

// ClientFn sends a fixed probe message and verifies the echoed reply
// matches, for use by integration tests driving a full client/server
// round trip.
func (p *Plugin) ClientFn(ch *channel.Channel, params []string) error {
	probe := probeMessage{Payload: []byte("capone-echo-probe")}
	if err := ch.WriteMessage(probe); err != nil {
		return err
	}

	var reply probeMessage
	if err := ch.ReadMessage(&reply); err != nil {
		return err
	}
	if string(reply.Payload) != string(probe.Payload) {
		return fmt.Errorf("testplugin: echo mismatch: sent %q, got %q", probe.Payload, reply.Payload)
	}
	return nil
}
