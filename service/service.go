// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package service defines the plugin surface capone-server dispatches
// to once a session is connected. A Plugin parses its invocation
// parameters, then runs either ServerFn (on the host offering the
// service) or ClientFn (on the host that invoked it), exchanging
// messages over the already-encrypted channel.
package service

import (
	"github.com/capone-project/capone/acl"
	"github.com/capone-project/capone/channel"
)

// Plugin is the interface every service implementation satisfies: a
// parse_params/server_fn/client_fn/params_descriptor function table.
type Plugin interface {
	// ParseParams validates and normalizes the string parameters a
	// REQUEST named for this service, returning an error if they are
	// malformed. The parsed form is opaque to the server; plugins may
	// simply retain params and reinterpret it in ServerFn/ClientFn.
	ParseParams(params []string) error

	// ParamsDescriptor returns a human-readable description of the
	// parameters this plugin accepts, for QUERY responses.
	ParamsDescriptor() []string

	// ServerFn runs on the host offering the service once a client has
	// connected to an invoked session.
	ServerFn(ch *channel.Channel, params []string) error

	// ClientFn runs on the host that invoked the service, driving the
	// client side of whatever protocol ServerFn expects.
	ClientFn(ch *channel.Channel, params []string) error
}

// Descriptor describes one configured service instance: its name,
// category, the plugin implementing it, and the ACLs guarding it.
type Descriptor struct {
	Name     string
	Category string
	Location string
	Port     uint16
	Plugin   Plugin
	ACL      acl.Set
}

// Registry maps configured service names to their descriptors.
type Registry struct {
	services map[string]*Descriptor
}

// NewRegistry returns an empty service registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*Descriptor)}
}

// Register adds a service descriptor under its name. Registering a
// duplicate name overwrites the previous entry, matching the config
// loader's behavior of applying [service] sections in file order.
func (r *Registry) Register(d *Descriptor) {
	r.services[d.Name] = d
}

// Find looks up a service descriptor by name.
func (r *Registry) Find(name string) (*Descriptor, bool) {
	d, ok := r.services[name]
	return d, ok
}

// All returns every registered service descriptor, in no particular
// order.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.services))
	for _, d := range r.services {
		out = append(out, d)
	}
	return out
}
