// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package brokerplugin implements a capabilities broker: a service
// that lets clients register interest in a named resource and
// distributes each capability to the oldest registrant still waiting.
// ServerFn always runs its registrant cleanup via defer, so an entry
// is removed whether the registrant disconnects cleanly, is served, or
// the connection fails outright — nothing is ever left behind by an
// abandoned registration.
package brokerplugin

import (
	"fmt"
	"sync"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/wire"
)

// registrant is one pending registration awaiting a matching request.
type registrant struct {
	resource string
	deliver  chan *capability.Capability
}

// Plugin brokers capability distribution for named resources. A
// registrant calls ServerFn to wait for a resource; a distributor
// grants one by calling Distribute.
type Plugin struct {
	mu          sync.Mutex
	registrants map[string][]*registrant
	nextID      uint64
}

// New returns a new, empty broker.
func New() *Plugin {
	return &Plugin{registrants: make(map[string][]*registrant)}
}

// ParseParams expects exactly one parameter: the resource name being
// registered for.
func (p *Plugin) ParseParams(params []string) error {
	if len(params) != 1 || params[0] == "" {
		return fmt.Errorf("brokerplugin: expected a single resource name parameter")
	}
	return nil
}

// ParamsDescriptor describes the broker's single parameter.
func (p *Plugin) ParamsDescriptor() []string {
	return []string{"resource-name"}
}

// ServerFn registers the connecting client as waiting for params[0],
// blocking until a capability is distributed to it or the channel
// fails. The registration is always removed on return.
func (p *Plugin) ServerFn(ch *channel.Channel, params []string) error {
	resource := params[0]
	reg := &registrant{resource: resource, deliver: make(chan *capability.Capability, 1)}

	p.mu.Lock()
	p.registrants[resource] = append(p.registrants[resource], reg)
	p.mu.Unlock()

	defer p.removeRegistrant(resource, reg)

	// A registrant sends nothing while it waits, so any read result
	// (normally the connection closing) ends the registration.
	gone := make(chan struct{})
	go func() {
		ch.ReadBytes(channel.MaxMessageLength)
		close(gone)
	}()

	var cap *capability.Capability
	select {
	case cap = <-reg.deliver:
	case <-gone:
		return fmt.Errorf("brokerplugin: registrant for %q disconnected", resource)
	}
	if cap == nil {
		return fmt.Errorf("brokerplugin: registration for %q cancelled", resource)
	}

	chain := make([]wire.ChainLink, len(cap.Chain()))
	for i, l := range cap.Chain() {
		chain[i] = wire.ChainLink{Identity: l.Identity, Rights: uint32(l.Rights)}
	}
	msg := wire.Capability{Secret: cap.SecretBytes(), Chain: chain}
	return ch.WriteMessage(msg)
}

// ClientFn is unused by the broker itself; a distributing party calls
// Distribute directly rather than connecting as a client.
func (p *Plugin) ClientFn(ch *channel.Channel, params []string) error {
	return fmt.Errorf("brokerplugin: client side is not invoked directly")
}

// Distribute grants cap to the oldest pending registrant for resource,
// if any, and reports whether a registrant was found.
func (p *Plugin) Distribute(resource string, cap *capability.Capability) bool {
	p.mu.Lock()
	regs := p.registrants[resource]
	if len(regs) == 0 {
		p.mu.Unlock()
		return false
	}
	reg := regs[0]
	p.registrants[resource] = regs[1:]
	p.mu.Unlock()

	reg.deliver <- cap
	return true
}

// removeRegistrant deletes reg from the pending list for resource, if
// it is still present (it may already have been removed by
// Distribute).
func (p *Plugin) removeRegistrant(resource string, reg *registrant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	regs := p.registrants[resource]
	for i, r := range regs {
		if r == reg {
			p.registrants[resource] = append(regs[:i], regs[i+1:]...)
			break
		}
	}
}

// Pending reports how many registrants are waiting for resource, for
// diagnostics and tests.
func (p *Plugin) Pending(resource string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.registrants[resource])
}

