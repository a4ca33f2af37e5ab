// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"log/slog"
	"net"

	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/lib/codec"
	"github.com/capone-project/capone/wire"
)

// DiscoveryPort is the UDP port capone-server listens on for LAN
// discovery probes.
const DiscoveryPort = 6667

// maxDiscoveryDatagram bounds how much of an incoming UDP datagram
// DiscoveryResponder reads before giving up on parsing it.
const maxDiscoveryDatagram = 512

// DiscoveryResponder answers DiscoveryRequest probes on the LAN so
// clients can locate a capone-server instance without being
// preconfigured with its address.
type DiscoveryResponder struct {
	Name     string
	Identity identity.SignPublic
	Port     uint16
	Logger   *slog.Logger
}

// Run listens for discovery probes on DiscoveryPort until ctx is
// cancelled. A malformed probe is logged and ignored; discovery is a
// best-effort, unauthenticated convenience, not a trust boundary.
func (d *DiscoveryResponder) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: DiscoveryPort})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	buf := make([]byte, maxDiscoveryDatagram)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var req wire.DiscoveryRequest
		if err := codec.Unmarshal(buf[:n], &req); err != nil {
			logger.Debug("ignoring malformed discovery probe", "remote", addr, "error", err)
			continue
		}

		resp := wire.DiscoveryResponse{Name: d.Name, SignPK: d.Identity, Port: d.Port}
		data, err := codec.Marshal(resp)
		if err != nil {
			logger.Warn("encoding discovery response failed", "error", err)
			continue
		}
		if _, err := conn.WriteToUDP(data, addr); err != nil {
			logger.Debug("writing discovery response failed", "remote", addr, "error", err)
		}
	}
}
