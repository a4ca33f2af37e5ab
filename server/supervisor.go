// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/capone-project/capone/protoerr"
)

// Supervisor runs a Server's accept loop: one goroutine per accepted
// connection, shutting down gracefully when its context is cancelled
// or an interrupt/terminate signal arrives. It also reaps any
// child processes a service plugin spawns (SIGCHLD), so a plugin
// that shells out to an external tool never leaves a zombie behind.
type Supervisor struct {
	server    *Server
	listeners []net.Listener

	wg sync.WaitGroup
}

// NewSupervisor wraps server to accept connections on every listener
// in listeners: one per configured service, plus any discovery
// listener the caller chooses to multiplex in the same way.
func NewSupervisor(s *Server, listeners ...net.Listener) *Supervisor {
	return &Supervisor{server: s, listeners: listeners}
}

// Run accepts connections on all listeners until ctx is cancelled or
// an interrupt or terminate signal is received, then stops accepting,
// waits for in-flight connections to finish, and returns.
func (sup *Supervisor) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reapDone := make(chan struct{})
	go sup.reapChildren(ctx, reapDone)

	acceptErr := make(chan error, len(sup.listeners))
	for _, l := range sup.listeners {
		l := l
		go func() {
			acceptErr <- sup.acceptLoop(ctx, l)
		}()
	}

	remaining := len(sup.listeners)
loop:
	for remaining > 0 {
		select {
		case <-ctx.Done():
			break loop
		case err := <-acceptErr:
			remaining--
			if err != nil {
				sup.server.Logger.Error("accept loop failed", "error", err)
			}
		}
	}

	for _, l := range sup.listeners {
		l.Close()
	}
	sup.wg.Wait()
	sup.server.Sessions.Clear()
	<-reapDone
	return nil
}

func (sup *Supervisor) acceptLoop(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return protoerr.Wrap(protoerr.KindIO, "server: accept", err)
		}

		sup.wg.Add(1)
		go func() {
			defer sup.wg.Done()
			if err := sup.server.HandleConnection(conn); err != nil {
				sup.server.Logger.Debug("connection ended", "remote", conn.RemoteAddr(), "error", err)
			}
		}()
	}
}

// reapChildren waits on SIGCHLD and reaps any finished child
// processes via a non-blocking Wait4, stopping when ctx is cancelled.
func (sup *Supervisor) reapChildren(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	sigs := make(chan os.Signal, 8)
	signal.Notify(sigs, syscall.SIGCHLD)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			for {
				var status unix.WaitStatus
				pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
				if err != nil || pid <= 0 {
					break
				}
				sup.server.Logger.Debug("reaped child process", "pid", pid)
			}
		}
	}
}
