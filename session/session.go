// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements capone's in-memory session registry. A
// Session represents one accepted REQUEST awaiting CONNECT; the
// registry maps random 32-bit identifiers to sessions, retrying on
// collision, and is safe for concurrent use by the server's
// per-connection goroutines. Sessions live behind a Go map under a
// sync.RWMutex, keeping the whole registry's state encapsulated
// behind Add/Find/Remove/Clear.
package session

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/crypto"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/protoerr"
)

// Session is one accepted service invocation awaiting or undergoing
// CONNECT.
type Session struct {
	ID          uint32
	Creator     identity.SignPublic
	ServiceName string
	Parameters  []string
	Capability  *capability.Capability
	CreatedAt   time.Time
}

// Close releases the session's capability secret.
func (s *Session) Close() error {
	if s.Capability == nil {
		return nil
	}
	return s.Capability.Close()
}

// Registry tracks sessions awaiting CONNECT, keyed by a random
// identifier assigned at creation.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint32]*Session
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uint32]*Session)}
}

// maxCreateAttempts bounds how many times Add retries generating a
// fresh identifier before giving up, guarding against a pathological
// (not just unlucky) random source.
const maxCreateAttempts = 16

// Add registers a new session with a fresh random identifier, assigning
// it into the returned Session. Retries on identifier collision rather
// than risking a silent overwrite of an existing session.
func (r *Registry) Add(creator identity.SignPublic, serviceName string, parameters []string, cap *capability.Capability) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id, err := randomID()
		if err != nil {
			return nil, err
		}
		if _, exists := r.sessions[id]; exists {
			continue
		}
		sess := &Session{
			ID:          id,
			Creator:     creator,
			ServiceName: serviceName,
			Parameters:  parameters,
			Capability:  cap,
			CreatedAt:   time.Now(),
		}
		r.sessions[id] = sess
		return sess, nil
	}
	return nil, protoerr.Wrap(protoerr.KindIO, "session: exhausted identifier attempts", nil)
}

// Find looks up a session by identifier.
func (r *Registry) Find(id uint32) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes a session from the registry and closes its
// capability. Removing an identifier that is not present is a no-op.
func (r *Registry) Remove(id uint32) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok {
		sess.Close()
	}
}

// Clear removes and closes every session in the registry, for use at
// server shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[uint32]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

// Len reports the number of sessions currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func randomID() (uint32, error) {
	var buf [4]byte
	if err := crypto.RandomBytes(buf[:]); err != nil {
		return 0, protoerr.Wrap(protoerr.KindCrypto, "session: generating identifier", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
