// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package acl implements the access lists consulted for QUERY and
// REQUEST: a per-service allow-list of identities, with a wildcard
// entry permitting any identity. CONNECT and TERMINATE are authorized
// purely by capability possession and never consult an ACL.
package acl

import "github.com/capone-project/capone/identity"

// Wildcard, used as an ACL entry, permits any identity.
const Wildcard = "*"

// List is a per-service access list of hex-encoded identities, or the
// single entry Wildcard.
type List []string

// Allows reports whether who is permitted by the list.
func (l List) Allows(who identity.SignPublic) bool {
	hex := who.String()
	for _, entry := range l {
		if entry == Wildcard || entry == hex {
			return true
		}
	}
	return false
}

// Set holds the query and request ACLs for one service, matching the
// query_acl/request_acl configuration keys.
type Set struct {
	Query   List
	Request List
}

// AllowsQuery reports whether who may QUERY the service this Set
// belongs to.
func (s Set) AllowsQuery(who identity.SignPublic) bool {
	return s.Query.Allows(who)
}

// AllowsRequest reports whether who may REQUEST a session from the
// service this Set belongs to.
func (s Set) AllowsRequest(who identity.SignPublic) bool {
	return s.Request.Allows(who)
}
