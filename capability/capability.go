// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability implements capone's delegation chains. A root
// capability is a random secret bound to no identity; a reference is
// created by hashing the parent's secret together with the granted
// rights and the grantee's identity, so each delegation step can only
// narrow rights and only the holder of the previous secret can extend
// the chain. Verification replays the chain from the root and compares
// the final secret in constant time.
//
// The secret byte order fed to the hash is parent_secret || rights ||
// identity: delegation authenticates "this identity was granted these
// rights by someone holding this secret," which reads key-first.
package capability

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/capone-project/capone/crypto"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/lib/secret"
	"github.com/capone-project/capone/protoerr"
)

// Rights is a bitmask of operations a capability authorizes.
type Rights uint32

const (
	// Exec authorizes CONNECT: invoking the session the capability
	// was minted for.
	Exec Rights = 1 << iota
	// Term authorizes TERMINATE: ending the session early.
	Term
	// Distribute authorizes delegating a right to others via a
	// broker, without itself granting Exec or Term.
	Distribute
)

// letters maps each right to its single-character string-form code, in
// a fixed emission order.
var letters = []struct {
	right Rights
	code  byte
}{
	{Exec, 'x'},
	{Term, 't'},
	{Distribute, 'd'},
}

// String renders a rights mask as its letter-code form, e.g. "xt".
func (r Rights) String() string {
	var b strings.Builder
	for _, l := range letters {
		if r&l.right != 0 {
			b.WriteByte(l.code)
		}
	}
	return b.String()
}

// parseRights decodes a letter-code string into a Rights mask,
// rejecting unknown letters.
func parseRights(s string) (Rights, error) {
	var r Rights
	for i := 0; i < len(s); i++ {
		matched := false
		for _, l := range letters {
			if s[i] == l.code {
				r |= l.right
				matched = true
				break
			}
		}
		if !matched {
			return 0, protoerr.Wrap(protoerr.KindInvalid, fmt.Sprintf("capability: unknown rights letter %q", s[i]), nil)
		}
	}
	return r, nil
}

// Link is one delegation step: the identity it was granted to and the
// rights it holds.
type Link struct {
	Identity identity.SignPublic
	Rights   Rights
}

// Capability is a delegation chain rooted in a random secret. The zero
// value is not valid; construct with Root.
type Capability struct {
	secret *secret.Buffer
	chain  []Link
}

// Chain returns the capability's delegation chain. The returned slice
// must not be mutated.
func (c *Capability) Chain() []Link {
	return c.chain
}

// SecretBytes copies out the capability's current secret. Callers
// needing to send a capability over the wire use this plus Chain to
// build a wire.Capability.
func (c *Capability) SecretBytes() [32]byte {
	var out [32]byte
	copy(out[:], c.secret.Bytes())
	return out
}

// SecretLen is the size in bytes of a capability's root secret.
const SecretLen = 32

// Root creates a new root capability with a fresh random secret and no
// chain. A root capability authorizes nothing by itself; call
// CreateRef to delegate rights to an identity.
func Root() (*Capability, error) {
	raw := make([]byte, SecretLen)
	if err := crypto.RandomBytes(raw); err != nil {
		return nil, protoerr.Wrap(protoerr.KindCrypto, "capability: generating root secret", err)
	}
	buf, err := secret.NewFromBytes(raw)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindCrypto, "capability: allocating root secret", err)
	}
	return &Capability{secret: buf}, nil
}

// Close releases the capability's secret memory.
func (c *Capability) Close() error {
	return c.secret.Close()
}

// Rights returns the rights the final link of the chain holds. A root
// capability with no chain links has no rights.
func (c *Capability) Rights() Rights {
	if len(c.chain) == 0 {
		return 0
	}
	return c.chain[len(c.chain)-1].Rights
}

// FromParts reconstructs a Capability from a hex-encoded secret and a
// delegation chain, as produced by Parse. This is how a capability
// holder who received a capability's string form out-of-band (e.g.
// pasted from another operator) turns it back into something
// CreateRef can delegate further.
func FromParts(secretHex string, chain []Link) (*Capability, error) {
	raw, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindInvalid, "capability: malformed secret hex", err)
	}
	buf, err := secret.NewFromBytes(raw)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindCrypto, "capability: allocating secret", err)
	}
	return &Capability{secret: buf, chain: append([]Link(nil), chain...)}, nil
}

// CreateRef delegates rights to grantee, producing a new capability
// whose secret is derived from this one's. rights must not exceed the
// rights of the current final link (or, for a root capability with an
// empty chain, any rights may be granted as the first delegation).
// The receiver is left unmodified; the returned capability is
// independent and must be Closed separately.
func (c *Capability) CreateRef(grantee identity.SignPublic, rights Rights) (*Capability, error) {
	if len(c.chain) > 0 && rights&^c.chain[len(c.chain)-1].Rights != 0 {
		return nil, protoerr.Wrap(protoerr.KindInvalid, "capability: delegation would expand rights", nil)
	}

	var rightsBytes [4]byte
	binary.BigEndian.PutUint32(rightsBytes[:], uint32(rights))

	sum, err := crypto.Hash(c.secret.Bytes(), rightsBytes[:], grantee[:])
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindCrypto, "capability: deriving delegated secret", err)
	}

	buf, err := secret.NewFromBytes(sum[:])
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindCrypto, "capability: allocating delegated secret", err)
	}

	chain := make([]Link, len(c.chain), len(c.chain)+1)
	copy(chain, c.chain)
	chain = append(chain, Link{Identity: grantee, Rights: rights})

	return &Capability{secret: buf, chain: chain}, nil
}

// Verify replays the delegation chain from rootSecret and checks that
// the replayed final secret matches this capability's secret, and that
// the final chain link names holder with at least the rights in
// required. Each link's rights must be a subset of the previous link's
// (the first link is unconstrained, mirroring CreateRef's rule for a
// root's first delegation): without this check a holder of a genuine
// capability could hand-derive a further link granting itself rights
// no earlier holder in the chain actually held. This is how a server
// checks a capability presented by a client without trusting the
// client's claimed chain.
func Verify(rootSecret []byte, chain []Link, presentedSecret []byte, holder identity.SignPublic, required Rights) error {
	current := append([]byte(nil), rootSecret...)
	var previousRights Rights
	for i, l := range chain {
		if i > 0 && l.Rights&^previousRights != 0 {
			return protoerr.Wrap(protoerr.KindUnauthorized, "capability: chain rights expand instead of narrowing", nil)
		}
		previousRights = l.Rights

		var rightsBytes [4]byte
		binary.BigEndian.PutUint32(rightsBytes[:], uint32(l.Rights))
		sum, err := crypto.Hash(current, rightsBytes[:], l.Identity[:])
		if err != nil {
			return protoerr.Wrap(protoerr.KindCrypto, "capability: replaying chain", err)
		}
		current = sum[:]
	}

	if !crypto.ConstantTimeCompare(current, presentedSecret) {
		return protoerr.Wrap(protoerr.KindUnauthorized, "capability: secret mismatch", nil)
	}
	if len(chain) == 0 {
		return protoerr.Wrap(protoerr.KindUnauthorized, "capability: empty chain grants no rights", nil)
	}
	last := chain[len(chain)-1]
	if !last.Identity.Equal(holder) {
		return protoerr.Wrap(protoerr.KindUnauthorized, "capability: presented by wrong identity", nil)
	}
	if last.Rights&required != required {
		return protoerr.Wrap(protoerr.KindUnauthorized, "capability: insufficient rights", nil)
	}
	return nil
}

// String renders the capability in its wire string form:
// hex(secret)("|"hex(identity)":"rights_letters)*.
func (c *Capability) String() string {
	var b strings.Builder
	b.WriteString(hex.EncodeToString(c.secret.Bytes()))
	for _, l := range c.chain {
		b.WriteByte('|')
		b.WriteString(hex.EncodeToString(l.Identity[:]))
		b.WriteByte(':')
		b.WriteString(l.Rights.String())
	}
	return b.String()
}

// Parse decodes a capability's wire string form, as produced by
// String. It validates that rights are non-increasing along the
// chain and rejects unknown rights letters, but does not verify the
// chain's secret derivation — use Verify for that.
func Parse(s string) (secretHex string, chain []Link, err error) {
	parts := strings.Split(s, "|")
	if len(parts) == 0 || parts[0] == "" {
		return "", nil, protoerr.Wrap(protoerr.KindInvalid, "capability: empty secret field", nil)
	}
	decodedSecret, decodeErr := hex.DecodeString(parts[0])
	if decodeErr != nil {
		return "", nil, protoerr.Wrap(protoerr.KindInvalid, "capability: malformed secret hex", decodeErr)
	}
	if len(decodedSecret) != SecretLen {
		return "", nil, protoerr.Wrap(protoerr.KindInvalid,
			fmt.Sprintf("capability: secret has wrong length %d, want %d", len(decodedSecret), SecretLen), nil)
	}

	var previousRights Rights
	hasPrevious := false
	result := make([]Link, 0, len(parts)-1)
	for _, part := range parts[1:] {
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return "", nil, protoerr.Wrap(protoerr.KindInvalid, "capability: malformed chain link "+strconv.Quote(part), nil)
		}
		var id identity.SignPublic
		if err := id.UnmarshalText([]byte(fields[0])); err != nil {
			return "", nil, protoerr.Wrap(protoerr.KindInvalid, "capability: malformed chain identity", err)
		}
		rights, err := parseRights(fields[1])
		if err != nil {
			return "", nil, err
		}
		if hasPrevious && rights&^previousRights != 0 {
			return "", nil, protoerr.Wrap(protoerr.KindInvalid, "capability: chain rights expand instead of narrowing", nil)
		}
		previousRights = rights
		hasPrevious = true
		result = append(result, Link{Identity: id, Rights: rights})
	}
	return parts[0], result, nil
}
