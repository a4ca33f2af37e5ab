// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel implements capone's framed, optionally encrypted byte
// stream. Data is split into fixed-size blocks; block zero carries a
// four-byte big-endian length prefix for the whole message. Once a
// handshake derives a symmetric key, every block is additionally
// sealed with XSalsa20-Poly1305, and the nonce used for each direction
// increments by two after every block so the two directions' nonce
// spaces never collide.
package channel

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/capone-project/capone/crypto"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/lib/codec"
	"github.com/capone-project/capone/protoerr"
)

const (
	// MinBlockLength is the smallest block size a channel accepts.
	// At this size an encrypted block zero still holds the length
	// prefix, the MAC, and 20 bytes of payload.
	MinBlockLength = 40
	// DefaultBlockLength is used unless a caller specifies otherwise.
	DefaultBlockLength = 512
	// MaxBlockLength bounds how large a single block may be.
	MaxBlockLength = 4096

	lengthPrefixSize = 4

	// MaxMessageLength bounds the total length ReadMessage will
	// reassemble a structured message up to, independent of how many
	// blocks that spans.
	MaxMessageLength = 1 << 20

	// maxRelayPayload bounds a single payload Relay will frame onto
	// the channel from one read of a relayed descriptor.
	maxRelayPayload = 1 << 20
)

// Side identifies which party of a handshake a channel belongs to, so
// the two directions' nonces can be assigned without collision.
type Side int

const (
	// Client is the handshake initiator.
	Client Side = iota
	// Server is the handshake responder.
	Server
)

// Channel is a framed, optionally encrypted byte stream built over a
// net.Conn.
type Channel struct {
	conn        net.Conn
	blockLength int

	key         *identity.SymmetricKey
	localNonce  [crypto.NonceSize]byte
	remoteNonce [crypto.NonceSize]byte
	encrypted   bool
}

// New wraps conn in an unencrypted framed channel with the given block
// length. Pass 0 for blockLength to use DefaultBlockLength.
func New(conn net.Conn, blockLength int) (*Channel, error) {
	if blockLength == 0 {
		blockLength = DefaultBlockLength
	}
	if blockLength < MinBlockLength || blockLength > MaxBlockLength {
		return nil, protoerr.Wrap(protoerr.KindInvalid, "channel: block length out of range", nil)
	}
	return &Channel{conn: conn, blockLength: blockLength}, nil
}

// EnableEncryption arms a channel for encrypted operation with the
// symmetric key a handshake derived. side determines the initial
// nonce assignment: the client's local nonce starts at zero and its
// remote (server's) nonce starts at one; the server's assignment is
// the mirror image.
func (c *Channel) EnableEncryption(key *identity.SymmetricKey, side Side) {
	c.key = key
	c.encrypted = true
	c.localNonce = [crypto.NonceSize]byte{}
	c.remoteNonce = [crypto.NonceSize]byte{}
	if side == Client {
		c.remoteNonce[0] = 1
	} else {
		c.localNonce[0] = 1
	}
}

// incrementNonce adds two to n, treating it as a little-endian counter,
// matching libsodium's sodium_increment applied twice.
func incrementNonce(n *[crypto.NonceSize]byte) {
	for step := 0; step < 2; step++ {
		carry := uint16(1)
		for i := 0; i < len(n) && carry != 0; i++ {
			sum := uint16(n[i]) + carry
			n[i] = byte(sum)
			carry = sum >> 8
		}
	}
}

// Close closes the underlying connection.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// WriteBytes writes a single length-prefixed, block-framed message.
func (c *Channel) WriteBytes(data []byte) error {
	payloadPerBlock := c.blockLength
	if c.encrypted {
		payloadPerBlock -= crypto.MACSize
	}
	if payloadPerBlock <= lengthPrefixSize {
		return protoerr.Wrap(protoerr.KindInvalid, "channel: block length too small for framing", nil)
	}

	var header [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	combined := append(header[:], data...)

	// Every block on the wire is exactly blockLength bytes (payloadPerBlock
	// bytes of plaintext, plus a MAC when encrypted): readBlock always
	// reads a fixed size, so the final, possibly-short chunk is zero-padded
	// up to payloadPerBlock before sealing. ReadBytes knows the true
	// message length from the header and trims the padding back off.
	for offset := 0; offset < len(combined); offset += payloadPerBlock {
		end := offset + payloadPerBlock
		var chunk []byte
		if end > len(combined) {
			chunk = make([]byte, payloadPerBlock)
			copy(chunk, combined[offset:])
		} else {
			chunk = combined[offset:end]
		}
		if err := c.writeBlock(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) writeBlock(block []byte) error {
	if !c.encrypted {
		if _, err := c.conn.Write(block); err != nil {
			return protoerr.Wrap(protoerr.KindIO, "channel: writing block", err)
		}
		return nil
	}

	sealed := crypto.Seal(nil, block, c.localNonce, c.key.Key())
	incrementNonce(&c.localNonce)
	if _, err := c.conn.Write(sealed); err != nil {
		return protoerr.Wrap(protoerr.KindIO, "channel: writing encrypted block", err)
	}
	return nil
}

// ReadBytes reads a single length-prefixed, block-framed message and
// rejects it with InvalidLength if its declared length exceeds max,
// without reading any block beyond the first.
func (c *Channel) ReadBytes(max uint32) ([]byte, error) {
	payloadPerBlock := c.blockLength
	if c.encrypted {
		payloadPerBlock -= crypto.MACSize
	}
	if payloadPerBlock <= lengthPrefixSize {
		return nil, protoerr.Wrap(protoerr.KindInvalid, "channel: block length too small for framing", nil)
	}

	first, err := c.readBlock()
	if err != nil {
		return nil, err
	}
	if len(first) < lengthPrefixSize {
		return nil, protoerr.Wrap(protoerr.KindProtocol, "channel: first block shorter than length prefix", nil)
	}

	total := binary.BigEndian.Uint32(first[:lengthPrefixSize])
	if total > max {
		return nil, protoerr.Wrap(protoerr.KindInvalid, "channel: declared length exceeds maximum", nil)
	}

	result := make([]byte, 0, total)
	result = append(result, first[lengthPrefixSize:]...)

	for uint32(len(result)) < total {
		block, err := c.readBlock()
		if err != nil {
			return nil, err
		}
		result = append(result, block...)
	}
	// The final block may carry zero-padding beyond the declared length.
	return result[:total], nil
}

func (c *Channel) readBlock() ([]byte, error) {
	size := c.blockLength
	buf := make([]byte, size)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, protoerr.Wrap(protoerr.KindIO, "channel: reading block", err)
	}

	if !c.encrypted {
		return buf, nil
	}

	opened, err := crypto.Open(nil, buf, c.remoteNonce, c.key.Key())
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindCrypto, "channel: decrypting block", err)
	}
	incrementNonce(&c.remoteNonce)
	return opened, nil
}

// WriteMessage encodes v with the shared CBOR codec and writes it as a
// single framed message.
func (c *Channel) WriteMessage(v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("channel: encoding message: %w", err)
	}
	return c.WriteBytes(data)
}

// ReadMessage reads a single framed message up to MaxMessageLength and
// decodes it into v.
func (c *Channel) ReadMessage(v any) error {
	data, err := c.ReadBytes(MaxMessageLength)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return protoerr.Wrap(protoerr.KindProtocol, "channel: decoding message", err)
	}
	return nil
}

// Relay pumps bytes between the channel and fds until either side
// closes: payloads received from the channel are written to fds[0];
// payloads read from any fd are framed with WriteBytes and sent on
// the channel. It takes exclusive ownership of the channel's nonces
// for its duration, and closes the channel and every fd before
// returning.
func (c *Channel) Relay(fds ...io.ReadWriteCloser) error {
	if len(fds) == 0 {
		return protoerr.Wrap(protoerr.KindInvalid, "channel: relay requires at least one descriptor", nil)
	}

	done := make(chan struct{})
	var closeOnce sync.Once
	stop := func() { closeOnce.Do(func() { close(done) }) }

	var errOnce sync.Once
	var firstErr error
	setErr := func(err error) {
		if err != nil {
			errOnce.Do(func() { firstErr = err })
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		for {
			payload, err := c.ReadBytes(maxRelayPayload)
			if err != nil {
				setErr(err)
				return
			}
			if _, err := fds[0].Write(payload); err != nil {
				setErr(err)
				return
			}
		}
	}()

	for _, fd := range fds {
		fd := fd
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer stop()
			buf := make([]byte, maxRelayPayload)
			for {
				n, err := fd.Read(buf)
				if n > 0 {
					if writeErr := c.WriteBytes(buf[:n]); writeErr != nil {
						setErr(writeErr)
						return
					}
				}
				if err != nil {
					return
				}
			}
		}()
	}

	<-done
	c.Close()
	for _, fd := range fds {
		fd.Close()
	}
	wg.Wait()

	return firstErr
}
