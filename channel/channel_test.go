// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"net"
	"testing"

	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/protoerr"
)

func pipe(t *testing.T, blockLength int) (*Channel, *Channel) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	ca, err := New(a, blockLength)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cb, err := New(b, blockLength)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ca, cb
}

func TestPlaintextRoundtripUnaligned(t *testing.T) {
	// 17 bytes of payload plus a 4-byte header does not divide evenly
	// by a 40-byte block, exercising the final short-block padding path.
	client, server := pipe(t, MinBlockLength)

	msg := []byte("not-block-aligned")
	errc := make(chan error, 1)
	go func() { errc <- client.WriteBytes(msg) }()

	got, err := server.ReadBytes(MaxMessageLength)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	if string(got) != string(msg) {
		t.Errorf("got %q, want %q", got, msg)
	}
}

func TestEncryptedRoundtrip(t *testing.T) {
	client, server := pipe(t, MinBlockLength)

	var raw [32]byte
	for i := range raw {
		raw[i] = byte(i)
	}
	clientKey, err := identity.NewSymmetricKey(raw)
	if err != nil {
		t.Fatalf("NewSymmetricKey: %v", err)
	}
	serverKey, err := identity.NewSymmetricKey(raw)
	if err != nil {
		t.Fatalf("NewSymmetricKey: %v", err)
	}
	client.EnableEncryption(clientKey, Client)
	server.EnableEncryption(serverKey, Server)

	messages := [][]byte{
		[]byte("short"),
		make([]byte, 200),
		[]byte(""),
	}
	for i := range messages[1] {
		messages[1][i] = byte(i)
	}

	for _, msg := range messages {
		errc := make(chan error, 1)
		go func() { errc <- client.WriteBytes(msg) }()

		got, err := server.ReadBytes(MaxMessageLength)
		if err != nil {
			t.Fatalf("ReadBytes: %v", err)
		}
		if err := <-errc; err != nil {
			t.Fatalf("WriteBytes: %v", err)
		}
		if string(got) != string(msg) {
			t.Errorf("got %q, want %q", got, msg)
		}
	}
}

func TestEncryptedChannelsRequireMatchingNonceAssignment(t *testing.T) {
	client, server := pipe(t, MinBlockLength)

	var raw [32]byte
	clientKey, _ := identity.NewSymmetricKey(raw)
	serverKey, _ := identity.NewSymmetricKey(raw)
	// Assigning both sides the same Side is a caller error: their
	// nonce spaces collide instead of mirroring, and decryption fails.
	client.EnableEncryption(clientKey, Client)
	server.EnableEncryption(serverKey, Client)

	errc := make(chan error, 1)
	go func() { errc <- client.WriteBytes([]byte("hello")) }()

	if _, err := server.ReadBytes(MaxMessageLength); err == nil {
		t.Error("expected decryption to fail with mismatched nonce assignment")
	}
	<-errc
}

func TestNewRejectsOutOfRangeBlockLength(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	if _, err := New(a, MinBlockLength-1); err == nil {
		t.Error("New should reject a block length below MinBlockLength")
	}
	if _, err := New(b, MaxBlockLength+1); err == nil {
		t.Error("New should reject a block length above MaxBlockLength")
	}
}

func TestWriteMessageReadMessageRoundtrip(t *testing.T) {
	client, server := pipe(t, DefaultBlockLength)

	type sample struct {
		Name string `cbor:"0,keyasint"`
		N    int    `cbor:"1,keyasint"`
	}
	original := sample{Name: "session", N: 7}

	errc := make(chan error, 1)
	go func() { errc <- client.WriteMessage(original) }()

	var got sample
	if err := server.ReadMessage(&got); err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if got != original {
		t.Errorf("got %+v, want %+v", got, original)
	}
}

func TestReadBytesRejectsLengthAboveMax(t *testing.T) {
	client, server := pipe(t, MinBlockLength)

	msg := make([]byte, 64)
	errc := make(chan error, 1)
	go func() { errc <- client.WriteBytes(msg) }()

	_, err := server.ReadBytes(32)
	if err == nil {
		t.Fatal("ReadBytes should reject a declared length above max")
	}
	if protoerr.KindOf(err) != protoerr.KindInvalid {
		t.Errorf("ReadBytes error kind = %v, want KindInvalid", protoerr.KindOf(err))
	}
	// ReadBytes stopped after block zero, so the writer is still blocked
	// on its second block; closing the reader's end releases it.
	server.Close()
	<-errc
}

func TestReadBytesAcceptsLengthAtMax(t *testing.T) {
	client, server := pipe(t, MinBlockLength)

	msg := make([]byte, 32)
	for i := range msg {
		msg[i] = byte(i)
	}
	errc := make(chan error, 1)
	go func() { errc <- client.WriteBytes(msg) }()

	got, err := server.ReadBytes(32)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	if string(got) != string(msg) {
		t.Errorf("got %q, want %q", got, msg)
	}
}

func TestRelayPumpsBothDirections(t *testing.T) {
	channelSide, peerSide := pipe(t, MinBlockLength)

	fdA, fdB := net.Pipe()
	t.Cleanup(func() { fdA.Close(); fdB.Close() })

	relayErr := make(chan error, 1)
	go func() { relayErr <- channelSide.Relay(fdA) }()

	// channel -> fd: peer writes a framed message, it must arrive on fdB.
	go func() { peerSide.WriteBytes([]byte("from-channel")) }()
	buf := make([]byte, 64)
	n, err := fdB.Read(buf)
	if err != nil {
		t.Fatalf("reading relayed payload from fd: %v", err)
	}
	if string(buf[:n]) != "from-channel" {
		t.Errorf("relayed payload = %q, want %q", buf[:n], "from-channel")
	}

	// fd -> channel: writing to fdB must arrive on the peer as a framed message.
	if _, err := fdB.Write([]byte("from-fd")); err != nil {
		t.Fatalf("writing to fd: %v", err)
	}
	got, err := peerSide.ReadBytes(MaxMessageLength)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(got) != "from-fd" {
		t.Errorf("relayed payload = %q, want %q", got, "from-fd")
	}

	peerSide.Close()
	<-relayErr
}
