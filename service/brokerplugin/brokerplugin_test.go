// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

package brokerplugin

import (
	"net"
	"testing"
	"time"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/wire"
)

func pipe(t *testing.T) (*channel.Channel, *channel.Channel) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	ca, err := channel.New(a, channel.MinBlockLength)
	if err != nil {
		t.Fatalf("channel.New: %v", err)
	}
	cb, err := channel.New(b, channel.MinBlockLength)
	if err != nil {
		t.Fatalf("channel.New: %v", err)
	}
	return ca, cb
}

func TestParseParamsRequiresSingleResourceName(t *testing.T) {
	p := New()
	if err := p.ParseParams(nil); err == nil {
		t.Error("ParseParams should reject zero parameters")
	}
	if err := p.ParseParams([]string{"a", "b"}); err == nil {
		t.Error("ParseParams should reject more than one parameter")
	}
	if err := p.ParseParams([]string{""}); err == nil {
		t.Error("ParseParams should reject an empty resource name")
	}
	if err := p.ParseParams([]string{"printer"}); err != nil {
		t.Errorf("ParseParams rejected a valid resource name: %v", err)
	}
}

func TestDistributeDeliversToRegistrantAndCleansUp(t *testing.T) {
	p := New()
	registrant, remote := pipe(t)

	done := make(chan error, 1)
	go func() { done <- p.ServerFn(registrant, []string{"printer"}) }()

	// Give ServerFn a moment to register before distributing.
	deadline := time.Now().Add(time.Second)
	for p.Pending("printer") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.Pending("printer") != 1 {
		t.Fatalf("Pending(printer) = %d, want 1 before Distribute", p.Pending("printer"))
	}

	root, err := capability.Root()
	if err != nil {
		t.Fatalf("capability.Root: %v", err)
	}
	defer root.Close()

	if !p.Distribute("printer", root) {
		t.Fatal("Distribute found no registrant")
	}

	var msg wire.Capability
	if err := remote.ReadMessage(&msg); err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("ServerFn: %v", err)
	}
	if p.Pending("printer") != 0 {
		t.Errorf("Pending(printer) = %d after delivery, want 0", p.Pending("printer"))
	}
}

func TestDistributeReturnsFalseWhenNoRegistrants(t *testing.T) {
	p := New()
	root, err := capability.Root()
	if err != nil {
		t.Fatalf("capability.Root: %v", err)
	}
	defer root.Close()

	if p.Distribute("nothing-waiting", root) {
		t.Error("Distribute should return false when nobody is registered")
	}
}

func TestDistributeServesOldestRegistrantFirst(t *testing.T) {
	p := New()
	first, firstRemote := pipe(t)
	second, secondRemote := pipe(t)

	doneFirst := make(chan error, 1)
	doneSecond := make(chan error, 1)
	go func() { doneFirst <- p.ServerFn(first, []string{"printer"}) }()

	deadline := time.Now().Add(time.Second)
	for p.Pending("printer") != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	go func() { doneSecond <- p.ServerFn(second, []string{"printer"}) }()
	for p.Pending("printer") != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	root, err := capability.Root()
	if err != nil {
		t.Fatalf("capability.Root: %v", err)
	}
	defer root.Close()

	if !p.Distribute("printer", root) {
		t.Fatal("Distribute found no registrant")
	}

	var msg wire.Capability
	if err := firstRemote.ReadMessage(&msg); err != nil {
		t.Fatalf("first registrant should have received the capability: %v", err)
	}
	if err := <-doneFirst; err != nil {
		t.Fatalf("ServerFn (first): %v", err)
	}
	if p.Pending("printer") != 1 {
		t.Fatalf("Pending(printer) = %d, want 1 after first delivery", p.Pending("printer"))
	}

	if !p.Distribute("printer", root) {
		t.Fatal("Distribute found no second registrant")
	}
	var secondMsg wire.Capability
	if err := secondRemote.ReadMessage(&secondMsg); err != nil {
		t.Fatalf("second registrant should have received the capability: %v", err)
	}
	if err := <-doneSecond; err != nil {
		t.Fatalf("ServerFn (second): %v", err)
	}
}

func TestCancelledRegistrationReturnsErrorAndCleansUp(t *testing.T) {
	p := New()
	registrant, _ := pipe(t)

	done := make(chan error, 1)
	go func() { done <- p.ServerFn(registrant, []string{"printer"}) }()

	deadline := time.Now().Add(time.Second)
	for p.Pending("printer") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if !p.Distribute("printer", nil) {
		t.Fatal("Distribute found no registrant")
	}
	if err := <-done; err == nil {
		t.Error("ServerFn should report an error for a cancelled registration")
	}
	if p.Pending("printer") != 0 {
		t.Errorf("Pending(printer) = %d after cancellation, want 0", p.Pending("printer"))
	}
}
