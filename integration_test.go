package iprewriter

import (
	"context"
	"testing"
	"time"
)

// TestIntegrationTwoWayNAT exercises the common case end to end: a
// single pattern input rewrites outbound flows, replies arriving on a
// nochange input are rewritten back through the existing mappings,
// and two idle GC sweeps then evict every pair and reset the
// pattern's port ring.
func TestIntegrationTwoWayNAT(t *testing.T) {
	pattern := NewPattern(IPv4{203, 0, 113, 1}, 1024, 65535, IPv4{}, 0)
	inputs := []InputSpec{
		{Kind: SpecPattern, Pattern: pattern, FOutput: 1, ROutput: 0},
		{Kind: SpecNoChange, Output: 1},
	}
	r := newTestRewriter(t, inputs)

	clients := []IPv4{{10, 0, 0, 1}, {10, 0, 0, 2}, {10, 0, 0, 3}}
	server := IPv4{8, 8, 8, 8}

	type session struct {
		client     IPv4
		clientPort uint16
		natPort    uint16
	}
	var sessions []session

	for i, client := range clients {
		clientPort := uint16(40000 + i)
		out := buildTCPPacket(client, server, clientPort, 80, 0x02)
		output, err := r.Push(0, out)
		if err != nil {
			t.Fatalf("outbound Push for client %d: %v", i, err)
		}
		if output != 1 {
			t.Fatalf("outbound output = %d, want 1", output)
		}
		th, _ := ParseTCPHeader(out, 20)
		sessions = append(sessions, session{client: client, clientPort: clientPort, natPort: th.SourcePort})
	}

	seen := map[uint16]bool{}
	for _, s := range sessions {
		if seen[s.natPort] {
			t.Fatalf("NAT port %d reused across sessions", s.natPort)
		}
		seen[s.natPort] = true
	}

	for i, s := range sessions {
		reply := buildTCPPacket(server, pattern.SAddr, 80, s.natPort, 0x12)
		output, err := r.Push(1, reply)
		if err != nil {
			t.Fatalf("reply Push for session %d: %v", i, err)
		}
		if output != 0 {
			t.Fatalf("reply output = %d, want 0", output)
		}
		h, _ := ParseIPv4Header(reply)
		if h.DestinationIP != s.client {
			t.Fatalf("reply destination = %v, want %v", h.DestinationIP, s.client)
		}
	}

	if got, want := r.tcp.Len(), len(sessions)*2; got != want {
		t.Fatalf("tcp table has %d entries, want %d", got, want)
	}

	r.Sweep(time.Now())
	r.Sweep(time.Now())
	if got := r.tcp.Len(); got != 0 {
		t.Fatalf("tcp table has %d entries after two idle sweeps, want 0", got)
	}

	newOut := buildTCPPacket(clients[0], server, 40000, 80, 0x02)
	if _, err := r.Push(0, newOut); err != nil {
		t.Fatalf("Push after GC: %v", err)
	}
	th, _ := ParseTCPHeader(newOut, 20)
	if th.SourcePort != pattern.SPortLow {
		t.Fatalf("first port reused after full GC = %d, want %d (the ring should have reset)", th.SourcePort, pattern.SPortLow)
	}
}

// TestIntegrationMixedProtocolsDoNotCollide checks that a TCP and a
// UDP session sharing an otherwise identical 4-tuple get independent
// mapping tables, so neither can evict or collide with the other.
func TestIntegrationMixedProtocolsDoNotCollide(t *testing.T) {
	pattern := NewPattern(IPv4{203, 0, 113, 1}, 30000, 30010, IPv4{}, 0)
	inputs := []InputSpec{{Kind: SpecPattern, Pattern: pattern, FOutput: 0, ROutput: 0}}
	r := newTestRewriter(t, inputs)

	client, server := IPv4{10, 0, 0, 1}, IPv4{8, 8, 8, 8}

	tcpPacket := buildTCPPacket(client, server, 5000, 80, 0x02)
	if _, err := r.Push(0, tcpPacket); err != nil {
		t.Fatalf("tcp Push: %v", err)
	}
	udpPacket := buildUDPPacket(client, server, 5000, 80, nil)
	if _, err := r.Push(0, udpPacket); err != nil {
		t.Fatalf("udp Push: %v", err)
	}

	if r.tcp.Len() != 2 || r.udp.Len() != 2 {
		t.Fatalf("tcp.Len()=%d udp.Len()=%d, want 2 and 2", r.tcp.Len(), r.udp.Len())
	}

	r.Sweep(time.Now())
	r.Sweep(time.Now())
	if r.tcp.Len() != 0 || r.udp.Len() != 0 {
		t.Fatalf("expected both tables empty after idle GC, got tcp=%d udp=%d", r.tcp.Len(), r.udp.Len())
	}
}

// TestIntegrationStartGCStopsOnContextCancel verifies the background
// sweep loop actually stops once its context is canceled, so callers
// don't leak a goroutine across Shutdown.
func TestIntegrationStartGCStopsOnContextCancel(t *testing.T) {
	pattern := NewPattern(IPv4{203, 0, 113, 1}, 20000, 20010, IPv4{}, 0)
	inputs := []InputSpec{{Kind: SpecPattern, Pattern: pattern, FOutput: 0, ROutput: 0}}
	r := newTestRewriter(t, inputs, WithGCInterval(5*time.Millisecond))

	packet := buildUDPPacket(IPv4{10, 0, 0, 1}, IPv4{8, 8, 8, 8}, 1, 53, nil)
	if _, err := r.Push(0, packet); err != nil {
		t.Fatalf("Push: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.StartGC(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartGC did not return after its context was canceled")
	}

	if r.udp.Len() != 0 {
		t.Fatalf("udp table has %d entries, want 0 after GC ran to completion", r.udp.Len())
	}
}
