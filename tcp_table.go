package main

import "github.com/google/gopacket/layers"

// Quad is the TCP connection key: (peer_ip, peer_port). The local port
// is implicit -- this stack listens on exactly one port -- so it is a
// deliberate two-tuple, not a full four-tuple.
type Quad struct {
	PeerIP   uint32
	PeerPort layers.TCPPort
}

func quadFor(tcp *TCPView, ip *IPv4View) Quad {
	return Quad{PeerIP: ip.Source(), PeerPort: tcp.SourcePort()}
}

// TCPConnectionTable maps a Quad to its per-flow state. It is owned
// exclusively by the main loop; no locking.
type TCPConnectionTable struct {
	conns  map[Quad]*TCPState
	sender deferredSender
}

func NewTCPConnectionTable(sender deferredSender) *TCPConnectionTable {
	return &TCPConnectionTable{
		conns:  make(map[Quad]*TCPState),
		sender: sender,
	}
}

// Get looks up state by Quad, inserting a default Listen state on first sight.
func (t *TCPConnectionTable) Get(quad Quad) *TCPState {
	st, ok := t.conns[quad]
	if !ok {
		st = NewTCPState(t.sender)
		t.conns[quad] = st
	}
	return st
}

func (t *TCPConnectionTable) Remove(quad Quad) {
	delete(t.conns, quad)
}

func (t *TCPConnectionTable) Len() int {
	return len(t.conns)
}
