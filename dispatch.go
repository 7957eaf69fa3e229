package main

import "log"

// IPDispatcher is the top-level protocol dispatch: parse IPv4, branch
// on protocol, and -- if the sub-handler produced anything -- wrap it
// in a reply IP header with source/destination swapped.
type IPDispatcher struct {
	tcp  *TCPHandler
	udp  *UDPHandler
	icmp *ICMPHandler
}

func NewIPDispatcher(tcp *TCPHandler, udp *UDPHandler, icmp *ICMPHandler) *IPDispatcher {
	return &IPDispatcher{tcp: tcp, udp: udp, icmp: icmp}
}

// Handle parses one raw IPv4 packet and returns the full reply packet
// to send back over the TUN device, or an empty buffer if nothing is
// owed.
func (d *IPDispatcher) Handle(data []byte) (*NetworkBuffer, error) {
	ip, err := ParseIPv4(data)
	if err != nil {
		return nil, err
	}
	log.Printf("%s%s%s%s", ColorCyan, PrefixIP, ip, ColorReset)

	ttl := ip.TTL()
	src := ip.Source()
	dst := ip.Destination()
	protocol := ip.Protocol()

	var inner *NetworkBuffer
	switch {
	case protocol.Is(ProtocolTCP):
		inner, err = d.tcp.Handle(ip)
		if err != nil {
			return nil, err
		}
	case protocol.Is(ProtocolUDP):
		inner, err = d.udp.Handle(ip)
		if err != nil {
			return nil, err
		}
	case protocol.Is(ProtocolICMP):
		if _, err := d.icmp.Handle(ip); err != nil {
			return nil, err
		}
		inner = EmptyBuffer()
	default:
		inner = EmptyBuffer()
	}

	if inner == nil || inner.IsEmpty() {
		return EmptyBuffer(), nil
	}

	// Swap (src,dst) -> (dst,src): this is the one swap the TCP/UDP
	// pseudo-header checksum math is written to compensate for.
	writer := NewIPHeaderWriter(dst, src, protocol, ttl, inner)
	return writer.ToBuffer(), nil
}
