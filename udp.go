package main

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket/layers"
)

const udpHeaderLen = 8

// UDPView wraps a parent ProtocolBuffer whose bytes start at the UDP header.
type UDPView struct {
	parent ProtocolBuffer
}

func ParseUDP(parent ProtocolBuffer) (*UDPView, error) {
	if len(parent.Payload()) < udpHeaderLen {
		return nil, fmt.Errorf("udp: datagram too short: %d bytes", len(parent.Payload()))
	}
	return &UDPView{parent: parent}, nil
}

func (v *UDPView) SourcePort() layers.UDPPort {
	return layers.UDPPort(binary.BigEndian.Uint16(v.parent.Payload()[0:2]))
}

func (v *UDPView) DestinationPort() layers.UDPPort {
	return layers.UDPPort(binary.BigEndian.Uint16(v.parent.Payload()[2:4]))
}

func (v *UDPView) Length() uint16 {
	return binary.BigEndian.Uint16(v.parent.Payload()[4:6])
}

func (v *UDPView) Checksum() uint16 {
	return binary.BigEndian.Uint16(v.parent.Payload()[6:8])
}

// Payload strips the fixed 8-byte UDP header.
func (v *UDPView) Payload() []byte {
	return v.parent.Payload()[udpHeaderLen:]
}

func (v *UDPView) String() string {
	return fmt.Sprintf("UDP %s->%s len=%d", v.SourcePort(), v.DestinationPort(), v.Length())
}

// UDPHeaderWriter builds an 8-byte UDP header with correct length and checksum.
type UDPHeaderWriter struct {
	buf *NetworkBuffer
}

func NewUDPHeaderWriter(sourcePort, destinationPort layers.UDPPort) *UDPHeaderWriter {
	buf := NewZeroedBuffer(udpHeaderLen)
	b := buf.Bytes()
	binary.BigEndian.PutUint16(b[0:2], uint16(sourcePort))
	binary.BigEndian.PutUint16(b[2:4], uint16(destinationPort))
	binary.BigEndian.PutUint16(b[4:6], udpHeaderLen)
	return &UDPHeaderWriter{buf: buf}
}

// WithData appends the payload and updates the length field.
func (w *UDPHeaderWriter) WithData(data *NetworkBuffer) *UDPHeaderWriter {
	if data != nil && !data.IsEmpty() {
		w.buf.Concat(data)
		binary.BigEndian.PutUint16(w.buf.Bytes()[4:6], uint16(w.buf.Len()))
	}
	return w
}

// CalcChecksum computes the UDP pseudo-header + datagram checksum
// against the given IP view and writes it at the RFC 768-correct
// offset 6:8 (the original this stack descends from wrote it at
// 16:18, which spec.md's Open Questions section flags as a bug).
// A zero result is remapped to 0xFFFF.
func (w *UDPHeaderWriter) CalcChecksum(ip *IPv4View) *UDPHeaderWriter {
	length := uint16(w.buf.Len())
	dst := ip.DestinationBytes()
	src := ip.SourceBytes()

	sum := uint64(0)
	sum = add4Bytes(sum, dst[:])
	sum = add4Bytes(sum, src[:])
	sum = add2Bytes(sum, []byte{0, ip.Protocol().Byte()})
	sum = add2Bytes(sum, []byte{byte(length >> 8), byte(length)})

	checksum := onesComplementNoZero(addSlice(sum, w.buf.Bytes()))
	binary.LittleEndian.PutUint16(w.buf.Bytes()[6:8], checksum)
	return w
}

func (w *UDPHeaderWriter) ToBuffer() *NetworkBuffer {
	return w.buf
}
