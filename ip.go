package main

import (
	"encoding/binary"
	"fmt"
)

const ipHeaderMinLen = 20

// IPv4View is a zero-copy borrowed view over an inbound IPv4 packet.
// Its lifetime is tied to the TUN read buffer it was parsed from.
type IPv4View struct {
	data []byte
}

// ParseIPv4 validates the minimum header size and that the declared
// header length does not exceed the bytes actually available.
func ParseIPv4(data []byte) (*IPv4View, error) {
	if len(data) < ipHeaderMinLen {
		return nil, fmt.Errorf("ip: expected at least %d bytes, got %d", ipHeaderMinLen, len(data))
	}
	v := &IPv4View{data: data}
	if v.HeaderLength() > len(data) {
		return nil, fmt.Errorf("ip: header length %d exceeds packet length %d", v.HeaderLength(), len(data))
	}
	return v, nil
}

// HeaderLength returns IHL*4 in bytes.
func (v *IPv4View) HeaderLength() int {
	return int(v.data[0]&0x0f) * 4
}

func (v *IPv4View) TotalLength() uint16 {
	return binary.BigEndian.Uint16(v.data[2:4])
}

func (v *IPv4View) TTL() uint8 {
	return v.data[8]
}

func (v *IPv4View) Protocol() Protocol {
	return ProtocolFromByte(v.data[9])
}

func (v *IPv4View) Checksum() uint16 {
	return binary.BigEndian.Uint16(v.data[10:12])
}

func (v *IPv4View) Source() uint32 {
	return binary.BigEndian.Uint32(v.data[12:16])
}

func (v *IPv4View) SourceBytes() [4]byte {
	var b [4]byte
	copy(b[:], v.data[12:16])
	return b
}

func (v *IPv4View) Destination() uint32 {
	return binary.BigEndian.Uint32(v.data[16:20])
}

func (v *IPv4View) DestinationBytes() [4]byte {
	var b [4]byte
	copy(b[:], v.data[16:20])
	return b
}

// Payload is everything after this view's own header -- the
// ProtocolBuffer contract.
func (v *IPv4View) Payload() []byte {
	return v.data[v.HeaderLength():]
}

func (v *IPv4View) String() string {
	return fmt.Sprintf("IP src=%s dst=%s proto=%s ttl=%d len=%d/%d",
		ipString(v.SourceBytes()), ipString(v.DestinationBytes()), v.Protocol(), v.TTL(), len(v.Payload()), v.TotalLength())
}

func ipString(b [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

// IPHeaderWriter builds a 20-byte IPv4 header (no options) followed by
// the supplied data, with a correct header checksum.
//
// Arguments are named (source, destination) and written literally into
// those fields -- it is the caller's job (the IP dispatcher, C6) to
// pass them already swapped when composing a reply.
type IPHeaderWriter struct {
	buf *NetworkBuffer
}

const ipVersionAndIHL = 0b0100_0101 // version 4, IHL 5 (20 bytes)

// NewIPHeaderWriter fills in a complete IPv4 header: version/IHL, zero
// ToS, DF set with no fragmentation, TTL and protocol from the caller,
// and a correct header checksum over the 20 header bytes.
func NewIPHeaderWriter(source, destination uint32, protocol Protocol, ttl uint8, data *NetworkBuffer) *IPHeaderWriter {
	if data == nil {
		data = EmptyBuffer()
	}
	buf := NewZeroedBuffer(ipHeaderMinLen + data.Len())
	b := buf.Bytes()
	b[0] = ipVersionAndIHL
	binary.BigEndian.PutUint16(b[2:4], uint16(ipHeaderMinLen+data.Len()))
	b[6] = 0b0100_0000 // don't fragment
	b[8] = ttl
	b[9] = protocol.Byte()
	binary.BigEndian.PutUint32(b[12:16], source)
	binary.BigEndian.PutUint32(b[16:20], destination)

	// checksumSlice sums 16-bit words little-endian-interpreted (see
	// checksum.go); the fold must be written back in that same word
	// order to come out correct in network byte order on the wire.
	checksum := checksumSlice(b[:ipHeaderMinLen])
	binary.LittleEndian.PutUint16(b[10:12], checksum)

	copy(b[ipHeaderMinLen:], data.Bytes())

	return &IPHeaderWriter{buf: buf}
}

func (w *IPHeaderWriter) ToBuffer() *NetworkBuffer {
	return w.buf
}
