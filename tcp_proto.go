package main

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"
)

const tcpHeaderMinLen = 20

// TCPControl is the TCP control-flags bitset, low bit first.
type TCPControl uint8

const (
	TCPFlagFIN TCPControl = 1 << 0
	TCPFlagSYN TCPControl = 1 << 1
	TCPFlagRST TCPControl = 1 << 2
	TCPFlagPSH TCPControl = 1 << 3
	TCPFlagACK TCPControl = 1 << 4
	TCPFlagURG TCPControl = 1 << 5
	TCPFlagECE TCPControl = 1 << 6
	TCPFlagCWR TCPControl = 1 << 7
)

func (c TCPControl) Has(flag TCPControl) bool {
	return c&flag != 0
}

func (c TCPControl) String() string {
	var parts []string
	for _, f := range []struct {
		flag TCPControl
		name string
	}{
		{TCPFlagFIN, "FIN"}, {TCPFlagSYN, "SYN"}, {TCPFlagRST, "RST"},
		{TCPFlagPSH, "PSH"}, {TCPFlagACK, "ACK"}, {TCPFlagURG, "URG"},
		{TCPFlagECE, "ECE"}, {TCPFlagCWR, "CWR"},
	} {
		if c.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

// TCPView wraps a parent ProtocolBuffer whose bytes start at the TCP header.
type TCPView struct {
	parent ProtocolBuffer
}

// ParseTCP borrows the parent's payload as a TCP segment.
func ParseTCP(parent ProtocolBuffer) (*TCPView, error) {
	if len(parent.Payload()) < tcpHeaderMinLen {
		return nil, fmt.Errorf("tcp: segment too short: %d bytes", len(parent.Payload()))
	}
	return &TCPView{parent: parent}, nil
}

func (v *TCPView) Inner() ProtocolBuffer {
	return v.parent
}

func (v *TCPView) SourcePort() layers.TCPPort {
	return layers.TCPPort(binary.BigEndian.Uint16(v.parent.Payload()[0:2]))
}

func (v *TCPView) DestinationPort() layers.TCPPort {
	return layers.TCPPort(binary.BigEndian.Uint16(v.parent.Payload()[2:4]))
}

func (v *TCPView) SequenceNumber() uint32 {
	return binary.BigEndian.Uint32(v.parent.Payload()[4:8])
}

func (v *TCPView) AckNumber() uint32 {
	return binary.BigEndian.Uint32(v.parent.Payload()[8:12])
}

// HeaderLength returns the data-offset nibble times 4, in bytes.
func (v *TCPView) HeaderLength() int {
	return int(v.parent.Payload()[12]>>4) * 4
}

func (v *TCPView) Control() TCPControl {
	return TCPControl(v.parent.Payload()[13])
}

func (v *TCPView) Window() uint16 {
	return binary.BigEndian.Uint16(v.parent.Payload()[14:16])
}

func (v *TCPView) UrgentPointer() uint16 {
	return binary.BigEndian.Uint16(v.parent.Payload()[18:20])
}

// Payload is the TCP segment's data: the parent payload after this
// header's data offset.
func (v *TCPView) Payload() []byte {
	buf := v.parent.Payload()
	hl := v.HeaderLength()
	if hl > len(buf) {
		return nil
	}
	return buf[hl:]
}

func (v *TCPView) String() string {
	return fmt.Sprintf("TCP %s->%s seq=%d ack=%d flags=[%s] win=%d len=%d",
		v.SourcePort(), v.DestinationPort(), v.SequenceNumber(), v.AckNumber(), v.Control(), v.Window(), len(v.Payload()))
}

// TCPHeaderWriter is a fluent builder producing a TCP segment with a
// correct checksum.
type TCPHeaderWriter struct {
	buf *NetworkBuffer
}

const tcpDefaultWindow = 1024

// NewTCPHeaderWriter creates a 20-byte header: data offset 5, window
// 1024, no flags, checksum zeroed.
func NewTCPHeaderWriter(sourcePort, destinationPort layers.TCPPort, seq, ack uint32) *TCPHeaderWriter {
	buf := NewZeroedBuffer(tcpHeaderMinLen)
	b := buf.Bytes()
	binary.BigEndian.PutUint16(b[0:2], uint16(sourcePort))
	binary.BigEndian.PutUint16(b[2:4], uint16(destinationPort))
	binary.BigEndian.PutUint32(b[4:8], seq)
	binary.BigEndian.PutUint32(b[8:12], ack)
	b[12] = 5 << 4
	binary.BigEndian.PutUint16(b[14:16], tcpDefaultWindow)
	return &TCPHeaderWriter{buf: buf}
}

// SetFlags OR-merges flags into the control byte.
func (w *TCPHeaderWriter) SetFlags(flags TCPControl) *TCPHeaderWriter {
	w.buf.Bytes()[13] |= uint8(flags)
	return w
}

// WithData appends the payload; a non-empty payload also sets PSH.
func (w *TCPHeaderWriter) WithData(data *NetworkBuffer) *TCPHeaderWriter {
	if data != nil && !data.IsEmpty() {
		w.buf.Concat(data)
		w.SetFlags(TCPFlagPSH)
	}
	return w
}

// CalcChecksum computes the TCP pseudo-header + segment checksum
// against the given IP view and writes it at bytes 16:18.
//
// The pseudo-header address order is (destination, source) of the IP
// view passed in -- this is the one swap compensating for the IP
// writer's own argument order, matching spec.md's resolved Open
// Question.
func (w *TCPHeaderWriter) CalcChecksum(ip *IPv4View) *TCPHeaderWriter {
	length := uint16(w.buf.Len())
	dst := ip.DestinationBytes()
	src := ip.SourceBytes()

	sum := uint64(0)
	sum = add4Bytes(sum, dst[:])
	sum = add4Bytes(sum, src[:])
	sum = add2Bytes(sum, []byte{0, ip.Protocol().Byte()})
	sum = add2Bytes(sum, []byte{byte(length >> 8), byte(length)})

	// addSlice reads every word little-endian-interpreted (per the
	// checksum utilities' convention); the fold result must then be
	// written back in that same word order for the wire bytes to come
	// out in correct network byte order -- see checksum.go.
	checksum := onesComplement(addSlice(sum, w.buf.Bytes()))
	binary.LittleEndian.PutUint16(w.buf.Bytes()[16:18], checksum)
	return w
}

func (w *TCPHeaderWriter) ToBuffer() *NetworkBuffer {
	return w.buf
}
