package main

import (
	"log"
	"time"
)

// tcpLifecycleState is the passive-open TCP state machine's state.
type tcpLifecycleState int

const (
	tcpListen tcpLifecycleState = iota
	tcpSynReceived
	tcpEstablished
	tcpLastAck
)

func (s tcpLifecycleState) String() string {
	switch s {
	case tcpListen:
		return "LISTEN"
	case tcpSynReceived:
		return "SYN_RECEIVED"
	case tcpEstablished:
		return "ESTABLISHED"
	case tcpLastAck:
		return "LAST_ACK"
	default:
		return "UNKNOWN"
	}
}

// ActionKind distinguishes the three outcomes of TCPState.Handle.
type ActionKind int

const (
	// ActionEmit carries a fully-built TCP segment (a SYN+ACK, or the
	// bare ACK for a peer's FIN) ready for the IP dispatcher to wrap, or
	// an empty buffer when nothing is owed back.
	ActionEmit ActionKind = iota
	// ActionPassthrough means the segment carried application data
	// that the caller should hand up to the next protocol layer (HTTP).
	ActionPassthrough
	// ActionClose means the connection has reached its terminal state
	// and must be evicted from the connection table.
	ActionClose
)

// Action is the outcome of one TCPState.Handle call.
type Action struct {
	Kind    ActionKind
	Frame   *NetworkBuffer // valid when Kind == ActionEmit
	Segment *TCPView       // valid when Kind == ActionPassthrough
}

func emitAction(frame *NetworkBuffer) Action {
	return Action{Kind: ActionEmit, Frame: frame}
}

func passthroughAction(seg *TCPView) Action {
	return Action{Kind: ActionPassthrough, Segment: seg}
}

func closeAction() Action {
	return Action{Kind: ActionClose}
}

// deferredSender is the narrow interface the TCP state machine uses to
// fire the delayed FIN without blocking the main loop or owning the
// TUN device directly -- see spec.md §4.8/§9 "Timer/Deferred-send
// interface" design note.
type deferredSender interface {
	Send(frame []byte) error
}

// TCPState is one flow's state: LISTEN -> SYN_RECEIVED -> ESTABLISHED -> LAST_ACK -> (removed).
//
// Invariants: clientSequence always equals the largest SEG.SEQ+SEG.LEN
// accepted from the peer; serverSequence equals the number of bytes
// placed on the wire since our SYN (the SYN itself counts as one).
type TCPState struct {
	state          tcpLifecycleState
	clientSequence uint32
	serverSequence uint32
	requiresAck    bool
	sender         deferredSender
}

func NewTCPState(sender deferredSender) *TCPState {
	return &TCPState{state: tcpListen, sender: sender}
}

func (s *TCPState) State() tcpLifecycleState { return s.state }

// Handle processes one inbound segment and returns the resulting Action.
func (s *TCPState) Handle(seg *TCPView) Action {
	control := seg.Control()

	switch {
	case s.state == tcpListen && control.Has(TCPFlagSYN):
		s.clientSequence = seg.SequenceNumber() + 1
		s.serverSequence = 0
		frame := s.buildSegment(seg, TCPFlagSYN|TCPFlagACK, nil)
		s.serverSequence = 1
		s.state = tcpSynReceived
		log.Printf("%s%sLISTEN -> SYN_RECEIVED (SYN from seq=%d)%s", ColorYellow, PrefixState, seg.SequenceNumber(), ColorReset)
		return emitAction(frame)

	case s.state == tcpSynReceived && control.Has(TCPFlagACK):
		if seg.SequenceNumber() == s.clientSequence && seg.AckNumber() == s.serverSequence {
			log.Printf("%s%sSYN_RECEIVED -> ESTABLISHED%s", ColorYellow, PrefixState, ColorReset)
		} else {
			log.Printf("%s%sACK for SYN/ACK did not match expected seq/ack; accepting anyway%s", ColorYellow, PrefixWarn, ColorReset)
		}
		s.state = tcpEstablished
		return emitAction(EmptyBuffer())

	case s.state == tcpEstablished && control.Has(TCPFlagFIN):
		s.clientSequence++
		frame := s.buildSegment(seg, TCPFlagACK, nil)
		s.state = tcpLastAck
		log.Printf("%s%sESTABLISHED -> LAST_ACK (FIN received)%s", ColorYellow, PrefixState, ColorReset)
		s.scheduleDeferredFIN(seg)
		return emitAction(frame)

	case s.state == tcpEstablished:
		payloadLen := len(seg.Payload())
		if payloadLen > 0 {
			s.clientSequence += uint32(payloadLen)
			s.requiresAck = true
			return passthroughAction(seg)
		}
		return emitAction(EmptyBuffer())

	case s.state == tcpLastAck:
		s.state = tcpListen
		return closeAction()

	default:
		log.Printf("%s%sUnexpected flags [%s] in state %s; closing%s", ColorYellow, PrefixWarn, control, s.state, ColorReset)
		s.state = tcpListen
		return closeAction()
	}
}

// Send is the outbound framer: builds a TCP segment carrying payload
// (if any), seq=serverSequence, ack=clientSequence, ports swapped from
// the triggering segment, advances serverSequence by len(payload), and
// sets ACK if an inbound segment is still owed one.
func (s *TCPState) Send(payload *NetworkBuffer, seg *TCPView) *NetworkBuffer {
	frame := s.buildSegment(seg, 0, payload)
	if payload != nil {
		s.serverSequence += uint32(payload.Len())
	}
	return frame
}

// buildSegment is the shared header-construction path for Handle's
// emitted control segments and Send's data segments.
func (s *TCPState) buildSegment(seg *TCPView, flags TCPControl, payload *NetworkBuffer) *NetworkBuffer {
	ip, ok := seg.Inner().(*IPv4View)
	if !ok {
		return EmptyBuffer()
	}

	writer := NewTCPHeaderWriter(seg.DestinationPort(), seg.SourcePort(), s.serverSequence, s.clientSequence)
	if flags != 0 {
		writer.SetFlags(flags)
	}
	if payload != nil && !payload.IsEmpty() {
		writer.WithData(payload)
	}
	if s.requiresAck {
		s.requiresAck = false
		writer.SetFlags(TCPFlagACK)
	}
	return writer.CalcChecksum(ip).ToBuffer()
}

// scheduleDeferredFIN faithfully preserves the reference
// implementation's teardown quirk: roughly one second after
// acknowledging the peer's FIN, fire our own FIN from a background
// task holding a clone of the TUN sink handle, without blocking the
// main loop. A send error there is ignorable -- there is no
// retransmission in this stack.
//
// The entire FIN packet -- header, checksum, everything -- is built
// and serialized to an owned byte slice here, synchronously, before
// time.AfterFunc is ever called. seg's IPv4View aliases the shared
// receive buffer in tun.go/main.go and will have been overwritten by
// the time a 1-second timer fires, so only the finished bytes may
// cross into the deferred goroutine -- never seg or its IPv4View.
func (s *TCPState) scheduleDeferredFIN(seg *TCPView) {
	if s.sender == nil {
		return
	}
	ip, ok := seg.Inner().(*IPv4View)
	if !ok {
		return
	}

	tcpBuf := NewTCPHeaderWriter(seg.DestinationPort(), seg.SourcePort(), s.serverSequence, s.clientSequence).
		SetFlags(TCPFlagFIN | TCPFlagACK).
		CalcChecksum(ip).
		ToBuffer()
	finFrame := NewIPHeaderWriter(ip.Destination(), ip.Source(), ProtocolTCPValue(), 64, tcpBuf).ToBuffer().Bytes()

	sender := s.sender
	time.AfterFunc(time.Second, func() {
		if err := sender.Send(finFrame); err != nil {
			log.Printf("%s%sDeferred FIN send failed (ignored): %v%s", ColorGray, PrefixWarn, err, ColorReset)
		}
	})
}

// ProtocolTCPValue is a small indirection so tcp_state.go does not need
// to reach into proto.go's unexported constructor details.
func ProtocolTCPValue() Protocol {
	return ProtocolFromByte(uint8(ProtocolTCP))
}
