package main

import "fmt"

// ICMPView is a parse-only view: type (byte 0) and code (byte 1).
// The stack logs and drops -- no echo reply is emitted (spec.md §4.3).
type ICMPView struct {
	parent ProtocolBuffer
}

func ParseICMP(parent ProtocolBuffer) (*ICMPView, error) {
	if len(parent.Payload()) < 2 {
		return nil, fmt.Errorf("icmp: payload too short: %d bytes", len(parent.Payload()))
	}
	return &ICMPView{parent: parent}, nil
}

func (v *ICMPView) Type() uint8 {
	return v.parent.Payload()[0]
}

func (v *ICMPView) Code() uint8 {
	return v.parent.Payload()[1]
}

// Payload is the full ICMP body (type+code+rest); ICMP has no further
// sub-header in this stack's model.
func (v *ICMPView) Payload() []byte {
	return v.parent.Payload()
}

func (v *ICMPView) String() string {
	return fmt.Sprintf("ICMP type=%d code=%d", v.Type(), v.Code())
}
