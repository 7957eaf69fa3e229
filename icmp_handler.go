package main

import "log"

// ICMPHandler logs and drops every ICMP message -- no echo reply is
// emitted (spec.md §4.3, resolved against the original's no-op handler).
type ICMPHandler struct{}

func NewICMPHandler() *ICMPHandler {
	return &ICMPHandler{}
}

func (h *ICMPHandler) Handle(ip *IPv4View) (*ICMPView, error) {
	icmp, err := ParseICMP(ip)
	if err != nil {
		return nil, err
	}
	log.Printf("%s%s%s%s", ColorGray, PrefixICMP, icmp, ColorReset)
	return icmp, nil
}
