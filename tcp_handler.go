package main

import (
	"fmt"
	"log"

	"github.com/google/gopacket/layers"
)

// TCPHandler ties the connection table to the HTTP dispatcher: every
// inbound segment addressed to the listen port is routed through its
// Quad's TCPState, and any data the state machine passes through gets
// parsed as an HTTP request and handed to the Dispatcher.
type TCPHandler struct {
	listenPort  layers.TCPPort
	connections *TCPConnectionTable
	app         *Dispatcher
}

func NewTCPHandler(listenPort layers.TCPPort, app *Dispatcher, sender deferredSender) *TCPHandler {
	return &TCPHandler{
		listenPort:  listenPort,
		connections: NewTCPConnectionTable(sender),
		app:         app,
	}
}

// Handle processes one inbound IPv4 packet already known to carry TCP.
// It returns the TCP-layer bytes to wrap in a reply IP header (empty
// if nothing is owed back).
func (h *TCPHandler) Handle(ip *IPv4View) (*NetworkBuffer, error) {
	tcp, err := ParseTCP(ip)
	if err != nil {
		return nil, err
	}
	log.Printf("%s%s%s%s", ColorWhite, PrefixTCP, tcp, ColorReset)

	if tcp.DestinationPort() != h.listenPort {
		return nil, fmt.Errorf("tcp: message to wrong port: expected %s, got %s", h.listenPort, tcp.DestinationPort())
	}

	quad := quadFor(tcp, ip)
	conn := h.connections.Get(quad)

	action := conn.Handle(tcp)
	switch action.Kind {
	case ActionEmit:
		return action.Frame, nil
	case ActionClose:
		h.connections.Remove(quad)
		return EmptyBuffer(), nil
	case ActionPassthrough:
		seg := action.Segment
		var respBody *NetworkBuffer
		if seg.Control().Has(TCPFlagPSH) && len(seg.Payload()) > 0 {
			req := ParseHTTPRequest(seg.Payload())
			log.Printf("%s%s%s%s", ColorWhite, PrefixHTTP, req, ColorReset)
			respBody = h.app.OnRequest(req)
		} else {
			respBody = EmptyBuffer()
		}
		return conn.Send(respBody, seg), nil
	default:
		return EmptyBuffer(), nil
	}
}
