package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gopacket/layers"
)

func main() {
	log.Printf("%s%sSetting up TUN device %q...%s", ColorWhite, PrefixInfo, tunDeviceName, ColorReset)

	dev, err := setupTUN(tunDeviceName, tunLocalIP, tunRemoteIP, tunSubnetMask, tunMTU)
	if err != nil {
		log.Fatalf("%s%sFailed to set up TUN device: %v%s", ColorRed, PrefixError, err, ColorReset)
	}
	defer dev.Close()

	log.Printf("%s%sTUN device ready: local=%s peer=%s mask=%s mtu=%d%s",
		ColorWhite, PrefixInfo, tunLocalIP, tunRemoteIP, tunSubnetMask, tunMTU, ColorReset)

	app := NewDispatcher()
	tcpHandler := NewTCPHandler(layers.TCPPort(listenPort), app, dev)
	udpHandler := NewUDPHandler()
	icmpHandler := NewICMPHandler()
	dispatcher := NewIPDispatcher(tcpHandler, udpHandler, icmpHandler)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go runLoop(dev, dispatcher, done)

	log.Printf("%s%sListening on %s:%d%s", ColorWhite, PrefixInfo, tunLocalIP, listenPort, ColorReset)

	select {
	case <-sigChan:
		log.Printf("%s%sShutdown signal received%s", ColorYellow, PrefixInfo, ColorReset)
	case err := <-done:
		log.Fatalf("%s%sPacket loop aborted: %v%s", ColorRed, PrefixError, err, ColorReset)
	}
}

// runLoop is the C9 main loop: blocking receive, dispatch, conditional
// send. A short write or a read/write I/O error is fatal -- there is
// no retry and no partial-frame recovery in this stack.
func runLoop(dev *TUNDevice, dispatcher *IPDispatcher, done chan<- error) {
	buf := make([]byte, tunMTU+afInetPrefixLen)

	for {
		packet, err := dev.Recv(buf)
		if err != nil {
			done <- fmt.Errorf("recv: %w", err)
			return
		}
		if packet == nil {
			continue
		}

		out, err := dispatcher.Handle(packet)
		if err != nil {
			log.Printf("%s%sDropping packet: %v%s", ColorYellow, PrefixWarn, err, ColorReset)
			continue
		}

		if out.IsEmpty() {
			continue
		}

		if err := dev.Send(out.Bytes()); err != nil {
			done <- fmt.Errorf("send: %w", err)
			return
		}
	}
}
