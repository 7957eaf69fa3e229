package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"os/exec"
	"strings"

	"github.com/songgao/water"
)

// afInetPrefixLen is the 4-byte address-family header some platforms'
// TUN drivers prepend to every frame (AF_INET, big-endian).
const afInetPrefixLen = 4

// TUNDevice wraps a water.Interface and hides the platform's framing
// quirks from the dispatch loop. It satisfies deferredSender so the
// TCP state machine can fire its delayed FIN directly.
type TUNDevice struct {
	ifce *water.Interface
}

// setupTUN creates and configures the TUN device: water.New followed
// by ifconfig and a route add for the local subnet.
func setupTUN(devName, localIP, remoteIP, subnetMask string, mtu int) (*TUNDevice, error) {
	config := water.Config{DeviceType: water.TUN}
	if devName != "" {
		config.Name = devName
	}

	ifce, err := water.New(config)
	if err != nil {
		return nil, fmt.Errorf("tun: failed to create device: %w", err)
	}
	actualDevName := ifce.Name()
	log.Printf("%s%sTUN device %q created%s", ColorWhite, PrefixInfo, actualDevName, ColorReset)

	cmdIfconfig := exec.Command("ifconfig", actualDevName, localIP, remoteIP, "netmask", subnetMask, "mtu", fmt.Sprintf("%d", mtu), "up")
	if output, err := cmdIfconfig.CombinedOutput(); err != nil {
		ifce.Close()
		return nil, fmt.Errorf("tun: ifconfig failed: %w (output: %s)", err, output)
	}

	mask := net.IPMask(net.ParseIP(subnetMask).To4())
	network := net.ParseIP(localIP).Mask(mask)
	ones, _ := mask.Size()
	networkCIDR := fmt.Sprintf("%s/%d", network.String(), ones)

	cmdRoute := exec.Command("route", "add", "-net", networkCIDR, remoteIP)
	if output, err := cmdRoute.CombinedOutput(); err != nil {
		if !strings.Contains(string(output), "File exists") {
			ifce.Close()
			return nil, fmt.Errorf("tun: route add failed: %w (output: %s)", err, output)
		}
	}

	return &TUNDevice{ifce: ifce}, nil
}

// Recv reads one frame, strips a leading AF_INET prefix header if
// present, and returns the raw IPv4 packet bytes. It returns (nil, nil)
// on a zero-length or prefix-only read so the caller can just loop.
func (d *TUNDevice) Recv(buf []byte) ([]byte, error) {
	n, err := d.ifce.Read(buf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	if n >= afInetPrefixLen && binary.BigEndian.Uint32(buf[:afInetPrefixLen]) == 2 {
		if n == afInetPrefixLen {
			return nil, nil
		}
		return buf[afInetPrefixLen:n], nil
	}
	return buf[:n], nil
}

// Send writes a raw IPv4 packet to the device and errors on a short
// write -- there is no partial-frame recovery in this stack.
func (d *TUNDevice) Send(frame []byte) error {
	n, err := d.ifce.Write(frame)
	if err != nil {
		return fmt.Errorf("tun: write failed: %w", err)
	}
	if n < len(frame) {
		return fmt.Errorf("tun: short write: sent %d of %d bytes", n, len(frame))
	}
	return nil
}

func (d *TUNDevice) Close() error {
	return d.ifce.Close()
}
