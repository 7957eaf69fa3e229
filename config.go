package main

// Compile-time configuration. The external-interfaces section of the
// spec this binary implements calls for no flags and no environment
// variables: the TUN device name, its address, and the TCP listen
// port are fixed at build time.
const (
	tunDeviceName = "utun9"
	tunLocalIP    = "10.0.0.1"
	tunRemoteIP   = "10.0.0.2"
	tunSubnetMask = "255.255.255.0"
	tunMTU        = 1500

	listenPort = 3000
)
