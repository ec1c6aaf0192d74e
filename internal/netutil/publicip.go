// Package netutil holds small network helpers with no good home in a
// domain package.
package netutil

import (
	"fmt"
	"net"
)

// DetectHost returns the local address used to reach the public internet,
// standing in for the external IP-detection step the bootstrap needs when
// no host is configured explicitly. It never makes a network request: it
// just asks the OS which local interface would be used to route to a
// public address, by opening (and immediately discarding) a UDP "connection"
// that never sends a packet.
func DetectHost() (string, error) {
	conn, err := net.Dial("udp", "203.0.113.1:443") // TEST-NET-3, RFC 5737
	if err != nil {
		return "", fmt.Errorf("netutil: detecting host: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("netutil: unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
