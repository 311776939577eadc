package iprewriter

import (
	"fmt"
	"net"
)

// IPv4 is a 32-bit IPv4 address in network byte order.
type IPv4 [4]byte

// String returns the dotted-decimal representation of an IPv4 address.
func (ip IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
}

// Equal checks if two IPv4 addresses are equal.
func (ip IPv4) Equal(other IPv4) bool {
	return ip == other
}

// IsZero reports whether ip is the zero address, used throughout this
// package to mean "preserve the corresponding field of the input flow".
func (ip IPv4) IsZero() bool {
	return ip == IPv4{}
}

// ParseIPv4 parses a dotted-decimal string into an IPv4 address.
func ParseIPv4(s string) (IPv4, error) {
	netIP := net.ParseIP(s)
	if netIP == nil {
		return IPv4{}, fmt.Errorf("invalid IP address: %s", s)
	}

	ipv4 := netIP.To4()
	if ipv4 == nil {
		return IPv4{}, fmt.Errorf("not an IPv4 address: %s", s)
	}

	var ip IPv4
	copy(ip[:], ipv4)
	return ip, nil
}
