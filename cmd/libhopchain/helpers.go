package main

import (
	"math/bits"

	"github.com/hopchain/hopchain/internal/addr"
	"github.com/hopchain/hopchain/internal/config"
)

// The C helper hopchain_extract_ipv4 hands back sin_addr.s_addr and
// sin_port exactly as struct sockaddr_in stores them: already in
// network (big-endian) byte order, but read into a Go integer using
// the host's native byte order. On the little-endian hosts this
// library targets (glibc/LD_PRELOAD is overwhelmingly an x86_64/arm64
// Linux mechanism), that makes the raw integer value byte-reversed
// relative to what it represents; bits.ReverseBytesN undoes exactly
// that, which is what ntohs/ntohl do on such hosts.

func ipv4FromBE(be uint32) [4]byte {
	host := bits.ReverseBytes32(be)
	return [4]byte{byte(host >> 24), byte(host >> 16), byte(host >> 8), byte(host)}
}

func ipv4ToBE(octets [4]byte) uint32 {
	host := uint32(octets[0])<<24 | uint32(octets[1])<<16 | uint32(octets[2])<<8 | uint32(octets[3])
	return bits.ReverseBytes32(host)
}

func portFromBE(be uint16) uint16 { return bits.ReverseBytes16(be) }
func portToBE(port uint16) uint16 { return bits.ReverseBytes16(port) }

// addressFromBE builds an addr.Address from the raw network-order
// fields extracted out of a struct sockaddr_in by the C helper.
func addressFromBE(ipBE uint32, portBE uint16) (addr.Address, error) {
	ip := ipv4FromBE(ipBE)
	port := portFromBE(portBE)
	return addr.NewIPv4(ip[0], ip[1], ip[2], ip[3], port)
}

// shouldFabricateDNS reports whether a gethostbyname/gethostbyaddr/
// getaddrinfo hook should answer with a fabricated virtual address
// (initialized and proxy_dns enabled) rather than forward to the real
// libc symbol (spec.md §4.3, Testable Property #5: with proxy_dns off,
// these hooks behave identically to the un-hooked library).
func shouldFabricateDNS(initialized bool, cfg config.Chain) bool {
	return initialized && cfg.ProxyDNS
}
