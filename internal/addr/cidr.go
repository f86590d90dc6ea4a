package addr

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// CIDR is an IPv4 prefix: a network address and a prefix length in
// 0..=32. Membership is exact: the address's high PrefixLen bits must
// equal the network's.
type CIDR struct {
	network uint32
	prefix  uint8
}

// ParseCIDR parses "a.b.c.d/n" into a CIDR. Host bits in the address
// are not required to be zero; they're masked off.
func ParseCIDR(s string) (CIDR, error) {
	idx := strings.IndexByte(s, '/')
	if idx < 0 {
		return CIDR{}, fmt.Errorf("addr: %q is not a CIDR (missing /)", s)
	}
	ipPart, prefixPart := s[:idx], s[idx+1:]

	ip := net.ParseIP(ipPart).To4()
	if ip == nil {
		return CIDR{}, fmt.Errorf("addr: %q is not an IPv4 address", ipPart)
	}
	prefix, err := strconv.Atoi(prefixPart)
	if err != nil || prefix < 0 || prefix > 32 {
		return CIDR{}, fmt.Errorf("addr: %q is not a valid prefix length", prefixPart)
	}

	network := binary.BigEndian.Uint32(ip)
	return newCIDR(network, uint8(prefix)), nil
}

// NewCIDRFromOctet builds the CIDR "<octet>.0.0.0/8" used for the
// fabricated DNS subnet.
func NewCIDRFromOctet(octet byte) CIDR {
	network := uint32(octet) << 24
	return newCIDR(network, 8)
}

func newCIDR(network uint32, prefix uint8) CIDR {
	mask := prefixMask(prefix)
	return CIDR{network: network & mask, prefix: prefix}
}

func prefixMask(prefix uint8) uint32 {
	if prefix == 0 {
		return 0
	}
	return ^uint32(0) << (32 - prefix)
}

// Contains reports whether ip's high PrefixLen bits equal the
// network's. Only IPv4 addresses ever match; hostnames never do (the
// caller is expected not to ask).
func (c CIDR) Contains(a Address) bool {
	if !a.IsIPv4() {
		return false
	}
	return c.ContainsIPv4(a.IPv4())
}

// ContainsIPv4 is Contains for a raw 4-octet address.
func (c CIDR) ContainsIPv4(octets [4]byte) bool {
	v := binary.BigEndian.Uint32(octets[:])
	mask := prefixMask(c.prefix)
	return v&mask == c.network
}

// Prefix returns the CIDR's prefix length.
func (c CIDR) Prefix() uint8 { return c.prefix }

// Network returns the CIDR's network address as four octets.
func (c CIDR) Network() [4]byte {
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], c.network)
	return out
}

// String renders "a.b.c.d/n".
func (c CIDR) String() string {
	n := c.Network()
	return fmt.Sprintf("%d.%d.%d.%d/%d", n[0], n[1], n[2], n[3], c.prefix)
}
