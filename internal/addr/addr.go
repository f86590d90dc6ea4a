// Package addr implements the value types the rest of hopchain uses to
// describe endpoints: a tagged IPv4-or-hostname address, IPv4 CIDR
// ranges, and the arithmetic behind the fabricated DNS subnet.
package addr

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Kind tags which form an Address holds.
type Kind uint8

const (
	// KindIPv4 addresses carry a 4-byte IPv4 value.
	KindIPv4 Kind = iota
	// KindHost addresses carry a hostname string.
	KindHost
)

// Address is either an IPv4 address or a hostname, always paired with a
// port. The zero value is not valid; construct with NewIPv4 or NewHost.
type Address struct {
	kind Kind
	ip   [4]byte
	host string
	port uint16
}

// NewIPv4 builds an Address from four octets and a port. The port must
// be in 1..=65535.
func NewIPv4(a, b, c, d byte, port uint16) (Address, error) {
	if port == 0 {
		return Address{}, fmt.Errorf("addr: port must be 1..65535, got 0")
	}
	return Address{kind: KindIPv4, ip: [4]byte{a, b, c, d}, port: port}, nil
}

// NewIPv4FromNetIP builds an Address from a net.IP that must carry a
// 4-byte (or 4-in-16) representation.
func NewIPv4FromNetIP(ip net.IP, port uint16) (Address, error) {
	v4 := ip.To4()
	if v4 == nil {
		return Address{}, fmt.Errorf("addr: %s is not an IPv4 address", ip)
	}
	return NewIPv4(v4[0], v4[1], v4[2], v4[3], port)
}

// NewHost builds an Address from a hostname and a port. The hostname
// must be 1..=255 bytes of dot-separated labels, each 1..=63 bytes.
func NewHost(host string, port uint16) (Address, error) {
	if port == 0 {
		return Address{}, fmt.Errorf("addr: port must be 1..65535, got 0")
	}
	if err := validateHostname(host); err != nil {
		return Address{}, err
	}
	return Address{kind: KindHost, host: host, port: port}, nil
}

func validateHostname(host string) error {
	if len(host) == 0 || len(host) > 255 {
		return fmt.Errorf("addr: hostname length must be 1..255, got %d", len(host))
	}
	for _, label := range strings.Split(host, ".") {
		if len(label) == 0 || len(label) > 63 {
			return fmt.Errorf("addr: hostname label %q must be 1..63 bytes", label)
		}
	}
	return nil
}

// Kind reports whether this Address is an IPv4 literal or a hostname.
func (a Address) Kind() Kind { return a.kind }

// IsIPv4 reports whether this Address holds an IPv4 literal.
func (a Address) IsIPv4() bool { return a.kind == KindIPv4 }

// Port returns the address's port, 1..=65535.
func (a Address) Port() uint16 { return a.port }

// IPv4 returns the four octets of an IPv4 Address. It panics if called
// on a hostname Address; callers must check IsIPv4 first.
func (a Address) IPv4() [4]byte {
	if a.kind != KindIPv4 {
		panic("addr: IPv4() called on a hostname Address")
	}
	return a.ip
}

// NetIP returns the net.IP view of an IPv4 Address.
func (a Address) NetIP() net.IP {
	if a.kind != KindIPv4 {
		panic("addr: NetIP() called on a hostname Address")
	}
	return net.IPv4(a.ip[0], a.ip[1], a.ip[2], a.ip[3])
}

// Host returns the hostname of a hostname Address. It panics if called
// on an IPv4 Address; callers must check IsIPv4 first.
func (a Address) Host() string {
	if a.kind != KindHost {
		panic("addr: Host() called on an IPv4 Address")
	}
	return a.host
}

// HostOrIP returns the hostname, or the dotted-decimal IPv4 string if
// this Address is a literal. Useful for building wire formats and log
// lines that don't care which form they got.
func (a Address) HostOrIP() string {
	if a.kind == KindHost {
		return a.host
	}
	return a.NetIP().String()
}

// String renders "host:port" or "a.b.c.d:port".
func (a Address) String() string {
	return net.JoinHostPort(a.HostOrIP(), strconv.Itoa(int(a.port)))
}
