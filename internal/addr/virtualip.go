package addr

import "fmt"

// VirtualAllocator hands out fabricated IPv4 addresses inside a
// configured /8, in ascending order starting at "<subnet>.0.0.1",
// skipping any candidate whose low octet is zero (so "<subnet>.0.0.0"
// and every "<subnet>.a.b.0" form is never handed out). It holds no
// lock itself; internal/dnsmap serialises access the way spec.md §5
// requires.
type VirtualAllocator struct {
	subnet  byte
	counter uint32 // next host-part candidate to try, 24 bits significant
}

// NewVirtualAllocator builds an allocator for "<subnet>.0.0.0/8".
func NewVirtualAllocator(subnet byte) *VirtualAllocator {
	return &VirtualAllocator{subnet: subnet, counter: 1}
}

// Subnet returns the configured /8 octet.
func (v *VirtualAllocator) Subnet() byte { return v.subnet }

// CIDR returns the /8 this allocator draws from.
func (v *VirtualAllocator) CIDR() CIDR { return NewCIDRFromOctet(v.subnet) }

// Next returns the next unused virtual address as raw octets. Callers
// (internal/dnsmap) are responsible for idempotence — Next always
// advances the allocator, so the map must check its hostname→address
// table before calling Next.
func (v *VirtualAllocator) Next() ([4]byte, error) {
	const maxHostPart = 1 << 24
	for v.counter < maxHostPart {
		candidate := v.counter
		v.counter++
		if candidate&0xFF == 0 {
			// "<subnet>.a.b.0" form: skip it.
			continue
		}
		return [4]byte{
			v.subnet,
			byte(candidate >> 16),
			byte(candidate >> 8),
			byte(candidate),
		}, nil
	}
	return [4]byte{}, fmt.Errorf("addr: virtual subnet %d.0.0.0/8 is exhausted", v.subnet)
}
