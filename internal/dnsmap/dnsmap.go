// Package dnsmap implements the process-wide, reversible mapping from
// fabricated IPv4 addresses to the hostnames they stand in for, as
// described in spec.md §3/§4.4. It is the only mutable shared state the
// hook layer touches (spec.md §5): one mutex, O(1) lookups, no I/O
// under the lock, and entries are never removed.
package dnsmap

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/hopchain/hopchain/internal/addr"
)

// Map is a process-lifetime singleton once constructed: create it once
// behind a sync.Once in internal/hook and never tear it down.
type Map struct {
	mu    sync.Mutex
	alloc *addr.VirtualAllocator
	cidr  addr.CIDR

	hostToAddr map[string][4]byte
	addrToHost map[[4]byte]string
}

// New builds a Map that fabricates addresses inside "<subnet>.0.0.0/8".
func New(subnet byte) *Map {
	return &Map{
		alloc:      addr.NewVirtualAllocator(subnet),
		cidr:       addr.NewCIDRFromOctet(subnet),
		hostToAddr: make(map[string][4]byte),
		addrToHost: make(map[[4]byte]string),
	}
}

// Intern returns the fabricated IPv4 address standing in for hostname,
// allocating a fresh one on first use and returning the same address on
// every subsequent call for the same hostname (spec.md invariant 1).
func (m *Map) Intern(hostname string) ([4]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.hostToAddr[hostname]; ok {
		return existing, nil
	}

	next, err := m.alloc.Next()
	if err != nil {
		return [4]byte{}, errors.Wrap(err, "dnsmap: intern")
	}
	m.hostToAddr[hostname] = next
	m.addrToHost[next] = hostname
	return next, nil
}

// Lookup returns the hostname interned for a fabricated address, or
// ("", false) if the address was never interned (or lies outside the
// virtual subnet).
func (m *Map) Lookup(ip [4]byte) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	host, ok := m.addrToHost[ip]
	return host, ok
}

// Contains reports whether ip lies inside the configured virtual /8,
// independent of whether any hostname has been interned for it.
func (m *Map) Contains(ip [4]byte) bool {
	return m.cidr.ContainsIPv4(ip)
}

// CIDR returns the virtual /8 this Map fabricates addresses inside.
func (m *Map) CIDR() addr.CIDR { return m.cidr }

// Len reports how many hostnames have been interned. Exposed for
// diagnostics/logging, not part of the core contract.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hostToAddr)
}
