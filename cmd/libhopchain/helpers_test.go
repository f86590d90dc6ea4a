//go:build linux && cgo

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hopchain/hopchain/internal/config"
)

func TestIPv4RoundTrip(t *testing.T) {
	t.Parallel()

	octets := [4]byte{10, 0, 0, 1}
	be := ipv4ToBE(octets)
	assert.Equal(t, octets, ipv4FromBE(be))
}

func TestPortRoundTrip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint16(8080), portFromBE(portToBE(8080)))
}

func TestAddressFromBE(t *testing.T) {
	t.Parallel()

	be := ipv4ToBE([4]byte{192, 168, 1, 1})
	a, err := addressFromBE(be, portToBE(443))
	require.NoError(t, err)
	assert.True(t, a.IsIPv4())
	assert.Equal(t, [4]byte{192, 168, 1, 1}, a.IPv4())
	assert.Equal(t, uint16(443), a.Port())
}

func TestShouldFabricateDNS(t *testing.T) {
	t.Parallel()

	assert.False(t, shouldFabricateDNS(false, config.Chain{ProxyDNS: true}),
		"an uninitialised/pass-through process must never fabricate a DNS answer")
	assert.False(t, shouldFabricateDNS(true, config.Chain{ProxyDNS: false}),
		"proxy_dns=false must make the DNS hooks behave like the un-hooked library")
	assert.True(t, shouldFabricateDNS(true, config.Chain{ProxyDNS: true}))
}
