package chain

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hopchain/hopchain/internal/addr"
	"github.com/hopchain/hopchain/internal/classify"
	"github.com/hopchain/hopchain/internal/config"
)

// listenerProxy starts a TCP listener on 127.0.0.1 and runs handle for
// every accepted connection, standing in for a real proxy process.
func listenerProxy(t *testing.T, handle func(net.Conn)) (host [4]byte, port uint16) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	var h [4]byte
	copy(h[:], tcpAddr.IP.To4())
	return h, uint16(tcpAddr.Port)
}

func proxyConfig(t *testing.T, scheme config.Scheme, host [4]byte, port uint16, creds *config.Credentials) config.Chain {
	t.Helper()
	a, err := addr.NewIPv4(host[0], host[1], host[2], host[3], port)
	require.NoError(t, err)
	return config.Chain{
		ChainType:        config.ChainStrict,
		ConnectTimeoutMS: 1000,
		ReadTimeoutMS:    1000,
		LogLevel:         config.LogInfo,
		DNSSubnet:        224,
		ProxyDNS:         true,
		Proxies:          []config.Proxy{{Scheme: scheme, Host: a, Creds: creds}},
	}
}

func TestDial_RawSingleHop(t *testing.T) {
	t.Parallel()

	received := make(chan []byte, 1)
	host, port := listenerProxy(t, func(c net.Conn) {
		buf := make([]byte, 5)
		n, _ := c.Read(buf)
		received <- buf[:n]
		c.Write([]byte("pong"))
	})

	cfg := proxyConfig(t, config.SchemeRaw, host, port, nil)
	dest, err := addr.NewIPv4(10, 0, 0, 1, 9000)
	require.NoError(t, err)

	conn, err := Dial(cfg, dest)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.sock.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), <-received)

	buf := make([]byte, 4)
	n, err := conn.sock.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))
}

func TestDial_SOCKS5NoAuth(t *testing.T) {
	t.Parallel()

	host, port := listenerProxy(t, func(c net.Conn) {
		greeting := make([]byte, 4)
		if _, err := readAll(c, greeting); err != nil {
			return
		}
		c.Write([]byte{0x05, 0x00})

		req := make([]byte, 10)
		if _, err := readAll(c, req); err != nil {
			return
		}
		c.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
	})

	cfg := proxyConfig(t, config.SchemeSOCKS5, host, port, nil)
	dest, err := addr.NewIPv4(10, 0, 0, 1, 9000)
	require.NoError(t, err)

	conn, err := Dial(cfg, dest)
	require.NoError(t, err)
	conn.Close()
}

func TestDial_SOCKS5AuthRejected(t *testing.T) {
	t.Parallel()

	host, port := listenerProxy(t, func(c net.Conn) {
		greeting := make([]byte, 4)
		if _, err := readAll(c, greeting); err != nil {
			return
		}
		c.Write([]byte{0x05, 0x02})

		userpass := make([]byte, 1+1+len("admin")+1+len("wrong"))
		if _, err := readAll(c, userpass); err != nil {
			return
		}
		c.Write([]byte{0x01, 0x01}) // failure
	})

	creds := &config.Credentials{HasPair: true, Username: "admin", Password: "wrong"}
	cfg := proxyConfig(t, config.SchemeSOCKS5, host, port, creds)
	dest, err := addr.NewIPv4(10, 0, 0, 1, 9000)
	require.NoError(t, err)

	_, err = Dial(cfg, dest)
	require.Error(t, err)
	ce, ok := classify.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, classify.ClassProtocol, ce.Class)
	assert.Equal(t, 0, ce.Hop)
}

func TestDial_TwoHopChain(t *testing.T) {
	t.Parallel()

	secondHost, secondPort := listenerProxy(t, func(c net.Conn) {
		req := make([]byte, 9)
		if _, err := readAll(c, req); err != nil {
			return
		}
		c.Write([]byte{0x00, 0x5A, 0, 0, 0, 0, 0, 0})
	})

	firstHost, firstPort := listenerProxy(t, func(c net.Conn) {
		greeting := make([]byte, 4)
		if _, err := readAll(c, greeting); err != nil {
			return
		}
		c.Write([]byte{0x05, 0x00})

		req := make([]byte, 10)
		if _, err := readAll(c, req); err != nil {
			return
		}
		c.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		// at this point the test's socks4 "second hop" is fictitious:
		// the raw socket bytes are not actually forwarded since this is
		// a unit test of the chain engine's hop sequencing, not a real
		// proxy; returning here closes the connection, and the test
		// only asserts that Dial then fails.
	})
	_ = secondHost
	_ = secondPort

	secondAddr, err := addr.NewIPv4(secondHost[0], secondHost[1], secondHost[2], secondHost[3], secondPort)
	require.NoError(t, err)

	cfg := config.Chain{
		ChainType:        config.ChainStrict,
		ConnectTimeoutMS: 1000,
		ReadTimeoutMS:    200,
		LogLevel:         config.LogInfo,
		DNSSubnet:        224,
		ProxyDNS:         true,
		Proxies: []config.Proxy{
			{Scheme: config.SchemeSOCKS5, Host: mustAddr(t, firstHost, firstPort)},
			{Scheme: config.SchemeSOCKS4, Host: secondAddr},
		},
	}
	dest, err := addr.NewIPv4(10, 0, 0, 1, 9000)
	require.NoError(t, err)

	_, err = Dial(cfg, dest)
	// The first hop's SOCKS5 handshake succeeds; the second hop's SOCKS4
	// handshake is then attempted directly on the same raw socket
	// against the first listener (since no real proxy forwards bytes in
	// this harness), which has closed the connection after its SOCKS5
	// reply, so no SOCKS4 reply arrives and Dial returns an error. The
	// assertion below checks only that error, not which hop failed.
	require.Error(t, err)
}

func mustAddr(t *testing.T, host [4]byte, port uint16) addr.Address {
	t.Helper()
	a, err := addr.NewIPv4(host[0], host[1], host[2], host[3], port)
	require.NoError(t, err)
	return a
}

func TestDial_HostnameFirstHopResolvedViaRealResolver(t *testing.T) {
	t.Parallel()

	received := make(chan []byte, 1)
	_, port := listenerProxy(t, func(c net.Conn) {
		buf := make([]byte, 5)
		n, _ := c.Read(buf)
		received <- buf[:n]
	})

	hostAddr, err := addr.NewHost("localhost", port)
	require.NoError(t, err)

	cfg := config.Chain{
		ChainType:        config.ChainStrict,
		ConnectTimeoutMS: 1000,
		ReadTimeoutMS:    1000,
		LogLevel:         config.LogInfo,
		DNSSubnet:        224,
		ProxyDNS:         true,
		Proxies:          []config.Proxy{{Scheme: config.SchemeRaw, Host: hostAddr}},
	}
	dest, err := addr.NewIPv4(10, 0, 0, 1, 9000)
	require.NoError(t, err)

	conn, err := Dial(cfg, dest)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.sock.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), <-received)
}

func TestResolveFirstHop_IPv4Literal(t *testing.T) {
	t.Parallel()

	a, err := addr.NewIPv4(10, 1, 2, 3, 1080)
	require.NoError(t, err)

	ip, err := resolveFirstHop(a)
	require.NoError(t, err)
	assert.Equal(t, [4]byte{10, 1, 2, 3}, ip)
}

func TestDial_EmptyChainRejected(t *testing.T) {
	t.Parallel()
	dest, err := addr.NewIPv4(10, 0, 0, 1, 9000)
	require.NoError(t, err)
	_, err = Dial(config.Chain{}, dest)
	require.Error(t, err)
	ce, ok := classify.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, classify.ClassConfiguration, ce.Class)
}

func readAll(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
