// Package driver implements the per-scheme proxy handshakes described
// in spec.md §4.1. Each Driver performs exactly one handshake over an
// already-connected stream; none of them dial anything themselves — the
// chain engine in internal/chain owns the socket and the destination
// substitution between hops.
package driver

import (
	"io"
	"time"

	"github.com/hopchain/hopchain/internal/addr"
	"github.com/hopchain/hopchain/internal/classify"
	"github.com/hopchain/hopchain/internal/config"
)

// Handshake carries the per-hop parameters a Driver needs beyond the
// stream itself.
type Handshake struct {
	Dest addr.Address // the address this hop should tunnel to

	// Creds are the proxy's own credentials, nil if none configured.
	Creds *config.Credentials

	// AllowHostname permits a Driver to send dest.Host() rather than a
	// resolved IPv4 when dest is a hostname. It is true only at the
	// terminal hop of the chain with proxy_dns enabled (spec.md §4.1's
	// SOCKS4A carve-out; SOCKS5 and HTTP CONNECT always accept a
	// hostname destination, so it only changes SOCKS4's wire form).
	AllowHostname bool

	ReadTimeout time.Duration
}

// Driver performs one proxy handshake over conn, instructing the proxy
// to forward subsequent bytes to h.Dest. On success the stream is
// tunnelled to h.Dest and the caller may begin writing application
// data; on failure the returned error is always a *classify.Error.
type Driver interface {
	Handshake(conn Stream, h Handshake) error
}

// Stream is the minimal surface a Driver needs from a connected socket.
// *net.TCPConn satisfies it.
type Stream interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
}

// For resolves the Driver implementation for a proxy scheme. https is
// resolved to the same driver as http per config.Proxy.Driver's
// documented limitation.
func For(scheme config.Scheme) (Driver, error) {
	switch scheme {
	case config.SchemeRaw:
		return Raw{}, nil
	case config.SchemeSOCKS4:
		return SOCKS4{}, nil
	case config.SchemeSOCKS5:
		return SOCKS5{}, nil
	case config.SchemeHTTP, config.SchemeHTTPS:
		return HTTPConnect{}, nil
	default:
		return nil, classify.Configuration("driver: unsupported scheme", nil)
	}
}

// readFull reads exactly len(buf) bytes before the read timeout,
// classifying a short read or EOF as a protocol error per spec.md §4.1's
// "all drivers treat a short read or EOF mid-handshake as a protocol
// error".
func readFull(conn Stream, buf []byte, readTimeout time.Duration, scheme, what string) error {
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return classify.New(classify.ClassTransport, -1, scheme, "driver: set read deadline", err)
	}
	if _, err := io.ReadFull(conn, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return classify.New(classify.ClassProtocol, -1, scheme, "driver: "+what+" closed before reply completed", err)
		}
		if isTimeout(err) {
			return classify.New(classify.ClassTransport, -1, scheme, "driver: "+what+" timed out", err)
		}
		return classify.New(classify.ClassTransport, -1, scheme, "driver: "+what+" read failed", err)
	}
	return nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	t, ok := err.(timeouter)
	return ok && t.Timeout()
}
