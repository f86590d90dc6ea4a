// Package chain implements the sequential proxy chain engine described
// in spec.md §4.2: resolve and connect to the first proxy with a
// connect timeout, then run one protocol driver per configured hop over
// that single socket, substituting each hop's destination with the next
// hop's address (or the final destination at the terminal hop).
package chain

import (
	"context"
	"net"
	"time"

	"github.com/hopchain/hopchain/internal/addr"
	"github.com/hopchain/hopchain/internal/classify"
	"github.com/hopchain/hopchain/internal/config"
	"github.com/hopchain/hopchain/internal/driver"
)

// firstHopResolver is forced onto the pure-Go DNS client (never cgo's
// libc resolver) so resolving a hostname proxy[0] can't recurse into
// cmd/libhopchain's own interposed getaddrinfo/gethostbyname, and can't
// have its answer fabricated by the hook layer's own DNS virtualisation
// — this lookup must find the real proxy, not a virtual stand-in.
var firstHopResolver = &net.Resolver{PreferGo: true}

// Conn is a successfully tunnelled socket, restored to blocking mode
// with no deadline, ready to be handed to the application (by way of
// the hook layer's dup2 onto the caller's original fd).
type Conn struct {
	sock *socket
}

// Fd returns the raw file descriptor backing the tunnelled connection.
func (c *Conn) Fd() int { return c.sock.Fd() }

// Close closes the underlying socket. Callers that have already
// duplicated the fd elsewhere should still call Close to release the
// temporary descriptor (spec.md §4.3).
func (c *Conn) Close() error { return c.sock.Close() }

// Dial drives the full chain in cfg toward dest, returning a connected,
// tunnelled socket on success. It performs exactly one TCP connect (to
// proxy[0]) and at most len(cfg.Proxies) handshakes (spec.md invariant
// 6).
func Dial(cfg config.Chain, dest addr.Address) (*Conn, error) {
	if len(cfg.Proxies) == 0 {
		return nil, classify.Configuration("chain: empty proxy list", nil)
	}

	first := cfg.Proxies[0]
	firstIP, err := resolveFirstHop(first.Host)
	if err != nil {
		return nil, err
	}

	connectTimeout := time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond
	readTimeout := time.Duration(cfg.ReadTimeoutMS) * time.Millisecond

	sock, err := dialFirstHop(firstIP, first.Host.Port(), connectTimeout)
	if err != nil {
		return nil, err
	}

	if err := runHops(sock, cfg.Proxies, dest, readTimeout, cfg.ProxyDNS); err != nil {
		sock.Close()
		return nil, err
	}

	if err := sock.clearDeadline(); err != nil {
		sock.Close()
		return nil, classify.New(classify.ClassTransport, -1, "", "chain: restore blocking mode", err)
	}

	return &Conn{sock: sock}, nil
}

// resolveFirstHop returns the IPv4 address to dial for proxy[0]. A
// literal IPv4 host is returned unchanged; a hostname host is resolved
// through the real (non-virtualised, non-intercepted) resolver, per
// spec.md §4.2 step 2: "Resolve and connect to proxy[0]'s host/port
// using the non-intercepted real syscalls."
func resolveFirstHop(host addr.Address) ([4]byte, error) {
	if host.IsIPv4() {
		return host.IPv4(), nil
	}

	ips, err := firstHopResolver.LookupIPAddr(context.Background(), host.Host())
	if err != nil {
		return [4]byte{}, classify.New(classify.ClassTransport, 0, "",
			"chain: resolve first hop hostname", err)
	}
	for _, ip := range ips {
		if v4 := ip.IP.To4(); v4 != nil {
			return [4]byte{v4[0], v4[1], v4[2], v4[3]}, nil
		}
	}
	return [4]byte{}, classify.New(classify.ClassTransport, 0, "",
		"chain: first hop hostname has no IPv4 address", nil)
}

func runHops(sock *socket, proxies []config.Proxy, dest addr.Address, readTimeout time.Duration, proxyDNS bool) error {
	n := len(proxies)
	for i, p := range proxies {
		d, err := driver.For(p.Driver())
		if err != nil {
			return err
		}

		terminal := i == n-1
		hop := driver.Handshake{
			ReadTimeout:   readTimeout,
			Creds:         p.Creds,
			AllowHostname: terminal && proxyDNS,
		}
		if terminal {
			hop.Dest = dest
		} else {
			hop.Dest = proxies[i+1].Host
		}

		if err := d.Handshake(sock, hop); err != nil {
			if ce, ok := classify.AsClassified(err); ok {
				ce.Hop = i
				return ce
			}
			return classify.New(classify.ClassProtocol, i, string(p.Scheme), "chain: handshake failed", err)
		}
	}
	return nil
}
