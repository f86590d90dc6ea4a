package driver

import (
	"encoding/binary"

	"github.com/hopchain/hopchain/internal/classify"
)

const (
	socks5Version = 0x05

	socks5MethodNoAuth   = 0x00
	socks5MethodUserPass = 0x02
	socks5MethodNoAccept = 0xFF

	socks5CmdConnect = 0x01

	socks5ATYPIPv4   = 0x01
	socks5ATYPDomain = 0x03
	socks5ATYPIPv6   = 0x04

	socks5UserPassVersion = 0x01
	socks5UserPassSuccess = 0x00
)

// SOCKS5 implements the method-selection, optional RFC 1929 user/pass
// sub-negotiation, and CONNECT request/reply exchange (spec.md §4.1).
type SOCKS5 struct{}

func (SOCKS5) Handshake(conn Stream, h Handshake) error {
	if err := socks5SelectMethod(conn, h); err != nil {
		return err
	}
	if err := socks5Connect(conn, h); err != nil {
		return err
	}
	return nil
}

func socks5SelectMethod(conn Stream, h Handshake) error {
	greeting := []byte{socks5Version, 0x02, socks5MethodNoAuth, socks5MethodUserPass}
	if _, err := conn.Write(greeting); err != nil {
		return classify.New(classify.ClassTransport, -1, "socks5", "driver: socks5 write method selection", err)
	}

	reply := make([]byte, 2)
	if err := readFull(conn, reply, h.ReadTimeout, "socks5", "socks5 method selection reply"); err != nil {
		return err
	}
	if reply[0] != socks5Version {
		return classify.New(classify.ClassProtocol, -1, "socks5", "driver: socks5 unexpected version in method reply", nil)
	}

	switch reply[1] {
	case socks5MethodNoAuth:
		return nil
	case socks5MethodUserPass:
		return socks5UserPassNegotiate(conn, h)
	case socks5MethodNoAccept:
		return classify.New(classify.ClassProtocol, -1, "socks5", "driver: socks5 no acceptable authentication method", nil)
	default:
		return classify.New(classify.ClassProtocol, -1, "socks5", "driver: socks5 server selected unsupported method", nil)
	}
}

func socks5UserPassNegotiate(conn Stream, h Handshake) error {
	if h.Creds == nil || !h.Creds.HasPair {
		return classify.New(classify.ClassProtocol, -1, "socks5", "driver: socks5 server requires user/pass but none configured", nil)
	}

	req := make([]byte, 0, 3+len(h.Creds.Username)+len(h.Creds.Password))
	req = append(req, socks5UserPassVersion, byte(len(h.Creds.Username)))
	req = append(req, []byte(h.Creds.Username)...)
	req = append(req, byte(len(h.Creds.Password)))
	req = append(req, []byte(h.Creds.Password)...)

	if _, err := conn.Write(req); err != nil {
		return classify.New(classify.ClassTransport, -1, "socks5", "driver: socks5 write user/pass request", err)
	}

	reply := make([]byte, 2)
	if err := readFull(conn, reply, h.ReadTimeout, "socks5", "socks5 user/pass reply"); err != nil {
		return err
	}
	if reply[1] != socks5UserPassSuccess {
		return classify.New(classify.ClassProtocol, -1, "socks5", "driver: socks5 authentication rejected", nil)
	}
	return nil
}

func socks5Connect(conn Stream, h Handshake) error {
	req := []byte{socks5Version, socks5CmdConnect, 0x00}
	if h.Dest.IsIPv4() {
		ip := h.Dest.IPv4()
		req = append(req, socks5ATYPIPv4, ip[0], ip[1], ip[2], ip[3])
	} else {
		host := h.Dest.Host()
		req = append(req, socks5ATYPDomain, byte(len(host)))
		req = append(req, []byte(host)...)
	}
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], h.Dest.Port())
	req = append(req, portBuf[:]...)

	if _, err := conn.Write(req); err != nil {
		return classify.New(classify.ClassTransport, -1, "socks5", "driver: socks5 write connect request", err)
	}

	header := make([]byte, 4)
	if err := readFull(conn, header, h.ReadTimeout, "socks5", "socks5 connect reply header"); err != nil {
		return err
	}
	if header[0] != socks5Version {
		return classify.New(classify.ClassProtocol, -1, "socks5", "driver: socks5 unexpected version in connect reply", nil)
	}
	if err := socks5ReplyError(header[1]); err != nil {
		return err
	}

	var addrLen int
	switch header[3] {
	case socks5ATYPIPv4:
		addrLen = 4
	case socks5ATYPDomain:
		lenByte := make([]byte, 1)
		if err := readFull(conn, lenByte, h.ReadTimeout, "socks5", "socks5 connect reply domain length"); err != nil {
			return err
		}
		addrLen = int(lenByte[0])
	case socks5ATYPIPv6:
		addrLen = 16
	default:
		return classify.New(classify.ClassProtocol, -1, "socks5", "driver: socks5 unsupported address type in reply", nil)
	}

	// Consume and discard bound address + port (spec.md §4.1).
	tail := make([]byte, addrLen+2)
	return readFull(conn, tail, h.ReadTimeout, "socks5", "socks5 connect reply address/port")
}

func socks5ReplyError(rep byte) error {
	if rep == 0x00 {
		return nil
	}
	var msg string
	switch rep {
	case 0x01:
		msg = "general SOCKS server failure"
	case 0x02:
		msg = "connection not allowed by ruleset"
	case 0x03:
		msg = "network unreachable"
	case 0x04:
		msg = "host unreachable"
	case 0x05:
		msg = "connection refused"
	case 0x06:
		msg = "TTL expired"
	case 0x07:
		msg = "command not supported"
	case 0x08:
		msg = "address type not supported"
	default:
		msg = "unassigned reply code"
	}
	return classify.New(classify.ClassProtocol, -1, "socks5", "driver: socks5 "+msg, nil)
}
