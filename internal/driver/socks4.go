package driver

import (
	"encoding/binary"

	"github.com/hopchain/hopchain/internal/classify"
)

const (
	socks4Version            = 0x04
	socks4CmdConnect         = 0x01
	socks4ReplyGrant         = 0x5A
	socks4ReplyReject        = 0x5B
	socks4ReplyNoIdent       = 0x5C
	socks4ReplyIdentMismatch = 0x5D
)

// SOCKS4 implements the SOCKS4 and SOCKS4A handshake (spec.md §4.1).
type SOCKS4 struct{}

func (SOCKS4) Handshake(conn Stream, h Handshake) error {
	req := make([]byte, 0, 16)
	req = append(req, socks4Version, socks4CmdConnect)

	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], h.Dest.Port())
	req = append(req, portBuf[:]...)

	userid := ""
	if h.Creds != nil {
		userid = h.Creds.Userid
	}

	useSocks4A := !h.Dest.IsIPv4() && h.AllowHostname
	if h.Dest.IsIPv4() {
		ip := h.Dest.IPv4()
		req = append(req, ip[0], ip[1], ip[2], ip[3])
		req = append(req, []byte(userid)...)
		req = append(req, 0x00)
	} else if useSocks4A {
		req = append(req, 0x00, 0x00, 0x00, 0x01)
		req = append(req, []byte(userid)...)
		req = append(req, 0x00)
		req = append(req, []byte(h.Dest.Host())...)
		req = append(req, 0x00)
	} else {
		return classify.New(classify.ClassConfiguration, -1, "socks4",
			"driver: socks4 cannot resolve a hostname destination without socks4a at the terminal hop", nil)
	}

	if _, err := conn.Write(req); err != nil {
		return classify.New(classify.ClassTransport, -1, "socks4", "driver: socks4 write request", err)
	}

	reply := make([]byte, 8)
	if err := readFull(conn, reply, h.ReadTimeout, "socks4", "socks4 reply"); err != nil {
		return err
	}

	switch reply[1] {
	case socks4ReplyGrant:
		return nil
	case socks4ReplyReject:
		return classify.New(classify.ClassProtocol, -1, "socks4", "driver: socks4 request rejected or failed", nil)
	case socks4ReplyNoIdent, socks4ReplyIdentMismatch:
		return classify.New(classify.ClassProtocol, -1, "socks4", "driver: socks4 identd authentication failed", nil)
	default:
		return classify.New(classify.ClassProtocol, -1, "socks4", "driver: socks4 malformed reply code", nil)
	}
}
