package driver

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hopchain/hopchain/internal/classify"
)

// HTTPConnect implements the HTTP CONNECT handshake (spec.md §4.1). It
// is also used for the https scheme, which is documented as plain
// CONNECT with no TLS negotiated with the proxy itself.
type HTTPConnect struct{}

func (HTTPConnect) Handshake(conn Stream, h Handshake) error {
	hostport := h.Dest.String()

	var b strings.Builder
	fmt.Fprintf(&b, "CONNECT %s HTTP/1.1\r\n", hostport)
	fmt.Fprintf(&b, "Host: %s\r\n", hostport)
	if h.Creds != nil {
		userpass := h.Creds.Username + ":" + h.Creds.Password
		if !h.Creds.HasPair {
			userpass = h.Creds.Userid + ":"
		}
		fmt.Fprintf(&b, "Proxy-Authorization: Basic %s\r\n", base64.StdEncoding.EncodeToString([]byte(userpass)))
	}
	b.WriteString("\r\n")

	if err := conn.SetReadDeadline(time.Now().Add(h.ReadTimeout)); err != nil {
		return classify.New(classify.ClassTransport, -1, "http", "driver: http connect set deadline", err)
	}
	if _, err := conn.Write([]byte(b.String())); err != nil {
		return classify.New(classify.ClassTransport, -1, "http", "driver: http connect write request", err)
	}

	// Read byte-by-byte rather than through a buffered reader: anything
	// buffered past the blank line would belong to the tunnelled stream
	// the chain engine reads next, and Stream offers no way to push
	// bytes back.
	status, err := readCRLFLine(conn)
	if err != nil {
		return classify.New(classify.ClassProtocol, -1, "http", "driver: http connect status line", err)
	}
	code, err := parseStatusCode(status)
	if err != nil {
		return classify.New(classify.ClassProtocol, -1, "http", "driver: http connect malformed status line", err)
	}
	if code < 200 || code >= 300 {
		return classify.New(classify.ClassProtocol, -1, "http",
			fmt.Sprintf("driver: http connect rejected with status %d", code), nil)
	}

	for {
		line, err := readCRLFLine(conn)
		if err != nil {
			return classify.New(classify.ClassProtocol, -1, "http", "driver: http connect headers truncated", err)
		}
		if line == "" {
			break
		}
	}
	return nil
}

// readCRLFLine reads a single line terminated by "\r\n" (or "\n"),
// returning it with the terminator stripped.
func readCRLFLine(conn Stream) (string, error) {
	var b strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := conn.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				return strings.TrimSuffix(b.String(), "\r"), nil
			}
			b.WriteByte(buf[0])
		}
		if err != nil {
			return "", err
		}
	}
}

func parseStatusCode(line string) (int, error) {
	parts := strings.SplitN(strings.TrimRight(line, "\r\n"), " ", 3)
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed status line %q", line)
	}
	return strconv.Atoi(parts[1])
}
