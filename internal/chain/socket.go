package chain

import (
	"io"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hopchain/hopchain/internal/classify"
)

// socket wraps a raw IPv4 TCP file descriptor and implements
// driver.Stream directly through golang.org/x/sys/unix, independent of
// Go's net package. This is the "real syscall" resolution noted in
// DESIGN.md: Go's net.Dial never calls through the dynamically-resolved
// libc connect symbol in the first place (it issues the connect(2)
// syscall directly, without a symbol lookup), so a Go-level dial can
// never recurse into cmd/libhopchain's interposed connect — the
// thread-local re-entry guard in cmd/libhopchain (hopchain_guard) exists
// as the defense spec.md §9 calls for, not because this type would
// otherwise trigger it.
type socket struct {
	fd int
}

// dialFirstHop opens a blocking IPv4 TCP socket and connects it to
// host:port within timeout, using a non-blocking connect(2) plus
// poll(2) so the timeout can be enforced without relying on Go's
// scheduler-integrated net package.
func dialFirstHop(host [4]byte, port uint16, timeout time.Duration) (*socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, classify.New(classify.ClassTransport, 0, "", "chain: socket(2) failed", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, classify.New(classify.ClassTransport, 0, "", "chain: set socket non-blocking", err)
	}

	sa := &unix.SockaddrInet4{Port: int(port), Addr: host}
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, classify.New(classify.ClassTransport, 0, "", "chain: connect(2) to first hop failed", err)
	}

	if err == unix.EINPROGRESS {
		if werr := waitWritable(fd, timeout); werr != nil {
			unix.Close(fd)
			return nil, werr
		}
		if serr := socketError(fd); serr != nil {
			unix.Close(fd)
			return nil, classify.New(classify.ClassTransport, 0, "", "chain: connect(2) to first hop failed", serr)
		}
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, classify.New(classify.ClassTransport, 0, "", "chain: restore socket to blocking mode", err)
	}

	return &socket{fd: fd}, nil
}

func waitWritable(fd int, timeout time.Duration) error {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	deadline := int(timeout / time.Millisecond)
	n, err := unix.Poll(pfd, deadline)
	if err != nil {
		return classify.New(classify.ClassTransport, 0, "", "chain: poll(2) on connecting socket failed", err)
	}
	if n == 0 {
		return classify.New(classify.ClassTransport, 0, "", "chain: connect to first hop timed out", nil)
	}
	if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
		if serr := socketError(fd); serr != nil {
			return classify.New(classify.ClassTransport, 0, "", "chain: connect to first hop failed", serr)
		}
		return classify.New(classify.ClassTransport, 0, "", "chain: connect to first hop failed", nil)
	}
	return nil
}

func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// Read reports an orderly shutdown by the peer (read(2) returning 0) as
// io.EOF, as io.Reader requires.
func (s *socket) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	if n < 0 {
		n = 0
	}
	if n == 0 && err == nil && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

func (s *socket) Write(p []byte) (int, error) { return unix.Write(s.fd, p) }

// SetReadDeadline sets SO_RCVTIMEO so each handshake read is bounded by
// the configured read timeout, matching spec.md §4.2.
func (s *socket) SetReadDeadline(t time.Time) error {
	var d time.Duration
	if !t.IsZero() {
		d = time.Until(t)
		if d < 0 {
			d = 0
		}
	}
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

// clearDeadline restores a blocking socket with no timeout, matching
// spec.md §4.2's "socket is restored to blocking mode before returning
// to the caller".
func (s *socket) clearDeadline() error {
	tv := unix.NsecToTimeval(0)
	return unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

// Fd returns the raw file descriptor, so the hook layer can dup2 it
// onto the application's original fd (spec.md §9 "socket fd
// preservation").
func (s *socket) Fd() int { return s.fd }

// Close closes the underlying fd.
func (s *socket) Close() error { return unix.Close(s.fd) }
