package hook

import (
	"golang.org/x/sys/unix"

	"github.com/hopchain/hopchain/internal/classify"
)

// ErrnoFor maps a classified chain/protocol failure to the errno
// cmd/libhopchain's exported connect() should set, per spec.md §4.3:
// ECONNREFUSED for handshake rejection, ETIMEDOUT for timeouts,
// EHOSTUNREACH otherwise (including any internal invariant violation,
// per spec.md §7's "never panics out of a hook").
func ErrnoFor(err error) unix.Errno {
	ce, ok := classify.AsClassified(err)
	if !ok {
		return unix.EHOSTUNREACH
	}

	switch ce.Class {
	case classify.ClassProtocol:
		return unix.ECONNREFUSED
	case classify.ClassTransport:
		if isTimeoutFailure(ce) {
			return unix.ETIMEDOUT
		}
		return unix.EHOSTUNREACH
	case classify.ClassExhaustion:
		return unix.EHOSTUNREACH
	default:
		return unix.EHOSTUNREACH
	}
}

func isTimeoutFailure(ce *classify.Error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := ce.Cause.(timeouter); ok {
		return t.Timeout()
	}
	msg := ce.Message
	return containsTimedOut(msg)
}

func containsTimedOut(s string) bool {
	const needle = "timed out"
	for i := 0; i+len(needle) <= len(s); i++ {
		if s[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
