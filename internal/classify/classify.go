// Package classify implements the error taxonomy described in spec.md
// §7: every failure the chain engine, protocol drivers, and hook layer
// can produce is tagged with one Class, so the hook layer can translate
// it into an errno and the launcher/logging layer can emit one
// structured diagnostic line per failure.
package classify

import (
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Class buckets a failure the way spec.md §7 does.
type Class string

const (
	// ClassConfiguration covers missing/invalid env blob, unsupported
	// chain type, empty proxy list, malformed URL, unsupported
	// credential shape. Fatal at process start.
	ClassConfiguration Class = "configuration"
	// ClassTransport covers connect refused, connect timeout, read
	// timeout, unexpected EOF.
	ClassTransport Class = "transport"
	// ClassProtocol covers malformed reply, unsupported method,
	// authentication required/rejected, destination rejected.
	ClassProtocol Class = "protocol"
	// ClassExhaustion covers the DNS virtual subnet running out of
	// addresses.
	ClassExhaustion Class = "exhaustion"
)

// Error is a classified failure. It wraps an underlying cause (often
// itself wrapped with github.com/pkg/errors for a full causal chain)
// and carries enough context to log one structured line and to pick an
// errno in the hook layer.
type Error struct {
	Class   Class
	Hop     int    // hop index, -1 if not hop-specific
	Scheme  string // proxy scheme involved, "" if not applicable
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// LogrusFields renders the error as structured fields for logrus,
// mirroring the field-exporter idiom the pack's proxy-protocol library
// uses for its own Header/Conn types.
func (e *Error) LogrusFields() logrus.Fields {
	fields := logrus.Fields{
		"class": string(e.Class),
	}
	if e.Hop >= 0 {
		fields["hop"] = e.Hop
	}
	if e.Scheme != "" {
		fields["scheme"] = e.Scheme
	}
	return fields
}

// ZapFields renders the error as structured fields for zap, for host
// applications that have standardized on zap instead of logrus.
func (e *Error) ZapFields() []zap.Field {
	fields := make([]zap.Field, 0, 3)
	fields = append(fields, zap.String("class", string(e.Class)))
	if e.Hop >= 0 {
		fields = append(fields, zap.Int("hop", e.Hop))
	}
	if e.Scheme != "" {
		fields = append(fields, zap.String("scheme", e.Scheme))
	}
	return fields
}

// New builds a classified Error.
func New(class Class, hop int, scheme, message string, cause error) *Error {
	return &Error{Class: class, Hop: hop, Scheme: scheme, Message: message, Cause: cause}
}

// Configuration builds a ClassConfiguration error with no hop context.
func Configuration(message string, cause error) *Error {
	return New(ClassConfiguration, -1, "", message, cause)
}

// Exhaustion builds a ClassExhaustion error with no hop context.
func Exhaustion(message string, cause error) *Error {
	return New(ClassExhaustion, -1, "", message, cause)
}

// AsClassified unwraps err looking for a *Error, returning it and true
// if found.
func AsClassified(err error) (*Error, bool) {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			return ce, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
