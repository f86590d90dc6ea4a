// Package hook implements the OS-agnostic decision logic behind the
// interposed libc symbols described in spec.md §4.3: whether a connect
// call should be forwarded to the real syscall or routed through the
// proxy chain, and the process DNS map that fabricated answers come
// from. The cgo-exported symbols, including the building of fabricated
// hostent/addrinfo results, live in cmd/libhopchain; this package
// has no cgo dependency so its decisions are unit-testable directly.
package hook

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hopchain/hopchain/internal/addr"
	"github.com/hopchain/hopchain/internal/chain"
	"github.com/hopchain/hopchain/internal/classify"
	"github.com/hopchain/hopchain/internal/config"
	"github.com/hopchain/hopchain/internal/dnsmap"
)

// Decision is what the interposed connect symbol should do.
type Decision int

const (
	// DecisionPassthrough means call the real symbol unchanged.
	DecisionPassthrough Decision = iota
	// DecisionChain means route through the proxy chain.
	DecisionChain
)

// State is the process-wide singleton the hook layer initialises
// exactly once, on first hook entry (spec.md §4.3, §9 "process-wide
// state"). It is immutable after Init except for the DNS map, which
// serialises its own mutations.
type State struct {
	once sync.Once
	err  error

	cfg    config.Chain
	dns    *dnsmap.Map
	logger *logrus.Logger
}

// Init parses blob exactly once; subsequent calls return the first
// call's result. A missing blob is reported via ErrNoBlob so the
// caller (cmd/libhopchain) can distinguish "no configuration, run as
// pass-through" from "configuration present but invalid, abort".
func (s *State) Init(blob []byte, blobPresent bool) error {
	s.once.Do(func() {
		if !blobPresent {
			s.err = ErrNoBlob
			return
		}
		cfg, err := config.DecodeBlob(blob)
		if err != nil {
			s.err = errors.Wrap(err, "hook: invalid configuration blob")
			return
		}
		s.cfg = cfg
		s.dns = dnsmap.New(cfg.DNSSubnet)
		s.logger = newLogger(cfg.LogLevel)
	})
	return s.err
}

// ErrNoBlob is not a failure: it signals pass-through mode (spec.md
// §6's "absence means pass-through").
var ErrNoBlob = errors.New("hook: no configuration blob present")

// Ready reports whether Init succeeded with a real configuration
// (false both when Init was never called, failed, or returned
// ErrNoBlob).
func (s *State) Ready() bool {
	return s.err == nil && s.cfg.Proxies != nil
}

// Config returns the resolved configuration. Only valid when Ready().
func (s *State) Config() config.Chain { return s.cfg }

// DNS returns the process DNS map. Only valid when Ready().
func (s *State) DNS() *dnsmap.Map { return s.dns }

// Logger returns the structured logger configured from log_level. Only
// valid when Ready().
func (s *State) Logger() *logrus.Logger { return s.logger }

// Decide implements the connect(2) policy from spec.md §4.3: reverse-DNS
// the target through the virtual subnet when applicable, apply the
// ignore list, and report whether the real syscall should run as-is.
// resolved is the (possibly reverse-mapped) Address the chain engine
// should dial if the decision is DecisionChain.
func (s *State) Decide(target addr.Address) (decision Decision, resolved addr.Address, err error) {
	if !target.IsIPv4() {
		return DecisionPassthrough, target, nil
	}

	resolved = target
	if s.cfg.ProxyDNS && s.dns.Contains(target.IPv4()) {
		if host, ok := s.dns.Lookup(target.IPv4()); ok {
			hostAddr, herr := addr.NewHost(host, target.Port())
			if herr != nil {
				return DecisionPassthrough, target, classify.New(classify.ClassProtocol, -1, "", "hook: reverse-mapped hostname is invalid", herr)
			}
			resolved = hostAddr
		}
	}

	for _, cidr := range s.cfg.IgnoreSubnets {
		if cidr.Contains(target) {
			return DecisionPassthrough, target, nil
		}
	}

	return DecisionChain, resolved, nil
}

// Connect runs the full chain for a DecisionChain outcome, returning the
// tunnelled connection on success.
func (s *State) Connect(dest addr.Address) (*chain.Conn, error) {
	return chain.Dial(s.cfg, dest)
}

func newLogger(level config.LogLevel) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{})
	switch level {
	case config.LogOff:
		logger.SetOutput(discardWriter{})
	case config.LogTrace:
		logger.SetLevel(logrus.TraceLevel)
	case config.LogDebug:
		logger.SetLevel(logrus.DebugLevel)
	case config.LogInfo:
		logger.SetLevel(logrus.InfoLevel)
	case config.LogWarn:
		logger.SetLevel(logrus.WarnLevel)
	case config.LogError:
		logger.SetLevel(logrus.ErrorLevel)
	}
	return logger
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
