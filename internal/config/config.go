// Package config resolves the user-facing TOML schema (spec.md §6) into
// the typed Chain value consumed by internal/hook, internal/chain, and
// internal/driver. It also defines the JSON wire format for the
// HOPCHAIN_CONFIG environment blob the launcher hands the preload
// library (SPEC_FULL.md §12).
package config

import (
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/hopchain/hopchain/internal/addr"
)

// Scheme identifies a proxy hop's protocol.
type Scheme string

const (
	SchemeRaw    Scheme = "raw"
	SchemeHTTP   Scheme = "http"
	SchemeHTTPS  Scheme = "https"
	SchemeSOCKS4 Scheme = "socks4"
	SchemeSOCKS5 Scheme = "socks5"
)

// ChainType is the chain traversal strategy. Only ChainStrict is
// implemented; ChainDynamic and ChainRandom are accepted syntactically
// and rejected by Validate (SPEC_FULL.md §13 decision 1).
type ChainType string

const (
	ChainStrict  ChainType = "strict"
	ChainDynamic ChainType = "dynamic"
	ChainRandom  ChainType = "random"
)

// LogLevel mirrors spec.md §6's log_level enum.
type LogLevel string

const (
	LogOff   LogLevel = "off"
	LogError LogLevel = "error"
	LogWarn  LogLevel = "warn"
	LogInfo  LogLevel = "info"
	LogDebug LogLevel = "debug"
	LogTrace LogLevel = "trace"
)

// Errors surfaced by Validate and the proxy parsers. Each is a
// configuration-class sentinel (spec.md §7), returned bare or wrapped
// with github.com/pkg/errors, so callers can match on it with errors.Is.
var (
	ErrUnsupportedChainType  = errors.New("config: unsupported chain_type (only \"strict\" is implemented)")
	ErrSocks4CredentialShape = errors.New("config: socks4 does not accept a username/password pair, only a single userid token")
	ErrEmptyChain            = errors.New("config: proxy chain must contain at least one proxy")
	ErrRawWithCredentials    = errors.New("config: raw scheme does not accept credentials")
	ErrInvalidDNSSubnet      = errors.New("config: dns_subnet must be in 1..=254")
	ErrInvalidPort           = errors.New("config: port must be in 1..=65535")
	ErrInvalidLogLevel       = errors.New("config: invalid log_level")
	ErrUnsupportedScheme     = errors.New("config: unsupported proxy scheme")
)

// Credentials is either a single userid token (SOCKS4) or a
// username/password pair (SOCKS5, HTTP Basic). Exactly one shape is
// populated; HasPair distinguishes them since an empty Username is a
// valid password-less userid.
type Credentials struct {
	Userid   string
	Username string
	Password string
	HasPair  bool
}

// Proxy is one hop in the chain.
type Proxy struct {
	Scheme Scheme
	Host   addr.Address // port carried inside
	Creds  *Credentials // nil means no credentials
}

// Chain is the fully resolved, validated configuration the hook layer
// consumes. It is immutable after construction (spec.md §5) and safe
// for concurrent read access by every hooked thread.
type Chain struct {
	LogLevel         LogLevel
	ProxyDNS         bool
	DNSSubnet        byte
	ConnectTimeoutMS int
	ReadTimeoutMS    int
	ChainType        ChainType
	IgnoreSubnets    []addr.CIDR
	Proxies          []Proxy
}

const (
	defaultConnectTimeoutMS = 8000
	defaultReadTimeoutMS    = 15000
	defaultDNSSubnet        = 224
)

// rawDocument mirrors the TOML schema in spec.md §6 field for field,
// using string/interface-shaped fields so BurntSushi/toml can decode
// either the URL-string or table form of "proxy" entries.
type rawDocument struct {
	LogLevel          string        `toml:"log_level"`
	ProxyDNS          *bool         `toml:"proxy_dns"`
	DNSSubnet         *int          `toml:"dns_subnet"`
	TCPConnectTimeout *int          `toml:"tcp_connect_timeout"`
	TCPReadTimeout    *int          `toml:"tcp_read_timeout"`
	ChainType         string        `toml:"chain_type"`
	IgnoreSubnets     []rawIgnore   `toml:"ignore_subnets"`
	Proxy             []rawProxyAny `toml:"proxy"`
}

type rawIgnore struct {
	CIDR string `toml:"cidr"`
}

// rawProxyAny decodes both array-of-strings and array-of-tables proxy
// entries through UnmarshalTOML: a TOML string lands in String and a
// TOML table in the table fields; exactly one side is populated per
// entry.
type rawProxyAny struct {
	String string
	Type   string `toml:"type"`
	IP     string `toml:"ip"`
	Port   int    `toml:"port"`
	Auth   string `toml:"auth"`
}

// UnmarshalTOML receives each "proxy" array element as BurntSushi/toml
// decoded it: a bare string goes to rawProxyAny.String, a table's keys
// go to the matching struct fields.
func (p *rawProxyAny) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		p.String = v
	case map[string]any:
		p.Type, _ = v["type"].(string)
		p.IP, _ = v["ip"].(string)
		if port, ok := v["port"].(int64); ok {
			p.Port = int(port)
		}
		p.Auth, _ = v["auth"].(string)
	default:
		return errors.Errorf("config: proxy entry must be a URL string or a table, got %T", data)
	}
	return nil
}

// Parse decodes TOML bytes into a validated Chain.
func Parse(data []byte) (Chain, error) {
	var doc rawDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		return Chain{}, errors.Wrap(err, "config: parse toml")
	}
	return fromDocument(doc)
}

func fromDocument(doc rawDocument) (Chain, error) {
	c := Chain{
		LogLevel:         LogLevel(doc.LogLevel),
		ProxyDNS:         true,
		DNSSubnet:        defaultDNSSubnet,
		ConnectTimeoutMS: defaultConnectTimeoutMS,
		ReadTimeoutMS:    defaultReadTimeoutMS,
		ChainType:        ChainStrict,
	}
	if c.LogLevel == "" {
		c.LogLevel = LogInfo
	}
	if doc.ProxyDNS != nil {
		c.ProxyDNS = *doc.ProxyDNS
	}
	if doc.DNSSubnet != nil {
		if *doc.DNSSubnet < 1 || *doc.DNSSubnet > 254 {
			return Chain{}, ErrInvalidDNSSubnet
		}
		c.DNSSubnet = byte(*doc.DNSSubnet)
	}
	if doc.TCPConnectTimeout != nil {
		c.ConnectTimeoutMS = *doc.TCPConnectTimeout
	}
	if doc.TCPReadTimeout != nil {
		c.ReadTimeoutMS = *doc.TCPReadTimeout
	}
	if doc.ChainType != "" {
		c.ChainType = ChainType(doc.ChainType)
	}

	for _, ig := range doc.IgnoreSubnets {
		cidr, err := addr.ParseCIDR(ig.CIDR)
		if err != nil {
			return Chain{}, errors.Wrapf(err, "config: ignore_subnets entry %q", ig.CIDR)
		}
		c.IgnoreSubnets = append(c.IgnoreSubnets, cidr)
	}

	for i, p := range doc.Proxy {
		proxy, err := resolveProxyEntry(p)
		if err != nil {
			return Chain{}, errors.Wrapf(err, "config: proxy[%d]", i)
		}
		c.Proxies = append(c.Proxies, proxy)
	}

	if err := c.Validate(); err != nil {
		return Chain{}, err
	}
	return c, nil
}

func resolveProxyEntry(p rawProxyAny) (Proxy, error) {
	if p.String != "" {
		return ParseProxyURL(p.String)
	}
	return proxyFromTable(p)
}

// ParseProxyURL parses the "scheme://[user[:pass]@]host:port" form
// (spec.md §6). Credential shape follows the scheme: a bare
// "user@host" (no colon in userinfo) yields a single-token userid; a
// "user:pass@host" form yields a username/password pair.
func ParseProxyURL(s string) (Proxy, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Proxy{}, errors.Wrapf(err, "config: malformed proxy url %q", s)
	}
	scheme := Scheme(strings.ToLower(u.Scheme))
	host := u.Hostname()
	portStr := u.Port()
	if host == "" || portStr == "" {
		return Proxy{}, errors.Errorf("config: proxy url %q missing host or port", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Proxy{}, errors.Wrapf(ErrInvalidPort, "proxy url %q", s)
	}

	address, err := hostAddress(host, uint16(port))
	if err != nil {
		return Proxy{}, errors.Wrapf(err, "config: proxy url %q", s)
	}

	proxy := Proxy{Scheme: scheme, Host: address}
	if u.User != nil {
		creds := &Credentials{}
		if pass, ok := u.User.Password(); ok {
			creds.HasPair = true
			creds.Username = u.User.Username()
			creds.Password = pass
		} else {
			creds.Userid = u.User.Username()
		}
		proxy.Creds = creds
	}
	return proxy, nil
}

func proxyFromTable(p rawProxyAny) (Proxy, error) {
	scheme := Scheme(strings.ToLower(p.Type))
	port := p.Port
	if port < 1 || port > 65535 {
		return Proxy{}, ErrInvalidPort
	}
	address, err := hostAddress(p.IP, uint16(port))
	if err != nil {
		return Proxy{}, err
	}
	proxy := Proxy{Scheme: scheme, Host: address}
	if p.Auth != "" {
		proxy.Creds = parseAuthField(p.Auth)
	}
	return proxy, nil
}

// parseAuthField accepts "user:pass" or a bare token, and also a
// base64-encoded "user:pass" pair (tables sometimes carry auth
// pre-encoded the way an HTTP Basic header would); it is tolerant
// because spec.md leaves the table form's "auth" field format implicit.
func parseAuthField(auth string) *Credentials {
	if decoded, err := base64.StdEncoding.DecodeString(auth); err == nil && strings.Contains(string(decoded), ":") {
		auth = string(decoded)
	}
	if idx := strings.IndexByte(auth, ':'); idx >= 0 {
		return &Credentials{HasPair: true, Username: auth[:idx], Password: auth[idx+1:]}
	}
	return &Credentials{Userid: auth}
}

func hostAddress(host string, port uint16) (addr.Address, error) {
	if ip := parseIPv4Octets(host); ip != nil {
		return addr.NewIPv4(ip[0], ip[1], ip[2], ip[3], port)
	}
	return addr.NewHost(host, port)
}

func parseIPv4Octets(host string) []byte {
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return nil
	}
	out := make([]byte, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return nil
		}
		out[i] = byte(n)
	}
	return out
}

// Validate checks invariants spec.md §3/§9 place on a Chain: non-empty
// proxy list, supported chain type, valid dns subnet, and the
// credential-shape invariants per scheme.
func (c Chain) Validate() error {
	switch c.ChainType {
	case ChainStrict:
	case ChainDynamic, ChainRandom:
		return errors.Wrapf(ErrUnsupportedChainType, "chain_type=%q", c.ChainType)
	default:
		return errors.Wrapf(ErrUnsupportedChainType, "chain_type=%q", c.ChainType)
	}

	if len(c.Proxies) == 0 {
		return ErrEmptyChain
	}

	if c.DNSSubnet < 1 || c.DNSSubnet > 254 {
		return ErrInvalidDNSSubnet
	}

	switch c.LogLevel {
	case LogOff, LogError, LogWarn, LogInfo, LogDebug, LogTrace:
	default:
		return errors.Wrapf(ErrInvalidLogLevel, "log_level=%q", c.LogLevel)
	}

	for i, p := range c.Proxies {
		if err := p.validate(); err != nil {
			return errors.Wrapf(err, "proxy[%d]", i)
		}
	}
	return nil
}

func (p Proxy) validate() error {
	switch p.Scheme {
	case SchemeRaw:
		if p.Creds != nil {
			return ErrRawWithCredentials
		}
	case SchemeHTTP, SchemeHTTPS, SchemeSOCKS5:
		// both credential shapes accepted, or none
	case SchemeSOCKS4:
		if p.Creds != nil && p.Creds.HasPair {
			return ErrSocks4CredentialShape
		}
	default:
		return errors.Wrapf(ErrUnsupportedScheme, "scheme=%q", p.Scheme)
	}
	return nil
}

// Driver resolves the scheme this proxy should use to pick a protocol
// driver. https is documented as plain HTTP CONNECT with no TLS to the
// proxy (SPEC_FULL.md §13 decision 2).
func (p Proxy) Driver() Scheme {
	// TODO: https is mapped straight to the http driver; no TLS is
	// negotiated with the proxy itself, matching the documented
	// limitation in spec.md §6.
	if p.Scheme == SchemeHTTPS {
		return SchemeHTTP
	}
	return p.Scheme
}
