package config

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hopchain/hopchain/internal/addr"
)

// EnvVar is the environment variable the launcher uses to pass the
// resolved configuration blob to the hooked child process (spec.md §6).
// Its absence means pass-through; its presence-and-invalidity means the
// child aborts before any hook runs.
const EnvVar = "HOPCHAIN_CONFIG"

// blobCredentials and blobProxy mirror Credentials/Proxy with exported,
// JSON-stable field names independent of the internal addr.Address
// representation, so the wire format does not change shape if the
// in-process Address type is refactored.
type blobCredentials struct {
	Userid   string `json:"userid,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	HasPair  bool   `json:"has_pair,omitempty"`
}

type blobProxy struct {
	Scheme string           `json:"scheme"`
	Host   string           `json:"host"`
	Port   uint16           `json:"port"`
	Creds  *blobCredentials `json:"creds,omitempty"`
}

type blobChain struct {
	LogLevel         string      `json:"log_level"`
	ProxyDNS         bool        `json:"proxy_dns"`
	DNSSubnet        byte        `json:"dns_subnet"`
	ConnectTimeoutMS int         `json:"connect_timeout_ms"`
	ReadTimeoutMS    int         `json:"read_timeout_ms"`
	ChainType        string      `json:"chain_type"`
	IgnoreSubnets    []string    `json:"ignore_subnets"`
	Proxies          []blobProxy `json:"proxies"`
}

// EncodeBlob serialises a validated Chain into the JSON wire format
// carried by EnvVar (SPEC_FULL.md §12).
func EncodeBlob(c Chain) ([]byte, error) {
	out := blobChain{
		LogLevel:         string(c.LogLevel),
		ProxyDNS:         c.ProxyDNS,
		DNSSubnet:        c.DNSSubnet,
		ConnectTimeoutMS: c.ConnectTimeoutMS,
		ReadTimeoutMS:    c.ReadTimeoutMS,
		ChainType:        string(c.ChainType),
	}
	for _, ig := range c.IgnoreSubnets {
		out.IgnoreSubnets = append(out.IgnoreSubnets, ig.String())
	}
	for _, p := range c.Proxies {
		bp := blobProxy{Scheme: string(p.Scheme), Host: p.Host.HostOrIP(), Port: p.Host.Port()}
		if p.Creds != nil {
			bp.Creds = &blobCredentials{
				Userid:   p.Creds.Userid,
				Username: p.Creds.Username,
				Password: p.Creds.Password,
				HasPair:  p.Creds.HasPair,
			}
		}
		out.Proxies = append(out.Proxies, bp)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "config: encode blob")
	}
	return data, nil
}

// DecodeBlob parses the JSON wire format back into a validated Chain.
// Hostnames and dotted-quad hosts are both accepted, mirroring
// ParseProxyURL's host handling.
func DecodeBlob(data []byte) (Chain, error) {
	var in blobChain
	if err := json.Unmarshal(data, &in); err != nil {
		return Chain{}, errors.Wrap(err, "config: decode blob")
	}

	c := Chain{
		LogLevel:         LogLevel(in.LogLevel),
		ProxyDNS:         in.ProxyDNS,
		DNSSubnet:        in.DNSSubnet,
		ConnectTimeoutMS: in.ConnectTimeoutMS,
		ReadTimeoutMS:    in.ReadTimeoutMS,
		ChainType:        ChainType(in.ChainType),
	}
	for _, s := range in.IgnoreSubnets {
		cidr, err := addr.ParseCIDR(s)
		if err != nil {
			return Chain{}, errors.Wrapf(err, "config: decode blob ignore_subnets %q", s)
		}
		c.IgnoreSubnets = append(c.IgnoreSubnets, cidr)
	}
	for i, p := range in.Proxies {
		address, err := hostAddress(p.Host, p.Port)
		if err != nil {
			return Chain{}, errors.Wrapf(err, "config: decode blob proxies[%d]", i)
		}
		proxy := Proxy{Scheme: Scheme(p.Scheme), Host: address}
		if p.Creds != nil {
			proxy.Creds = &Credentials{
				Userid:   p.Creds.Userid,
				Username: p.Creds.Username,
				Password: p.Creds.Password,
				HasPair:  p.Creds.HasPair,
			}
		}
		c.Proxies = append(c.Proxies, proxy)
	}

	if err := c.Validate(); err != nil {
		return Chain{}, err
	}
	return c, nil
}
