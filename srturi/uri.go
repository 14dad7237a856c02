// Package srturi parses and validates srt:// URIs. An SRT URI identifies a
// scheme, host, and port; the host must be an IPv4 or IPv6 literal. Parsing
// happens before any socket is created so that a malformed address is
// rejected as a configuration error, never as a transport error.
package srturi

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Scheme is the only URI scheme accepted by Parse.
const Scheme = "srt"

var (
	// ErrInvalidScheme is returned when the URI scheme is not "srt".
	ErrInvalidScheme = errors.New("srturi: invalid scheme")

	// ErrMissingHost is returned when the URI has no host component.
	ErrMissingHost = errors.New("srturi: missing host")

	// ErrMissingPort is returned when the URI has no port component.
	ErrMissingPort = errors.New("srturi: missing port")

	// ErrBadHost is returned when the host is not an IPv4 or IPv6 literal.
	ErrBadHost = errors.New("srturi: host is not an IPv4 or IPv6 literal")
)

// Addr is a parsed and validated SRT address. IP is always a literal IPv4
// or IPv6 address; other address families are rejected by Parse.
type Addr struct {
	Host string
	Port int
	IP   net.IP
}

// Parse parses raw as an srt://host:port URI and validates it.
//
// Parameters:
//   - raw: The URI string, e.g. "srt://127.0.0.1:7001"
//
// Returns:
//   - The parsed Addr, or an error wrapping ErrInvalidScheme, ErrMissingHost,
//     ErrMissingPort, or ErrBadHost
func Parse(raw string) (*Addr, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("srturi: parse %q: %w", raw, err)
	}

	if u.Scheme != Scheme {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScheme, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: %q", ErrMissingHost, raw)
	}

	portStr := u.Port()
	if portStr == "" {
		return nil, fmt.Errorf("%w: %q", ErrMissingPort, raw)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: invalid port %q", ErrMissingPort, portStr)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("%w: %q", ErrBadHost, host)
	}

	return &Addr{Host: host, Port: port, IP: ip}, nil
}

// IsIPv4 reports whether the address is an IPv4 literal.
func (a *Addr) IsIPv4() bool {
	return a.IP.To4() != nil
}

// UDPAddr returns the address as a *net.UDPAddr, the form the SRT transport
// binds and connects with.
func (a *Addr) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: a.IP, Port: a.Port}
}

// Endpoint returns the host:port form used by transport dial and listen calls.
func (a *Addr) Endpoint() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// String renders the address back into URI form.
func (a *Addr) String() string {
	return Scheme + "://" + a.Endpoint()
}
