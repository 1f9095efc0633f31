package transport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Endpoint defaults.
const (
	Scheme      = "sb.tcp"
	DefaultPort = 4841
	DefaultPath = "/SmartBulbServer"
)

// ErrInvalidEndpoint is returned for malformed endpoint URLs.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Endpoint is a parsed server endpoint URL.
type Endpoint struct {
	Host string
	Port int
	Path string
}

// ParseEndpoint parses "sb.tcp://host[:port][/path]".
// A bare "host:port" is accepted and gets DefaultPath.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		// Not a URL; try host:port.
		host, port, splitErr := net.SplitHostPort(raw)
		if splitErr != nil {
			return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, raw)
		}
		p, convErr := strconv.Atoi(port)
		if convErr != nil {
			return Endpoint{}, fmt.Errorf("%w: %q: bad port", ErrInvalidEndpoint, raw)
		}
		return Endpoint{Host: host, Port: p, Path: DefaultPath}, nil
	}
	if u.Scheme != Scheme {
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}

	ep := Endpoint{Host: u.Hostname(), Port: DefaultPort, Path: u.Path}
	if ps := u.Port(); ps != "" {
		p, err := strconv.Atoi(ps)
		if err != nil || p <= 0 || p > 65535 {
			return Endpoint{}, fmt.Errorf("%w: %q: bad port", ErrInvalidEndpoint, raw)
		}
		ep.Port = p
	}
	if ep.Path == "" {
		ep.Path = DefaultPath
	}
	return ep, nil
}

// Address returns the host:port dial address.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String returns the endpoint URL.
func (e Endpoint) String() string {
	return Scheme + "://" + e.Address() + e.Path
}
