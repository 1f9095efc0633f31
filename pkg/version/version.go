// Package version provides protocol version parsing and compatibility checks,
// and the embedded device profiles of each protocol version.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Current is the protocol version implemented by this library.
const Current = "1.0"

// ErrIncompatible is returned when a peer speaks another major version.
var ErrIncompatible = errors.New("incompatible protocol version")

// ProtocolVersion represents a parsed "major.minor" protocol version.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string. Both components are
// decimal and fit in 16 bits.
func Parse(s string) (ProtocolVersion, error) {
	majorText, minorText, ok := strings.Cut(s, ".")
	if !ok {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}
	major, err := component(majorText)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: major: %w", s, err)
	}
	minor, err := component(minorText)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: minor: %w", s, err)
	}
	return ProtocolVersion{Major: major, Minor: minor}, nil
}

func component(s string) (uint16, error) {
	if s == "" || strings.ContainsAny(s, "+-") {
		return 0, errors.New("not a number")
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, errors.New("not a 16-bit number")
	}
	return uint16(n), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ProtocolVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether other shares v's major version. Minor
// versions only add nodes.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// Accepts parses a peer's version string and checks it against v. Both an
// unparsable and an incompatible version wrap ErrIncompatible.
func (v ProtocolVersion) Accepts(peer string) error {
	remote, err := Parse(peer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if !v.Compatible(remote) {
		return fmt.Errorf("%w: peer=%s, local=%s", ErrIncompatible, remote, v)
	}
	return nil
}
