package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidNodeID is returned when a node ID string cannot be parsed.
var ErrInvalidNodeID = errors.New("invalid node id")

// NodeID identifies a node in the address space.
//
// CBOR encoding:
//
//	{
//	  1: namespace,  // uint16 index into the namespace table
//	  2: id          // string identifier
//	}
type NodeID struct {
	Namespace uint16 `cbor:"1,keyasint"`
	ID        string `cbor:"2,keyasint"`
}

// NewNodeID returns a string node ID in the given namespace.
func NewNodeID(ns uint16, id string) NodeID {
	return NodeID{Namespace: ns, ID: id}
}

// ParseNodeID parses the text form "ns=<index>;s=<id>".
// A bare "s=<id>" refers to namespace 0.
func ParseNodeID(s string) (NodeID, error) {
	var n NodeID
	rest := s
	if strings.HasPrefix(rest, "ns=") {
		sep := strings.IndexByte(rest, ';')
		if sep < 0 {
			return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
		}
		ns, err := strconv.ParseUint(rest[3:sep], 10, 16)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: %q: bad namespace", ErrInvalidNodeID, s)
		}
		n.Namespace = uint16(ns)
		rest = rest[sep+1:]
	}
	if !strings.HasPrefix(rest, "s=") || len(rest) == 2 {
		return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
	}
	n.ID = rest[2:]
	return n, nil
}

// MustParseNodeID is like ParseNodeID but panics on error.
func MustParseNodeID(s string) NodeID {
	n, err := ParseNodeID(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String returns the text form of the node ID.
func (n NodeID) String() string {
	return "ns=" + strconv.FormatUint(uint64(n.Namespace), 10) + ";s=" + n.ID
}

// IsZero reports whether n is the zero node ID.
func (n NodeID) IsZero() bool {
	return n.Namespace == 0 && n.ID == ""
}
