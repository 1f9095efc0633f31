package model

import (
	"context"
	"errors"

	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Address space errors.
var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrDuplicateNode     = errors.New("node already exists")
	ErrParentNotFound    = errors.New("parent node not found")
	ErrNotAttribute      = errors.New("node is not an attribute")
	ErrNotMethod         = errors.New("node is not a method")
	ErrMethodNotOnObject = errors.New("method does not belong to object")
	ErrInvalidArguments  = errors.New("invalid method arguments")
	ErrArgumentType      = errors.New("method argument type mismatch")
)

// StatusOf maps an error from this package, or a wire.Status wrapped in
// err, to the status reported to clients.
func StatusOf(err error) wire.Status {
	if err == nil {
		return wire.StatusGood
	}
	switch {
	case errors.Is(err, ErrNodeNotFound), errors.Is(err, ErrParentNotFound):
		return wire.StatusBadNodeIDUnknown
	case errors.Is(err, ErrNotAttribute):
		return wire.StatusBadAttributeIDInvalid
	case errors.Is(err, ErrNotMethod), errors.Is(err, ErrMethodNotOnObject):
		return wire.StatusBadMethodInvalid
	case errors.Is(err, ErrInvalidArguments):
		return wire.StatusBadInvalidArgument
	case errors.Is(err, ErrAttributeValueType):
		return wire.StatusBadTypeMismatch
	case errors.Is(err, context.DeadlineExceeded):
		return wire.StatusBadTimeout
	}
	var status wire.Status
	if errors.As(err, &status) {
		return status
	}
	return wire.StatusBadUnexpectedError
}
