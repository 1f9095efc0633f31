package model

import (
	"context"
	"fmt"

	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// MethodHandler executes a method call.
// Arguments have already been checked against the declared inputs.
type MethodHandler func(ctx context.Context, args []wire.Variant) ([]wire.Variant, error)

// Argument describes a method input or output.
type Argument struct {
	// Name is the argument name.
	Name string

	// DataType is the expected value type.
	DataType wire.DataType

	// Description is a human-readable description.
	Description string
}

// MethodNode is a callable operation owned by an object node.
type MethodNode struct {
	nodeBase
	inputs  []Argument
	handler MethodHandler
}

// NodeClass implements Node.
func (m *MethodNode) NodeClass() wire.NodeClass { return wire.NodeClassMethod }

// Object returns the node ID of the owning object.
func (m *MethodNode) Object() wire.NodeID { return m.parent }

// InputArguments returns the declared inputs.
func (m *MethodNode) InputArguments() []Argument {
	out := make([]Argument, len(m.inputs))
	copy(out, m.inputs)
	return out
}

// Call validates args against the declared inputs and runs the handler.
// Arguments beyond the declared inputs are passed through unchecked.
func (m *MethodNode) Call(ctx context.Context, args []wire.Variant) ([]wire.Variant, error) {
	if err := m.validateArguments(args); err != nil {
		return nil, err
	}
	if m.handler == nil {
		return nil, fmt.Errorf("%w: %s has no handler", ErrNotMethod, m.id)
	}
	return m.handler(ctx, args)
}

func (m *MethodNode) validateArguments(args []wire.Variant) error {
	if len(args) < len(m.inputs) {
		return fmt.Errorf("%w: %s expects %d, got %d",
			ErrInvalidArguments, m.browseName, len(m.inputs), len(args))
	}
	for i, in := range m.inputs {
		if args[i].Type != in.DataType {
			return fmt.Errorf("%w: %w: %s argument %q is %s, got %s",
				ErrInvalidArguments, ErrArgumentType, m.browseName, in.Name, in.DataType, args[i].Type)
		}
	}
	return nil
}
