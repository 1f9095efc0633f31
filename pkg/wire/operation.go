package wire

// Operation represents a protocol operation carried by a request.
type Operation uint8

const (
	// OpRead returns the current value of one or more attribute nodes.
	OpRead Operation = 1

	// OpCall invokes a method node on its owning object.
	OpCall Operation = 2

	// OpBrowse lists the children of a node.
	OpBrowse Operation = 3

	// OpCreateSubscription creates a subscription with monitored items.
	OpCreateSubscription Operation = 4

	// OpDeleteSubscription removes a subscription and its items.
	OpDeleteSubscription Operation = 5
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpRead:
		return "Read"
	case OpCall:
		return "Call"
	case OpBrowse:
		return "Browse"
	case OpCreateSubscription:
		return "CreateSubscription"
	case OpDeleteSubscription:
		return "DeleteSubscription"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is known.
func (o Operation) IsValid() bool {
	return o >= OpRead && o <= OpDeleteSubscription
}
