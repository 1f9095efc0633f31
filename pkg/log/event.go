package log

import (
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether this side is the server or the client.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// DeviceID is the bulb the event concerns, when known.
	DeviceID string `cbor:"8,keyasint,omitempty"`

	// NodeID is the primary node addressed, in text form.
	NodeID string `cbor:"9,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

var directionNames = []string{"IN", "OUT"}

func (d Direction) String() string { return enumName(directionNames, uint8(d)) }

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerService is the registry and subscription layer.
	LayerService Layer = 2
)

var layerNames = []string{"TRANSPORT", "WIRE", "SERVICE"}

func (l Layer) String() string { return enumName(layerNames, uint8(l)) }

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage Category = iota
	CategoryControl
	CategoryState
	CategoryError
)

var categoryNames = []string{"MESSAGE", "CONTROL", "STATE", "ERROR"}

func (c Category) String() string { return enumName(categoryNames, uint8(c)) }

// Role indicates which side of the connection logged the event.
type Role uint8

const (
	RoleServer Role = iota
	RoleClient
)

var roleNames = []string{"SERVER", "CLIENT"}

func (r Role) String() string { return enumName(roleNames, uint8(r)) }

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded protocol message at the wire layer.
type MessageEvent struct {
	Type      MessageType `cbor:"1,keyasint"`
	MessageID uint32      `cbor:"2,keyasint"`

	// Operation is set on requests.
	Operation *wire.Operation `cbor:"3,keyasint,omitempty"`

	// NodeIDs lists the nodes a request addresses, in text form.
	NodeIDs []string `cbor:"4,keyasint,omitempty"`

	// Status is set on responses.
	Status *wire.Status `cbor:"5,keyasint,omitempty"`

	// SubscriptionID and SequenceNumber are set on notifications.
	SubscriptionID *uint32 `cbor:"6,keyasint,omitempty"`
	SequenceNumber *uint32 `cbor:"7,keyasint,omitempty"`

	// ItemCount is the number of values carried by a notification.
	ItemCount int `cbor:"8,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response send.
	ProcessingTime *time.Duration `cbor:"9,keyasint,omitempty"`
}

// MessageType distinguishes request/response/notification.
type MessageType uint8

const (
	MessageTypeRequest MessageType = iota
	MessageTypeResponse
	MessageTypeNotification
)

var messageTypeNames = []string{"REQUEST", "RESPONSE", "NOTIFICATION"}

func (m MessageType) String() string { return enumName(messageTypeNames, uint8(m)) }

// StateChangeEvent captures connection, subscription and device lifecycle.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = iota
	StateEntitySubscription
	StateEntityDevice
)

var stateEntityNames = []string{"CONNECTION", "SUBSCRIPTION", "DEVICE"}

func (s StateEntity) String() string { return enumName(stateEntityNames, uint8(s)) }

// ControlMsgEvent captures transport-level control messages.
type ControlMsgEvent struct {
	Type     ControlMsgType `cbor:"1,keyasint"`
	Sequence uint32         `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	ControlMsgPing ControlMsgType = iota
	ControlMsgPong
	ControlMsgClose
)

var controlMsgTypeNames = []string{"PING", "PONG", "CLOSE"}

func (c ControlMsgType) String() string { return enumName(controlMsgTypeNames, uint8(c)) }

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Status is the wire status reported, if any.
	Status *wire.Status `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// MessageEventFor builds the wire-layer summary of a decoded envelope.
// Request payloads are inspected for the node IDs they address.
func MessageEventFor(msg *wire.Message) *MessageEvent {
	ev := &MessageEvent{MessageID: msg.MessageID}
	switch msg.Kind {
	case wire.KindRequest:
		ev.Type = MessageTypeRequest
		op := wire.Operation(msg.Code)
		ev.Operation = &op
		ev.NodeIDs = requestNodeIDs(op, msg)
	case wire.KindResponse:
		ev.Type = MessageTypeResponse
		st := wire.Status(msg.Code)
		ev.Status = &st
	case wire.KindNotification:
		ev.Type = MessageTypeNotification
		if n, err := msg.Notification(); err == nil {
			ev.SubscriptionID = &n.SubscriptionID
			ev.SequenceNumber = &n.SequenceNumber
			ev.ItemCount = len(n.Items)
		}
	default:
		return nil
	}
	return ev
}

func requestNodeIDs(op wire.Operation, msg *wire.Message) []string {
	req, err := msg.Request()
	if err != nil {
		return nil
	}
	var ids []string
	switch op {
	case wire.OpRead:
		var body wire.ReadRequest
		if req.DecodeBody(&body) == nil {
			for _, id := range body.NodeIDs {
				ids = append(ids, id.String())
			}
		}
	case wire.OpCall:
		var body wire.CallRequest
		if req.DecodeBody(&body) == nil {
			ids = append(ids, body.MethodID.String())
		}
	case wire.OpBrowse:
		var body wire.BrowseRequest
		if req.DecodeBody(&body) == nil {
			ids = append(ids, body.NodeID.String())
		}
	case wire.OpCreateSubscription:
		var body wire.CreateSubscriptionRequest
		if req.DecodeBody(&body) == nil {
			for _, item := range body.Items {
				ids = append(ids, item.NodeID.String())
			}
		}
	}
	return ids
}

func enumName(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return "UNKNOWN"
}
