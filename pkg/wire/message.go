package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind discriminates the envelope types sharing a connection.
type Kind uint8

const (
	KindRequest      Kind = 1
	KindResponse     Kind = 2
	KindNotification Kind = 3
	KindControl      Kind = 4
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// Message is the envelope written into every frame.
type Message struct {
	Kind       Kind            `cbor:"1,keyasint"`
	MessageID  uint32          `cbor:"2,keyasint,omitempty"`
	Code       uint32          `cbor:"3,keyasint,omitempty"`
	Payload    cbor.RawMessage `cbor:"4,keyasint,omitempty"`
	Diagnostic string          `cbor:"5,keyasint,omitempty"`
}

// Request is a client to server operation.
type Request struct {
	MessageID uint32
	Operation Operation
	Payload   cbor.RawMessage
}

// NewRequest builds a request with body encoded as its payload.
func NewRequest(messageID uint32, op Operation, body any) (*Request, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return &Request{MessageID: messageID, Operation: op, Payload: payload}, nil
}

// Validate checks the request envelope.
func (r *Request) Validate() error {
	if r.MessageID == 0 {
		return fmt.Errorf("messageId must be non-zero")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	return nil
}

// DecodeBody decodes the payload into v.
func (r *Request) DecodeBody(v any) error {
	return decodeBody(r.Payload, v)
}

// Response answers a request with the same MessageID.
type Response struct {
	MessageID  uint32
	Status     Status
	Diagnostic string
	Payload    cbor.RawMessage
}

// NewResponse builds a Good response with body encoded as its payload.
func NewResponse(messageID uint32, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return &Response{MessageID: messageID, Status: StatusGood, Payload: payload}, nil
}

// NewErrorResponse builds a response carrying only a status.
func NewErrorResponse(messageID uint32, status Status, diagnostic string) *Response {
	return &Response{MessageID: messageID, Status: status, Diagnostic: diagnostic}
}

// IsSuccess returns true if the response status is good.
func (r *Response) IsSuccess() bool {
	return r.Status.IsGood()
}

// Err returns the response status as an error, or nil when good.
func (r *Response) Err() error {
	if r.Status.IsGood() {
		return nil
	}
	return &StatusError{Status: r.Status, Message: r.Diagnostic}
}

// DecodeBody decodes the payload into v.
func (r *Response) DecodeBody(v any) error {
	return decodeBody(r.Payload, v)
}

// StatusError is a bad status with optional diagnostic text.
type StatusError struct {
	Status  Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Unwrap allows errors.Is(err, wire.StatusBadNodeIDUnknown).
func (e *StatusError) Unwrap() error {
	return e.Status
}

// ControlMessage is a transport-level control message.
// These live outside the request/response/notification model.
type ControlMessage struct {
	Type     ControlMessageType `cbor:"1,keyasint"`
	Sequence uint32             `cbor:"2,keyasint,omitempty"`
}

// ControlMessageType represents the type of control message.
type ControlMessageType uint8

const (
	// ControlPing is sent to check connection liveness.
	ControlPing ControlMessageType = 1

	// ControlPong is the response to a ping.
	ControlPong ControlMessageType = 2

	// ControlClose initiates graceful connection close.
	ControlClose ControlMessageType = 3
)

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlPing:
		return "ping"
	case ControlPong:
		return "pong"
	case ControlClose:
		return "close"
	default:
		return "unknown"
	}
}

func encodeBody(body any) (cbor.RawMessage, error) {
	if body == nil {
		return nil, nil
	}
	data, err := Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

func decodeBody(payload cbor.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
