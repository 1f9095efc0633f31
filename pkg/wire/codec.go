package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	// Deterministic output: equal messages encode to equal bytes.
	encMode = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnixMicro,
	})

	// Unknown keys and duplicate keys are tolerated so newer peers can
	// add fields.
	decMode = mustDecMode(cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic("wire: cbor encoder options: " + err.Error())
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic("wire: cbor decoder options: " + err.Error())
	}
	return m
}

// Marshal encodes v with the protocol's CBOR options.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodeRequest validates and encodes a request envelope.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return Marshal(&Message{
		Kind:      KindRequest,
		MessageID: req.MessageID,
		Code:      uint32(req.Operation),
		Payload:   req.Payload,
	})
}

// EncodeResponse encodes a response envelope.
func EncodeResponse(resp *Response) ([]byte, error) {
	return Marshal(&Message{
		Kind:       KindResponse,
		MessageID:  resp.MessageID,
		Code:       uint32(resp.Status),
		Payload:    resp.Payload,
		Diagnostic: resp.Diagnostic,
	})
}

// EncodeNotification encodes a subscription notification. Notifications
// carry message ID 0.
func EncodeNotification(n *NotificationMessage) ([]byte, error) {
	return encodeBodyEnvelope(KindNotification, n)
}

// EncodeControlMessage encodes a ping, pong or close.
func EncodeControlMessage(c *ControlMessage) ([]byte, error) {
	return encodeBodyEnvelope(KindControl, c)
}

func encodeBodyEnvelope(kind Kind, body any) ([]byte, error) {
	payload, err := Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", kind, err)
	}
	return Marshal(&Message{Kind: kind, Payload: payload})
}

// DecodeMessage decodes the envelope without interpreting the payload.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// DecodeRequest decodes a request envelope.
func DecodeRequest(data []byte) (*Request, error) {
	return decodeAs(data, (*Message).Request)
}

// DecodeResponse decodes a response envelope.
func DecodeResponse(data []byte) (*Response, error) {
	return decodeAs(data, (*Message).Response)
}

// DecodeNotification decodes a notification envelope and its body.
func DecodeNotification(data []byte) (*NotificationMessage, error) {
	return decodeAs(data, (*Message).Notification)
}

// DecodeControlMessage decodes a control envelope and its body.
func DecodeControlMessage(data []byte) (*ControlMessage, error) {
	return decodeAs(data, (*Message).Control)
}

func decodeAs[T any](data []byte, view func(*Message) (*T, error)) (*T, error) {
	msg, err := DecodeMessage(data)
	if err != nil {
		return nil, err
	}
	return view(msg)
}

func (m *Message) expect(kind Kind) error {
	if m.Kind != kind {
		return fmt.Errorf("expected %s message, got %s", kind, m.Kind)
	}
	return nil
}

// Request interprets the envelope as a request.
func (m *Message) Request() (*Request, error) {
	if err := m.expect(KindRequest); err != nil {
		return nil, err
	}
	req := &Request{MessageID: m.MessageID, Operation: Operation(m.Code), Payload: m.Payload}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

// Response interprets the envelope as a response.
func (m *Message) Response() (*Response, error) {
	if err := m.expect(KindResponse); err != nil {
		return nil, err
	}
	return &Response{
		MessageID:  m.MessageID,
		Status:     Status(m.Code),
		Diagnostic: m.Diagnostic,
		Payload:    m.Payload,
	}, nil
}

// Notification interprets the envelope as a subscription notification.
func (m *Message) Notification() (*NotificationMessage, error) {
	if err := m.expect(KindNotification); err != nil {
		return nil, err
	}
	var n NotificationMessage
	if err := decodeBody(m.Payload, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &n, nil
}

// Control interprets the envelope as a control message.
func (m *Message) Control() (*ControlMessage, error) {
	if err := m.expect(KindControl); err != nil {
		return nil, err
	}
	var c ControlMessage
	if err := decodeBody(m.Payload, &c); err != nil {
		return nil, fmt.Errorf("decode control message: %w", err)
	}
	return &c, nil
}

// PeekKind reads only the envelope kind. Unknown kinds are returned as
// is; callers compare against the Kind constants.
func PeekKind(data []byte) (Kind, error) {
	var peek struct {
		Kind Kind `cbor:"1,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return 0, fmt.Errorf("peek message: %w", err)
	}
	return peek.Kind, nil
}
