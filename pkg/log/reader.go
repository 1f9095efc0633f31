package log

import (
	"bufio"
	"errors"
	"io"
	"os"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Filter selects log events. Zero-valued fields match every event.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// TimeStart and TimeEnd bound the half-open interval [TimeStart, TimeEnd).
	TimeStart *time.Time
	TimeEnd   *time.Time

	DeviceID string

	// NodeID matches the event node or any node in a request message.
	NodeID string

	// Operation matches request messages of this operation.
	Operation *wire.Operation
}

// Matches reports whether event satisfies every set criterion.
func (f *Filter) Matches(event Event) bool {
	for _, ok := range [...]bool{
		f.ConnectionID == "" || event.ConnectionID == f.ConnectionID,
		f.DeviceID == "" || event.DeviceID == f.DeviceID,
		f.Direction == nil || event.Direction == *f.Direction,
		f.Layer == nil || event.Layer == *f.Layer,
		f.Category == nil || event.Category == *f.Category,
		f.TimeStart == nil || !event.Timestamp.Before(*f.TimeStart),
		f.TimeEnd == nil || event.Timestamp.Before(*f.TimeEnd),
		f.NodeID == "" || mentionsNode(event, f.NodeID),
		f.Operation == nil || hasOperation(event, *f.Operation),
	} {
		if !ok {
			return false
		}
	}
	return true
}

func mentionsNode(event Event, id string) bool {
	if event.NodeID == id {
		return true
	}
	return event.Message != nil && slices.Contains(event.Message.NodeIDs, id)
}

func hasOperation(event Event, op wire.Operation) bool {
	m := event.Message
	return m != nil && m.Operation != nil && *m.Operation == op
}

// Reader streams events from a CBOR capture, skipping those the filter
// rejects.
type Reader struct {
	dec    *cbor.Decoder
	filter Filter
	file   *os.File
}

// NewReader opens the capture at path without filtering.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens the capture at path.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewStreamReader(bufio.NewReader(f), filter)
	r.file = f
	return r, nil
}

// NewStreamReader reads events from src. Close leaves src open.
func NewStreamReader(src io.Reader, filter Filter) *Reader {
	return &Reader{dec: NewDecoder(src), filter: filter}
}

// Next returns the next matching event, or io.EOF at the end of the
// capture. A capture cut short mid-event yields io.ErrUnexpectedEOF.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.dec.Decode(&event)
		switch {
		case errors.Is(err, io.EOF):
			return Event{}, io.EOF
		case err != nil:
			return Event{}, err
		case r.filter.Matches(event):
			return event, nil
		}
	}
}

// Close closes the capture file opened by NewReader or NewFilteredReader.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
