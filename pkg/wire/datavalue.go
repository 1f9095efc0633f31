package wire

import "time"

// DataValue is an attribute value together with its status and timestamps.
//
// CBOR encoding:
//
//	{
//	  1: value,            // Variant
//	  2: status,           // Status, omitted when Good
//	  3: sourceTimestamp,
//	  4: serverTimestamp
//	}
type DataValue struct {
	Value           Variant   `cbor:"1,keyasint"`
	Status          Status    `cbor:"2,keyasint,omitempty"`
	SourceTimestamp time.Time `cbor:"3,keyasint"`
	ServerTimestamp time.Time `cbor:"4,keyasint"`
}

// BadValue returns a DataValue carrying only a bad status.
func BadValue(status Status) DataValue {
	return DataValue{Status: status, ServerTimestamp: time.Now()}
}

// SameAs reports whether two data values carry the same value and status.
// Timestamps are ignored.
func (d DataValue) SameAs(other DataValue) bool {
	return d.Status == other.Status && d.Value.Equal(other.Value)
}
