package wire

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// DataType identifies the type carried by a Variant.
type DataType uint8

const (
	TypeNull        DataType = 0
	TypeBoolean     DataType = 1
	TypeInt32       DataType = 2
	TypeDouble      DataType = 3
	TypeString      DataType = 4
	TypeNodeID      DataType = 5
	TypeStringArray DataType = 6
)

// String returns the data type name.
func (t DataType) String() string {
	switch t {
	case TypeNull:
		return "Null"
	case TypeBoolean:
		return "Boolean"
	case TypeInt32:
		return "Int32"
	case TypeDouble:
		return "Double"
	case TypeString:
		return "String"
	case TypeNodeID:
		return "NodeId"
	case TypeStringArray:
		return "String[]"
	default:
		return "Unknown"
	}
}

// Variant is a value tagged with its data type.
//
// After decoding, Value holds the Go type matching Type: bool, int32,
// float64, string, NodeID or []string. A null variant has a nil Value.
//
// CBOR encoding:
//
//	{
//	  1: type,   // DataType
//	  2: value
//	}
type Variant struct {
	Type  DataType `cbor:"1,keyasint"`
	Value any      `cbor:"2,keyasint"`
}

// NewVariant wraps a Go value in a Variant.
// Supported types are bool, int, int32, float64, string, NodeID and []string.
// An int outside the int32 range fails with StatusBadOutOfRange.
func NewVariant(v any) (Variant, error) {
	switch val := v.(type) {
	case nil:
		return Variant{Type: TypeNull}, nil
	case bool:
		return Variant{Type: TypeBoolean, Value: val}, nil
	case int32:
		return Variant{Type: TypeInt32, Value: val}, nil
	case int:
		if val < math.MinInt32 || val > math.MaxInt32 {
			return Variant{}, fmt.Errorf("%w: %d overflows int32", StatusBadOutOfRange, val)
		}
		return Variant{Type: TypeInt32, Value: int32(val)}, nil
	case float64:
		return Variant{Type: TypeDouble, Value: val}, nil
	case string:
		return Variant{Type: TypeString, Value: val}, nil
	case NodeID:
		return Variant{Type: TypeNodeID, Value: val}, nil
	case []string:
		return Variant{Type: TypeStringArray, Value: val}, nil
	default:
		return Variant{}, fmt.Errorf("unsupported variant type %T", v)
	}
}

// MustVariant is like NewVariant but panics on error.
func MustVariant(v any) Variant {
	variant, err := NewVariant(v)
	if err != nil {
		panic(err)
	}
	return variant
}

// Int32 returns the value as an int32.
func (v Variant) Int32() (int32, bool) {
	i, ok := v.Value.(int32)
	return i, ok
}

// Double returns the value as a float64.
func (v Variant) Double() (float64, bool) {
	f, ok := v.Value.(float64)
	return f, ok
}

// Str returns the value as a string.
func (v Variant) Str() (string, bool) {
	s, ok := v.Value.(string)
	return s, ok
}

// Bool returns the value as a bool.
func (v Variant) Bool() (bool, bool) {
	b, ok := v.Value.(bool)
	return b, ok
}

// StringArray returns the value as a string slice.
func (v Variant) StringArray() ([]string, bool) {
	ss, ok := v.Value.([]string)
	return ss, ok
}

// IsNull reports whether the variant carries no value.
func (v Variant) IsNull() bool {
	return v.Type == TypeNull || v.Value == nil
}

// String formats the value for display.
func (v Variant) String() string {
	if v.IsNull() {
		return "null"
	}
	switch val := v.Value.(type) {
	case float64:
		return fmt.Sprintf("%.2f", val)
	case NodeID:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Equal reports whether two variants carry the same type and value.
func (v Variant) Equal(other Variant) bool {
	if v.Type != other.Type {
		return false
	}
	if v.Type == TypeStringArray {
		a, _ := v.StringArray()
		b, _ := other.StringArray()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
	return v.Value == other.Value
}

// UnmarshalCBOR decodes the value into the Go type selected by the tag.
func (v *Variant) UnmarshalCBOR(data []byte) error {
	var raw struct {
		Type  DataType        `cbor:"1,keyasint"`
		Value cbor.RawMessage `cbor:"2,keyasint"`
	}
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.Type = raw.Type
	v.Value = nil
	if isNullCBOR(raw.Value) {
		return nil
	}

	var err error
	switch raw.Type {
	case TypeNull:
		return nil
	case TypeBoolean:
		var b bool
		err = decMode.Unmarshal(raw.Value, &b)
		v.Value = b
	case TypeInt32:
		var i int32
		err = decMode.Unmarshal(raw.Value, &i)
		v.Value = i
	case TypeDouble:
		var f float64
		err = decMode.Unmarshal(raw.Value, &f)
		v.Value = f
	case TypeString:
		var s string
		err = decMode.Unmarshal(raw.Value, &s)
		v.Value = s
	case TypeNodeID:
		var n NodeID
		err = decMode.Unmarshal(raw.Value, &n)
		v.Value = n
	case TypeStringArray:
		var ss []string
		err = decMode.Unmarshal(raw.Value, &ss)
		v.Value = ss
	default:
		return fmt.Errorf("unknown variant type %d", raw.Type)
	}
	if err != nil {
		return fmt.Errorf("variant %s: %w", raw.Type, err)
	}
	return nil
}

func isNullCBOR(data []byte) bool {
	// 0xf6 is null, 0xf7 is undefined.
	return len(data) == 0 || (len(data) == 1 && (data[0] == 0xf6 || data[0] == 0xf7))
}
