package model

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Access flags for attributes.
type Access uint8

const (
	// AccessRead allows reading the attribute.
	AccessRead Access = 1 << iota

	// AccessWrite allows writing the attribute.
	AccessWrite

	// AccessSubscribe allows subscribing to changes.
	AccessSubscribe

	// AccessReadOnly is read and subscribe.
	AccessReadOnly = AccessRead | AccessSubscribe
)

// CanRead returns true if reading is allowed.
func (a Access) CanRead() bool { return a&AccessRead != 0 }

// CanWrite returns true if writing is allowed.
func (a Access) CanWrite() bool { return a&AccessWrite != 0 }

// CanSubscribe returns true if subscribing is allowed.
func (a Access) CanSubscribe() bool { return a&AccessSubscribe != 0 }

// String returns the access flags as a string.
func (a Access) String() string {
	var s string
	if a.CanRead() {
		s += "R"
	}
	if a.CanWrite() {
		s += "W"
	}
	if a.CanSubscribe() {
		s += "S"
	}
	if s == "" {
		return "-"
	}
	return s
}

// Attribute errors.
var (
	ErrAttributeValueType = errors.New("invalid value type for attribute")
)

// ChangeListener is called after an attribute value or status changes.
type ChangeListener func(id wire.NodeID, value wire.DataValue)

// AttributeNode holds a typed value with status and timestamps.
type AttributeNode struct {
	nodeBase
	dataType wire.DataType
	access   Access

	mu           sync.RWMutex
	value        wire.DataValue
	listeners    map[uint64]ChangeListener
	nextListener uint64
}

func newAttributeNode(base nodeBase, dt wire.DataType, access Access) *AttributeNode {
	return &AttributeNode{
		nodeBase: base,
		dataType: dt,
		access:   access,
		value: wire.DataValue{
			Value:  wire.Variant{Type: dt},
			Status: wire.StatusBadWaitingForInitialData,
		},
		listeners: make(map[uint64]ChangeListener),
	}
}

// NodeClass implements Node.
func (a *AttributeNode) NodeClass() wire.NodeClass { return wire.NodeClassVariable }

// DataType returns the declared value type.
func (a *AttributeNode) DataType() wire.DataType { return a.dataType }

// Access returns the access flags.
func (a *AttributeNode) Access() Access { return a.access }

// Value returns the current value with a fresh server timestamp.
func (a *AttributeNode) Value() wire.DataValue {
	a.mu.RLock()
	dv := a.value
	a.mu.RUnlock()
	dv.ServerTimestamp = time.Now()
	return dv
}

// SetValue stores a new Good value observed at source time.
// The value must match the declared data type.
func (a *AttributeNode) SetValue(v any, source time.Time) error {
	variant, err := wire.NewVariant(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttributeValueType, err)
	}
	if variant.Type != a.dataType {
		return fmt.Errorf("%w: %s is %s, got %s",
			ErrAttributeValueType, a.id, a.dataType, variant.Type)
	}
	a.update(func(dv *wire.DataValue) {
		dv.Value = variant
		dv.Status = wire.StatusGood
		dv.SourceTimestamp = source
	})
	return nil
}

// SetStatus marks the attribute with a status, keeping the last value.
func (a *AttributeNode) SetStatus(status wire.Status, source time.Time) {
	a.update(func(dv *wire.DataValue) {
		dv.Status = status
		dv.SourceTimestamp = source
	})
}

func (a *AttributeNode) update(mutate func(*wire.DataValue)) {
	a.mu.Lock()
	dv := a.value
	mutate(&dv)
	changed := !a.value.SameAs(dv)
	a.value = dv
	var listeners []ChangeListener
	if changed {
		listeners = make([]ChangeListener, 0, len(a.listeners))
		for _, fn := range a.listeners {
			listeners = append(listeners, fn)
		}
	}
	a.mu.Unlock()

	if !changed {
		return
	}
	dv.ServerTimestamp = time.Now()
	for _, fn := range listeners {
		fn(a.id, dv)
	}
}

// OnChange registers fn to be called on every change.
// The returned function removes the listener.
func (a *AttributeNode) OnChange(fn ChangeListener) (cancel func()) {
	a.mu.Lock()
	id := a.nextListener
	a.nextListener++
	a.listeners[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

// ListenerCount returns the number of registered change listeners.
func (a *AttributeNode) ListenerCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.listeners)
}
