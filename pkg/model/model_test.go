package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

const testServerURI = "urn:smartbulb:test"

func TestNewAddressSpaceWellKnownNodes(t *testing.T) {
	s := NewAddressSpace(testServerURI)

	if s.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", s.Len())
	}

	n, err := s.Node(ObjectsFolderID)
	if err != nil {
		t.Fatalf("Objects folder missing: %v", err)
	}
	if n.NodeClass() != wire.NodeClassObject {
		t.Errorf("Objects class = %s", n.NodeClass())
	}

	ns, err := s.Attribute(NamespaceArrayID)
	if err != nil {
		t.Fatalf("namespace array missing: %v", err)
	}
	uris, ok := ns.Value().Value.StringArray()
	if !ok || len(uris) != 2 || uris[0] != CoreNamespaceURI || uris[1] != testServerURI {
		t.Errorf("namespace array = %v", ns.Value().Value)
	}
}

func TestRegisterNamespaceIdempotent(t *testing.T) {
	s := NewAddressSpace(testServerURI)

	a := s.RegisterNamespace("http://smartbulb.example/")
	b := s.RegisterNamespace("http://smartbulb.example/")
	c := s.RegisterNamespace("http://other.example/")

	if a != 2 || b != 2 || c != 3 {
		t.Errorf("indices = %d, %d, %d; want 2, 2, 3", a, b, c)
	}
	if idx, ok := s.NamespaceIndex(testServerURI); !ok || idx != 1 {
		t.Errorf("server URI index = %d, %v", idx, ok)
	}

	ns, _ := s.Attribute(NamespaceArrayID)
	uris, _ := ns.Value().Value.StringArray()
	if len(uris) != 4 {
		t.Errorf("namespace array has %d entries, want 4", len(uris))
	}
}

func TestAddNodes(t *testing.T) {
	s := NewAddressSpace(testServerURI)
	ns := s.RegisterNamespace("http://smartbulb.example/")

	devices := wire.NewNodeID(ns, "Devices")
	if _, err := s.AddFolder(ObjectsFolderID, devices, "Devices", "Devices"); err != nil {
		t.Fatalf("AddFolder failed: %v", err)
	}

	t.Run("Duplicate", func(t *testing.T) {
		_, err := s.AddFolder(ObjectsFolderID, devices, "Devices", "Devices")
		if !errors.Is(err, ErrDuplicateNode) {
			t.Errorf("expected ErrDuplicateNode, got %v", err)
		}
	})

	t.Run("MissingParent", func(t *testing.T) {
		_, err := s.AddAttribute(wire.NewNodeID(ns, "Nope"), wire.NewNodeID(ns, "X"), "X", wire.TypeString, AccessReadOnly)
		if !errors.Is(err, ErrParentNotFound) {
			t.Errorf("expected ErrParentNotFound, got %v", err)
		}
	})

	t.Run("Browse", func(t *testing.T) {
		dev := wire.NewNodeID(ns, "PRO_001")
		if _, err := s.AddFolder(devices, dev, "PRO_001", "Smart Bulb Pro 001"); err != nil {
			t.Fatalf("AddFolder failed: %v", err)
		}
		if _, err := s.AddAttribute(dev, wire.NewNodeID(ns, "PRO_001_State"), "State", wire.TypeString, AccessReadOnly); err != nil {
			t.Fatalf("AddAttribute failed: %v", err)
		}
		if _, err := s.AddMethod(dev, wire.NewNodeID(ns, "PRO_001_TurnOn"), "TurnOn", nil, nil); err != nil {
			t.Fatalf("AddMethod failed: %v", err)
		}

		refs, err := s.Browse(dev)
		if err != nil {
			t.Fatalf("Browse failed: %v", err)
		}
		if len(refs) != 2 {
			t.Fatalf("expected 2 references, got %d", len(refs))
		}
		if refs[0].BrowseName != "State" || refs[0].NodeClass != wire.NodeClassVariable || refs[0].DataType != wire.TypeString {
			t.Errorf("unexpected first reference %+v", refs[0])
		}
		if refs[1].NodeClass != wire.NodeClassMethod {
			t.Errorf("unexpected second reference %+v", refs[1])
		}
	})

	t.Run("Remove", func(t *testing.T) {
		before := s.Len()
		if err := s.Remove(wire.NewNodeID(ns, "PRO_001")); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if s.Len() != before-3 {
			t.Errorf("Len = %d, want %d", s.Len(), before-3)
		}
		children, _ := s.Children(devices)
		if len(children) != 0 {
			t.Errorf("Devices still has %d children", len(children))
		}
		if err := s.Remove(ObjectsFolderID); err == nil {
			t.Error("expected error removing Objects")
		}
	})
}

func TestAttributeNodeValue(t *testing.T) {
	s := NewAddressSpace(testServerURI)
	id := wire.NewNodeID(1, "Temp")
	attr, err := s.AddAttribute(ObjectsFolderID, id, "Temp", wire.TypeDouble, AccessReadOnly)
	if err != nil {
		t.Fatalf("AddAttribute failed: %v", err)
	}

	if attr.Value().Status != wire.StatusBadWaitingForInitialData {
		t.Errorf("initial status = %s", attr.Value().Status)
	}

	var calls int
	var last wire.DataValue
	cancel := attr.OnChange(func(got wire.NodeID, dv wire.DataValue) {
		if got != id {
			t.Errorf("listener got id %s", got)
		}
		calls++
		last = dv
	})

	now := time.Now()
	if err := attr.SetValue(21.5, now); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if calls != 1 || last.Status != wire.StatusGood {
		t.Fatalf("calls=%d status=%s", calls, last.Status)
	}
	if f, _ := last.Value.Double(); f != 21.5 {
		t.Errorf("listener value = %v", last.Value)
	}

	// Same value again with a new timestamp is not a change.
	_ = attr.SetValue(21.5, now.Add(time.Second))
	if calls != 1 {
		t.Errorf("unchanged value notified, calls=%d", calls)
	}
	if !attr.Value().SourceTimestamp.Equal(now.Add(time.Second)) {
		t.Error("source timestamp not updated")
	}

	if err := attr.SetValue("hot", now); !errors.Is(err, ErrAttributeValueType) {
		t.Errorf("expected ErrAttributeValueType, got %v", err)
	}

	attr.SetStatus(wire.StatusBadUnexpectedError, now)
	if calls != 2 || last.Status != wire.StatusBadUnexpectedError {
		t.Errorf("status change not notified, calls=%d", calls)
	}

	cancel()
	cancel()
	if attr.ListenerCount() != 0 {
		t.Errorf("listener not removed")
	}
	_ = attr.SetValue(30.0, now)
	if calls != 2 {
		t.Error("removed listener still called")
	}
}

func TestMethodCall(t *testing.T) {
	s := NewAddressSpace(testServerURI)
	obj := wire.NewNodeID(1, "Bulb")
	other := wire.NewNodeID(1, "Other")
	_, _ = s.AddFolder(ObjectsFolderID, obj, "Bulb", "Bulb")
	_, _ = s.AddFolder(ObjectsFolderID, other, "Other", "Other")

	var got int32
	methodID := wire.NewNodeID(1, "Bulb_SetBrightness")
	_, err := s.AddMethod(obj, methodID, "SetBrightness",
		[]Argument{{Name: "Level", DataType: wire.TypeInt32, Description: "Brightness level (0-100)"}},
		func(ctx context.Context, args []wire.Variant) ([]wire.Variant, error) {
			got, _ = args[0].Int32()
			return nil, nil
		})
	if err != nil {
		t.Fatalf("AddMethod failed: %v", err)
	}

	tests := []struct {
		name   string
		object wire.NodeID
		method wire.NodeID
		args   []wire.Variant
		want   wire.Status
	}{
		{"ok", obj, methodID, []wire.Variant{wire.MustVariant(int32(40))}, wire.StatusGood},
		{"extra args ignored", obj, methodID, []wire.Variant{wire.MustVariant(int32(41)), wire.MustVariant("x")}, wire.StatusGood},
		{"missing arg", obj, methodID, nil, wire.StatusBadInvalidArgument},
		{"wrong type", obj, methodID, []wire.Variant{wire.MustVariant("40")}, wire.StatusBadInvalidArgument},
		{"wrong object", other, methodID, nil, wire.StatusBadMethodInvalid},
		{"unknown method", obj, wire.NewNodeID(1, "Nope"), nil, wire.StatusBadMethodInvalid},
		{"unknown object", wire.NewNodeID(1, "Nope"), methodID, nil, wire.StatusBadNodeIDUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := s.Method(tt.object, tt.method)
			if err == nil {
				_, err = m.Call(context.Background(), tt.args)
			}
			if status := StatusOf(err); status != tt.want {
				t.Errorf("status = %s, want %s (err=%v)", status, tt.want, err)
			}
		})
	}

	if got != 41 {
		t.Errorf("handler saw level %d, want 41", got)
	}
}

func TestStatusOfPassesThroughWireStatus(t *testing.T) {
	err := errors.Join(errors.New("device said no"), wire.StatusBadOutOfRange)
	if StatusOf(err) != wire.StatusBadOutOfRange {
		t.Errorf("StatusOf = %s", StatusOf(err))
	}
	if StatusOf(errors.New("boom")) != wire.StatusBadUnexpectedError {
		t.Error("plain error should map to BadUnexpectedError")
	}
	if StatusOf(nil) != wire.StatusGood {
		t.Error("nil should map to Good")
	}
}
