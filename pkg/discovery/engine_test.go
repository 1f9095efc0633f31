package discovery

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

var errUnreachable = errors.New("unreachable")

// fakeReader answers reads for the nodes it holds and fails everything else.
type fakeReader struct {
	values map[wire.NodeID]wire.DataValue
	reads  []wire.NodeID
	fail   map[uint16]error
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		values: make(map[wire.NodeID]wire.DataValue),
		fail:   make(map[uint16]error),
	}
}

func (f *fakeReader) place(prefix string, ns uint16) {
	f.values[wire.NewNodeID(ns, prefix+"_State")] = wire.DataValue{
		Value:           wire.MustVariant("OFF"),
		SourceTimestamp: time.Now(),
	}
}

func (f *fakeReader) ReadValue(_ context.Context, id wire.NodeID) (wire.DataValue, error) {
	f.reads = append(f.reads, id)
	if err, ok := f.fail[id.Namespace]; ok {
		return wire.DataValue{}, err
	}
	dv, ok := f.values[id]
	if !ok {
		return wire.DataValue{}, &wire.StatusError{Status: wire.StatusBadNodeIDUnknown}
	}
	return dv, nil
}

func TestDiscoverFindsDevicesInAnyCandidateNamespace(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		reader := newFakeReader()
		placed := make(map[string]uint16)
		for _, exp := range DefaultExpected() {
			ns := DefaultCandidates[rng.Intn(len(DefaultCandidates))]
			reader.place(exp.Prefix, ns)
			placed[exp.Prefix] = ns
		}

		reg := NewEngine(reader, DefaultConfig()).Discover(context.Background(), DefaultExpected())
		require.Equal(t, 3, reg.Len())
		assert.Equal(t, 3, reg.FoundCount(), "seed %d", seed)

		for _, e := range reg.Entries() {
			require.True(t, e.Found(), "seed %d: %s", seed, e.Prefix)
			ns := placed[e.Prefix]
			assert.Equal(t, ns, e.Namespace)
			assert.Equal(t, wire.NewNodeID(ns, e.Prefix), e.Object())

			state, ok := e.Node(NodeState)
			require.True(t, ok)
			assert.Equal(t, wire.NewNodeID(ns, e.Prefix+"_State"), state)
			temp, ok := e.Node(NodeTemperature)
			require.True(t, ok)
			assert.Equal(t, wire.NewNodeID(ns, e.Prefix+"_Temperature"), temp)

			_, hasBrightness := e.Node(NodeBrightness)
			_, hasSet := e.Node(NodeSetBrightness)
			assert.Equal(t, e.Dimmable, hasBrightness)
			assert.Equal(t, e.Dimmable, hasSet)
		}
	}
}

func TestDiscoverUnresolvedDeviceIsEmpty(t *testing.T) {
	reader := newFakeReader()
	reader.place("PRO_001", 3)

	expected := []Expected{
		{Prefix: "PRO_001", Name: "Smart Bulb Pro 001", Dimmable: true},
		{Prefix: "GHOST_001", Name: "Ghost"},
	}
	reg := NewEngine(reader, DefaultConfig()).Discover(context.Background(), expected)

	ghost, ok := reg.Lookup("GHOST_001")
	require.True(t, ok)
	assert.False(t, ghost.Found())
	assert.Empty(t, ghost.Names())
	assert.True(t, ghost.Object().IsZero())
	_, ok = ghost.Node(NodeState)
	assert.False(t, ok)

	assert.Equal(t, 1, reg.FoundCount())
	assert.Equal(t, []string{"PRO_001", "GHOST_001"}, []string{reg.Entries()[0].Prefix, reg.Entries()[1].Prefix})
}

func TestDiscoverFirstMatchWins(t *testing.T) {
	reader := newFakeReader()
	reader.place("STD_001", 3)
	reader.place("STD_001", 4)

	reg := NewEngine(reader, DefaultConfig()).Discover(context.Background(), []Expected{{Prefix: "STD_001"}})
	e, _ := reg.Lookup("STD_001")
	assert.Equal(t, uint16(3), e.Namespace)

	// Probing stops at the first match: ns=2 then ns=3, never ns=4.
	assert.Equal(t, []wire.NodeID{
		wire.NewNodeID(2, "STD_001_State"),
		wire.NewNodeID(3, "STD_001_State"),
	}, reader.reads)
}

func TestDiscoverSkipsTransportErrors(t *testing.T) {
	reader := newFakeReader()
	reader.place("STD_002", 4)
	reader.fail[2] = errUnreachable
	reader.fail[3] = context.DeadlineExceeded

	reg := NewEngine(reader, DefaultConfig()).Discover(context.Background(), []Expected{{Prefix: "STD_002"}})
	e, _ := reg.Lookup("STD_002")
	assert.True(t, e.Found())
	assert.Equal(t, uint16(4), e.Namespace)
}

func TestDiscoverBadStatusValueIsNotAMatch(t *testing.T) {
	reader := newFakeReader()
	reader.values[wire.NewNodeID(2, "STD_001_State")] = wire.BadValue(wire.StatusBadNodeIDUnknown)
	reader.place("STD_001", 3)

	reg := NewEngine(reader, DefaultConfig()).Discover(context.Background(), []Expected{{Prefix: "STD_001"}})
	e, _ := reg.Lookup("STD_001")
	assert.Equal(t, uint16(3), e.Namespace)
}

func TestDiscoverCustomCandidates(t *testing.T) {
	reader := newFakeReader()
	reader.place("PRO_001", 7)

	engine := NewEngine(reader, Config{Candidates: []uint16{7}})
	reg := engine.Discover(context.Background(), DefaultExpected())
	assert.Equal(t, 1, reg.FoundCount())

	e, _ := reg.Lookup("PRO_001")
	assert.Equal(t, []string{NodeState, NodeTemperature, NodeTurnOn, NodeTurnOff, NodeBrightness, NodeSetBrightness}, e.Names())
	assert.Equal(t, "Smart Bulb Pro 001_Brightness", e.DisplayName(NodeBrightness))
}

func TestDiscoverCancelledContext(t *testing.T) {
	reader := newFakeReader()
	reader.place("PRO_001", 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reg := NewEngine(reader, DefaultConfig()).Discover(ctx, DefaultExpected())
	assert.Equal(t, 3, reg.Len())
	assert.Zero(t, reg.FoundCount())
	assert.Empty(t, reader.reads)
}
