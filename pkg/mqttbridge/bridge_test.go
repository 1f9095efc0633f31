package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartbulb/smartbulb-go/pkg/bulb"
	"github.com/smartbulb/smartbulb-go/pkg/registry"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

type invocation struct {
	device string
	method string
	args   []wire.Variant
}

type fakeController struct {
	mu        sync.Mutex
	snapshots []bulb.Snapshot
	onSnap    func([]bulb.Snapshot)
	calls     []invocation
	faults    []string
}

func (f *fakeController) Invoke(_ context.Context, deviceID, method string, args []wire.Variant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if deviceID != "PRO_001" {
		return registry.ErrDeviceNotFound
	}
	f.calls = append(f.calls, invocation{deviceID, method, args})
	if method == registry.MethodSetBrightness && len(args) != 1 {
		return wire.StatusBadInvalidArgument
	}
	return nil
}

func (f *fakeController) InjectFault(deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, deviceID)
	return nil
}

func (f *fakeController) Snapshots() []bulb.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots
}

func (f *fakeController) OnSnapshot(fn func([]bulb.Snapshot)) {
	f.mu.Lock()
	f.onSnap = fn
	f.mu.Unlock()
}

func (f *fakeController) emit(snaps []bulb.Snapshot) {
	f.mu.Lock()
	fn := f.onSnap
	f.mu.Unlock()
	fn(snaps)
}

func (f *fakeController) invocations() []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invocation(nil), f.calls...)
}

// messages collects everything the broker routes under a filter.
type messages struct {
	mu   sync.Mutex
	byTo map[string][][]byte
}

func (m *messages) add(topic string, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byTo[topic] = append(m.byTo[topic], append([]byte(nil), payload...))
}

func (m *messages) last(topic string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byTo[topic]
	if len(p) == 0 {
		return nil, false
	}
	return p[len(p)-1], true
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func startBroker(t *testing.T) (*mochi.Server, string, *messages) {
	t.Helper()
	server := mochi.New(&mochi.Options{InlineClient: true})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	addr := freeAddr(t)
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{ID: "t1", Address: addr})))
	go func() { _ = server.Serve() }()
	t.Cleanup(func() { _ = server.Close() })

	msgs := &messages{byTo: make(map[string][][]byte)}
	err := server.Subscribe("smartbulb/#", 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		msgs.add(pk.TopicName, pk.Payload)
	})
	require.NoError(t, err)

	return server, "tcp://" + addr, msgs
}

func startBridge(t *testing.T, broker string, ctrl Controller) *Bridge {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Broker = broker
	cfg.ClientID = fmt.Sprintf("bridge-%d", time.Now().UnixNano())

	b := New(ctrl, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Start(ctx))
	t.Cleanup(b.Stop)
	return b
}

func waitFor(t *testing.T, msgs *messages, topic string, match func([]byte) bool) []byte {
	t.Helper()
	var got []byte
	require.Eventually(t, func() bool {
		p, ok := msgs.last(topic)
		if !ok || !match(p) {
			return false
		}
		got = p
		return true
	}, 3*time.Second, 10*time.Millisecond, "no matching message on %s", topic)
	return got
}

func anyPayload([]byte) bool { return true }

func TestBridgePublishesStatusAndState(t *testing.T) {
	_, broker, msgs := startBroker(t)
	ctrl := &fakeController{snapshots: []bulb.Snapshot{
		{ID: "PRO_001", Name: "Smart Bulb Pro 001", Dimmable: true, State: bulb.StateOn, Temperature: 38.5, Brightness: 75},
		{ID: "STD_001", Name: "Smart Bulb Standard 001", State: bulb.StateOff, Temperature: 20},
	}}

	b := startBridge(t, broker, ctrl)
	topics := b.Topics()

	status := waitFor(t, msgs, topics.Status(), anyPayload)
	assert.Equal(t, StatusOnline, string(status))

	var pro StatePayload
	require.NoError(t, json.Unmarshal(waitFor(t, msgs, topics.State("PRO_001"), anyPayload), &pro))
	assert.Equal(t, "Smart Bulb Pro 001", pro.Name)
	assert.Equal(t, "ON", pro.State)
	assert.InDelta(t, 38.5, pro.Temperature, 1e-9)
	require.NotNil(t, pro.Brightness)
	assert.Equal(t, 75, *pro.Brightness)

	var std StatePayload
	require.NoError(t, json.Unmarshal(waitFor(t, msgs, topics.State("STD_001"), anyPayload), &std))
	assert.Equal(t, "OFF", std.State)
	assert.Nil(t, std.Brightness)
	assert.False(t, std.Dimmable)

	ctrl.emit([]bulb.Snapshot{{ID: "PRO_001", Name: "Smart Bulb Pro 001", Dimmable: true, State: bulb.StateError, Temperature: 5}})
	waitFor(t, msgs, topics.State("PRO_001"), func(p []byte) bool {
		var s StatePayload
		return json.Unmarshal(p, &s) == nil && s.State == "ERROR"
	})

	b.Stop()
	waitFor(t, msgs, topics.Status(), func(p []byte) bool { return string(p) == StatusOffline })
}

func TestBridgeCommands(t *testing.T) {
	server, broker, msgs := startBroker(t)
	ctrl := &fakeController{}
	b := startBridge(t, broker, ctrl)
	topics := b.Topics()
	waitFor(t, msgs, topics.Status(), anyPayload)

	result := func(device, payload string, want wire.Status) Result {
		t.Helper()
		require.NoError(t, server.Publish(topics.Command(device), []byte(payload), false, 1))
		var res Result
		waitFor(t, msgs, topics.Result(device), func(p []byte) bool {
			return json.Unmarshal(p, &res) == nil && res.Status == want.String()
		})
		msgs.mu.Lock()
		delete(msgs.byTo, topics.Result(device))
		msgs.mu.Unlock()
		return res
	}

	res := result("PRO_001", `{"method":"SetBrightness","level":40}`, wire.StatusGood)
	assert.Equal(t, registry.MethodSetBrightness, res.Method)
	assert.Empty(t, res.Error)

	calls := ctrl.invocations()
	require.Len(t, calls, 1)
	level, ok := calls[0].args[0].Int32()
	require.True(t, ok)
	assert.Equal(t, int32(40), level)

	result("PRO_001", `{"method":"SetBrightness"}`, wire.StatusBadInvalidArgument)
	res = result("PRO_001", `{"method":"SetBrightness","level":4294967346}`, wire.StatusBadOutOfRange)
	assert.Contains(t, res.Error, "overflows int32")
	require.Len(t, ctrl.invocations(), 2, "overflowing level must not reach the fleet")
	result("PRO_001", `{"method":"TurnOff"}`, wire.StatusGood)
	result("NOPE_001", `{"method":"TurnOn"}`, wire.StatusBadNodeIDUnknown)
	result("PRO_001", `{"method":"Explode"}`, wire.StatusBadMethodInvalid)
	result("PRO_001", `not json`, wire.StatusBadDecodingError)
	result("STD_002", `{"method":"SetError"}`, wire.StatusGood)

	ctrl.mu.Lock()
	assert.Equal(t, []string{"STD_002"}, ctrl.faults)
	ctrl.mu.Unlock()
}

func TestStartErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QoS = 3
	assert.ErrorIs(t, New(&fakeController{}, cfg).Start(context.Background()), ErrInvalidQoS)

	cfg = DefaultConfig()
	cfg.Broker = "tcp://" + freeAddr(t)
	cfg.ConnectTimeout = 500 * time.Millisecond
	cfg.ClientID = "unreachable"
	err := New(&fakeController{}, cfg).Start(context.Background())
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "home/bulbs"}
	assert.Equal(t, "home/bulbs/devices/+/command", topics.CommandFilter())

	id, ok := topics.DeviceFromCommand("home/bulbs/devices/PRO_001/command")
	assert.True(t, ok)
	assert.Equal(t, "PRO_001", id)

	for _, topic := range []string{
		"home/bulbs/devices/PRO_001/state",
		"home/bulbs/devices//command",
		"home/bulbs/devices/a/b/command",
		"other/devices/PRO_001/command",
	} {
		_, ok := topics.DeviceFromCommand(topic)
		assert.False(t, ok, topic)
	}
}

func TestEnqueueKeepsNewest(t *testing.T) {
	b := New(&fakeController{}, DefaultConfig())
	b.enqueue([]bulb.Snapshot{{ID: "old"}})
	b.enqueue([]bulb.Snapshot{{ID: "new"}})

	got := <-b.latest
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestPublishWithoutConnection(t *testing.T) {
	b := New(&fakeController{}, DefaultConfig())
	assert.ErrorIs(t, b.publish("smartbulb/status", nil, false), ErrNotConnected)
	assert.ErrorIs(t, b.publish("", nil, false), ErrInvalidTopic)
	assert.ErrorIs(t, b.publish("t", make([]byte, maxPayloadSize+1), false), ErrPayloadTooLarge)
}
