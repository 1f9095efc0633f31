package telemetry_test

import (
	"bytes"
	"context"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartbulb/smartbulb-go/pkg/discovery"
	"github.com/smartbulb/smartbulb-go/pkg/interaction"
	"github.com/smartbulb/smartbulb-go/pkg/model"
	"github.com/smartbulb/smartbulb-go/pkg/registry"
	"github.com/smartbulb/smartbulb-go/pkg/telemetry"
	"github.com/smartbulb/smartbulb-go/pkg/transport"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

const tick = 50 * time.Millisecond

type harness struct {
	reg    *registry.Registry
	client *interaction.Client
}

func newHarness(t *testing.T, fleet []registry.DeviceSpec) *harness {
	t.Helper()
	space := model.NewAddressSpace("urn:smartbulb:test-server")
	cfg := registry.DefaultConfig()
	cfg.UpdateInterval = tick
	cfg.Rand = rand.New(rand.NewSource(7))
	if fleet != nil {
		cfg.Devices = fleet
	}
	reg, err := registry.New(space, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, reg.Start(ctx))

	srv := interaction.NewServer(interaction.ServerConfig{Space: space, Fresh: reg})
	tsrv := transport.NewServer(transport.ServerConfig{
		Address:      "127.0.0.1:0",
		OnConnect:    func(c *transport.ServerConn) { srv.Connect(c) },
		OnMessage:    func(c *transport.ServerConn, data []byte) { srv.HandleMessage(ctx, c, data) },
		OnDisconnect: func(c *transport.ServerConn) { srv.Disconnect(c) },
	})
	require.NoError(t, tsrv.Start(ctx))

	ccfg := interaction.DefaultClientConfig()
	ccfg.RequestTimeout = 2 * time.Second
	ccfg.KeepAlive = transport.KeepAliveConfig{}
	client, err := interaction.Dial(ctx, tsrv.Addr().String(), ccfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		cancel()
		tsrv.Stop()
		srv.Close()
		reg.Stop()
	})
	return &harness{reg: reg, client: client}
}

func (h *harness) discover() *discovery.Registry {
	return discovery.NewEngine(h.client, discovery.DefaultConfig()).
		Discover(context.Background(), discovery.DefaultExpected())
}

func TestEndToEndTurnOffDimmable(t *testing.T) {
	h := newHarness(t, nil)
	reg := h.discover()
	require.Equal(t, 3, reg.FoundCount())

	tc := telemetry.New(h.client, telemetry.Config{})
	var out bytes.Buffer
	reports := tc.BulkRead(context.Background(), reg, &out)
	require.Len(t, reports, 3)

	pro := reports[0]
	assert.Equal(t, "PRO_001", pro.Prefix)
	require.NoError(t, pro.Err)
	assert.Equal(t, "ON", pro.State)
	assert.True(t, pro.HasBrightness)
	assert.Equal(t, 75, pro.Brightness)
	assert.Equal(t, []string{"TurnOn", "TurnOff", "SetBrightness"}, pro.Methods)
	assert.Equal(t, "OFF", reports[1].State)
	assert.False(t, reports[1].HasBrightness)
	assert.Contains(t, out.String(), "Smart Bulb Pro 001:")
	assert.Contains(t, out.String(), "Brightness: 75%")

	entry, _ := reg.Lookup("PRO_001")
	turnOff, _ := entry.Node(discovery.NodeTurnOff)
	_, err := h.client.Call(context.Background(), entry.Object(), turnOff)
	require.NoError(t, err)

	time.Sleep(2 * tick)

	out.Reset()
	reports = tc.BulkRead(context.Background(), reg, &out)
	assert.Equal(t, "OFF", reports[0].State)
	assert.Equal(t, 0, reports[0].Brightness)
}

func TestBulkReadReportsNotFound(t *testing.T) {
	h := newHarness(t, []registry.DeviceSpec{{ID: "STD_001", Name: "Smart Bulb Standard 001"}})
	reg := h.discover()

	var out bytes.Buffer
	reports := telemetry.New(h.client, telemetry.Config{}).BulkRead(context.Background(), reg, &out)
	require.Len(t, reports, 3)
	assert.False(t, reports[0].Found)
	assert.True(t, reports[1].Found)
	assert.False(t, reports[2].Found)
	assert.Contains(t, out.String(), "Smart Bulb Pro 001: nodes not found")
}

func TestExerciseMethods(t *testing.T) {
	h := newHarness(t, nil)
	reg := h.discover()

	var out bytes.Buffer
	cfg := telemetry.ExerciseConfig{Delay: 2 * tick, Brightness: 30, Out: &out}
	steps := telemetry.New(h.client, telemetry.Config{}).ExerciseMethods(context.Background(), reg, cfg)

	var got []string
	for _, s := range steps {
		require.NoError(t, s.Err, "%s %s", s.Device, s.Step)
		got = append(got, s.Device+" "+s.Step+"="+s.Value)
	}
	assert.Equal(t, []string{
		"PRO_001 TurnOff=",
		"PRO_001 read State=OFF",
		"PRO_001 SetBrightness(30)=",
		"PRO_001 read Brightness=30",
		"PRO_001 read State=ON",
		"STD_001 TurnOn=",
		"STD_001 read State=ON",
	}, got)
	assert.Contains(t, out.String(), "--- Smart Bulb Pro 001 ---")
}

func TestExerciseMethodsWithoutDimmable(t *testing.T) {
	h := newHarness(t, []registry.DeviceSpec{{ID: "STD_002", Name: "Smart Bulb Standard 002"}})
	reg := h.discover()

	steps := telemetry.New(h.client, telemetry.Config{}).
		ExerciseMethods(context.Background(), reg, telemetry.ExerciseConfig{Brightness: 30})
	require.NotEmpty(t, steps)
	assert.ErrorIs(t, steps[0].Err, telemetry.ErrNoDevice)

	last := steps[len(steps)-1]
	assert.Equal(t, "STD_002", last.Device)
	assert.Equal(t, "ON", last.Value)
}

func monitorConfig(window time.Duration, sinks ...telemetry.Sink) telemetry.MonitorConfig {
	cfg := telemetry.DefaultMonitorConfig()
	cfg.Window = window
	cfg.Parameters.PublishingInterval = uint32(tick / time.Millisecond)
	cfg.SamplingInterval = uint32(tick / time.Millisecond)
	cfg.Sinks = sinks
	return cfg
}

func TestMonitorCollectsAndTearsDown(t *testing.T) {
	h := newHarness(t, nil)
	reg := h.discover()

	var out bytes.Buffer
	entries, err := telemetry.New(h.client, telemetry.Config{}).
		Monitor(context.Background(), reg, monitorConfig(6*tick, telemetry.NewWriterSink(&out)))
	require.NoError(t, err)

	// Initial values: 3 states, 3 temperatures, 1 brightness.
	seen := make(map[string]bool)
	for _, e := range entries {
		seen[e.Label()] = true
	}
	assert.True(t, seen["Smart Bulb Pro 001_State"])
	assert.True(t, seen["Smart Bulb Pro 001_Brightness"])
	assert.True(t, seen["Smart Bulb Standard 002_Temperature"])
	assert.False(t, seen["Smart Bulb Standard 001_Brightness"])

	line := regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] Smart Bulb [^:]+_(State|Temperature|Brightness): \S+$`)
	for _, l := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		assert.Regexp(t, line, l)
	}
}

func TestMonitorHonorsCancellation(t *testing.T) {
	h := newHarness(t, nil)
	reg := h.discover()

	ctx, cancel := context.WithTimeout(context.Background(), 3*tick)
	defer cancel()

	start := time.Now()
	_, err := telemetry.New(h.client, telemetry.Config{}).Monitor(ctx, reg, monitorConfig(time.Hour))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestMonitorNothingResolved(t *testing.T) {
	h := newHarness(t, []registry.DeviceSpec{{ID: "OTHER", Name: "Other"}})
	reg := h.discover()

	_, err := telemetry.New(h.client, telemetry.Config{}).Monitor(context.Background(), reg, monitorConfig(tick))
	assert.ErrorIs(t, err, telemetry.ErrNothingToMonitor)
}

func TestWriterSinkFormat(t *testing.T) {
	var out bytes.Buffer
	sink := telemetry.NewWriterSink(&out)
	ts := time.Date(2026, 1, 2, 14, 3, 7, 0, time.Local)

	require.NoError(t, sink.Record(telemetry.Entry{
		Timestamp:  ts,
		Device:     "PRO_001",
		DeviceName: "Smart Bulb Pro 001",
		Attribute:  "Temperature",
		Value:      wire.DataValue{Value: wire.MustVariant(38.123)},
	}))
	require.NoError(t, sink.Record(telemetry.Entry{
		Timestamp:  ts,
		DeviceName: "Smart Bulb Pro 001",
		Attribute:  "State",
		Value:      wire.BadValue(wire.StatusBadTimeout),
	}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[14:03:07] Smart Bulb Pro 001_Temperature: 38.12", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "[14:03:07] Smart Bulb Pro 001_State: "))
}

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func TestInfluxSinkPoints(t *testing.T) {
	w := &fakeWriter{}
	sink := telemetry.NewInfluxSink(w)
	ts := time.Unix(1700000000, 0)

	require.NoError(t, sink.Record(telemetry.Entry{
		Timestamp: ts, Device: "PRO_001", Attribute: "Brightness",
		Value: wire.DataValue{Value: wire.MustVariant(int32(75))},
	}))
	require.NoError(t, sink.Record(telemetry.Entry{
		Timestamp: ts, Device: "STD_001", Attribute: "State",
		Value: wire.DataValue{Value: wire.MustVariant("OFF")},
	}))
	require.NoError(t, sink.Record(telemetry.Entry{
		Timestamp: ts, Device: "STD_001", Attribute: "State",
		Value: wire.BadValue(wire.StatusBadTimeout),
	}))
	sink.Flush()

	require.Len(t, w.points, 2)
	assert.Equal(t, 1, w.flushes)

	p := w.points[0]
	assert.Equal(t, telemetry.Measurement, p.Name())
	tags := make(map[string]string)
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"device": "PRO_001", "attribute": "Brightness"}, tags)
	require.Len(t, p.FieldList(), 1)
	assert.Equal(t, "value", p.FieldList()[0].Key)
	assert.Equal(t, int64(75), p.FieldList()[0].Value)
	assert.Equal(t, ts, p.Time())

	assert.Equal(t, "OFF", w.points[1].FieldList()[0].Value)
}
