package log

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

func sampleEvents(base time.Time) []Event {
	op := wire.OpRead
	status := wire.StatusGood
	return []Event{
		{
			Timestamp:    base,
			ConnectionID: "conn-a",
			Layer:        LayerTransport,
			Category:     CategoryState,
			StateChange:  &StateChangeEvent{Entity: StateEntityConnection, NewState: "CONNECTED"},
		},
		{
			Timestamp:    base.Add(time.Second),
			ConnectionID: "conn-a",
			Direction:    DirectionIn,
			Layer:        LayerWire,
			Category:     CategoryMessage,
			Message: &MessageEvent{
				Type:      MessageTypeRequest,
				MessageID: 1,
				Operation: &op,
				NodeIDs:   []string{"ns=2;s=PRO_001_State"},
			},
		},
		{
			Timestamp:    base.Add(2 * time.Second),
			ConnectionID: "conn-b",
			Direction:    DirectionOut,
			Layer:        LayerWire,
			Category:     CategoryMessage,
			Message:      &MessageEvent{Type: MessageTypeResponse, MessageID: 1, Status: &status},
		},
		{
			Timestamp:    base.Add(3 * time.Second),
			ConnectionID: "conn-b",
			Layer:        LayerService,
			Category:     CategoryState,
			DeviceID:     "STD_001",
			NodeID:       "ns=2;s=STD_001",
			StateChange:  &StateChangeEvent{Entity: StateEntityDevice, OldState: "OFF", NewState: "ERROR"},
		},
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.sblog")
	base := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, ev := range sampleEvents(base) {
		logger.Log(ev)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	logger.Log(Event{ConnectionID: "after-close"})

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	var got []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		got = append(got, ev)
	}

	if len(got) != 4 {
		t.Fatalf("read %d events, want 4", len(got))
	}
	if !got[0].Timestamp.Equal(base) {
		t.Errorf("timestamp lost precision: %v", got[0].Timestamp)
	}
	if got[1].Message == nil || *got[1].Message.Operation != wire.OpRead {
		t.Errorf("message event not preserved: %+v", got[1].Message)
	}
	if got[3].StateChange.NewState != "ERROR" {
		t.Errorf("state change = %+v", got[3].StateChange)
	}
}

func TestFilterMatches(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamLogger(&buf)
	base := time.Now()
	for _, ev := range sampleEvents(base) {
		w.Log(ev)
	}
	data := buf.Bytes()

	wireLayer := LayerWire
	out := DirectionOut
	read := wire.OpRead
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"connection", Filter{ConnectionID: "conn-b"}, 2},
		{"layer", Filter{Layer: &wireLayer}, 2},
		{"direction", Filter{Direction: &out}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"device", Filter{DeviceID: "STD_001"}, 1},
		{"node in request", Filter{NodeID: "ns=2;s=PRO_001_State"}, 1},
		{"node on event", Filter{NodeID: "ns=2;s=STD_001"}, 1},
		{"operation", Filter{Operation: &read}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStreamReader(bytes.NewReader(data), tt.filter)
			count := 0
			for {
				if _, err := r.Next(); err != nil {
					if err != io.EOF {
						t.Fatalf("Next failed: %v", err)
					}
					break
				}
				count++
			}
			if count != tt.want {
				t.Errorf("matched %d, want %d", count, tt.want)
			}
		})
	}
}

func TestMessageEventFor(t *testing.T) {
	req, err := wire.NewRequest(5, wire.OpRead, &wire.ReadRequest{
		NodeIDs: []wire.NodeID{wire.NewNodeID(2, "A"), wire.NewNodeID(3, "B")},
	})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := wire.EncodeRequest(req)
	msg, _ := wire.DecodeMessage(data)

	ev := MessageEventFor(msg)
	if ev.Type != MessageTypeRequest || ev.MessageID != 5 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if len(ev.NodeIDs) != 2 || ev.NodeIDs[1] != "ns=3;s=B" {
		t.Errorf("NodeIDs = %v", ev.NodeIDs)
	}

	data, _ = wire.EncodeNotification(&wire.NotificationMessage{SubscriptionID: 2, SequenceNumber: 9,
		Items: []wire.ItemNotification{{ClientHandle: 1}}})
	msg, _ = wire.DecodeMessage(data)
	ev = MessageEventFor(msg)
	if ev.Type != MessageTypeNotification || *ev.SubscriptionID != 2 || *ev.SequenceNumber != 9 || ev.ItemCount != 1 {
		t.Errorf("unexpected notification event %+v", ev)
	}

	data, _ = wire.EncodeControlMessage(&wire.ControlMessage{Type: wire.ControlPing})
	msg, _ = wire.DecodeMessage(data)
	if MessageEventFor(msg) != nil {
		t.Error("control message should not produce a message event")
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := NewSlogAdapter(logger)

	for _, ev := range sampleEvents(time.Now()) {
		a.Log(ev)
	}

	out := buf.String()
	for _, want := range []string{"msg=protocol", "operation=Read", `nodes="ns=2;s=PRO_001_State"`, "status=Good", "new_state=ERROR", "device_id=STD_001"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	quiet := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	quiet.Log(sampleEvents(time.Now())[0])
	if buf.Len() != 0 {
		t.Errorf("debug event written at info level: %s", buf.String())
	}
}

func TestMultiLoggerAndRecorder(t *testing.T) {
	a := &Recorder{}
	b := &Recorder{Limit: 2}
	m := NewMultiLogger(a, nil, b, NoopLogger{})

	for i := 0; i < 3; i++ {
		m.Log(Event{ConnectionID: strconv.Itoa(i)})
	}

	if len(a.Events()) != 3 {
		t.Errorf("unbounded recorder has %d events", len(a.Events()))
	}
	got := b.Events()
	if len(got) != 2 || got[0].ConnectionID != "1" || got[1].ConnectionID != "2" {
		t.Errorf("bounded recorder kept %+v", got)
	}
	a.Reset()
	if len(a.Events()) != 0 {
		t.Error("Reset did not clear events")
	}
}
