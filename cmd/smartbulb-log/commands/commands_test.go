package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/log"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sblog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

var testBase = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// sessionEvents is a short server-side capture: a connection opens, the
// client reads PRO_001 State, calls SetBrightness out of range and gets
// one notification.
func sessionEvents() []log.Event {
	read, call := wire.OpRead, wire.OpCall
	good, outOfRange := wire.StatusGood, wire.StatusBadOutOfRange
	subID, seq := uint32(1), uint32(4)
	fast, slow := 200*time.Microsecond, 3*time.Millisecond
	conn := "5f0c2a9e-1111-2222-3333-444455556666"

	return []log.Event{
		{
			Timestamp: testBase, ConnectionID: conn, Direction: log.DirectionIn,
			Layer: log.LayerTransport, Category: log.CategoryState, RemoteAddr: "127.0.0.1:50000",
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityConnection, NewState: "CONNECTED"},
		},
		{
			Timestamp: testBase.Add(time.Second), ConnectionID: conn, Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeRequest, MessageID: 1, Operation: &read, NodeIDs: []string{"ns=2;s=PRO_001_State"}},
		},
		{
			Timestamp: testBase.Add(time.Second), ConnectionID: conn, Direction: log.DirectionOut,
			Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeResponse, MessageID: 1, Status: &good, ProcessingTime: &fast},
		},
		{
			Timestamp: testBase.Add(2 * time.Second), ConnectionID: conn, Direction: log.DirectionIn,
			Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeRequest, MessageID: 2, Operation: &call, NodeIDs: []string{"ns=2;s=PRO_001_SetBrightness"}},
		},
		{
			Timestamp: testBase.Add(2 * time.Second), Layer: log.LayerService, Category: log.CategoryError,
			DeviceID: "PRO_001", NodeID: "ns=2;s=PRO_001_SetBrightness",
			Error: &log.ErrorEventData{Layer: log.LayerService, Message: "brightness 150 out of range", Status: &outOfRange, Context: "SetBrightness"},
		},
		{
			Timestamp: testBase.Add(2 * time.Second), ConnectionID: conn, Direction: log.DirectionOut,
			Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeResponse, MessageID: 2, Status: &outOfRange, ProcessingTime: &slow},
		},
		{
			Timestamp: testBase.Add(3 * time.Second), ConnectionID: conn, Direction: log.DirectionOut,
			Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeNotification, SubscriptionID: &subID, SequenceNumber: &seq, ItemCount: 2},
		},
		{
			Timestamp: testBase.Add(4 * time.Second), ConnectionID: conn, Direction: log.DirectionOut,
			Layer: log.LayerTransport, Category: log.CategoryControl,
			ControlMsg: &log.ControlMsgEvent{Type: log.ControlMsgPing, Sequence: 9},
		},
	}
}
