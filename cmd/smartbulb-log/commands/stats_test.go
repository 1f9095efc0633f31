package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/log"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

func TestStatsAggregation(t *testing.T) {
	stats := newStats()
	for _, e := range sessionEvents() {
		stats.add(e)
	}

	if stats.TotalEvents != 8 {
		t.Errorf("expected 8 events, got %d", stats.TotalEvents)
	}
	if stats.EventsByLayer[log.LayerWire] != 5 {
		t.Errorf("expected 5 wire events, got %d", stats.EventsByLayer[log.LayerWire])
	}
	if stats.Requests[wire.OpRead] != 1 || stats.Requests[wire.OpCall] != 1 {
		t.Errorf("unexpected request counts: %v", stats.Requests)
	}
	if stats.Responses[wire.StatusBadOutOfRange] != 1 || stats.Responses[wire.StatusGood] != 1 {
		t.Errorf("unexpected response counts: %v", stats.Responses)
	}
	if stats.Notifications != 1 || stats.NotifiedItems != 2 {
		t.Errorf("expected 1 notification with 2 items, got %d/%d", stats.Notifications, stats.NotifiedItems)
	}
	if stats.Devices["PRO_001"] != 1 {
		t.Errorf("expected 1 PRO_001 event, got %d", stats.Devices["PRO_001"])
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 error, got %d", stats.Errors)
	}
	if len(stats.Connections) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(stats.Connections))
	}
	for _, c := range stats.Connections {
		if c.Events != 7 || c.Requests != 2 || c.Responses != 2 {
			t.Errorf("unexpected connection stats: %+v", c)
		}
		if c.RemoteAddr != "127.0.0.1:50000" {
			t.Errorf("expected remote address, got %q", c.RemoteAddr)
		}
		if got := c.LastSeen.Sub(c.FirstSeen); got != 4*time.Second {
			t.Errorf("expected 4s connection span, got %s", got)
		}
	}
	if !stats.TimeRange.Start.Equal(testBase) || !stats.TimeRange.End.Equal(testBase.Add(4*time.Second)) {
		t.Errorf("unexpected time range: %v - %v", stats.TimeRange.Start, stats.TimeRange.End)
	}
}

func TestRunStatsOutput(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	if err := RunStats(path, FilterOptions{}, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"=== Smart Bulb Protocol Log Statistics ===",
		"Total Events: 8",
		"Duration:   4s",
		"Read:",
		"Call:",
		"BadOutOfRange:",
		"Notifications: 1 (2 items)",
		"PRO_001:",
		"Connections: 1",
		"[5f0c2a9e] 7 events",
		"Remote: 127.0.0.1:50000",
		"Avg processing: 1.600ms",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestRunStatsFiltered(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	if err := RunStats(path, FilterOptions{Layer: "transport"}, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 2") {
		t.Errorf("expected 2 transport events, got:\n%s", buf.String())
	}
}

func TestRunStatsEmpty(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, FilterOptions{}, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("expected empty stats, got:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "Time Range") {
		t.Errorf("empty log should have no time range, got:\n%s", buf.String())
	}
}
