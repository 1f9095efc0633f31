// Package commands implements the smartbulb-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/log"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// RunView writes the events of path matching opts in human-readable form.
func RunView(path string, opts FilterOptions, w io.Writer) error {
	reader, err := openFiltered(path, opts)
	if err != nil {
		return err
	}
	defer reader.Close()

	return forEach(reader, func(event log.Event) error {
		formatEvent(w, event)
		return nil
	})
}

// details writes the indented "Key: value" lines under an event header.
type details struct{ w io.Writer }

func (d details) line(key, format string, args ...any) {
	fmt.Fprintf(d.w, "  %s: %s\n", key, fmt.Sprintf(format, args...))
}

func (d details) raw(format string, args ...any) {
	fmt.Fprintf(d.w, "  "+format+"\n", args...)
}

// formatEvent writes one event: a header line, the details and a blank
// line.
func formatEvent(w io.Writer, event log.Event) {
	fmt.Fprintln(w, header(event))

	d := details{w}
	switch {
	case event.Frame != nil:
		frameDetails(d, event.Frame)
	case event.Message != nil:
		messageDetails(d, event.Message)
	case event.StateChange != nil:
		stateDetails(d, event.StateChange)
	case event.ControlMsg != nil:
		if seq := event.ControlMsg.Sequence; seq != 0 {
			d.line("Sequence", "%d", seq)
		}
	case event.Error != nil:
		errorDetails(d, event.Error)
	}
	fmt.Fprintln(w)
}

func header(event log.Event) string {
	layer := event.Layer.String()
	if event.Category == log.CategoryControl {
		layer = "CTRL"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [conn:%s] %-3s %s %s",
		event.Timestamp.UTC().Format(timestampLayout), shortenConnID(event.ConnectionID), event.Direction, layer, eventType(event))
	if event.DeviceID != "" {
		b.WriteString(" device=" + event.DeviceID)
	}
	if event.NodeID != "" {
		b.WriteString(" node=" + event.NodeID)
	}
	return b.String()
}

// shortenConnID keeps the first 8 characters of a connection ID.
func shortenConnID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Message != nil:
		return event.Message.Type.String()
	case event.StateChange != nil:
		return "State"
	case event.ControlMsg != nil:
		return event.ControlMsg.Type.String()
	case event.Error != nil:
		return "Error"
	}
	return "Unknown"
}

func frameDetails(d details, f *log.FrameEvent) {
	d.line("Size", "%d bytes", f.Size)
	if len(f.Data) == 0 {
		return
	}
	suffix := ""
	if f.Truncated {
		suffix = " (truncated)"
	}
	d.line("Data", "%s%s", hex.EncodeToString(f.Data), suffix)
}

func messageDetails(d details, m *log.MessageEvent) {
	d.line("MessageID", "%d", m.MessageID)

	switch m.Type {
	case log.MessageTypeRequest:
		if m.Operation != nil {
			d.line("Operation", "%s", m.Operation)
		}
		if len(m.NodeIDs) > 0 {
			d.line("Nodes", "%s", strings.Join(m.NodeIDs, ", "))
		}
	case log.MessageTypeResponse:
		if m.Status != nil {
			d.line("Status", "%s (0x%08X)", m.Status, uint32(*m.Status))
		}
		if m.ProcessingTime != nil {
			d.line("Duration", "%s", formatDuration(*m.ProcessingTime))
		}
	case log.MessageTypeNotification:
		if m.SubscriptionID != nil {
			d.line("SubscriptionID", "%d", *m.SubscriptionID)
		}
		if m.SequenceNumber != nil {
			d.line("Sequence", "%d", *m.SequenceNumber)
		}
		d.line("Items", "%d", m.ItemCount)
	}
}

func stateDetails(d details, sc *log.StateChangeEvent) {
	d.line("Entity", "%s", sc.Entity)
	if sc.OldState == "" {
		d.raw("-> %s", sc.NewState)
	} else {
		d.raw("%s -> %s", sc.OldState, sc.NewState)
	}
	if sc.Reason != "" {
		d.line("Reason", "%s", sc.Reason)
	}
}

func errorDetails(d details, e *log.ErrorEventData) {
	d.line("Layer", "%s", e.Layer)
	d.line("Message", "%s", e.Message)
	if e.Status != nil {
		d.line("Status", "%s", e.Status)
	}
	if e.Context != "" {
		d.line("Context", "%s", e.Context)
	}
}

// formatDuration prints d with three decimals in the largest unit below it.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.3fus", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
