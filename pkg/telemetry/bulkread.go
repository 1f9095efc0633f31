package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/smartbulb/smartbulb-go/pkg/discovery"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// methodNames lists method nodes in reporting order.
var methodNames = []string{discovery.NodeTurnOn, discovery.NodeTurnOff, discovery.NodeSetBrightness}

// DeviceReport is the bulk read outcome for one device.
type DeviceReport struct {
	Prefix string
	Name   string

	// Found is false for devices discovery could not resolve.
	Found bool

	State         string
	Temperature   float64
	Brightness    int
	HasBrightness bool
	Methods       []string

	// Err is the first read failure. Fields after it are unset.
	Err error
}

// BulkRead reads every discovered device and writes a report to w.
func (c *Client) BulkRead(ctx context.Context, reg *discovery.Registry, w io.Writer) []DeviceReport {
	fmt.Fprintln(w, "=== DEVICE READ ===")

	reports := make([]DeviceReport, 0, reg.Len())
	for _, e := range reg.Entries() {
		r := c.readDevice(ctx, e)
		writeReport(w, r)
		reports = append(reports, r)
	}
	return reports
}

func (c *Client) readDevice(ctx context.Context, e *discovery.Entry) DeviceReport {
	r := DeviceReport{Prefix: e.Prefix, Name: e.Name, Found: e.Found()}
	if !r.Found {
		return r
	}

	dv, err := c.read(ctx, e, discovery.NodeState)
	if err != nil {
		r.Err = err
		return r
	}
	r.State, _ = dv.Value.Str()

	dv, err = c.read(ctx, e, discovery.NodeTemperature)
	if err != nil {
		r.Err = err
		return r
	}
	r.Temperature, _ = dv.Value.Double()

	if _, ok := e.Node(discovery.NodeBrightness); ok {
		dv, err = c.read(ctx, e, discovery.NodeBrightness)
		if err != nil {
			r.Err = err
			return r
		}
		b, _ := dv.Value.Int32()
		r.Brightness = int(b)
		r.HasBrightness = true
	}

	for _, m := range methodNames {
		if _, ok := e.Node(m); ok {
			r.Methods = append(r.Methods, m)
		}
	}
	return r
}

// read reads the named node of e.
func (c *Client) read(ctx context.Context, e *discovery.Entry, name string) (wire.DataValue, error) {
	id, ok := e.Node(name)
	if !ok {
		return wire.DataValue{}, fmt.Errorf("%w: %s_%s", ErrNotResolved, e.Prefix, name)
	}
	dv, err := c.conn.ReadValue(ctx, id)
	if err != nil {
		c.logger.Warn("read failed", "node", id.String(), "error", err)
		return wire.DataValue{}, fmt.Errorf("read %s: %w", name, err)
	}
	return dv, nil
}

func writeReport(w io.Writer, r DeviceReport) {
	if !r.Found {
		fmt.Fprintf(w, "\n%s: nodes not found\n", r.Name)
		return
	}
	fmt.Fprintf(w, "\n%s:\n%s\n", r.Name, strings.Repeat("-", len(r.Name)+1))
	if r.Err != nil {
		fmt.Fprintf(w, "  Read error: %v\n", r.Err)
		return
	}
	fmt.Fprintf(w, "  State: %s\n", r.State)
	fmt.Fprintf(w, "  Temperature: %.1f°C\n", r.Temperature)
	if r.HasBrightness {
		fmt.Fprintf(w, "  Brightness: %d%%\n", r.Brightness)
	}
	if len(r.Methods) > 0 {
		fmt.Fprintf(w, "  Methods: %s\n", strings.Join(r.Methods, ", "))
	}
}

// PrintStructure writes the resolved identifiers of every device.
func PrintStructure(w io.Writer, reg *discovery.Registry) {
	fmt.Fprintln(w, "=== DISCOVERED STRUCTURE ===")
	for _, e := range reg.Entries() {
		fmt.Fprintf(w, "\nDevice: %s\n", e.Name)
		if !e.Found() {
			fmt.Fprintln(w, "  No nodes found!")
			continue
		}
		for _, name := range e.Names() {
			id, _ := e.Node(name)
			fmt.Fprintf(w, "  %s: %s\n", name, id)
		}
	}
}
