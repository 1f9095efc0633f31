package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/log"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// FilterOptions holds the event selection flags shared by view, export and
// filter. Empty fields match everything.
type FilterOptions struct {
	ConnID    string
	DeviceID  string
	NodeID    string
	Operation string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

var (
	layers     = []log.Layer{log.LayerTransport, log.LayerWire, log.LayerService}
	directions = []log.Direction{log.DirectionIn, log.DirectionOut}
	categories = []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError}
	operations = []wire.Operation{wire.OpRead, wire.OpCall, wire.OpBrowse, wire.OpCreateSubscription, wire.OpDeleteSubscription}
)

// Filter converts the options into a log.Filter.
func (o FilterOptions) Filter() (log.Filter, error) {
	f := log.Filter{
		ConnectionID: o.ConnID,
		DeviceID:     o.DeviceID,
		NodeID:       o.NodeID,
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	f.TimeStart = parseTime("time-start", o.TimeStart, collect)
	f.TimeEnd = parseTime("time-end", o.TimeEnd, collect)
	f.Layer = choose("layer", o.Layer, layers, collect)
	f.Direction = choose("direction", o.Direction, directions, collect)
	f.Category = choose("category", o.Category, categories, collect)
	f.Operation = choose("operation", o.Operation, operations, collect)

	return f, errors.Join(errs...)
}

func parseTime(flag, value string, collect func(error)) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		collect(fmt.Errorf("invalid %s %q: want RFC 3339", flag, value))
		return nil
	}
	return &t
}

// choose returns the option whose name matches value case-insensitively,
// or nil when value is empty or unknown.
func choose[T fmt.Stringer](flag, value string, options []T, collect func(error)) *T {
	if value == "" {
		return nil
	}
	v, err := lookup(flag, value, options)
	if err != nil {
		collect(err)
		return nil
	}
	return &v
}

func lookup[T fmt.Stringer](flag, value string, options []T) (T, error) {
	names := make([]string, len(options))
	for i, opt := range options {
		if strings.EqualFold(opt.String(), value) {
			return opt, nil
		}
		names[i] = strings.ToLower(opt.String())
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q: must be one of %s", flag, value, strings.Join(names, ", "))
}

func parseOperation(s string) (wire.Operation, error) {
	return lookup("operation", s, operations)
}

// RunFilter writes the events of path matching opts to a new .sblog file.
func RunFilter(path, output string, opts FilterOptions, w io.Writer) error {
	reader, err := openFiltered(path, opts)
	if err != nil {
		return err
	}
	defer reader.Close()

	out, err := log.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer out.Close()

	count := 0
	if err := forEach(reader, func(event log.Event) error {
		out.Log(event)
		count++
		return nil
	}); err != nil {
		return err
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, output)
	return nil
}

func openFiltered(path string, opts FilterOptions) (*log.Reader, error) {
	filter, err := opts.Filter()
	if err != nil {
		return nil, err
	}
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return reader, nil
}

// forEach calls fn for every remaining event of reader.
func forEach(reader *log.Reader, fn func(log.Event) error) error {
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
