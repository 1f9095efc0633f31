package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Node names recorded for a resolved device.
const (
	NodeState         = "State"
	NodeTemperature   = "Temperature"
	NodeBrightness    = "Brightness"
	NodeTurnOn        = "TurnOn"
	NodeTurnOff       = "TurnOff"
	NodeSetBrightness = "SetBrightness"
)

// DefaultCandidates are the namespace indexes probed when none are configured.
var DefaultCandidates = []uint16{2, 3, 4}

// Reader reads one attribute value. *interaction.Client satisfies it.
type Reader interface {
	ReadValue(ctx context.Context, id wire.NodeID) (wire.DataValue, error)
}

// Expected names a device the engine should look for.
type Expected struct {
	// Prefix is the device identifier, e.g. "PRO_001".
	Prefix string

	// Name is the display name used in reports.
	Name string

	// Dimmable adds Brightness and SetBrightness to the resolved set.
	Dimmable bool
}

// DefaultExpected returns the fleet the demonstration client looks for.
// Only PRO_001 is dimmable.
func DefaultExpected() []Expected {
	return []Expected{
		{Prefix: "PRO_001", Name: "Smart Bulb Pro 001", Dimmable: true},
		{Prefix: "STD_001", Name: "Smart Bulb Standard 001"},
		{Prefix: "STD_002", Name: "Smart Bulb Standard 002"},
	}
}

// Config configures the discovery engine.
type Config struct {
	// Candidates are the namespace indexes to probe, in order.
	Candidates []uint16

	// Logger receives a debug record for every skipped probe.
	Logger *slog.Logger
}

// DefaultConfig returns a Config probing DefaultCandidates.
func DefaultConfig() Config {
	return Config{Candidates: append([]uint16(nil), DefaultCandidates...)}
}

// Engine probes candidate namespaces for expected devices.
type Engine struct {
	reader     Reader
	candidates []uint16
	logger     *slog.Logger
}

// NewEngine creates an engine reading through r.
func NewEngine(r Reader, config Config) *Engine {
	candidates := config.Candidates
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{reader: r, candidates: candidates, logger: logger}
}

// Discover probes every expected device sequentially and returns the
// registry in the order given. It never fails; unresolved devices are
// present with an empty identifier set.
func (e *Engine) Discover(ctx context.Context, expected []Expected) *Registry {
	reg := newRegistry()
	for _, exp := range expected {
		reg.add(e.probe(ctx, exp))
	}
	return reg
}

func (e *Engine) probe(ctx context.Context, exp Expected) *Entry {
	entry := &Entry{Expected: exp}
	for _, ns := range e.candidates {
		if ctx.Err() != nil {
			e.logger.Debug("probe abandoned", "device", exp.Prefix, "error", ctx.Err())
			break
		}

		id := wire.NewNodeID(ns, nodeName(exp.Prefix, NodeState))
		dv, err := e.reader.ReadValue(ctx, id)
		if err != nil {
			e.logger.Debug("probe skipped", "device", exp.Prefix, "namespace", ns, "error", err)
			continue
		}
		if dv.Status.IsBad() {
			e.logger.Debug("probe skipped", "device", exp.Prefix, "namespace", ns, "status", dv.Status)
			continue
		}

		entry.resolve(ns)
		e.logger.Debug("device resolved", "device", exp.Prefix, "namespace", ns)
		break
	}
	return entry
}

func nodeName(prefix, name string) string {
	return fmt.Sprintf("%s_%s", prefix, name)
}

// Entry is the discovery outcome for one expected device.
type Entry struct {
	Expected

	// Namespace is the home namespace. Valid only when Found.
	Namespace uint16

	names []string
	nodes map[string]wire.NodeID
}

func (e *Entry) resolve(ns uint16) {
	e.Namespace = ns
	e.nodes = make(map[string]wire.NodeID)
	names := []string{NodeState, NodeTemperature, NodeTurnOn, NodeTurnOff}
	if e.Dimmable {
		names = append(names, NodeBrightness, NodeSetBrightness)
	}
	for _, name := range names {
		e.names = append(e.names, name)
		e.nodes[name] = wire.NewNodeID(ns, nodeName(e.Prefix, name))
	}
}

// Found reports whether the identifier set is non-empty.
func (e *Entry) Found() bool { return len(e.nodes) > 0 }

// Node returns the identifier recorded under name.
func (e *Entry) Node(name string) (wire.NodeID, bool) {
	id, ok := e.nodes[name]
	return id, ok
}

// Names returns the recorded node names in resolution order.
func (e *Entry) Names() []string {
	return append([]string(nil), e.names...)
}

// Object returns the device folder, the owner for method calls. It is the
// zero NodeID when the device was not found.
func (e *Entry) Object() wire.NodeID {
	if !e.Found() {
		return wire.NodeID{}
	}
	return wire.NewNodeID(e.Namespace, e.Prefix)
}

// DisplayName returns "<Device Name>_<name>", the label used for monitored
// items.
func (e *Entry) DisplayName(name string) string {
	return nodeName(e.Name, name)
}

// Registry maps expected devices to their discovery outcome, in insertion
// order.
type Registry struct {
	entries  []*Entry
	byPrefix map[string]*Entry
}

func newRegistry() *Registry {
	return &Registry{byPrefix: make(map[string]*Entry)}
}

// NewRegistry builds a registry from already resolved entries.
func NewRegistry(entries ...*Entry) *Registry {
	r := newRegistry()
	for _, e := range entries {
		r.add(e)
	}
	return r
}

func (r *Registry) add(e *Entry) {
	if old, ok := r.byPrefix[e.Prefix]; ok {
		*old = *e
		return
	}
	r.entries = append(r.entries, e)
	r.byPrefix[e.Prefix] = e
}

// Entries returns all entries in insertion order.
func (r *Registry) Entries() []*Entry {
	return append([]*Entry(nil), r.entries...)
}

// Lookup returns the entry for a device prefix.
func (r *Registry) Lookup(prefix string) (*Entry, bool) {
	e, ok := r.byPrefix[prefix]
	return e, ok
}

// FoundCount returns the number of resolved devices.
func (r *Registry) FoundCount() int {
	n := 0
	for _, e := range r.entries {
		if e.Found() {
			n++
		}
	}
	return n
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.entries) }
