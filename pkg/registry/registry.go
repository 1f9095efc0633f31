package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/bulb"
	"github.com/smartbulb/smartbulb-go/pkg/log"
	"github.com/smartbulb/smartbulb-go/pkg/model"
	"github.com/smartbulb/smartbulb-go/pkg/version"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Registry errors.
var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrDuplicateDevice  = errors.New("duplicate device id")
	ErrBadNamespaceSlot = errors.New("namespace slot out of range")
	ErrUnknownMethod    = errors.New("unknown method")
	ErrAlreadyStarted   = errors.New("registry already started")
	ErrBadInitialState  = errors.New("initial state must be ON or OFF")
)

// Method and attribute names.
const (
	MethodTurnOn        = "TurnOn"
	MethodTurnOff       = "TurnOff"
	MethodSetBrightness = "SetBrightness"
	MethodSetError      = "SetError"

	AttrState       = "State"
	AttrTemperature = "Temperature"
	AttrBrightness  = "Brightness"
)

// DevicesFolderName is the browse name of the fleet root folder.
const DevicesFolderName = "Devices"

// SnapshotObserver receives the fleet state after every tick and dispatch.
type SnapshotObserver = func(snapshots []bulb.Snapshot)

// CallObserver receives the outcome of every method dispatch.
type CallObserver = func(deviceID, method string, status wire.Status)

// Info describes a device and its node IDs.
type Info struct {
	ID       string
	Name     string
	Dimmable bool
	Folder   wire.NodeID

	// Nodes maps State, Temperature, Brightness, TurnOn, TurnOff and
	// SetBrightness to node IDs, for the nodes the device has.
	Nodes map[string]wire.NodeID
}

type device struct {
	bulb  *bulb.Bulb
	info  Info
	attrs map[string]*model.AttributeNode
}

// Registry owns the bulb fleet and keeps its nodes current.
type Registry struct {
	space    *model.AddressSpace
	config   Config
	logger   *slog.Logger
	rootID   wire.NodeID
	interval time.Duration

	// mu is the fleet lock. It guards every bulb and the publishing of
	// their node values.
	mu      sync.Mutex
	devices []*device
	byID    map[string]*device
	byNode  map[wire.NodeID]*device

	obsMu         sync.RWMutex
	snapObservers []SnapshotObserver
	callObservers []CallObserver

	ticks   atomic.Uint64
	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds the fleet's nodes in space and applies each device's initial
// state.
func New(space *model.AddressSpace, config Config) (*Registry, error) {
	if len(config.NamespaceURIs) == 0 {
		config.NamespaceURIs = []string{DefaultNamespaceURI}
	}
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = DefaultUpdateInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	nsIndex := make([]uint16, len(config.NamespaceURIs))
	for i, uri := range config.NamespaceURIs {
		nsIndex[i] = space.RegisterNamespace(uri)
	}

	r := &Registry{
		space:    space,
		config:   config,
		logger:   logger,
		rootID:   wire.NewNodeID(nsIndex[0], DevicesFolderName),
		interval: config.UpdateInterval,
		byID:     make(map[string]*device),
		byNode:   make(map[wire.NodeID]*device),
	}

	if _, err := space.AddFolder(model.ObjectsFolderID, r.rootID, DevicesFolderName, DevicesFolderName); err != nil {
		return nil, fmt.Errorf("create devices folder: %w", err)
	}

	var opts []bulb.Option
	if config.Rand != nil {
		opts = append(opts, bulb.WithRand(config.Rand))
	}

	for _, spec := range config.Devices {
		if _, dup := r.byID[spec.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, spec.ID)
		}
		if spec.Namespace < 0 || spec.Namespace >= len(nsIndex) {
			return nil, fmt.Errorf("%w: device %s slot %d", ErrBadNamespaceSlot, spec.ID, spec.Namespace)
		}
		if spec.InitialState == bulb.StateError {
			return nil, fmt.Errorf("%w: device %s", ErrBadInitialState, spec.ID)
		}
		b := bulb.New(spec.ID, spec.Name, bulb.Capabilities{Dimmable: spec.Dimmable}, opts...)
		d, err := r.build(b, nsIndex[spec.Namespace])
		if err != nil {
			return nil, fmt.Errorf("build device %s: %w", spec.ID, err)
		}
		applyInitialState(b, spec)
		r.devices = append(r.devices, d)
		r.byID[spec.ID] = d
	}

	now := time.Now()
	for _, d := range r.devices {
		r.publish(d, now)
	}
	return r, nil
}

func applyInitialState(b *bulb.Bulb, spec DeviceSpec) {
	switch spec.InitialState {
	case bulb.StateOn:
		b.TurnOn()
	case bulb.StateOff:
		b.TurnOff()
	}
	if spec.Dimmable && spec.InitialBrightness > 0 {
		// Initial brightness is validated by config; an out of range
		// value leaves the bulb as it is.
		_ = b.SetBrightness(spec.InitialBrightness)
	}
}

// build creates the device folder and its nodes.
func (r *Registry) build(b *bulb.Bulb, ns uint16) (*device, error) {
	id := b.ID()
	d := &device{
		bulb: b,
		info: Info{
			ID:       id,
			Name:     b.Name(),
			Dimmable: b.Dimmable(),
			Folder:   wire.NewNodeID(ns, id),
			Nodes:    make(map[string]wire.NodeID),
		},
		attrs: make(map[string]*model.AttributeNode),
	}
	if _, err := r.space.AddFolder(r.rootID, d.info.Folder, id, b.Name()); err != nil {
		return nil, err
	}

	type attrDef struct {
		name string
		dt   wire.DataType
	}
	attrs := []attrDef{
		{AttrState, wire.TypeString},
		{AttrTemperature, wire.TypeDouble},
	}
	if b.Dimmable() {
		attrs = append(attrs, attrDef{AttrBrightness, wire.TypeInt32})
	}
	for _, a := range attrs {
		nodeID := wire.NewNodeID(ns, id+"_"+a.name)
		attr, err := r.space.AddAttribute(d.info.Folder, nodeID, a.name, a.dt, model.AccessReadOnly)
		if err != nil {
			return nil, err
		}
		d.attrs[a.name] = attr
		d.info.Nodes[a.name] = nodeID
		r.byNode[nodeID] = d
	}

	type methodDef struct {
		name   string
		inputs []model.Argument
		run    func(args []wire.Variant) error
	}
	methods := []methodDef{
		{MethodTurnOn, nil, func([]wire.Variant) error { b.TurnOn(); return nil }},
		{MethodTurnOff, nil, func([]wire.Variant) error { b.TurnOff(); return nil }},
	}
	if b.Dimmable() {
		methods = append(methods, methodDef{
			name:   MethodSetBrightness,
			inputs: []model.Argument{{Name: "Level", DataType: wire.TypeInt32, Description: "Brightness level (0-100)"}},
			run:    func(args []wire.Variant) error { return setBrightness(b, args) },
		})
	}
	for _, m := range methods {
		nodeID := wire.NewNodeID(ns, id+"_"+m.name)
		name, run := m.name, m.run
		handler := func(_ context.Context, args []wire.Variant) ([]wire.Variant, error) {
			return nil, r.dispatch(d, name, func() error { return run(args) })
		}
		if _, err := r.space.AddMethod(d.info.Folder, nodeID, m.name, m.inputs, handler); err != nil {
			return nil, err
		}
		d.info.Nodes[m.name] = nodeID
	}
	return d, nil
}

// setBrightness runs SetBrightness with the first argument. The address
// space has already checked that it is present and an Int32.
func setBrightness(b *bulb.Bulb, args []wire.Variant) error {
	level, ok := args[0].Int32()
	if !ok {
		return fmt.Errorf("%w: level must be an integer", wire.StatusBadInvalidArgument)
	}
	if err := b.SetBrightness(int(level)); err != nil {
		if errors.Is(err, bulb.ErrOutOfRange) {
			return fmt.Errorf("%w: %w", wire.StatusBadOutOfRange, err)
		}
		return err
	}
	return nil
}

// dispatch runs a device mutation under the fleet lock and publishes the
// device's nodes before releasing it.
func (r *Registry) dispatch(d *device, method string, mutate func() error) error {
	r.mu.Lock()
	before := d.bulb.State()
	err := mutate()
	r.publish(d, time.Now())
	after := d.bulb.State()
	snaps := r.snapshotsLocked()
	r.mu.Unlock()

	status := model.StatusOf(err)
	r.logger.Debug("method dispatched", "device", d.info.ID, "method", method, "status", status)
	if before != after {
		r.logDeviceState(d.info.ID, before, after, method)
	}
	r.notifyCall(d.info.ID, method, status)
	r.notifySnapshots(snaps)
	return err
}

// publish copies the bulb's fields into its attribute nodes. Must be
// called with r.mu held.
func (r *Registry) publish(d *device, now time.Time) {
	if err := d.attrs[AttrState].SetValue(d.bulb.State().String(), now); err != nil {
		r.logger.Error("publish state", "device", d.info.ID, "error", err)
	}
	if err := d.attrs[AttrTemperature].SetValue(d.bulb.Temperature(), now); err != nil {
		r.logger.Error("publish temperature", "device", d.info.ID, "error", err)
	}
	if attr, ok := d.attrs[AttrBrightness]; ok {
		if err := attr.SetValue(int32(d.bulb.Brightness()), now); err != nil {
			r.logger.Error("publish brightness", "device", d.info.ID, "error", err)
		}
	}
}

func (r *Registry) snapshotsLocked() []bulb.Snapshot {
	out := make([]bulb.Snapshot, len(r.devices))
	for i, d := range r.devices {
		out[i] = d.bulb.Snapshot()
	}
	return out
}

// Start runs the update tick until ctx is done or Stop is called.
func (r *Registry) Start(ctx context.Context) error {
	if r.started.Swap(true) {
		return ErrAlreadyStarted
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Tick()
			}
		}
	}()
	r.logger.Info("registry started", "devices", len(r.devices), "interval", r.interval)
	return nil
}

// Stop ends the update tick and waits for it to exit.
func (r *Registry) Stop() {
	if !r.started.Load() || r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
}

// Tick updates every device's temperature and publishes the fleet.
func (r *Registry) Tick() {
	r.mu.Lock()
	now := time.Now()
	for _, d := range r.devices {
		d.bulb.UpdateTemperature()
		r.publish(d, now)
	}
	snaps := r.snapshotsLocked()
	r.mu.Unlock()

	r.ticks.Add(1)
	r.notifySnapshots(snaps)
}

// Ticks returns the number of update ticks run.
func (r *Registry) Ticks() uint64 {
	return r.ticks.Load()
}

// ReadFresh republishes the device owning id and returns the node's value.
func (r *Registry) ReadFresh(id wire.NodeID) (wire.DataValue, error) {
	d, ok := r.byNode[id]
	if !ok {
		return wire.DataValue{}, fmt.Errorf("%w: %s", model.ErrNodeNotFound, id)
	}
	r.mu.Lock()
	r.publish(d, time.Now())
	r.mu.Unlock()

	attr, err := r.space.Attribute(id)
	if err != nil {
		return wire.DataValue{}, err
	}
	return attr.Value(), nil
}

// Invoke dispatches a method by device ID and method name, as a Call
// request would.
func (r *Registry) Invoke(ctx context.Context, deviceID, method string, args []wire.Variant) error {
	d, ok := r.byID[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	methodID, ok := d.info.Nodes[method]
	if !ok || d.attrs[method] != nil {
		return fmt.Errorf("%w: %s on %s", ErrUnknownMethod, method, deviceID)
	}
	m, err := r.space.Method(d.info.Folder, methodID)
	if err != nil {
		return err
	}
	_, err = m.Call(ctx, args)
	return err
}

// StatusOf maps an Invoke or InjectFault error to its protocol status.
func StatusOf(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusGood
	case errors.Is(err, ErrDeviceNotFound):
		return wire.StatusBadNodeIDUnknown
	case errors.Is(err, ErrUnknownMethod):
		return wire.StatusBadMethodInvalid
	default:
		return model.StatusOf(err)
	}
}

// InjectFault moves a device into the ERROR state. It is the only way into
// ERROR, and nothing leaves it.
func (r *Registry) InjectFault(deviceID string) error {
	d, ok := r.byID[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return r.dispatch(d, MethodSetError, func() error {
		d.bulb.SetError()
		return nil
	})
}

// Device returns a device's description.
func (r *Registry) Device(id string) (Info, bool) {
	d, ok := r.byID[id]
	if !ok {
		return Info{}, false
	}
	return d.info, true
}

// Devices returns every device's description in fleet order.
func (r *Registry) Devices() []Info {
	out := make([]Info, len(r.devices))
	for i, d := range r.devices {
		out[i] = d.info
	}
	return out
}

// Capabilities returns the device's node names, sorted, for profile
// validation.
func (i Info) Capabilities() version.DeviceCapabilities {
	nodes := make([]string, 0, len(i.Nodes))
	for name := range i.Nodes {
		nodes = append(nodes, name)
	}
	sort.Strings(nodes)
	return version.DeviceCapabilities{ID: i.ID, Dimmable: i.Dimmable, Nodes: nodes}
}

// CheckProfile validates every device against the node layout of p.
func (r *Registry) CheckProfile(p *version.Profile) []version.ValidationResult {
	out := make([]version.ValidationResult, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, version.ValidateDevice(p, d.info.Capabilities()))
	}
	return out
}

// Snapshots returns the current fleet state.
func (r *Registry) Snapshots() []bulb.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotsLocked()
}

// RootID returns the Devices folder node ID.
func (r *Registry) RootID() wire.NodeID {
	return r.rootID
}

// OnSnapshot registers an observer called after every tick and dispatch,
// outside the fleet lock.
func (r *Registry) OnSnapshot(fn SnapshotObserver) {
	r.obsMu.Lock()
	r.snapObservers = append(r.snapObservers, fn)
	r.obsMu.Unlock()
}

// OnCall registers an observer of method dispatch outcomes.
func (r *Registry) OnCall(fn CallObserver) {
	r.obsMu.Lock()
	r.callObservers = append(r.callObservers, fn)
	r.obsMu.Unlock()
}

func (r *Registry) notifySnapshots(snaps []bulb.Snapshot) {
	r.obsMu.RLock()
	observers := r.snapObservers
	r.obsMu.RUnlock()
	for _, fn := range observers {
		fn(snaps)
	}
}

func (r *Registry) notifyCall(deviceID, method string, status wire.Status) {
	r.obsMu.RLock()
	observers := r.callObservers
	r.obsMu.RUnlock()
	for _, fn := range observers {
		fn(deviceID, method, status)
	}
}

func (r *Registry) logDeviceState(deviceID string, before, after bulb.State, reason string) {
	r.logger.Info("device state changed", "device", deviceID, "from", before, "to", after)
	if r.config.ProtocolLogger == nil {
		return
	}
	r.config.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerService,
		Category:  log.CategoryState,
		DeviceID:  deviceID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityDevice,
			OldState: before.String(),
			NewState: after.String(),
			Reason:   reason,
		},
	})
}
