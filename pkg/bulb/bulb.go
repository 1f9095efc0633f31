package bulb

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrOutOfRange is returned by SetBrightness for levels outside [0, 100].
var ErrOutOfRange = errors.New("brightness out of range")

// Brightness limits.
const (
	MinBrightness     = 0
	MaxBrightness     = 100
	DefaultBrightness = 50
)

// Temperature bands in degrees Celsius.
const (
	InitialTemperature = 20.0

	OnMinTemperature  = 25.0
	OnMaxTemperature  = 45.0
	OffMinTemperature = 15.0
	OffMaxTemperature = 25.0

	dimmedMinTemperature = 18.0
	dimmedMaxTemperature = 50.0
)

// State is the operating state of a bulb.
type State uint8

const (
	// StateOff is the initial state.
	StateOff State = iota

	// StateOn indicates the bulb is lit.
	StateOn

	// StateError indicates a fault. It is terminal.
	StateError
)

// String returns the state name as exposed on the network.
func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateOn:
		return "ON"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseState parses a state name produced by String.
func ParseState(s string) (State, error) {
	switch s {
	case "OFF":
		return StateOff, nil
	case "ON":
		return StateOn, nil
	case "ERROR":
		return StateError, nil
	default:
		return 0, fmt.Errorf("unknown bulb state %q", s)
	}
}

// Capabilities describes the optional features of a bulb.
type Capabilities struct {
	// Dimmable enables brightness control.
	Dimmable bool
}

// Option configures a Bulb at construction time.
type Option func(*Bulb)

// WithRand sets the random source used by the simulation.
func WithRand(rng *rand.Rand) Option {
	return func(b *Bulb) {
		b.rng = rng
	}
}

// Bulb is a simulated smart bulb.
type Bulb struct {
	id   string
	name string
	caps Capabilities

	state       State
	temperature float64
	brightness  int

	rng *rand.Rand
}

// New creates a bulb in the OFF state at ambient temperature.
func New(id, name string, caps Capabilities, opts ...Option) *Bulb {
	b := &Bulb{
		id:          id,
		name:        name,
		caps:        caps,
		state:       StateOff,
		temperature: InitialTemperature,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return b
}

// ID returns the stable short identifier (e.g. "PRO_001").
func (b *Bulb) ID() string { return b.id }

// Name returns the display name.
func (b *Bulb) Name() string { return b.name }

// Capabilities returns the bulb's capability set.
func (b *Bulb) Capabilities() Capabilities { return b.caps }

// Dimmable reports whether the bulb supports brightness control.
func (b *Bulb) Dimmable() bool { return b.caps.Dimmable }

// State returns the operating state.
func (b *Bulb) State() State { return b.state }

// Temperature returns the simulated temperature in degrees Celsius.
func (b *Bulb) Temperature() float64 { return b.temperature }

// Brightness returns the brightness level. It is always 0 for
// non-dimmable bulbs.
func (b *Bulb) Brightness() int { return b.brightness }

// TurnOn switches the bulb on.
func (b *Bulb) TurnOn() {
	if b.state == StateError {
		return
	}
	b.state = StateOn
	b.temperature = 25.0 + b.rng.Float64()*15.0

	if !b.caps.Dimmable {
		return
	}
	if b.brightness == 0 {
		b.brightness = DefaultBrightness
	}
	b.applyBrightnessTemperature()
}

// TurnOff switches the bulb off. Dimmable bulbs drop to zero brightness.
func (b *Bulb) TurnOff() {
	if b.state == StateError {
		return
	}
	b.state = StateOff
	b.temperature = 18.0 + b.rng.Float64()*5.0
	if b.caps.Dimmable {
		b.brightness = 0
	}
}

// SetError moves the bulb into the terminal ERROR state.
func (b *Bulb) SetError() {
	b.state = StateError
	b.temperature = b.rng.Float64() * 10.0
}

// SetBrightness sets the brightness level and derives the operating state
// from it: a positive level turns an OFF bulb on, zero turns an ON bulb off.
//
// Levels outside [0, 100] fail with ErrOutOfRange and leave the bulb
// untouched. On a non-dimmable bulb the call is accepted and ignored.
func (b *Bulb) SetBrightness(level int) error {
	if level < MinBrightness || level > MaxBrightness {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, level, MinBrightness, MaxBrightness)
	}
	if b.state == StateError || !b.caps.Dimmable {
		return nil
	}

	b.brightness = level
	switch {
	case level > 0 && b.state == StateOff:
		b.state = StateOn
	case level == 0 && b.state == StateOn:
		b.TurnOff()
	}
	b.applyBrightnessTemperature()
	return nil
}

// UpdateTemperature applies one step of ambient drift.
func (b *Bulb) UpdateTemperature() {
	if b.state == StateError {
		return
	}
	variation := (b.rng.Float64() - 0.5) * 2.0
	if b.state == StateOn {
		b.temperature = clamp(b.temperature+variation, OnMinTemperature, OnMaxTemperature)
	} else {
		b.temperature = clamp(b.temperature+variation, OffMinTemperature, OffMaxTemperature)
	}
}

// applyBrightnessTemperature derives temperature from brightness while ON.
func (b *Bulb) applyBrightnessTemperature() {
	if b.state != StateOn {
		return
	}
	base := 20.0 + (float64(b.brightness)/100.0)*25.0
	variation := (b.rng.Float64() - 0.5) * 3.0
	b.temperature = clamp(base+variation, dimmedMinTemperature, dimmedMaxTemperature)
}

// Snapshot returns an immutable copy of the bulb's observable state.
func (b *Bulb) Snapshot() Snapshot {
	return Snapshot{
		ID:          b.id,
		Name:        b.name,
		Dimmable:    b.caps.Dimmable,
		State:       b.state,
		Temperature: b.temperature,
		Brightness:  b.brightness,
	}
}

// Snapshot is a point-in-time copy of a bulb's fields.
type Snapshot struct {
	ID          string
	Name        string
	Dimmable    bool
	State       State
	Temperature float64
	Brightness  int
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
