package registry

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/bulb"
	"github.com/smartbulb/smartbulb-go/pkg/log"
)

// DefaultNamespaceURI is the application namespace of the default fleet.
const DefaultNamespaceURI = "urn:smartbulb:devices"

// DefaultUpdateInterval is the period of the temperature update tick.
const DefaultUpdateInterval = 2 * time.Second

// DeviceSpec describes one device of the fleet.
type DeviceSpec struct {
	ID       string
	Name     string
	Dimmable bool

	// Namespace indexes Config.NamespaceURIs.
	Namespace int

	// InitialState is applied at startup through the device operations.
	// Only OFF and ON are accepted.
	InitialState bulb.State

	// InitialBrightness is applied after InitialState on dimmable devices
	// when non-zero.
	InitialBrightness int
}

// Config configures a Registry.
type Config struct {
	// NamespaceURIs are registered in order. Devices refer to them by slot.
	NamespaceURIs []string

	// Devices is the fleet, in presentation order.
	Devices []DeviceSpec

	// UpdateInterval is the tick period. Zero means DefaultUpdateInterval.
	UpdateInterval time.Duration

	// Logger receives operational messages.
	Logger *slog.Logger

	// ProtocolLogger receives device state change events (optional).
	ProtocolLogger log.Logger

	// Rand seeds every device's simulation. Nil uses a time-based source.
	Rand *rand.Rand
}

// DefaultFleet returns the three-bulb demonstration fleet.
func DefaultFleet() []DeviceSpec {
	return []DeviceSpec{
		{ID: "PRO_001", Name: "Smart Bulb Pro 001", Dimmable: true, InitialState: bulb.StateOn, InitialBrightness: 75},
		{ID: "STD_001", Name: "Smart Bulb Standard 001", InitialState: bulb.StateOff},
		{ID: "STD_002", Name: "Smart Bulb Standard 002", InitialState: bulb.StateOff},
	}
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		NamespaceURIs:  []string{DefaultNamespaceURI},
		Devices:        DefaultFleet(),
		UpdateInterval: DefaultUpdateInterval,
	}
}
