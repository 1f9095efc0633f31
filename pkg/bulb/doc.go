// Package bulb implements the simulated smart-bulb device model.
//
// A Bulb is a single record covering both device variants. The optional
// dimming capability is selected by Capabilities.Dimmable rather than by a
// separate type; non-dimmable bulbs simply never touch their brightness.
//
// # States
//
//	OFF ──TurnOn──▶ ON ──TurnOff──▶ OFF
//	 │               │
//	 └───SetError────┴──▶ ERROR (terminal)
//
// ERROR freezes the simulation: TurnOn, TurnOff, SetBrightness and
// UpdateTemperature are no-ops once a bulb has entered it, and no
// operation leaves it.
//
// # Temperature
//
// Temperature follows the operating state:
//   - TurnOn samples from [25, 40) and dimmable bulbs then derive it from
//     brightness: 20 + brightness/100*25 with ±1.5 jitter, clamped to [18, 50]
//   - TurnOff samples from [18, 23)
//   - SetError samples from [0, 10) and is never bounded afterwards
//   - UpdateTemperature drifts by up to ±1 and clamps to [25, 45] while ON
//     and [15, 25] otherwise
//
// Bulb is not safe for concurrent use. The registry serializes all access
// through its fleet lock.
package bulb
