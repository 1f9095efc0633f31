package interactive

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartbulb/smartbulb-go/pkg/model"
	"github.com/smartbulb/smartbulb-go/pkg/registry"
)

type fakeStats struct{}

func (fakeStats) SessionCount() int { return 2 }
func (fakeStats) SubscriptionCount() int { return 1 }
func (fakeStats) NotificationsSent() uint64 { return 42 }
func (fakeStats) RequestsHandled() uint64 { return 7 }

func newFleet(t *testing.T) *registry.Registry {
	t.Helper()
	cfg := registry.DefaultConfig()
	cfg.Rand = rand.New(rand.NewSource(3))
	reg, err := registry.New(model.NewAddressSpace("urn:smartbulb:shell-test"), cfg)
	require.NoError(t, err)
	return reg
}

func run(t *testing.T, fleet Fleet, line string) (string, bool) {
	t.Helper()
	var out bytes.Buffer
	quit := Execute(context.Background(), &out, fleet, fakeStats{}, line)
	return out.String(), quit
}

func TestExecuteDeviceCommands(t *testing.T) {
	fleet := newFleet(t)

	out, _ := run(t, fleet, "devices")
	assert.Contains(t, out, "PRO_001  Smart Bulb Pro 001 (dimmable)")
	assert.Contains(t, out, "PRO_001_SetBrightness")

	out, _ = run(t, fleet, "dim PRO_001 40")
	assert.Contains(t, out, "SetBrightness(PRO_001): Good")

	out, _ = run(t, fleet, "status")
	assert.Contains(t, out, "40%")

	out, _ = run(t, fleet, "dim PRO_001 140")
	assert.Contains(t, out, "BadOutOfRange")

	out, _ = run(t, fleet, "dim PRO_001 4294967346")
	assert.Contains(t, out, "BadOutOfRange")
	out, _ = run(t, fleet, "status")
	assert.Contains(t, out, "40%")

	out, _ = run(t, fleet, "dim STD_001 40")
	assert.Contains(t, out, "failed")

	out, _ = run(t, fleet, "on NOPE")
	assert.Contains(t, out, "BadNodeIdUnknown")

	out, _ = run(t, fleet, "fault STD_002")
	assert.Contains(t, out, "STD_002 is now in ERROR")
	out, _ = run(t, fleet, "on STD_002")
	assert.Contains(t, out, "TurnOn(STD_002)")
}

func TestExecuteUsageAndGeneral(t *testing.T) {
	fleet := newFleet(t)

	out, _ := run(t, fleet, "dim PRO_001")
	assert.Contains(t, out, "Usage: dim <id> <level>")

	out, _ = run(t, fleet, "off")
	assert.Contains(t, out, "Usage: off <id>")

	out, _ = run(t, fleet, "dim PRO_001 bright")
	assert.Contains(t, out, "must be an integer")

	out, _ = run(t, fleet, "stats")
	assert.Contains(t, out, "Notifications sent: 42")

	out, _ = run(t, fleet, "frobnicate")
	assert.Contains(t, out, "Unknown command: frobnicate")

	out, quit := run(t, fleet, "   ")
	assert.Empty(t, out)
	assert.False(t, quit)

	_, quit = run(t, fleet, "quit")
	assert.True(t, quit)
}
