package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/interaction"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Demonstration defaults.
const (
	DefaultExerciseDelay  = time.Second
	DefaultDemoBrightness = 30
	DefaultMonitorWindow  = 10 * time.Second

	// teardownTimeout bounds the DeleteSubscription issued after monitoring.
	teardownTimeout = 5 * time.Second
)

var (
	// ErrNoDevice is reported when a flow needs a device kind that was not
	// discovered.
	ErrNoDevice = errors.New("no matching device discovered")

	// ErrNothingToMonitor is returned when no attribute was resolved.
	ErrNothingToMonitor = errors.New("no nodes to monitor")

	// ErrNotResolved is reported for a node missing from a device's set.
	ErrNotResolved = errors.New("node not resolved")
)

// Conn is the protocol surface the flows need. *interaction.Client
// satisfies it.
type Conn interface {
	ReadValue(ctx context.Context, id wire.NodeID) (wire.DataValue, error)
	Call(ctx context.Context, object, method wire.NodeID, args ...wire.Variant) ([]wire.Variant, error)
	CreateSubscription(ctx context.Context, params wire.SubscriptionParameters, items []wire.MonitoredItemCreate) (*interaction.Subscription, error)
}

// Config configures a Client.
type Config struct {
	Logger *slog.Logger

	// Now returns the wall clock used for entry timestamps. Nil means
	// time.Now.
	Now func() time.Time
}

// Client runs the telemetry flows over one connection.
type Client struct {
	conn   Conn
	logger *slog.Logger
	now    func() time.Time
}

// New creates a telemetry client.
func New(conn Conn, config Config) *Client {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Client{conn: conn, logger: logger, now: now}
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FormatValue renders a data value for display. Bad values show their
// status.
func FormatValue(dv wire.DataValue) string {
	if dv.Status.IsBad() {
		return dv.Status.String()
	}
	return dv.Value.String()
}
