// Package metrics exposes registry and protocol server statistics in the
// Prometheus text format.
//
// All collectors live in a dedicated prometheus.Registry; nothing is added
// to the global default registry.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartbulb/smartbulb-go/pkg/bulb"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// DefaultAddress is the default listen address of the metrics endpoint.
const DefaultAddress = ":9464"

const namespace = "smartbulb"

// RegistrySource is the device registry as seen by the collectors.
// *registry.Registry satisfies it.
type RegistrySource interface {
	Ticks() uint64
	Snapshots() []bulb.Snapshot
	OnSnapshot(fn func(snapshots []bulb.Snapshot))
	OnCall(fn func(deviceID, method string, status wire.Status))
}

// ServerSource is the protocol server as seen by the collectors.
// *interaction.Server satisfies it.
type ServerSource interface {
	SessionCount() int
	SubscriptionCount() int
	NotificationsSent() uint64
}

// Metrics holds the collectors of one server process.
type Metrics struct {
	registry *prometheus.Registry

	methodCalls *prometheus.CounterVec
	devices     *deviceCollector
}

// New creates the collectors and registers the build info gauge.
func New(version string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		methodCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "method_calls_total",
			Help:      "Method invocations by method and result status",
		}, []string{"method", "status"}),
		devices: newDeviceCollector(),
	}
	m.registry.MustRegister(m.methodCalls, m.devices)
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version, "goversion": runtime.Version()},
	}, func() float64 { return 1 }))
	return m
}

// Registry returns the Prometheus registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WatchRegistry registers the tick counter and device gauges and subscribes
// to snapshot and call notifications of r.
func (m *Metrics) WatchRegistry(r RegistrySource) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registry_ticks_total",
		Help:      "Periodic temperature update ticks",
	}, func() float64 { return float64(r.Ticks()) }))

	m.devices.update(r.Snapshots())
	r.OnSnapshot(m.devices.update)
	r.OnCall(m.ObserveCall)
}

// WatchServer registers connection, subscription and notification
// collectors reading from s.
func (m *Metrics) WatchServer(s ServerSource) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Connected protocol clients",
		}, func() float64 { return float64(s.SessionCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "Subscriptions across all connections",
		}, func() float64 { return float64(s.SubscriptionCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notification messages delivered to clients",
		}, func() float64 { return float64(s.NotificationsSent()) }),
	)
}

// ObserveCall counts one method invocation.
func (m *Metrics) ObserveCall(_ string, method string, status wire.Status) {
	m.methodCalls.WithLabelValues(method, status.String()).Inc()
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "address", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// deviceCollector emits per-device gauges from the latest snapshot.
type deviceCollector struct {
	temperature *prometheus.Desc
	brightness  *prometheus.Desc
	state       *prometheus.Desc

	mu        sync.RWMutex
	snapshots []bulb.Snapshot
}

func newDeviceCollector() *deviceCollector {
	labels := []string{"device"}
	return &deviceCollector{
		temperature: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "temperature_celsius"),
			"Device temperature (°C)", labels, nil),
		brightness: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "brightness_percent"),
			"Brightness of dimmable devices (0-100)", labels, nil),
		state: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "state"),
			"Device state (0=OFF, 1=ON, 2=ERROR)", labels, nil),
	}
}

func (c *deviceCollector) update(snapshots []bulb.Snapshot) {
	c.mu.Lock()
	c.snapshots = snapshots
	c.mu.Unlock()
}

func (c *deviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.temperature
	ch <- c.brightness
	ch <- c.state
}

func (c *deviceCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	snapshots := c.snapshots
	c.mu.RUnlock()

	for _, s := range snapshots {
		ch <- prometheus.MustNewConstMetric(c.temperature, prometheus.GaugeValue, s.Temperature, s.ID)
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, stateValue(s.State), s.ID)
		if s.Dimmable {
			ch <- prometheus.MustNewConstMetric(c.brightness, prometheus.GaugeValue, float64(s.Brightness), s.ID)
		}
	}
}

func stateValue(s bulb.State) float64 {
	switch s {
	case bulb.StateOn:
		return 1
	case bulb.StateError:
		return 2
	default:
		return 0
	}
}
