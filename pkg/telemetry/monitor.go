package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smartbulb/smartbulb-go/pkg/discovery"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// monitoredNames are the attributes attached to the subscription.
var monitoredNames = []string{discovery.NodeState, discovery.NodeTemperature, discovery.NodeBrightness}

// MonitorConfig configures Monitor.
type MonitorConfig struct {
	// Window is how long notifications are collected.
	Window time.Duration

	// Parameters of the subscription.
	Parameters wire.SubscriptionParameters

	// SamplingInterval, QueueSize and DiscardOldest apply to every item.
	SamplingInterval uint32
	QueueSize        uint32
	DiscardOldest    bool

	// Sinks receive every entry as it arrives.
	Sinks []Sink
}

// DefaultMonitorConfig returns the demonstration settings: a 10 second
// window, 1s publishing and a depth-1 discard-oldest queue per item.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Window: DefaultMonitorWindow,
		Parameters: wire.SubscriptionParameters{
			PublishingInterval:         1000,
			LifetimeCount:              10000,
			KeepAliveCount:             10,
			MaxNotificationsPerPublish: 1000,
			Priority:                   0,
		},
		SamplingInterval: 1000,
		QueueSize:        0,
		DiscardOldest:    true,
	}
}

// Entry is one monitored value.
type Entry struct {
	Timestamp time.Time

	// Device is the device prefix, DeviceName its display name.
	Device     string
	DeviceName string

	Attribute string
	Value     wire.DataValue
}

// Label returns "<Device Name>_<Attribute>".
func (e Entry) Label() string {
	return e.DeviceName + "_" + e.Attribute
}

type target struct {
	entry     *discovery.Entry
	attribute string
}

// Monitor subscribes to every resolved State, Temperature and Brightness
// node and collects notifications until the window elapses, ctx is done or
// the server ends the subscription. The subscription is deleted before
// Monitor returns in every case. The collected entries are returned even
// when err is non-nil.
func (c *Client) Monitor(ctx context.Context, reg *discovery.Registry, config MonitorConfig) ([]Entry, error) {
	var (
		items   []wire.MonitoredItemCreate
		targets = make(map[uint32]target)
	)
	for _, e := range reg.Entries() {
		for _, name := range monitoredNames {
			id, ok := e.Node(name)
			if !ok {
				continue
			}
			handle := uint32(len(items) + 1)
			items = append(items, wire.MonitoredItemCreate{
				NodeID:           id,
				ClientHandle:     handle,
				SamplingInterval: config.SamplingInterval,
				QueueSize:        config.QueueSize,
				DiscardOldest:    config.DiscardOldest,
			})
			targets[handle] = target{entry: e, attribute: name}
		}
	}
	if len(items) == 0 {
		return nil, ErrNothingToMonitor
	}

	sub, err := c.conn.CreateSubscription(ctx, config.Parameters, items)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	c.logger.Info("monitoring", "subscription", sub.ID, "items", len(items), "window", config.Window)

	var (
		mu      sync.Mutex
		entries []Entry
		closed  bool
	)
	record := func(t target, dv wire.DataValue) {
		e := Entry{
			Timestamp:  c.now(),
			Device:     t.entry.Prefix,
			DeviceName: t.entry.Name,
			Attribute:  t.attribute,
			Value:      dv,
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		entries = append(entries, e)
		for _, s := range config.Sinks {
			if err := s.Record(e); err != nil {
				c.logger.Warn("sink failed", "label", e.Label(), "error", err)
			}
		}
	}

	for _, item := range sub.Items() {
		t, ok := targets[item.ClientHandle]
		if !ok {
			continue
		}
		if !item.OK() {
			c.logger.Warn("monitored item rejected", "node", item.NodeID.String(), "status", item.Result.Status)
			continue
		}
		item.OnNotification(func(dv wire.DataValue) { record(t, dv) })
	}

	timer := time.NewTimer(config.Window)
	defer timer.Stop()

	var waitErr error
	select {
	case <-timer.C:
	case <-ctx.Done():
		waitErr = ctx.Err()
	case <-sub.Done():
		waitErr = fmt.Errorf("subscription ended by server: %w", sub.Status())
	}

	// Teardown runs on a fresh context so cancellation of ctx cannot skip it.
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	if err := sub.Delete(tctx); err != nil {
		c.logger.Warn("delete subscription failed", "subscription", sub.ID, "error", err)
	}
	for _, item := range sub.Items() {
		item.OnNotification(nil)
	}

	mu.Lock()
	closed = true
	out := entries
	mu.Unlock()

	for _, s := range config.Sinks {
		if f, ok := s.(Flusher); ok {
			f.Flush()
		}
	}
	c.logger.Info("monitoring finished", "subscription", sub.ID, "entries", len(out),
		"last_sequence", sub.LastSequence(), "keep_alives", sub.KeepAlives())
	return out, waitErr
}
