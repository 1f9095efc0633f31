// Package mqttbridge mirrors the device fleet onto an MQTT broker.
//
// Topics, under a configurable prefix (default "smartbulb"):
//
//	<prefix>/status                  retained "online"; Last Will "offline"
//	<prefix>/devices/<id>/state      retained JSON snapshot, on every change
//	<prefix>/devices/<id>/command    {"method":"SetBrightness","level":40}
//	<prefix>/devices/<id>/result     outcome of each command
//
// Commands go through the same dispatch as protocol Call requests.
// "SetError" injects a fault.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/smartbulb/smartbulb-go/pkg/bulb"
	"github.com/smartbulb/smartbulb-go/pkg/registry"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// Controller is the device registry as seen by the bridge.
// *registry.Registry satisfies it.
type Controller interface {
	Invoke(ctx context.Context, deviceID, method string, args []wire.Variant) error
	InjectFault(deviceID string) error
	Snapshots() []bulb.Snapshot
	OnSnapshot(fn func(snapshots []bulb.Snapshot))
}

// StatePayload is the JSON published on a device's state topic.
type StatePayload struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Temperature float64   `json:"temperature"`
	Brightness  *int      `json:"brightness,omitempty"`
	Dimmable    bool      `json:"dimmable"`
	Timestamp   time.Time `json:"timestamp"`
}

// Command is the JSON accepted on a device's command topic.
type Command struct {
	Method string `json:"method"`
	Level  *int   `json:"level,omitempty"`
}

// Result is the JSON published on a device's result topic.
type Result struct {
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bridge publishes snapshots and executes commands.
type Bridge struct {
	ctrl   Controller
	config Config
	topics Topics
	logger *slog.Logger

	client pahomqtt.Client

	mu      sync.Mutex
	started bool
	stopped bool

	latest chan []bulb.Snapshot
	done   chan struct{}
	wg     sync.WaitGroup

	now func() time.Time
}

// New creates a bridge. Nothing connects until Start.
func New(ctrl Controller, config Config) *Bridge {
	if config.TopicPrefix == "" {
		config.TopicPrefix = DefaultTopicPrefix
	}
	if config.ClientID == "" {
		config.ClientID = DefaultClientID
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bridge{
		ctrl:   ctrl,
		config: config,
		topics: Topics{Prefix: config.TopicPrefix},
		logger: logger,
		latest: make(chan []bulb.Snapshot, 1),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Topics returns the bridge's topic names.
func (b *Bridge) Topics() Topics { return b.topics }

// Start connects, subscribes to commands and publishes the current fleet.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.config.validate(); err != nil {
		return err
	}
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.mu.Unlock()

	opts := buildClientOptions(b.config, b.topics)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) { b.handleConnect(c) })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.logger.Warn("mqtt connection lost", "error", err)
	})

	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		b.client.Disconnect(0)
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	b.wg.Add(1)
	go b.publishLoop()

	b.ctrl.OnSnapshot(b.enqueue)
	b.enqueue(b.ctrl.Snapshots())

	b.logger.Info("mqtt bridge started", "broker", b.config.Broker, "prefix", b.config.TopicPrefix)
	return nil
}

// handleConnect (re)subscribes and announces the bridge online. It runs on
// every connect, including automatic reconnects.
func (b *Bridge) handleConnect(c pahomqtt.Client) {
	token := c.Subscribe(b.topics.CommandFilter(), b.config.QoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(msg.Topic(), msg.Payload())
	})
	if token.WaitTimeout(defaultPublishTimeout) && token.Error() != nil {
		b.logger.Error("mqtt subscribe failed", "topic", b.topics.CommandFilter(), "error", token.Error())
	}
	c.Publish(b.topics.Status(), b.config.QoS, true, StatusOnline)
}

// enqueue keeps only the newest pending snapshot.
func (b *Bridge) enqueue(snaps []bulb.Snapshot) {
	for {
		select {
		case b.latest <- snaps:
			return
		default:
		}
		select {
		case <-b.latest:
		default:
		}
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case snaps := <-b.latest:
			for _, s := range snaps {
				if err := b.publishState(s); err != nil {
					b.logger.Warn("publish state failed", "device", s.ID, "error", err)
				}
			}
		}
	}
}

func (b *Bridge) publishState(s bulb.Snapshot) error {
	p := StatePayload{
		ID:          s.ID,
		Name:        s.Name,
		State:       s.State.String(),
		Temperature: s.Temperature,
		Dimmable:    s.Dimmable,
		Timestamp:   b.now().UTC(),
	}
	if s.Dimmable {
		level := s.Brightness
		p.Brightness = &level
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return b.publish(b.topics.State(s.ID), data, true)
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("mqtt command handler panic recovered", "topic", topic, "panic", r)
		}
	}()

	id, ok := b.topics.DeviceFromCommand(topic)
	if !ok {
		b.logger.Warn("ignoring command on unexpected topic", "topic", topic)
		return
	}

	var cmd Command
	var err error
	if len(payload) > maxPayloadSize {
		err = fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	} else if jerr := json.Unmarshal(payload, &cmd); jerr != nil {
		err = fmt.Errorf("%w: %w", wire.StatusBadDecodingError, jerr)
	} else {
		err = b.execute(id, cmd)
	}

	res := Result{Method: cmd.Method, Status: statusOf(err).String(), Timestamp: b.now().UTC()}
	if err != nil {
		res.Error = err.Error()
		b.logger.Info("mqtt command failed", "device", id, "method", cmd.Method, "error", err)
	} else {
		b.logger.Debug("mqtt command executed", "device", id, "method", cmd.Method)
	}

	data, _ := json.Marshal(res)
	if err := b.publish(b.topics.Result(id), data, false); err != nil {
		b.logger.Warn("publish result failed", "device", id, "error", err)
	}
}

func (b *Bridge) execute(deviceID string, cmd Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()

	switch cmd.Method {
	case registry.MethodSetError:
		return b.ctrl.InjectFault(deviceID)
	case registry.MethodSetBrightness:
		var args []wire.Variant
		if cmd.Level != nil {
			level, err := wire.NewVariant(*cmd.Level)
			if err != nil {
				return err
			}
			args = append(args, level)
		}
		return b.ctrl.Invoke(ctx, deviceID, cmd.Method, args)
	case registry.MethodTurnOn, registry.MethodTurnOff:
		return b.ctrl.Invoke(ctx, deviceID, cmd.Method, nil)
	default:
		return fmt.Errorf("%w: %q", registry.ErrUnknownMethod, cmd.Method)
	}
}

func statusOf(err error) wire.Status {
	if errors.Is(err, ErrPayloadTooLarge) {
		return wire.StatusBadDecodingError
	}
	return registry.StatusOf(err)
}

// publish validates and sends one message, waiting for the acknowledgment.
func (b *Bridge) publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	if b.client == nil || !b.client.IsConnected() {
		return ErrNotConnected
	}
	token := b.client.Publish(topic, b.config.QoS, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("publish %s: timeout after %v", topic, defaultPublishTimeout)
	}
	return token.Error()
}

// Stop publishes the offline status and disconnects. It is safe to call
// more than once.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.started || b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()

	if err := b.publish(b.topics.Status(), []byte(StatusOffline), true); err != nil {
		b.logger.Debug("publish offline status failed", "error", err)
	}
	b.client.Disconnect(defaultDisconnectQuiesce)
	b.logger.Info("mqtt bridge stopped")
}
