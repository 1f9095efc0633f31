// Package config loads the smart bulb server and client configuration.
//
// Configuration is loaded in this order:
//  1. Built-in defaults
//  2. YAML file (when a path is given)
//  3. Environment variables SMARTBULB_<SECTION>_<KEY>
//
// The result is validated before it is returned.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smartbulb/smartbulb-go/pkg/bulb"
	"github.com/smartbulb/smartbulb-go/pkg/discovery"
	"github.com/smartbulb/smartbulb-go/pkg/metrics"
	"github.com/smartbulb/smartbulb-go/pkg/mqttbridge"
	"github.com/smartbulb/smartbulb-go/pkg/registry"
	"github.com/smartbulb/smartbulb-go/pkg/telemetry"
	"github.com/smartbulb/smartbulb-go/pkg/transport"
	"github.com/smartbulb/smartbulb-go/pkg/wire"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SMARTBULB_"

// Config is the complete configuration of both binaries.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Devices  []DeviceConfig `yaml:"devices"`
	Client   ClientConfig   `yaml:"client"`
	MDNS     MDNSConfig     `yaml:"mdns"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the protocol server.
type ServerConfig struct {
	Address        string        `yaml:"address"`
	Path           string        `yaml:"path"`
	Name           string        `yaml:"name"`
	NamespaceURIs  []string      `yaml:"namespace_uris"`
	UpdateInterval time.Duration `yaml:"update_interval"`

	// ProtocolLog is the path of the .sblog protocol event file. Empty
	// disables protocol logging.
	ProtocolLog string `yaml:"protocol_log"`
}

// DeviceConfig describes one simulated device.
type DeviceConfig struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	Dimmable          bool   `yaml:"dimmable"`
	Namespace         int    `yaml:"namespace"`
	InitialState      string `yaml:"initial_state"`
	InitialBrightness int    `yaml:"initial_brightness"`
}

// ExpectedDevice is a device the client probes for.
type ExpectedDevice struct {
	Prefix   string `yaml:"prefix"`
	Name     string `yaml:"name"`
	Dimmable bool   `yaml:"dimmable"`
}

// SubscriptionConfig holds the monitoring subscription parameters.
type SubscriptionConfig struct {
	PublishingInterval         uint32 `yaml:"publishing_interval"`
	LifetimeCount              uint32 `yaml:"lifetime_count"`
	KeepAliveCount             uint32 `yaml:"keep_alive_count"`
	MaxNotificationsPerPublish uint32 `yaml:"max_notifications_per_publish"`
	Priority                   uint8  `yaml:"priority"`
	SamplingInterval           uint32 `yaml:"sampling_interval"`
	QueueSize                  uint32 `yaml:"queue_size"`
	DiscardOldest              bool   `yaml:"discard_oldest"`
}

// ClientConfig configures the demonstration client.
type ClientConfig struct {
	ServerAddress  string             `yaml:"server_address"`
	UseMDNS        bool               `yaml:"use_mdns"`
	Candidates     []uint16           `yaml:"candidates"`
	Expected       []ExpectedDevice   `yaml:"expected"`
	ExerciseDelay  time.Duration      `yaml:"exercise_delay"`
	DemoBrightness int                `yaml:"demo_brightness"`
	MonitorWindow  time.Duration      `yaml:"monitor_window"`
	RequestTimeout time.Duration      `yaml:"request_timeout"`
	Subscription   SubscriptionConfig `yaml:"subscription"`
}

// MDNSConfig configures advertising and browsing.
type MDNSConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Instance  string `yaml:"instance"`
	Interface string `yaml:"interface"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// MQTTConfig configures the MQTT bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// InfluxDBConfig configures the telemetry sink.
type InfluxDBConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Org           string        `yaml:"org"`
	Bucket        string        `yaml:"bucket"`
	BatchSize     uint          `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads the configuration. An empty path means defaults plus
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration of the demonstration fleet.
func Default() *Config {
	monitor := telemetry.DefaultMonitorConfig()

	cfg := &Config{
		Server: ServerConfig{
			Address:        fmt.Sprintf(":%d", transport.DefaultPort),
			Path:           transport.DefaultPath,
			Name:           "SmartBulbServer",
			NamespaceURIs:  []string{registry.DefaultNamespaceURI},
			UpdateInterval: registry.DefaultUpdateInterval,
		},
		Client: ClientConfig{
			ServerAddress:  fmt.Sprintf("localhost:%d", transport.DefaultPort),
			Candidates:     append([]uint16(nil), discovery.DefaultCandidates...),
			ExerciseDelay:  telemetry.DefaultExerciseDelay,
			DemoBrightness: telemetry.DefaultDemoBrightness,
			MonitorWindow:  telemetry.DefaultMonitorWindow,
			RequestTimeout: 10 * time.Second,
			Subscription: SubscriptionConfig{
				PublishingInterval:         monitor.Parameters.PublishingInterval,
				LifetimeCount:              monitor.Parameters.LifetimeCount,
				KeepAliveCount:             monitor.Parameters.KeepAliveCount,
				MaxNotificationsPerPublish: monitor.Parameters.MaxNotificationsPerPublish,
				Priority:                   monitor.Parameters.Priority,
				SamplingInterval:           monitor.SamplingInterval,
				QueueSize:                  monitor.QueueSize,
				DiscardOldest:              monitor.DiscardOldest,
			},
		},
		MDNS: MDNSConfig{
			Instance: "SmartBulbServer",
		},
		Metrics: MetricsConfig{
			Address: metrics.DefaultAddress,
		},
		MQTT: MQTTConfig{
			Broker:      mqttbridge.DefaultBroker,
			ClientID:    mqttbridge.DefaultClientID,
			TopicPrefix: mqttbridge.DefaultTopicPrefix,
			QoS:         1,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "smartbulb",
			Bucket:        "telemetry",
			BatchSize:     100,
			FlushInterval: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}

	for _, d := range registry.DefaultFleet() {
		cfg.Devices = append(cfg.Devices, DeviceConfig{
			ID:                d.ID,
			Name:              d.Name,
			Dimmable:          d.Dimmable,
			Namespace:         d.Namespace,
			InitialState:      d.InitialState.String(),
			InitialBrightness: d.InitialBrightness,
		})
	}
	for _, e := range discovery.DefaultExpected() {
		cfg.Client.Expected = append(cfg.Client.Expected, ExpectedDevice(e))
	}
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Address == "" {
		errs = append(errs, "server.address is required")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, "server.path must start with /")
	}
	if len(c.Server.NamespaceURIs) == 0 {
		errs = append(errs, "server.namespace_uris needs at least one entry")
	}
	if c.Server.UpdateInterval <= 0 {
		errs = append(errs, "server.update_interval must be positive")
	}

	seen := make(map[string]bool)
	for i, d := range c.Devices {
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
		} else if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicated", i, d.ID))
		}
		seen[d.ID] = true
		if d.Namespace < 0 || d.Namespace >= len(c.Server.NamespaceURIs) {
			errs = append(errs, fmt.Sprintf("devices[%d].namespace must index server.namespace_uris", i))
		}
		if _, err := parseState(d.InitialState); err != nil {
			errs = append(errs, fmt.Sprintf("devices[%d].initial_state: %v", i, err))
		}
		if d.InitialBrightness < bulb.MinBrightness || d.InitialBrightness > bulb.MaxBrightness {
			errs = append(errs, fmt.Sprintf("devices[%d].initial_brightness must be between 0 and 100", i))
		}
	}

	if len(c.Client.Candidates) == 0 {
		errs = append(errs, "client.candidates needs at least one namespace")
	}
	if c.Client.DemoBrightness < bulb.MinBrightness || c.Client.DemoBrightness > bulb.MaxBrightness {
		errs = append(errs, "client.demo_brightness must be between 0 and 100")
	}
	if c.Client.MonitorWindow < 0 {
		errs = append(errs, "client.monitor_window must not be negative")
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, "metrics.address is required when metrics are enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, "logging.format must be text or json")
	}
	switch strings.ToLower(c.Logging.Output) {
	case "", "stdout", "stderr":
	default:
		errs = append(errs, "logging.output must be stdout or stderr")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// parseState accepts OFF and ON in any case; empty means OFF. ERROR is
// entered only by fault injection.
func parseState(s string) (bulb.State, error) {
	if s == "" {
		return bulb.StateOff, nil
	}
	state, err := bulb.ParseState(strings.ToUpper(s))
	if err != nil {
		return bulb.StateOff, err
	}
	if state == bulb.StateError {
		return bulb.StateOff, fmt.Errorf("%s is not a valid initial state", s)
	}
	return state, nil
}

// RegistryConfig maps the server and devices sections onto a registry
// configuration. Loggers are left for the caller.
func (c *Config) RegistryConfig() registry.Config {
	rc := registry.Config{
		NamespaceURIs:  append([]string(nil), c.Server.NamespaceURIs...),
		UpdateInterval: c.Server.UpdateInterval,
	}
	for _, d := range c.Devices {
		state, _ := parseState(d.InitialState)
		rc.Devices = append(rc.Devices, registry.DeviceSpec{
			ID:                d.ID,
			Name:              d.Name,
			Dimmable:          d.Dimmable,
			Namespace:         d.Namespace,
			InitialState:      state,
			InitialBrightness: d.InitialBrightness,
		})
	}
	return rc
}

// Expected returns the devices the client probes for.
func (c *Config) Expected() []discovery.Expected {
	out := make([]discovery.Expected, 0, len(c.Client.Expected))
	for _, e := range c.Client.Expected {
		out = append(out, discovery.Expected(e))
	}
	return out
}

// MonitorConfig maps the client section onto a monitor configuration.
func (c *Config) MonitorConfig() telemetry.MonitorConfig {
	s := c.Client.Subscription
	return telemetry.MonitorConfig{
		Window: c.Client.MonitorWindow,
		Parameters: wire.SubscriptionParameters{
			PublishingInterval:         s.PublishingInterval,
			LifetimeCount:              s.LifetimeCount,
			KeepAliveCount:             s.KeepAliveCount,
			MaxNotificationsPerPublish: s.MaxNotificationsPerPublish,
			Priority:                   s.Priority,
		},
		SamplingInterval: s.SamplingInterval,
		QueueSize:        s.QueueSize,
		DiscardOldest:    s.DiscardOldest,
	}
}

// ExerciseConfig maps the client section onto the method exercise.
func (c *Config) ExerciseConfig() telemetry.ExerciseConfig {
	return telemetry.ExerciseConfig{
		Delay:      c.Client.ExerciseDelay,
		Brightness: c.Client.DemoBrightness,
	}
}

// BridgeConfig maps the mqtt section onto a bridge configuration.
func (c *Config) BridgeConfig() mqttbridge.Config {
	return mqttbridge.Config{
		Broker:      c.MQTT.Broker,
		ClientID:    c.MQTT.ClientID,
		Username:    c.MQTT.Username,
		Password:    c.MQTT.Password,
		TopicPrefix: c.MQTT.TopicPrefix,
		QoS:         byte(c.MQTT.QoS),
	}
}

// InfluxConfig maps the influxdb section onto the telemetry sink.
func (c *Config) InfluxConfig() telemetry.InfluxConfig {
	return telemetry.InfluxConfig{
		Enabled:       c.InfluxDB.Enabled,
		URL:           c.InfluxDB.URL,
		Token:         c.InfluxDB.Token,
		Org:           c.InfluxDB.Org,
		Bucket:        c.InfluxDB.Bucket,
		BatchSize:     c.InfluxDB.BatchSize,
		FlushInterval: c.InfluxDB.FlushInterval,
	}
}
