package mqttbridge

import (
	"errors"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	defaultKeepAlive         = 30 * time.Second

	maxQoS         = 2
	maxPayloadSize = 64 << 10
)

// Defaults.
const (
	DefaultBroker      = "tcp://127.0.0.1:1883"
	DefaultClientID    = "smartbulb-server"
	DefaultTopicPrefix = "smartbulb"
)

// Status payloads on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrNotConnected     = errors.New("mqtt not connected")
	ErrInvalidTopic     = errors.New("invalid topic")
	ErrInvalidQoS       = errors.New("invalid QoS")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrAlreadyStarted   = errors.New("bridge already started")
)

// Config configures the bridge.
type Config struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker   string
	ClientID string
	Username string
	Password string

	// TopicPrefix roots every topic.
	TopicPrefix string

	// QoS used for publishes and the command subscription.
	QoS byte

	// ConnectTimeout bounds the initial connection. Zero means 10s.
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() Config {
	return Config{
		Broker:      DefaultBroker,
		ClientID:    DefaultClientID,
		TopicPrefix: DefaultTopicPrefix,
		QoS:         1,
	}
}

func (c Config) validate() error {
	if c.Broker == "" {
		return errors.New("mqtt broker required")
	}
	if c.QoS > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// buildClientOptions maps Config onto paho options. The Last Will marks the
// bridge offline if the connection drops.
func buildClientOptions(cfg Config, topics Topics) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(defaultKeepAlive)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(timeout)

	// Command handlers publish results and wait for the ack.
	opts.SetOrderMatters(false)

	opts.SetWill(topics.Status(), StatusOffline, cfg.QoS, true)
	return opts
}
