package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// envOverrides applies SMARTBULB_<SECTION>_<KEY> variables. Empty values
// are ignored.
type envOverrides struct {
	lookup lookupFunc
	errs   []error
}

func (e *envOverrides) get(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envOverrides) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envOverrides) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = b
}

func (e *envOverrides) integer(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = n
}

func (e *envOverrides) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = d
}

func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	e := &envOverrides{lookup: lookup}

	// Server
	e.str("SERVER_ADDRESS", &cfg.Server.Address)
	e.str("SERVER_PATH", &cfg.Server.Path)
	e.str("SERVER_NAME", &cfg.Server.Name)
	e.duration("SERVER_UPDATE_INTERVAL", &cfg.Server.UpdateInterval)
	e.str("SERVER_PROTOCOL_LOG", &cfg.Server.ProtocolLog)

	// Client
	e.str("CLIENT_SERVER_ADDRESS", &cfg.Client.ServerAddress)
	e.boolean("CLIENT_USE_MDNS", &cfg.Client.UseMDNS)
	e.duration("CLIENT_EXERCISE_DELAY", &cfg.Client.ExerciseDelay)
	e.integer("CLIENT_DEMO_BRIGHTNESS", &cfg.Client.DemoBrightness)
	e.duration("CLIENT_MONITOR_WINDOW", &cfg.Client.MonitorWindow)
	e.duration("CLIENT_REQUEST_TIMEOUT", &cfg.Client.RequestTimeout)

	// mDNS
	e.boolean("MDNS_ENABLED", &cfg.MDNS.Enabled)
	e.str("MDNS_INSTANCE", &cfg.MDNS.Instance)
	e.str("MDNS_INTERFACE", &cfg.MDNS.Interface)

	// Metrics
	e.boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	e.str("METRICS_ADDRESS", &cfg.Metrics.Address)

	// MQTT
	e.boolean("MQTT_ENABLED", &cfg.MQTT.Enabled)
	e.str("MQTT_BROKER", &cfg.MQTT.Broker)
	e.str("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	e.str("MQTT_USERNAME", &cfg.MQTT.Username)
	e.str("MQTT_PASSWORD", &cfg.MQTT.Password)
	e.str("MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)
	e.integer("MQTT_QOS", &cfg.MQTT.QoS)

	// InfluxDB
	e.boolean("INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	e.str("INFLUXDB_URL", &cfg.InfluxDB.URL)
	e.str("INFLUXDB_TOKEN", &cfg.InfluxDB.Token)
	e.str("INFLUXDB_ORG", &cfg.InfluxDB.Org)
	e.str("INFLUXDB_BUCKET", &cfg.InfluxDB.Bucket)
	e.duration("INFLUXDB_FLUSH_INTERVAL", &cfg.InfluxDB.FlushInterval)

	// Logging
	e.str("LOGGING_LEVEL", &cfg.Logging.Level)
	e.str("LOGGING_FORMAT", &cfg.Logging.Format)
	e.str("LOGGING_OUTPUT", &cfg.Logging.Output)

	if len(e.errs) > 0 {
		return fmt.Errorf("environment overrides: %w", errors.Join(e.errs...))
	}
	return nil
}
